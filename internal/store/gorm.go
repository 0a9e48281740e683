package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/database"
)

// sessionRow maps debate_sessions.
type sessionRow struct {
	ID               string `gorm:"primaryKey"`
	CompanyName      string
	TotalRounds      int
	Converged        bool
	ConvergenceRound *int
	ConsensusSummary string
	KeyAgreements    string
	KeyDisagreements string
	FinalVerdict     string
	ConfidenceLevel  string
	StartedAt        time.Time
	FinishedAt       time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	Turns            []turnRow `gorm:"foreignKey:SessionID;references:ID"`
}

func (sessionRow) TableName() string { return "debate_sessions" }

// turnRow maps debate_turns.
type turnRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   string
	Seq         int
	RoundNumber int
	Role        string
	Speaker     string
	Message     string
	TopicFocus  string
	SpokenAt    time.Time
}

func (turnRow) TableName() string { return "debate_turns" }

// GormArchive stores results in the SQL archive created by internal/migration.
type GormArchive struct {
	pool    *database.PoolManager
	retries int
	logger  *zap.Logger
}

// NewGormArchive wraps a connection pool.
func NewGormArchive(pool *database.PoolManager, logger *zap.Logger) *GormArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormArchive{pool: pool, retries: 3, logger: logger.With(zap.String("component", "archive"), zap.String("backend", "sql"))}
}

// Save writes the session and its transcript in one transaction.
// Saving the same session twice replaces the earlier copy.
func (a *GormArchive) Save(ctx context.Context, companyName string, result *debate.DebateResult) error {
	if result == nil || result.SessionID == "" {
		return errors.New("archive: result without session id")
	}
	row, err := toSessionRow(companyName, result)
	if err != nil {
		return err
	}

	err = a.pool.WithTransactionRetry(ctx, a.retries, func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", row.ID).Delete(&turnRow{}).Error; err != nil {
			return err
		}
		if err := tx.Omit("Turns").Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if len(row.Turns) == 0 {
			return nil
		}
		return tx.Create(&row.Turns).Error
	})
	if err != nil {
		return fmt.Errorf("archive session %s: %w", result.SessionID, err)
	}

	a.logger.Debug("debate archived", zap.String("session_id", result.SessionID), zap.Int("turns", len(row.Turns)))
	return nil
}

// Get loads an archived result with its transcript in speaking order.
func (a *GormArchive) Get(ctx context.Context, sessionID string) (*debate.DebateResult, error) {
	var row sessionRow
	err := a.pool.DB().WithContext(ctx).
		Preload("Turns", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&row, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return fromSessionRow(&row)
}

// Ping checks the database connection.
func (a *GormArchive) Ping(ctx context.Context) error { return a.pool.Ping(ctx) }

// Close closes the pool.
func (a *GormArchive) Close() error { return a.pool.Close() }

func toSessionRow(companyName string, r *debate.DebateResult) (sessionRow, error) {
	agreements, err := json.Marshal(r.KeyAgreements)
	if err != nil {
		return sessionRow{}, err
	}
	disagreements, err := json.Marshal(r.KeyDisagreements)
	if err != nil {
		return sessionRow{}, err
	}

	row := sessionRow{
		ID:               r.SessionID,
		CompanyName:      companyName,
		TotalRounds:      r.TotalRounds,
		Converged:        r.Converged,
		ConvergenceRound: r.ConvergenceRound,
		ConsensusSummary: r.ConsensusSummary,
		KeyAgreements:    string(agreements),
		KeyDisagreements: string(disagreements),
		FinalVerdict:     r.FinalVerdict,
		ConfidenceLevel:  string(r.ConfidenceLevel),
		StartedAt:        r.StartedAt.UTC(),
		FinishedAt:       r.FinishedAt.UTC(),
		Turns:            make([]turnRow, 0, len(r.Transcript)),
	}
	for i, t := range r.Transcript {
		row.Turns = append(row.Turns, turnRow{
			SessionID:   r.SessionID,
			Seq:         i,
			RoundNumber: t.RoundNumber,
			Role:        string(t.Role),
			Speaker:     t.Speaker,
			Message:     t.Message,
			TopicFocus:  t.TopicFocus,
			SpokenAt:    t.Timestamp.UTC(),
		})
	}
	return row, nil
}

func fromSessionRow(row *sessionRow) (*debate.DebateResult, error) {
	r := &debate.DebateResult{
		SessionID:        row.ID,
		TotalRounds:      row.TotalRounds,
		Converged:        row.Converged,
		ConvergenceRound: row.ConvergenceRound,
		ConsensusSummary: row.ConsensusSummary,
		FinalVerdict:     row.FinalVerdict,
		ConfidenceLevel:  debate.Confidence(row.ConfidenceLevel),
		StartedAt:        row.StartedAt,
		FinishedAt:       row.FinishedAt,
		Transcript:       make([]debate.DebateTurn, 0, len(row.Turns)),
	}
	if err := json.Unmarshal([]byte(row.KeyAgreements), &r.KeyAgreements); err != nil {
		return nil, fmt.Errorf("decode key_agreements: %w", err)
	}
	if err := json.Unmarshal([]byte(row.KeyDisagreements), &r.KeyDisagreements); err != nil {
		return nil, fmt.Errorf("decode key_disagreements: %w", err)
	}
	for _, t := range row.Turns {
		r.Transcript = append(r.Transcript, debate.DebateTurn{
			RoundNumber: t.RoundNumber,
			Speaker:     t.Speaker,
			Role:        debate.Role(t.Role),
			Message:     t.Message,
			Timestamp:   t.SpokenAt,
			TopicFocus:  t.TopicFocus,
		})
	}
	return r, nil
}
