package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
)

// turnDoc 发言记录文档.
type turnDoc struct {
	RoundNumber int       `bson:"round_number"`
	Role        string    `bson:"role"`
	Speaker     string    `bson:"speaker"`
	Message     string    `bson:"message"`
	TopicFocus  string    `bson:"topic_focus,omitempty"`
	SpokenAt    time.Time `bson:"spoken_at"`
}

// sessionDoc 一场辩论一个文档, transcript 内嵌.
type sessionDoc struct {
	ID               string    `bson:"_id"`
	CompanyName      string    `bson:"company_name"`
	TotalRounds      int       `bson:"total_rounds"`
	Converged        bool      `bson:"converged"`
	ConvergenceRound *int      `bson:"convergence_round,omitempty"`
	ConsensusSummary string    `bson:"consensus_summary"`
	KeyAgreements    []string  `bson:"key_agreements"`
	KeyDisagreements []string  `bson:"key_disagreements"`
	FinalVerdict     string    `bson:"final_verdict"`
	ConfidenceLevel  string    `bson:"confidence_level"`
	StartedAt        time.Time `bson:"started_at"`
	FinishedAt       time.Time `bson:"finished_at"`
	Transcript       []turnDoc `bson:"transcript"`
}

// MongoConfig Mongo 归档配置
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoArchive stores each result as a single document keyed by session id.
type MongoArchive struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoArchive connects, pings and ensures the lookup indexes exist.
func NewMongoArchive(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URI == "" {
		return nil, errors.New("mongo archive: uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "oracle"
	}
	if cfg.Collection == "" {
		cfg.Collection = "debate_sessions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	a := &MongoArchive{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("component", "archive"), zap.String("backend", "mongo")),
	}
	if err := a.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	_, err = a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "company_name", Value: 1}}},
		{Keys: bson.D{{Key: "finished_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return a, nil
}

// Save upserts the session document.
func (a *MongoArchive) Save(ctx context.Context, companyName string, result *debate.DebateResult) error {
	if result == nil || result.SessionID == "" {
		return errors.New("archive: result without session id")
	}
	doc := toSessionDoc(companyName, result)

	_, err := a.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive session %s: %w", result.SessionID, err)
	}
	a.logger.Debug("debate archived", zap.String("session_id", result.SessionID), zap.Int("turns", len(doc.Transcript)))
	return nil
}

// Get loads an archived result.
func (a *MongoArchive) Get(ctx context.Context, sessionID string) (*debate.DebateResult, error) {
	var doc sessionDoc
	err := a.coll.FindOne(ctx, bson.D{{Key: "_id", Value: sessionID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return fromSessionDoc(&doc), nil
}

// Ping checks the deployment is reachable.
func (a *MongoArchive) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (a *MongoArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

func toSessionDoc(companyName string, r *debate.DebateResult) sessionDoc {
	doc := sessionDoc{
		ID:               r.SessionID,
		CompanyName:      companyName,
		TotalRounds:      r.TotalRounds,
		Converged:        r.Converged,
		ConvergenceRound: r.ConvergenceRound,
		ConsensusSummary: r.ConsensusSummary,
		KeyAgreements:    nonNil(r.KeyAgreements),
		KeyDisagreements: nonNil(r.KeyDisagreements),
		FinalVerdict:     r.FinalVerdict,
		ConfidenceLevel:  string(r.ConfidenceLevel),
		StartedAt:        r.StartedAt.UTC(),
		FinishedAt:       r.FinishedAt.UTC(),
		Transcript:       make([]turnDoc, 0, len(r.Transcript)),
	}
	for _, t := range r.Transcript {
		doc.Transcript = append(doc.Transcript, turnDoc{
			RoundNumber: t.RoundNumber,
			Role:        string(t.Role),
			Speaker:     t.Speaker,
			Message:     t.Message,
			TopicFocus:  t.TopicFocus,
			SpokenAt:    t.Timestamp.UTC(),
		})
	}
	return doc
}

func fromSessionDoc(doc *sessionDoc) *debate.DebateResult {
	r := &debate.DebateResult{
		SessionID:        doc.ID,
		TotalRounds:      doc.TotalRounds,
		Converged:        doc.Converged,
		ConvergenceRound: doc.ConvergenceRound,
		ConsensusSummary: doc.ConsensusSummary,
		KeyAgreements:    nonNil(doc.KeyAgreements),
		KeyDisagreements: nonNil(doc.KeyDisagreements),
		FinalVerdict:     doc.FinalVerdict,
		ConfidenceLevel:  debate.Confidence(doc.ConfidenceLevel),
		StartedAt:        doc.StartedAt,
		FinishedAt:       doc.FinishedAt,
		Transcript:       make([]debate.DebateTurn, 0, len(doc.Transcript)),
	}
	for _, t := range doc.Transcript {
		r.Transcript = append(r.Transcript, debate.DebateTurn{
			RoundNumber: t.RoundNumber,
			Speaker:     t.Speaker,
			Role:        debate.Role(t.Role),
			Message:     t.Message,
			Timestamp:   t.SpokenAt,
			TopicFocus:  t.TopicFocus,
		})
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
