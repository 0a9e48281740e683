package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
)

func sampleResult() *debate.DebateResult {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	round := 3
	return &debate.DebateResult{
		SessionID: uuid.NewString(),
		Transcript: []debate.DebateTurn{
			{RoundNumber: 1, Speaker: "Gemini", Role: debate.RoleOptimist, Message: "Revenue growth of 12% is credible.", Timestamp: started.Add(time.Minute)},
			{RoundNumber: 1, Speaker: "DeepSeek", Role: debate.RoleSkeptic, Message: "Margins are thin at 4%.", Timestamp: started.Add(2 * time.Minute)},
			{RoundNumber: 2, Speaker: "Gemini", Role: debate.RoleOptimist, Message: "I agree margins are thin.", Timestamp: started.Add(3 * time.Minute), TopicFocus: "margins"},
		},
		TotalRounds:      2,
		Converged:        true,
		ConvergenceRound: &round,
		ConsensusSummary: "Both sides accept thin margins.",
		KeyAgreements:    []string{"margins are thin"},
		KeyDisagreements: []string{},
		FinalVerdict:     "Neutral",
		ConfidenceLevel:  debate.ConfidenceMedium,
		StartedAt:        started,
		FinishedAt:       started.Add(5 * time.Minute),
	}
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Backend = "sql"
	cfg.Archive.AutoMigrate = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "archive.db")
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	return cfg
}

func TestOpen_Disabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.Enabled = false

	a, err := Open(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestOpen_UnsupportedBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Backend = "s3"

	_, err := Open(context.Background(), cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestGormArchive_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(t), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Ping(ctx))

	want := sampleResult()
	require.NoError(t, a.Save(ctx, "Acme Corp", want))

	got, err := a.Get(ctx, want.SessionID)
	require.NoError(t, err)

	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.TotalRounds, got.TotalRounds)
	assert.True(t, got.Converged)
	require.NotNil(t, got.ConvergenceRound)
	assert.Equal(t, 3, *got.ConvergenceRound)
	assert.Equal(t, want.KeyAgreements, got.KeyAgreements)
	assert.Empty(t, got.KeyDisagreements)
	assert.Equal(t, debate.ConfidenceMedium, got.ConfidenceLevel)
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))

	require.Len(t, got.Transcript, 3)
	for i := range want.Transcript {
		assert.Equal(t, want.Transcript[i].Role, got.Transcript[i].Role)
		assert.Equal(t, want.Transcript[i].Message, got.Transcript[i].Message)
		assert.Equal(t, want.Transcript[i].RoundNumber, got.Transcript[i].RoundNumber)
	}
	assert.Equal(t, "margins", got.Transcript[2].TopicFocus)
}

func TestGormArchive_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(t), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	r := sampleResult()
	require.NoError(t, a.Save(ctx, "Acme Corp", r))

	r.Transcript = r.Transcript[:1]
	r.FinalVerdict = "Bearish"
	require.NoError(t, a.Save(ctx, "Acme Corp", r))

	got, err := a.Get(ctx, r.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Bearish", got.FinalVerdict)
	assert.Len(t, got.Transcript, 1)
}

func TestGormArchive_NotFound(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(t), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, a.Save(ctx, "Acme Corp", &debate.DebateResult{}))
}

func TestSessionDoc_Conversion(t *testing.T) {
	want := sampleResult()
	want.KeyDisagreements = nil

	doc := toSessionDoc("Acme Corp", want)
	assert.Equal(t, want.SessionID, doc.ID)
	assert.Equal(t, "Acme Corp", doc.CompanyName)
	assert.NotNil(t, doc.KeyDisagreements)
	require.Len(t, doc.Transcript, 3)

	got := fromSessionDoc(&doc)
	assert.Equal(t, want.FinalVerdict, got.FinalVerdict)
	assert.Equal(t, want.Transcript[1].Speaker, got.Transcript[1].Speaker)
	assert.Equal(t, debate.RoleSkeptic, got.Transcript[1].Role)
}

func TestMongoArchive_Integration(t *testing.T) {
	uri := os.Getenv("ORACLE_MONGO_URI")
	if uri == "" {
		t.Skip("ORACLE_MONGO_URI not set")
	}
	ctx := context.Background()

	a, err := NewMongoArchive(ctx, MongoConfig{URI: uri, Database: "oracle_test", Collection: "debate_sessions"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	want := sampleResult()
	require.NoError(t, a.Save(ctx, "Acme Corp", want))

	got, err := a.Get(ctx, want.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 3)

	_, err = a.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewMongoArchive_RequiresURI(t *testing.T) {
	_, err := NewMongoArchive(context.Background(), MongoConfig{}, nil)
	assert.Error(t, err)
}
