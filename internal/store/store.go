// Package store archives finished debate results.
//
// Archiving runs after a session completes and is best effort: a failed
// write is logged by the caller and never changes the session outcome.
// The archive is not used to resume sessions.
package store

import (
	"context"
	"errors"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
)

// ErrNotFound is returned by Get when no result is archived under the id.
var ErrNotFound = errors.New("debate result not found")

// Archive persists and loads finished debate results.
type Archive interface {
	Save(ctx context.Context, companyName string, result *debate.DebateResult) error
	Get(ctx context.Context, sessionID string) (*debate.DebateResult, error)
	Ping(ctx context.Context) error
	Close() error
}
