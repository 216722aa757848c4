// Package interaction provides the durable record of user turns.
//
// An interaction is created early, while the answer is still being
// produced, and completed later by a single update. The store is the
// sole owner of interaction state; every mutation goes through it.
package interaction

import (
	"context"

	"github.com/markhodierne/curriculum-agent/core"
)

// Store persists interactions. Implementations must tolerate concurrent
// writers: all writes are keyed by unique id, so per-key atomicity is the
// only discipline required.
type Store interface {
	// Create inserts a new interaction from a draft and returns its
	// globally unique id. The id exists before any downstream event can
	// reference it.
	Create(ctx context.Context, draft core.Draft) (string, error)

	// Update writes the final answer and metric fields for an existing
	// id and advances Created to Completed. It is idempotent: re-applying
	// the same completion leaves observable state unchanged. Returns
	// core.ErrNotFound for an unknown id.
	Update(ctx context.Context, id string, c core.Completion) error

	// Get returns the interaction with the given id, or core.ErrNotFound.
	Get(ctx context.Context, id string) (core.Interaction, error)

	// SetStatus advances the lifecycle status. Transitions that skip a
	// predecessor or leave a terminal state are rejected.
	SetStatus(ctx context.Context, id string, status core.Status) error

	// Recent returns up to limit interactions, newest first.
	Recent(ctx context.Context, limit int) ([]core.Interaction, error)

	// Close releases resources.
	Close() error
}
