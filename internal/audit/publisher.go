package audit

import (
	"context"

	"github.com/epitomedu/epi/pkg/requestcontext"
)

// Publisher captures acceptance events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. A Publisher
// without a store is disabled and drops every event.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Enabled reports whether emitted events are persisted.
func (p *Publisher) Enabled() bool {
	return p != nil && p.store != nil
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if !p.Enabled() {
		return nil
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	return p.store.Append(ctx, base)
}
