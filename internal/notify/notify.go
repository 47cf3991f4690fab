// Package notify fans state-change and message events out to the
// configured transports. Dispatch is best-effort: it runs after the
// originating transaction commits, under a bounded timeout, and a
// transport failure never reaches the caller.
package notify

import (
	"context"
	"time"

	"tradedesk/internal/model"

	"github.com/rs/zerolog"
)

// Transport delivers one notification over a single channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// Dispatcher fans notifications out to all transports.
type Dispatcher interface {
	// Dispatch delivers the batch asynchronously. It must be called
	// strictly after the transaction producing the events has
	// committed, and returns immediately.
	Dispatch(batch []model.Notification)
}

// dispatcher is the production fan-out.
type dispatcher struct {
	transports []Transport
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given transports.
func NewDispatcher(transports []Transport, timeout time.Duration, logger zerolog.Logger) Dispatcher {
	return &dispatcher{
		transports: transports,
		timeout:    timeout,
		logger:     logger.With().Str("component", "notify-dispatcher").Logger(),
	}
}

// Dispatch delivers the batch in a background goroutine. Duplicates of
// the same kind for the same recipient within one batch are dropped so
// a transition never notifies a user twice.
func (d *dispatcher) Dispatch(batch []model.Notification) {
	if len(batch) == 0 || len(d.transports) == 0 {
		return
	}

	type dedupKey struct {
		user string
		kind model.NotificationKind
	}
	seen := make(map[dedupKey]bool, len(batch))
	unique := make([]model.Notification, 0, len(batch))
	for _, n := range batch {
		k := dedupKey{user: n.UserID.String(), kind: n.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, n)
	}

	go func() {
		// Detached from the request context on purpose: a client abort
		// must not cancel delivery of already-committed state.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		for _, n := range unique {
			for _, t := range d.transports {
				if err := t.Send(ctx, n); err != nil {
					d.logger.Warn().
						Err(err).
						Str("transport", t.Name()).
						Str("user_id", n.UserID.String()).
						Str("kind", string(n.Kind)).
						Msg("notification delivery failed")
				}
			}
		}
	}()
}

// NopDispatcher discards every batch; used when no transport is configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch([]model.Notification) {}
