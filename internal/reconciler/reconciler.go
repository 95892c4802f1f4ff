// Package reconciler keeps a session in step with the authoritative profile
// row by forwarding realtime change notifications.
package reconciler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// Subscription must be released when the owning session ends.
type Subscription struct {
	sub    backend.Subscription
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Subscribe opens a standing subscription on the user's profile row and calls
// onChange for each snapshot, in delivery order, from a single goroutine. If
// the feed closes the channel, delivery stops; nothing reconnects.
func Subscribe(ctx context.Context, rt backend.Realtime, userID string, onChange func(wallet.Snapshot), log *zap.Logger) (*Subscription, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	sub, err := rt.Subscribe(ctx, backend.Filter{Table: backend.TableProfiles, RowID: userID})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe profile %s: %w", userID, err)
	}

	s := &Subscription{sub: sub, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for c := range sub.Changes() {
			if c.Profile == nil && c.Entry == nil {
				continue
			}
			var snap wallet.Snapshot
			if c.Profile != nil {
				snap = *c.Profile
			}
			snap.Entry = c.Entry
			onChange(snap)
		}
		log.Debug("profile subscription ended", zap.String("user_id", userID))
	}()
	return s, nil
}

// Release closes the subscription. Safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.sub.Close()
		s.cancel()
	})
}

// Done is closed once no further onChange call will be made.
func (s *Subscription) Done() <-chan struct{} { return s.done }
