// Package realtime delivers row-change notifications to filtered
// subscribers.
package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
)

// Feed fans changes out to subscribers through buffered channels. A change
// that does not fit a subscriber's buffer is dropped for that subscriber;
// profile changes carry full records, so the next one catches it up.
type Feed struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	log    *zap.Logger
}

func NewFeed(buffer int, log *zap.Logger) *Feed {
	if buffer < 1 {
		buffer = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		subs:   make(map[*subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a subscription released by Close or by ctx ending.
func (f *Feed) Subscribe(ctx context.Context, filter backend.Filter) (backend.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &subscription{
		feed:   f,
		filter: filter,
		ch:     make(chan backend.Change, f.buffer),
	}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	s.stop = context.AfterFunc(ctx, s.Close)
	f.mu.Unlock()
	return s, nil
}

func (f *Feed) Publish(c backend.Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs {
		if !s.filter.Matches(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			f.log.Warn("realtime subscriber slow, change dropped",
				zap.String("table", c.Table), zap.String("row", c.RowID))
		}
	}
}

// Len is the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Feed) remove(s *subscription) {
	f.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		close(s.ch)
	}
	f.mu.Unlock()
}

type subscription struct {
	feed   *Feed
	filter backend.Filter
	ch     chan backend.Change
	stop   func() bool
	once   sync.Once
}

func (s *subscription) Changes() <-chan backend.Change { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() { s.feed.remove(s) })
}
