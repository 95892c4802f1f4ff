// Package session owns one signed-in player's local state. Every change goes
// through a single actor loop: optimistic wallet mutations, their remote
// results, and authoritative snapshots pushed by the realtime feed.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

var ErrSessionClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

// Attempt submits a mutation. Reply receives exactly one Outcome: at once if
// the precondition fails, otherwise once the remote call resolves. It must be
// buffered.
type Attempt struct {
	Mutation wallet.Mutation
	Reply    chan Outcome
}

func (Attempt) isSessionMsg() {}

// Merge folds an authoritative profile snapshot into the session.
type Merge struct {
	Snapshot wallet.Snapshot
}

func (Merge) isSessionMsg() {}

type Watch struct {
	WatcherID string
	Outbox    chan Snapshot // the session closes it on Unwatch or shutdown
}

func (Watch) isSessionMsg() {}

type Unwatch struct{ WatcherID string }

func (Unwatch) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

// Attach hands the session a resource to release when it shuts down.
type Attach struct {
	Release func()
}

func (Attach) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type settled struct {
	id  string
	err error
}

func (settled) isSessionMsg() {}

type Outcome struct {
	ID    string
	State wallet.State
	Err   error
}

// Snapshot is what watchers receive. Notice is set when a remote failure
// rolled a mutation back and must be shown to the user.
type Snapshot struct {
	Version int
	State   wallet.State
	Notice  string
}

type View struct {
	Version     int
	NumWatchers int
	Queued      int
	InFlight    wallet.Kind // empty when nothing is pending
	State       wallet.State
}

// Remote performs the server-side counterpart of a mutation.
type Remote interface {
	Invoke(ctx context.Context, userID string, p wallet.Pending) error
}

type Options struct {
	Remote Remote
	Policy wallet.MergePolicy
	Logger *zap.Logger
	Clock  func() time.Time
	NewID  func() string
}

type Session struct {
	userID   string
	inbox    chan Msg
	state    wallet.State
	version  int
	watchers map[string]chan Snapshot

	pending  *wallet.Pending
	inflight chan Outcome
	// deferred accumulates the snapshots merged while a pending mutation kept
	// some of their fields out. It is folded in once that mutation settles.
	deferred *wallet.Snapshot
	queue    []Attempt
	releases []func()

	remote Remote
	policy wallet.MergePolicy
	log    *zap.Logger
	clock  func() time.Time
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, userID string, initial wallet.State, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Policy == "" {
		opts.Policy = wallet.AuthoritativeWins
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Session{
		userID:   userID,
		inbox:    make(chan Msg, 64),
		state:    initial.Clone(),
		watchers: make(map[string]chan Snapshot),
		remote:   opts.Remote,
		policy:   opts.Policy,
		log:      opts.Logger.With(zap.String("user_id", userID)),
		clock:    opts.Clock,
		newID:    opts.NewID,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Attempt:
				s.queue = append(s.queue, msg)
				s.drain()

			case settled:
				s.settle(msg)
				s.drain()

			case Merge:
				s.merge(msg.Snapshot)

			case Watch:
				s.watchers[msg.WatcherID] = msg.Outbox
				select {
				case msg.Outbox <- s.snapshot(""):
				default:
				}

			case Unwatch:
				if ch, ok := s.watchers[msg.WatcherID]; ok {
					close(ch)
					delete(s.watchers, msg.WatcherID)
				}

			case GetState:
				v := View{
					Version:     s.version,
					NumWatchers: len(s.watchers),
					Queued:      len(s.queue),
					State:       s.state.Clone(),
				}
				if s.pending != nil {
					v.InFlight = s.pending.Mutation.Kind
				}
				msg.Reply <- v

			case Attach:
				s.releases = append(s.releases, msg.Release)

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// drain starts queued attempts one at a time. Preconditions are checked
// against the state left by every earlier attempt.
func (s *Session) drain() {
	for s.pending == nil && len(s.queue) > 0 {
		a := s.queue[0]
		s.queue = s.queue[1:]

		p, next, err := wallet.Prepare(s.state, a.Mutation, s.clock(), s.newID())
		if err != nil {
			a.Reply <- Outcome{State: s.state.Clone(), Err: err}
			continue
		}

		s.state = next
		s.version++
		s.broadcast(s.snapshot(""))

		s.pending = &p
		s.inflight = a.Reply
		go s.invoke(p)
	}
}

func (s *Session) invoke(p wallet.Pending) {
	err := s.remote.Invoke(s.ctx, s.userID, p)
	select {
	case s.inbox <- settled{id: p.ID, err: err}:
	case <-s.ctx.Done():
	}
}

func (s *Session) settle(msg settled) {
	if s.pending == nil || s.pending.ID != msg.id {
		return
	}
	p, reply := s.pending, s.inflight
	s.pending, s.inflight = nil, nil

	if msg.err == nil {
		if s.foldDeferred() {
			s.version++
			s.broadcast(s.snapshot(""))
		}
		reply <- Outcome{ID: p.ID, State: s.state.Clone()}
		return
	}

	notice := backend.UserMessage(msg.err)
	s.log.Warn("mutation rolled back",
		zap.String("kind", string(p.Mutation.Kind)),
		zap.String("id", p.ID),
		zap.Bool("rebased", p.Rebased()),
		zap.Error(msg.err))

	s.state = p.Undo(s.state)
	s.foldDeferred()
	s.version++
	s.broadcast(s.snapshot(notice))
	reply <- Outcome{ID: p.ID, State: s.state.Clone(), Err: msg.err}
}

func (s *Session) merge(snap wallet.Snapshot) {
	if s.policy == wallet.PreservePending && s.pending != nil {
		var d wallet.Snapshot
		if s.deferred != nil {
			d = *s.deferred
		}
		d = d.Overlay(snap)
		s.deferred = &d
	}
	next, res := wallet.Merge(s.state, snap, s.policy, s.pending)
	if res.BalanceOverwritten && s.pending != nil {
		s.pending.Rebase()
	}
	if !res.Changed {
		return
	}
	s.state = next
	s.version++
	s.broadcast(s.snapshot(""))
}

// foldDeferred merges the snapshot held back during the last pending
// mutation. It reports whether the state changed.
func (s *Session) foldDeferred() bool {
	if s.deferred == nil {
		return false
	}
	next, res := wallet.Merge(s.state, *s.deferred, wallet.AuthoritativeWins, nil)
	s.deferred = nil
	if res.Changed {
		s.state = next
	}
	return res.Changed
}

func (s *Session) snapshot(notice string) Snapshot {
	return Snapshot{Version: s.version, State: s.state.Clone(), Notice: notice}
}

func (s *Session) shutdown() {
	if s.inflight != nil {
		s.inflight <- Outcome{ID: s.pending.ID, State: s.state.Clone(), Err: ErrSessionClosed}
		s.pending, s.inflight = nil, nil
	}
	for _, a := range s.queue {
		a.Reply <- Outcome{State: s.state.Clone(), Err: ErrSessionClosed}
	}
	s.queue = nil

	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	for _, release := range s.releases {
		release()
	}
	s.releases = nil
	s.cancel()
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			// slow watcher
			close(ch)
			delete(s.watchers, id)
		}
	}
}

func (s *Session) UserID() string { return s.userID }

// Done is closed once the loop has exited and every attached resource has
// been released.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send posts m unless the session has shut down.
func (s *Session) Send(m Msg) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// Do submits m and waits for its outcome. The mutation keeps running if ctx
// ends first.
func (s *Session) Do(ctx context.Context, m wallet.Mutation) (Outcome, error) {
	reply := make(chan Outcome, 1)
	if !s.Send(Attempt{Mutation: m, Reply: reply}) {
		return Outcome{}, ErrSessionClosed
	}
	select {
	case out := <-reply:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-s.done:
		// the loop may have answered just before exiting
		select {
		case out := <-reply:
			return out, out.Err
		default:
			return Outcome{}, ErrSessionClosed
		}
	}
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !s.Send(GetState{Reply: reply}) {
		return View{}, ErrSessionClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrSessionClosed
	}
}
