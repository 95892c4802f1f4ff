package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/session"
)

type HubMsg interface{ isHubMsg() }

// EnsureSession returns the user's session, creating it on first use.
type EnsureSession struct {
	UserID string
	Reply  chan EnsureResult
}

type EnsureResult struct {
	Session *session.Session
	Err     error
}

type GetSession struct {
	UserID string
	Reply  chan *session.Session
}

// RemoveSession shuts the user's session down. Its realtime subscription is
// released with it.
type RemoveSession struct {
	UserID string
}

type ShutdownHub struct{}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Factory builds a live session for a signed-in user.
type Factory func(ctx context.Context, userID string) (*session.Session, error)

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	factory  Factory
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		factory:  factory,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if s := h.live(msg.UserID); s != nil {
					msg.Reply <- EnsureResult{Session: s}
					break
				}
				s, err := h.factory(h.ctx, msg.UserID)
				if err != nil {
					msg.Reply <- EnsureResult{Err: err}
					break
				}
				h.sessions[msg.UserID] = s
				h.log.Info("session started", zap.String("user_id", msg.UserID))
				msg.Reply <- EnsureResult{Session: s}

			case GetSession:
				msg.Reply <- h.live(msg.UserID) // may be nil

			case RemoveSession:
				if s, ok := h.sessions[msg.UserID]; ok {
					s.Send(session.Shutdown{})
					delete(h.sessions, msg.UserID)
					h.log.Info("session ended", zap.String("user_id", msg.UserID))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the user's session unless it has already stopped.
func (h *Hub) live(userID string) *session.Session {
	s := h.sessions[userID]
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		delete(h.sessions, userID)
		return nil
	default:
		return s
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions {
		s.Send(session.Shutdown{})
	}
	clear(h.sessions)
	h.cancel()
}

// Ensure is the blocking form of EnsureSession.
func (h *Hub) Ensure(ctx context.Context, userID string) (*session.Session, error) {
	reply := make(chan EnsureResult, 1)
	select {
	case h.inbox <- EnsureSession{UserID: userID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, session.ErrSessionClosed
	}
	select {
	case res := <-reply:
		return res.Session, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, session.ErrSessionClosed
	}
}

// FollowAuth ends a user's session when they sign out everywhere. It returns
// when ctx ends or the event stream closes.
func (h *Hub) FollowAuth(ctx context.Context, events <-chan backend.AuthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != backend.SignedOut {
				continue
			}
			select {
			case h.inbox <- RemoveSession{UserID: ev.UserID}:
			case <-ctx.Done():
				return
			}
		}
	}
}
