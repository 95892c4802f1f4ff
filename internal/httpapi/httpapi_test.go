package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/DoyleJ11/battlezone/internal/ai"
	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/backend/gormstore"
	"github.com/DoyleJ11/battlezone/internal/backend/realtime"
	"github.com/DoyleJ11/battlezone/internal/hub"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/types"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// flakyProcs fails chosen procedures the way a broken backend would.
type flakyProcs struct {
	backend.Procedures
	mu   sync.Mutex
	fail map[string]string
}

func (f *flakyProcs) Call(ctx context.Context, name string, args backend.Args) error {
	f.mu.Lock()
	msg, ok := f.fail[name]
	f.mu.Unlock()
	if ok {
		return &backend.RemoteError{Procedure: name, Message: msg}
	}
	return f.Procedures.Call(ctx, name, args)
}

type testServer struct {
	srv   *httptest.Server
	db    *gorm.DB
	procs *flakyProcs
}

func newServer(t *testing.T, admin bool) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	feed := realtime.NewFeed(16, nil)
	store := gormstore.New(db, gormstore.Options{Publisher: feed, StartingBalance: decimal.NewFromInt(450)})
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SeedTournaments(ctx, time.Now()))

	auth := gormstore.NewAuth(store, []byte("test-secret"))
	procs := &flakyProcs{Procedures: store, fail: map[string]string{}}
	h := hub.NewHub(ctx, hub.NewFactory(hub.FactoryDeps{
		Tables:   store,
		Remote:   session.ProcedureRemote{Procs: procs},
		Realtime: feed,
		Policy:   wallet.AuthoritativeWins,
	}), nil)
	events, stop := auth.Events()
	t.Cleanup(stop)
	go h.FollowAuth(ctx, events)

	srv := httptest.NewServer(SetupRoutes(Deps{
		Auth:      auth,
		Tables:    store,
		Procs:     procs,
		Hub:       h,
		Assistant: ai.NewAssistant(nil, nil),
		Admin:     admin,
	}))
	t.Cleanup(srv.Close)
	return testServer{srv: srv, db: db, procs: procs}
}

func (ts testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts testServer) signUp(t *testing.T, email string) backend.AuthSession {
	t.Helper()
	code, data := ts.do(t, http.MethodPost, "/auth/signup", "", credentials{Email: email, Password: "hunter22"})
	require.Equal(t, http.StatusCreated, code, string(data))
	var as backend.AuthSession
	require.NoError(t, json.Unmarshal(data, &as))
	return as
}

type stateResponse struct {
	ID    string          `json:"id"`
	State types.StateView `json:"state"`
}

func (ts testServer) me(t *testing.T, token string) meResponse {
	t.Helper()
	code, data := ts.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, code, string(data))
	var m meResponse
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func errorOf(t *testing.T, data []byte) string {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(data, &e))
	return e.Error
}

func TestAuthRequired(t *testing.T) {
	ts := newServer(t, false)
	code, _ := ts.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = ts.do(t, http.MethodGet, "/me", "bogus", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, data := ts.do(t, http.MethodPost, "/auth/signup", "", credentials{Email: "x@example.com", Password: "1"})
	require.Equal(t, http.StatusBadRequest, code, string(data))
}

func TestJoinTournament_DebitsAndJoins(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")
	require.Equal(t, "450", ts.me(t, as.Token).State.Profile.Balance.String())

	code, data := ts.do(t, http.MethodPost, "/tournaments/t1/join", as.Token, nil)
	require.Equal(t, http.StatusOK, code, string(data))
	var res stateResponse
	require.NoError(t, json.Unmarshal(data, &res))
	require.True(t, res.State.Profile.Balance.Equal(decimal.NewFromInt(400)))
	require.Equal(t, []string{"t1"}, res.State.Joined)
	require.Len(t, res.State.Transactions, 1)
	require.Equal(t, wallet.StatusCompleted, res.State.Transactions[0].Status)

	code, data = ts.do(t, http.MethodPost, "/tournaments/t1/join", as.Token, nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "already registered for this tournament", errorOf(t, data))

	code, _ = ts.do(t, http.MethodPost, "/tournaments/t5/join", as.Token, nil)
	require.Equal(t, http.StatusConflict, code)

	code, _ = ts.do(t, http.MethodPost, "/tournaments/nope/join", as.Token, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestWithdraw_PreconditionFailsLocally(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")

	code, data := ts.do(t, http.MethodPost, "/wallet/withdraw", as.Token, map[string]any{"amount": "500"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "insufficient balance", errorOf(t, data))

	m := ts.me(t, as.Token)
	require.Equal(t, "450", m.State.Profile.Balance.String())
	require.Empty(t, m.State.Transactions)
}

func TestDeposit_RemoteFailureRollsBack(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")
	ts.procs.mu.Lock()
	ts.procs.fail[backend.ProcRequestDeposit] = "server error"
	ts.procs.mu.Unlock()

	code, data := ts.do(t, http.MethodPost, "/wallet/deposit", as.Token, map[string]any{"amount": 100})
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "server error", errorOf(t, data))

	m := ts.me(t, as.Token)
	require.Equal(t, "450", m.State.Profile.Balance.String())
	require.Len(t, m.State.Transactions, 1)
	require.Equal(t, wallet.StatusFailed, m.State.Transactions[0].Status)
}

func TestUpdateProfile(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")

	code, data := ts.do(t, http.MethodPatch, "/profile", as.Token, map[string]string{"username": "ShadowSlayer"})
	require.Equal(t, http.StatusOK, code, string(data))
	require.Equal(t, "ShadowSlayer", ts.me(t, as.Token).State.Profile.Username)

	code, _ = ts.do(t, http.MethodPatch, "/profile", as.Token, map[string]string{"username": "  "})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestTournamentsAndAI(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")

	code, data := ts.do(t, http.MethodGet, "/tournaments?game=Free%20Fire", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []tournamentView
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 2)
	require.Equal(t, backend.DefaultRules, list[0].Rules)

	code, data = ts.do(t, http.MethodGet, "/tournaments/t1/strategy", as.Token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(data), "No API Key")

	code, data = ts.do(t, http.MethodPost, "/ai/chat", as.Token, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(data), "offline")
}

func TestAdminRoutes(t *testing.T) {
	ts := newServer(t, true)
	player := ts.signUp(t, "player@example.com")
	adm := ts.signUp(t, "boss@example.com")
	require.NoError(t, ts.db.Model(&backend.Profile{}).Where("id = ?", adm.UserID).Update("is_admin", true).Error)

	code, _ := ts.do(t, http.MethodGet, "/admin/transactions", player.Token, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, data := ts.do(t, http.MethodPost, "/wallet/deposit", player.Token, map[string]any{"amount": "100"})
	require.Equal(t, http.StatusOK, code, string(data))
	var res stateResponse
	require.NoError(t, json.Unmarshal(data, &res))

	code, data = ts.do(t, http.MethodGet, "/admin/transactions", adm.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var pending []backend.Transaction
	require.NoError(t, json.Unmarshal(data, &pending))
	require.Len(t, pending, 1)
	require.Equal(t, res.ID, pending[0].ID)
	require.Equal(t, "player", pending[0].Username)

	code, _ = ts.do(t, http.MethodPost, "/admin/transactions/"+res.ID+"/approve", adm.Token, nil)
	require.Equal(t, http.StatusNoContent, code)

	// the approval reaches the player session through the realtime feed
	require.Eventually(t, func() bool {
		return ts.me(t, player.Token).State.Profile.Balance.Equal(decimal.NewFromInt(550))
	}, 2*time.Second, 10*time.Millisecond)

	code, data = ts.do(t, http.MethodPost, "/admin/transactions/"+res.ID+"/approve", adm.Token, nil)
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "transaction is not pending", errorOf(t, data))

	code, data = ts.do(t, http.MethodPost, "/admin/tournaments", adm.Token, map[string]any{
		"title": "Night Cup", "game": "Free Fire", "entry_fee": "5", "max_slots": 10,
		"rules": []string{"Be nice."},
	})
	require.Equal(t, http.StatusCreated, code, string(data))
	var created tournamentView
	require.NoError(t, json.Unmarshal(data, &created))
	require.Equal(t, []string{"Be nice."}, created.Rules)

	code, _ = ts.do(t, http.MethodDelete, "/admin/tournaments/"+created.ID, adm.Token, nil)
	require.Equal(t, http.StatusNoContent, code)
}

func TestPlayerModeHasNoAdminRoutes(t *testing.T) {
	ts := newServer(t, false)
	adm := ts.signUp(t, "boss@example.com")
	require.NoError(t, ts.db.Model(&backend.Profile{}).Where("id = ?", adm.UserID).Update("is_admin", true).Error)

	code, _ := ts.do(t, http.MethodGet, "/admin/transactions", adm.Token, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSignOutEndsSession(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")
	ts.me(t, as.Token)

	code, _ := ts.do(t, http.MethodPost, "/auth/signout", as.Token, nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodGet, "/me", as.Token, nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_SnapshotsAndCommands(t *testing.T) {
	ts := newServer(t, false)
	as := ts.signUp(t, "player@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws?token="+as.Token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readMsg(t, conn)
	require.Equal(t, "StateSnapshot", first.Type)
	require.Equal(t, "450", first.State.Profile.Balance.String())

	cmd, _ := json.Marshal(types.ClientMessage{Type: "JoinTournament", RequestID: "r1", TournamentID: "t2"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, cmd))

	var result *types.ServerMessage
	for result == nil {
		msg := readMsg(t, conn)
		if msg.Type == "Result" {
			result = &msg
		}
	}
	require.Equal(t, "r1", result.RequestID)
	require.True(t, result.State.Profile.Balance.Equal(decimal.NewFromInt(430)))

	bad, _ := json.Marshal(types.ClientMessage{Type: "Teleport", RequestID: "r2"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, bad))
	for {
		msg := readMsg(t, conn)
		if msg.Type == "Error" {
			require.Equal(t, "r2", msg.RequestID)
			require.Equal(t, "unknown type", msg.Error)
			break
		}
	}
}
