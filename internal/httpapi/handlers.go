package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/types"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func SignUp(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := decode(r, &c); err != nil {
			writeError(w, err)
			return
		}
		as, err := d.Auth.SignUp(r.Context(), c.Email, c.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, as)
	}
}

func SignIn(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := decode(r, &c); err != nil {
			writeError(w, err)
			return
		}
		as, err := d.Auth.SignIn(r.Context(), c.Email, c.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, as)
	}
}

// SignOut drops the token. The auth event stream ends the player session
// once no token is left.
func SignOut(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Auth.SignOut(r.Context(), authFrom(r.Context()).Token); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type meResponse struct {
	Version  int              `json:"version"`
	InFlight string           `json:"in_flight,omitempty"`
	Queued   int              `json:"queued"`
	State    *types.StateView `json:"state"`
}

func Me(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := userSession(w, r, d)
		if !ok {
			return
		}
		v, err := s.View(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			Version:  v.Version,
			InFlight: string(v.InFlight),
			Queued:   v.Queued,
			State:    types.NewStateView(v.State),
		})
	}
}

type tournamentView struct {
	backend.Tournament
	Rules []string `json:"rules"`
}

func viewOf(t backend.Tournament) tournamentView {
	return tournamentView{Tournament: t, Rules: t.RuleList()}
}

func ListTournaments(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := d.Tables.ListTournaments(r.Context(), backend.TournamentFilter{
			Game: backend.GameType(r.URL.Query().Get("game")),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]tournamentView, 0, len(ts))
		for _, t := range ts {
			out = append(out, viewOf(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := d.Tables.GetTournament(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(t))
	}
}

func Strategy(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := d.Tables.GetTournament(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		tip := d.Assistant.Strategy(r.Context(), string(t.Game), t.Map, string(t.Mode))
		writeJSON(w, http.StatusOK, struct {
			Tip string `json:"tip"`
		}{Tip: tip})
	}
}

// mutate runs one client command through the caller's session and answers
// with the settled state.
func mutate(d Deps, build func(r *http.Request) (types.ClientMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cm, err := build(r)
		if err != nil {
			writeError(w, err)
			return
		}
		s, ok := userSession(w, r, d)
		if !ok {
			return
		}
		m, err := cm.Mutation(r.Context(), d.Tables)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := s.Do(r.Context(), m)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			ID    string           `json:"id"`
			State *types.StateView `json:"state"`
		}{ID: out.ID, State: types.NewStateView(out.State)})
	}
}

type amountBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func JoinTournament(d Deps) http.HandlerFunc {
	return mutate(d, func(r *http.Request) (types.ClientMessage, error) {
		return types.ClientMessage{Type: "JoinTournament", TournamentID: chi.URLParam(r, "id")}, nil
	})
}

func Deposit(d Deps) http.HandlerFunc {
	return mutate(d, func(r *http.Request) (types.ClientMessage, error) {
		var b amountBody
		err := decode(r, &b)
		return types.ClientMessage{Type: "Deposit", Amount: b.Amount}, err
	})
}

func Withdraw(d Deps) http.HandlerFunc {
	return mutate(d, func(r *http.Request) (types.ClientMessage, error) {
		var b amountBody
		err := decode(r, &b)
		return types.ClientMessage{Type: "Withdraw", Amount: b.Amount}, err
	})
}

func UpdateProfile(d Deps) http.HandlerFunc {
	return mutate(d, func(r *http.Request) (types.ClientMessage, error) {
		var b struct {
			Username string `json:"username"`
			Avatar   string `json:"avatar"`
		}
		err := decode(r, &b)
		return types.ClientMessage{Type: "UpdateProfile", Username: b.Username, Avatar: b.Avatar}, err
	})
}

func Chat(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b struct {
			Message string `json:"message"`
		}
		if err := decode(r, &b); err != nil {
			writeError(w, err)
			return
		}

		userContext := "Guest user"
		if s, err := d.Hub.Ensure(r.Context(), authFrom(r.Context()).UserID); err == nil {
			if v, err := s.View(r.Context()); err == nil {
				userContext = fmt.Sprintf("User: %s, Balance: %s", v.State.Profile.Username, v.State.Balance())
			}
		}
		writeJSON(w, http.StatusOK, struct {
			Reply string `json:"reply"`
		}{Reply: d.Assistant.Chat(r.Context(), b.Message, userContext)})
	}
}

func userSession(w http.ResponseWriter, r *http.Request, d Deps) (*session.Session, bool) {
	s, err := d.Hub.Ensure(r.Context(), authFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
