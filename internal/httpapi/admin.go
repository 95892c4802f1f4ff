package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

// ListTransactions lists ledger rows for review, pending ones by default.
func ListTransactions(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := wallet.Status(r.URL.Query().Get("status"))
		switch status {
		case "":
			status = wallet.StatusPending
		case "all":
			status = ""
		}
		txs, err := d.Tables.ListTransactions(r.Context(), backend.TransactionFilter{Status: status})
		if err != nil {
			writeError(w, err)
			return
		}
		if txs == nil {
			txs = []backend.Transaction{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

func settle(d Deps, proc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Procs.Call(r.Context(), proc, backend.Args{"transaction_id": chi.URLParam(r, "id")})
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ApproveTransaction(d Deps) http.HandlerFunc { return settle(d, backend.ProcApproveTransaction) }

func RejectTransaction(d Deps) http.HandlerFunc { return settle(d, backend.ProcRejectTransaction) }

type tournamentInput struct {
	backend.Tournament
	Rules []string `json:"rules"`
}

func (in tournamentInput) model() backend.Tournament {
	t := in.Tournament
	t.Rules = strings.Join(in.Rules, "\n")
	return t
}

func CreateTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tournamentInput
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		in.ID = ""
		t, err := d.Tables.SaveTournament(r.Context(), in.model())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(t))
	}
}

func UpdateTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in tournamentInput
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		in.ID = chi.URLParam(r, "id")
		t, err := d.Tables.SaveTournament(r.Context(), in.model())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(t))
	}
}

func DeleteTournament(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Tables.DeleteTournament(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
