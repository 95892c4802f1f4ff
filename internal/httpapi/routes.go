package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/ai"
	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/hub"
	"github.com/DoyleJ11/battlezone/internal/ws"
)

type Deps struct {
	Auth      backend.Auth
	Tables    backend.Tables
	Procs     backend.Procedures
	Hub       *hub.Hub
	Assistant *ai.Assistant
	Logger    *zap.Logger
	// Admin mounts the /admin routes.
	Admin bool
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/auth/signup", SignUp(d))
	r.Post("/auth/signin", SignIn(d))
	r.Get("/tournaments", ListTournaments(d))
	r.Get("/tournaments/{id}", GetTournament(d))
	r.Get("/ws", ws.Handler(d.Hub, d.Auth, d.Tables, d.Logger))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Auth))

		r.Post("/auth/signout", SignOut(d))
		r.Get("/me", Me(d))
		r.Get("/tournaments/{id}/strategy", Strategy(d))
		r.Post("/tournaments/{id}/join", JoinTournament(d))
		r.Post("/wallet/deposit", Deposit(d))
		r.Post("/wallet/withdraw", Withdraw(d))
		r.Patch("/profile", UpdateProfile(d))
		r.Post("/ai/chat", Chat(d))

		if d.Admin {
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin(d.Tables))
				r.Get("/transactions", ListTransactions(d))
				r.Post("/transactions/{id}/approve", ApproveTransaction(d))
				r.Post("/transactions/{id}/reject", RejectTransaction(d))
				r.Post("/tournaments", CreateTournament(d))
				r.Put("/tournaments/{id}", UpdateTournament(d))
				r.Delete("/tournaments/{id}", DeleteTournament(d))
			})
		}
	})
	return r
}
