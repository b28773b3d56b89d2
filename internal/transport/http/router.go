package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-mystery-message/internal/application/account"
	"github.com/go-mystery-message/internal/application/inbox"
	"github.com/go-mystery-message/internal/application/suggestion"
	"github.com/go-mystery-message/internal/config"
	jwtinfra "github.com/go-mystery-message/internal/infrastructure/jwt"
	"github.com/go-mystery-message/internal/infrastructure/smtp"
	"github.com/go-mystery-message/internal/transport/http/handler"
	appmiddleware "github.com/go-mystery-message/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	AccountRepo AccountRepository
	Mailer      smtp.Mailer
	JWTProvider *jwtinfra.Provider
	// Generator may be nil; suggestion requests then fail with 500.
	Generator TextGenerator
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	accountSvc := account.NewService(account.ServiceDeps{
		AccountRepo: deps.AccountRepo,
		Mailer:      deps.Mailer,
		Signer:      deps.JWTProvider,
		CodeTTL:     cfg.VerifyCodeTTL,
		BaseURL:     cfg.AppBaseURL,
	})
	inboxSvc := inbox.NewService(deps.AccountRepo)
	suggestionSvc := suggestion.NewService(deps.Generator)

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(accountSvc)
	inboxH := handler.NewInboxHandler(inboxSvc)
	suggestionH := handler.NewSuggestionHandler(suggestionSvc)

	r.Route("/api", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Check)
		r.Post("/sign-up", accountH.SignUp)
		r.Post("/verify-code", accountH.VerifyCode)
		r.Post("/sign-in", accountH.SignIn)
		r.Get("/check-username-unique", accountH.CheckUsername)
		r.Get("/get-users", accountH.ListUsers)
		r.Post("/send-message", inboxH.Send)
		r.Post("/suggest-messages", suggestionH.Suggest)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/accept-messages", inboxH.GetAcceptance)
			r.Post("/accept-messages", inboxH.SetAcceptance)
			r.Get("/get-messages", inboxH.List)
			r.Delete("/delete-message/{id}", inboxH.Delete)
		})
	})

	return r
}
