package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Post("/signup/request-confirmation", s.handleRequestConfirmation)
	r.Post("/signup/register", s.handleRegister)
	r.Post("/token", s.handleToken)
	r.Post("/password-reset", s.handlePasswordReset)
	r.Post("/password-reset/confirm", s.handlePasswordResetConfirm)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/me", s.handleMe)
	})

	return r
}
