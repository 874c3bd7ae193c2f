package routers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"noteflare/internal/api"
	"noteflare/internal/metrics"
	"noteflare/internal/repositories"
	"noteflare/internal/session"
	"noteflare/internal/utils"
)

type Deps struct {
	Log           *utils.Logger
	Hub           *session.Hub
	ClientOptions session.ClientOptions
	Users         *repositories.UserRepository
	Notes         *repositories.NoteRepository
	JWTSecret     string
	FrontendURL   string
	// optional; nil disables /api/v1/rooms/{documentId}/activity
	Activity api.RoomActivitySource
}

func New(d Deps) http.Handler {
	h := api.NewHandlers(d.Log, d.Hub, d.ClientOptions)
	if d.Activity != nil {
		h.WithRoomActivity(d.Activity)
	}
	auth := api.NewAuthHandler(d.Users, d.JWTSecret, strings.HasPrefix(d.FrontendURL, "https://"), d.Log)
	notes := api.NewNotesHandler(d.Notes, d.Users, d.Log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(metrics.Middleware("noteflare"))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// long-lived; must stay outside the request timeout
	r.Get("/ws", h.DocumentWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", h.Health)
		r.Get("/rooms/{documentId}", h.RoomStatus)
		r.Get("/rooms/{documentId}/activity", h.RoomActivity)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", auth.Signup)
			r.Post("/login", auth.Login)
			r.Post("/logout", auth.Logout)
			r.With(auth.RequireAuth).Get("/session", auth.Session)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/", notes.List)
			r.Post("/", notes.Create)
			r.Put("/{id}", notes.Update)
			r.Delete("/{id}", notes.Delete)
			r.Post("/{id}/share", notes.Share)
		})
	})

	return r
}
