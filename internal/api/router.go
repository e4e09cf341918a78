package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/todo-auth-be/internal/api/handlers"
	"github.com/isdelr/todo-auth-be/internal/services"
)

// Services bundles what the handlers need.
type Services struct {
	Auth   services.AuthServiceProvider
	Users  services.UserServiceProvider
	Todos  services.TodoServiceProvider
	Events services.EventServiceProvider
	Mail   handlers.MailQueue
}

// NewRouter creates and configures a new Chi router.
func NewRouter(svc Services, allowedOrigins []string, publicBaseURL string) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Auth, svc.Mail, publicBaseURL)
	todoHandler := handlers.NewTodoHandler(svc.Todos)
	eventHandler := handlers.NewEventHandler(svc.Events)
	requireUser := RequireUser(svc.Auth)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.Login)
		r.Post("/refresh_token", authHandler.Refresh)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", userHandler.GetAll)
		r.Post("/", userHandler.Register)
		r.Get("/confirm/{token}", userHandler.Confirm)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(requireUser)
			r.Put("/", userHandler.Update)
			r.Delete("/", userHandler.Delete)
		})
	})

	r.Route("/todos", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", todoHandler.GetAll)
		r.Post("/", todoHandler.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", todoHandler.Get)
			r.Patch("/", todoHandler.Update)
			r.Delete("/", todoHandler.Delete)
		})
	})

	r.With(requireUser).Get("/events", eventHandler.GetRecent)

	return r
}
