package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/confusedguy/firstpr-coach/internal/handler/events"
	"github.com/confusedguy/firstpr-coach/internal/handler/session"
	"github.com/confusedguy/firstpr-coach/internal/middleware"
	"github.com/confusedguy/firstpr-coach/internal/render"
	"github.com/confusedguy/firstpr-coach/internal/service/controller"
)

// NewRouter wires HTTP routes to the session controller.
func NewRouter(ctrl *controller.Controller, renderer *render.Pipeline, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	sessionHandler := session.New(ctrl, renderer)
	eventsHandler := events.New(ctrl, renderer)

	r.Route("/api", func(api chi.Router) {
		sessionHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
	})

	return r
}
