package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/vidq/internal/api"
	apiMiddleware "github.com/phrazzld/vidq/internal/api/middleware"
	"github.com/phrazzld/vidq/internal/domain"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.taskService)
	videoHandler := api.NewVideoHandler(app.fs, app.config.Storage.OutputDir)
	healthHandler := api.NewHealthHandler(app.health)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/caption", taskHandler.Submit(domain.TaskTypeCaption))
		r.Post("/merge", taskHandler.Submit(domain.TaskTypeMerge))
		r.Post("/background-music", taskHandler.Submit(domain.TaskTypeBackgroundMusic))
		r.Get("/{id}", taskHandler.GetTask)
		r.Post("/{id}/requeue", taskHandler.RequeueTask)
	})

	r.Get("/video/{filename}", videoHandler.ServeVideo)
	r.Get("/health", healthHandler.Health)

	return r
}
