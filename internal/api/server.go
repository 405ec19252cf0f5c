// Package api exposes the §6 external generation request/response contract
// over HTTP: POST /api/generate starts a run, GET /api/runs/{id} polls it.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/actionplan/internal/pipeline"
	"github.com/soochol/actionplan/internal/repository"
)

// Server wires the pipeline Runner and run repository to chi routes.
type Server struct {
	runner  *pipeline.Runner
	runRepo repository.GenerationRunRepository
}

func NewServer(runner *pipeline.Runner, runRepo repository.GenerationRunRepository) *Server {
	return &Server{runner: runner, runRepo: runRepo}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.generate)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{id}", s.getRun)
		})
	})

	return r
}
