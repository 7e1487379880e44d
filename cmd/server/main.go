package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"autodash-backend/internal/api"
	"autodash-backend/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUTODASH_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	handler := api.NewHandler(cfg)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(api.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Autodash Backend is Running"))
	})

	handler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting autodash backend on http://localhost%s", addr)
	log.Printf("CORS enabled for: %v", cfg.CORSOrigins)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
