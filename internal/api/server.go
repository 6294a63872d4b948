package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/docweave/internal/crawler"
)

// Service is the slice of the crawl runner the status API reads from.
type Service interface {
	Stats() crawler.Snapshot
	RecentPages(limit int) []crawler.PageRecord
}

// NewServer builds the read-only status API router.
func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Docweave Status API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHandlers(api, svc)

	return router
}

func registerHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statsOutput struct {
		Body crawler.Snapshot
	}
	huma.Register(api, huma.Operation{OperationID: "get-stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Crawl counters", Tags: []string{"Crawl"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			out := &statsOutput{}
			out.Body = svc.Stats()
			return out, nil
		})

	type pagesInput struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"How many recent pages to return"`
	}
	type pagesOutput struct {
		Body struct {
			Pages []crawler.PageRecord `json:"pages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-recent-pages", Method: http.MethodGet, Path: "/api/v1/pages", Summary: "Recently finished pages", Tags: []string{"Crawl"}},
		func(ctx context.Context, input *pagesInput) (*pagesOutput, error) {
			out := &pagesOutput{}
			out.Body.Pages = svc.RecentPages(input.Limit)
			if out.Body.Pages == nil {
				out.Body.Pages = []crawler.PageRecord{}
			}
			return out, nil
		})
}
