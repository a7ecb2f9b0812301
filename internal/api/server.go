package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/meetscribe/meetscribe/internal/logging"
)

// Deps bundles everything the HTTP surface serves.
type Deps struct {
	Captures      *CaptureHandler
	Archive       *ArchiveHandler
	Hub           *Hub
	LogBuffer     *logging.RingBuffer
	ArchiveHealth func(context.Context) error
	BusHealth     func() error
}

// NewRouter creates the HTTP router with all routes
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Join and leave legitimately outlast any sane request timeout:
		// admission polling alone may take minutes and encoding longer
		// still, so the capture routes run without one.
		r.Mount("/captures", deps.Captures.Routes())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Mount("/archive", deps.Archive.Routes())
			r.Get("/health", handleHealth(deps))
			r.Get("/logs", handleLogs(deps.LogBuffer))
		})
	})

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWebSocket)
	}

	return r
}

// handleHealth reports the health of the capture service and its dependencies
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		components := make(map[string]string)

		if deps.ArchiveHealth != nil {
			if err := deps.ArchiveHealth(r.Context()); err != nil {
				status = "degraded"
				components["archive"] = "error"
			} else {
				components["archive"] = "ok"
			}
		}

		if deps.BusHealth != nil {
			if err := deps.BusHealth(); err != nil {
				status = "degraded"
				components["events"] = "error"
			} else {
				components["events"] = "ok"
			}
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		JSON(w, code, map[string]any{
			"status":     status,
			"components": components,
		})
	}
}

// handleLogs serves recent log entries from the in-memory ring buffer
func handleLogs(buffer *logging.RingBuffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if buffer == nil {
			OK(w, []logging.Entry{})
			return
		}

		n := 100
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				BadRequest(w, "n must be a positive integer")
				return
			}
			if parsed > 1000 {
				parsed = 1000
			}
			n = parsed
		}

		entries := buffer.Recent(n)
		List(w, entries, len(entries), n)
	}
}
