package httpapi

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photogen/internal/http/handlers"
	"photogen/internal/middleware"
)

// NewRouter wires every route. ctx bounds background middleware work such as
// rate-limit bookkeeping.
func NewRouter(ctx context.Context, app *handlers.App, gatherer prometheus.Gatherer) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(app.Logger))

	origins := []string{"*"}
	perMinute := 0
	if app.Config != nil {
		if len(app.Config.CORSAllowedOrigins) > 0 {
			origins = app.Config.CORSAllowedOrigins
		}
		perMinute = app.Config.RateLimitPerMin
	}
	r.Use(middleware.CORS(origins))

	// Health
	r.Get("/v1/healthz", app.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/generated/{name}", app.GeneratedFile)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(ctx, perMinute)).Post("/generate", app.Generate)
		r.Route("/assets/{id}", func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))
			r.Get("/convert", app.ConvertAsset)
			r.Get("/bundle", app.BundleAsset)
		})
	})

	return r
}
