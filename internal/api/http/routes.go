package http

import (
	"whalewatch/internal/api/http/mw"
	"whalewatch/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func BuildRouter(
	api *API,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoint not auth; prometheus negotiates own compression
	r.Get("/healthz", api.Healthz)
	r.Get("/readiness", api.Readiness)
	r.Mount("/metrics", metrics.Handler())

	// business endpoints with gzip, rate limit and jwt
	r.Group(func(pr chi.Router) {
		if gzipMW != nil {
			pr.Use(gzipMW.Handler)
		}
		if rateLimitMW != nil {
			pr.Use(rateLimitMW.Handler)
		}
		if jwtMW != nil {
			pr.Use(jwtMW.Handler)
		}

		pr.Route("/api/v1", func(apiR chi.Router) {
			apiR.Get("/status", api.Status)
			apiR.Get("/overview", api.Overview)
			apiR.Route("/windows", func(wr chi.Router) {
				wr.Get("/{chainID}/{address}", api.TokenWindow)
			})
		})
	})

	return r
}
