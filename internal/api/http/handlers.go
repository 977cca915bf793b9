package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"whalewatch/internal/domain"
	"whalewatch/internal/service"
	"whalewatch/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"gitlab.com/nevasik7/alerting/logger"
)

const readinessTimeout = 15 * time.Second

type API struct {
	log      logger.Logger
	pipeline *service.Pipeline
	ready    func(ctx context.Context) error // nil -> always ready
}

func NewAPI(log logger.Logger, pipeline *service.Pipeline, ready func(ctx context.Context) error) (*API, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	return &API{
		log:      log,
		pipeline: pipeline,
		ready:    ready,
	}, nil
}

func (a *API) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		a.log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Check health external services/clients
func (a *API) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if a.ready != nil {
		if err := a.ready(ctx); err != nil {
			werr := httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
				"error": err.Error(),
			})
			if werr != nil {
				a.log.Errorf("Readiness handler error: %s", werr.Error())
			}
			return
		}
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		a.log.Errorf("Readiness handler error: %s", err.Error())
	}
}

// Pipeline counters and queue state in one shot
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	snap := a.pipeline.Snapshot(r.Context())

	if err := httputil.JSON(w, http.StatusOK, snap, nil); err != nil {
		a.log.Errorf("Status handler error: %s", err.Error())
	}
}

// Hottest open windows ranked by distinct buyers
func (a *API) Overview(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			if werr := httputil.Error(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer", nil); werr != nil {
				a.log.Errorf("Overview handler error: %s", werr.Error())
			}
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	top := a.pipeline.Overview(limit)

	resp := map[string]any{
		"tokens": top,
		"count":  len(top),
	}
	if err := httputil.JSON(w, http.StatusOK, resp, nil); err != nil {
		a.log.Errorf("Overview handler error: %s", err.Error())
	}
}

// Window state for one token, 404 when it is not tracked
func (a *API) TokenWindow(w http.ResponseWriter, r *http.Request) {
	chainRaw := chi.URLParam(r, "chainID")
	address := strings.ToLower(chi.URLParam(r, "address"))

	chainID, err := strconv.ParseUint(chainRaw, 10, 32)
	if err != nil || address == "" {
		if werr := httputil.Error(w, r, http.StatusBadRequest, "bad_request", "chain id must be numeric and address non-empty", nil); werr != nil {
			a.log.Errorf("TokenWindow handler error: %s", werr.Error())
		}
		return
	}

	key := domain.TokenKey{ChainID: uint32(chainID), TokenAddress: address}

	stats, err := a.pipeline.TokenWindow(key)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			if werr := httputil.Error(w, r, http.StatusNotFound, "not_found", "token is not tracked", nil); werr != nil {
				a.log.Errorf("TokenWindow handler error: %s", werr.Error())
			}
			return
		}

		if werr := httputil.Error(w, r, http.StatusInternalServerError, "internal", "window lookup failed", nil); werr != nil {
			a.log.Errorf("TokenWindow handler error: %s", werr.Error())
		}
		return
	}

	resp := map[string]any{
		"token":  key,
		"window": stats,
	}
	if err = httputil.JSON(w, http.StatusOK, resp, nil); err != nil {
		a.log.Errorf("TokenWindow handler error: %s", err.Error())
	}
}
