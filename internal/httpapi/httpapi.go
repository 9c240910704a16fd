// Package httpapi exposes the cached read path and the reservation path over
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/cache"
	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
)

const requesterHeader = "X-Requester-ID"

// ResourceCache is the part of *cache.Client[storage.Resource] the handlers use.
type ResourceCache interface {
	Get(ctx context.Context, key string, load cache.Loader[storage.Resource], ttl time.Duration) (storage.Resource, bool, error)
	Invalidate(ctx context.Context, key string) error
	Rebuild(ctx context.Context, key string, load cache.Loader[storage.Resource], ttl time.Duration) error
	Strategy() cache.Strategy
}

// Reserver admits one reservation request.
type Reserver interface {
	ReserveAndSubmit(ctx context.Context, requester seckill.Requester, resourceID int64) (seckill.Result, error)
}

type Config struct {
	Cache     ResourceCache     // required
	Resources storage.Resources // required
	Reserver  Reserver          // required
	Logger    flashguard.Logger
	TTL       time.Duration // cache TTL passed to the client; 0 => client default

	// Health backs /healthz; nil reports healthy.
	Health func(ctx context.Context) error
}

type Handler struct {
	cache     ResourceCache
	resources storage.Resources
	reserver  Reserver
	log       flashguard.Logger
	ttl       time.Duration
	health    func(ctx context.Context) error

	router *mux.Router
}

func New(cfg Config) (*Handler, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("httpapi: cache is required")
	}
	if cfg.Resources == nil {
		return nil, fmt.Errorf("httpapi: resources store is required")
	}
	if cfg.Reserver == nil {
		return nil, fmt.Errorf("httpapi: reserver is required")
	}
	h := &Handler{
		cache:     cfg.Cache,
		resources: cfg.Resources,
		reserver:  cfg.Reserver,
		log:       cfg.Logger,
		ttl:       cfg.TTL,
		health:    cfg.Health,
	}
	if h.log == nil {
		h.log = flashguard.NopLogger{}
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/resources/{id:[0-9]+}", h.getResource).Methods(http.MethodGet)
	r.HandleFunc("/resources/{id:[0-9]+}", h.putResource).Methods(http.MethodPut)
	r.HandleFunc("/resources/{id:[0-9]+}/reservations", h.reserve).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.Use(h.logRequests)
	h.router = r
	return h, nil
}

// Router returns the mux so the binary can mount extra routes (e.g. /metrics).
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.router.ServeHTTP(w, r) }

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn("health check failed", flashguard.Fields{"err": err})
			writeError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("request", flashguard.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// pathID parses the {id} route variable. The route pattern guarantees digits;
// overflow is the only failure left.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
