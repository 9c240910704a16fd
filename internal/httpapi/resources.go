package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/cache"
	"github.com/unkn0wn-root/flashguard/storage"
)

const maxBody = 1 << 20

// load reads the durable record behind a cache key.
func (h *Handler) load(ctx context.Context, key string) (storage.Resource, bool, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return storage.Resource{}, false, nil
	}
	return h.resources.GetByID(ctx, id)
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	key := strconv.FormatInt(id, 10)

	res, found, err := h.cache.Get(r.Context(), key, h.load, h.ttl)
	switch {
	case err != nil && flashguard.IsTransient(err):
		h.log.Warn("resource read failed", flashguard.Fields{"resource_id": id, "err": err})
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	case err != nil:
		h.log.Error("resource read failed", flashguard.Fields{"resource_id": id, "err": err})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	case !found:
		writeError(w, http.StatusNotFound, flashguard.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// putResource writes the durable record, then invalidates the entry. Logically
// expiring caches report a cold miss as absent, so the entry is rebuilt here.
func (h *Handler) putResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var in storage.Resource
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	in.ID = id

	updated, err := h.resources.Update(r.Context(), in)
	if err != nil {
		h.log.Error("resource update failed", flashguard.Fields{"resource_id": id, "err": err})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, flashguard.ErrNotFound.Error())
		return
	}

	key := strconv.FormatInt(id, 10)
	if err := h.cache.Invalidate(r.Context(), key); err != nil {
		// The durable write succeeded; a stale entry ages out with its TTL.
		h.log.Warn("cache invalidate failed", flashguard.Fields{"resource_id": id, "err": err})
	}
	if h.cache.Strategy() == cache.StrategyLogicalExpire {
		err := h.cache.Rebuild(r.Context(), key, h.load, h.ttl)
		if err != nil && !errors.Is(err, flashguard.ErrLockContention) {
			h.log.Warn("cache rebuild failed", flashguard.Fields{"resource_id": id, "err": err})
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
