package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/cache"
	"github.com/unkn0wn-root/flashguard/idgen"
	"github.com/unkn0wn-root/flashguard/lock"
	rp "github.com/unkn0wn-root/flashguard/provider/ristretto"
	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
	"github.com/unkn0wn-root/flashguard/storage/memory"
)

type fakeReserver struct {
	res seckill.Result
	err error
}

func (f fakeReserver) ReserveAndSubmit(context.Context, seckill.Requester, int64) (seckill.Result, error) {
	return f.res, f.err
}

type fixture struct {
	store *memory.Store
	cache *cache.Client[storage.Resource]
	h     *Handler
}

func newFixture(t *testing.T, s cache.Strategy, rsv Reserver) *fixture {
	t.Helper()
	p, err := rp.New(rp.Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("ristretto: %v", err)
	}
	cl, err := cache.New[storage.Resource](cache.Options[storage.Resource]{
		Namespace: "resource",
		Provider:  p,
		Locker:    lock.NewLocal(),
		Strategy:  s,
	})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close(context.Background()) })

	store := memory.New()
	if _, err := store.Save(context.Background(), storage.Resource{ID: 1, Name: "noodle bar", Score: 42}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rsv == nil {
		rsv = fakeReserver{}
	}
	h, err := New(Config{Cache: cl, Resources: store, Reserver: rsv, TTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{store: store, cache: cl, h: h}
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestGetResource(t *testing.T) {
	f := newFixture(t, cache.StrategyPassThrough, nil)

	rec := f.do(http.MethodGet, "/resources/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"name":"noodle bar"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	// Durable change behind the cache's back is not visible until invalidated.
	_, _ = f.store.Update(context.Background(), storage.Resource{ID: 1, Name: "renamed"})
	rec = f.do(http.MethodGet, "/resources/1", "", nil)
	if !strings.Contains(rec.Body.String(), `"name":"noodle bar"`) {
		t.Fatalf("expected cached body, got %s", rec.Body.String())
	}
}

func TestGetResourceNotFound(t *testing.T) {
	f := newFixture(t, cache.StrategyPassThrough, nil)

	for _, path := range []string{"/resources/999", "/resources/abc", "/nope"} {
		if rec := f.do(http.MethodGet, path, "", nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

type failingCache struct{ ResourceCache }

func (failingCache) Get(context.Context, string, cache.Loader[storage.Resource], time.Duration) (storage.Resource, bool, error) {
	return storage.Resource{}, false, flashguard.Transient("cache.get", errors.New("redis down"))
}

func TestGetResourceTransient(t *testing.T) {
	h, err := New(Config{Cache: failingCache{}, Resources: memory.New(), Reserver: fakeReserver{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resources/1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPutResource(t *testing.T) {
	tests := []struct {
		name     string
		strategy cache.Strategy
	}{
		{"pass through", cache.StrategyPassThrough},
		{"logical expire", cache.StrategyLogicalExpire},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.strategy, nil)
			// Warm the entry so the update has something to replace.
			if tt.strategy == cache.StrategyLogicalExpire {
				err := f.cache.SetLogical(context.Background(), "1", storage.Resource{ID: 1, Name: "noodle bar"}, time.Minute)
				if err != nil {
					t.Fatalf("SetLogical: %v", err)
				}
			} else {
				f.do(http.MethodGet, "/resources/1", "", nil)
			}

			rec := f.do(http.MethodPut, "/resources/1", `{"name":"ramen house","score":50}`, nil)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}

			rec = f.do(http.MethodGet, "/resources/1", "", nil)
			if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name":"ramen house"`) {
				t.Fatalf("after update: status = %d, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPutResourceErrors(t *testing.T) {
	f := newFixture(t, cache.StrategyPassThrough, nil)

	if rec := f.do(http.MethodPut, "/resources/1", `{"name":`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d", rec.Code)
	}
	if rec := f.do(http.MethodPut, "/resources/77", `{"name":"x"}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name           string
		requester      string
		reserver       fakeReserver
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "accepted",
			requester:      "7",
			reserver:       fakeReserver{res: seckill.Result{Accepted: true, OrderID: 123}},
			expectedStatus: http.StatusAccepted,
			expectedSubstr: `"order_id":"123"`,
		},
		{
			name:           "duplicate",
			requester:      "7",
			reserver:       fakeReserver{res: seckill.Result{Reason: seckill.OutcomeDuplicateRequest}},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"reason":"DUPLICATE_REQUEST"`,
		},
		{
			name:           "sold out",
			requester:      "7",
			reserver:       fakeReserver{res: seckill.Result{Reason: seckill.OutcomeInsufficientStock}},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"reason":"INSUFFICIENT_STOCK"`,
		},
		{
			name:           "window closed",
			requester:      "7",
			reserver:       fakeReserver{res: seckill.Result{Reason: seckill.OutcomeEnded}},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `{"error":"flashguard: sale ended","reason":"ENDED"}`,
		},
		{
			name:           "missing requester",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid requester",
			requester:      "bob",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "transient",
			requester:      "7",
			reserver:       fakeReserver{err: flashguard.Transient("seckill.admit", errors.New("redis down"))},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "internal",
			requester:      "7",
			reserver:       fakeReserver{err: errors.New("boom")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, cache.StrategyPassThrough, tt.reserver)
			hdr := map[string]string{}
			if tt.requester != "" {
				hdr[requesterHeader] = tt.requester
			}
			rec := f.do(http.MethodPost, "/resources/1/reservations", "", hdr)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("body %s does not contain %s", rec.Body.String(), tt.expectedSubstr)
			}
		})
	}
}

func TestReserveThroughAdmissionScript(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a, err := seckill.NewRedisAdmitter(rdb, "")
	if err != nil {
		t.Fatalf("NewRedisAdmitter: %v", err)
	}
	svc, err := seckill.NewService(seckill.ServiceOptions{Admitter: a, IDs: idgen.NewLocal()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Publish(context.Background(), seckill.ResourceStock{ResourceID: 1, Remaining: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	f := newFixture(t, cache.StrategyPassThrough, svc)

	steps := []struct {
		requester string
		status    int
		substr    string
	}{
		{"1", http.StatusAccepted, `"order_id":"`},
		{"1", http.StatusConflict, "DUPLICATE_REQUEST"},
		{"2", http.StatusConflict, "INSUFFICIENT_STOCK"},
	}
	for i, s := range steps {
		rec := f.do(http.MethodPost, "/resources/1/reservations", "", map[string]string{requesterHeader: s.requester})
		if rec.Code != s.status || !strings.Contains(rec.Body.String(), s.substr) {
			t.Fatalf("step %d: status = %d body %s", i, rec.Code, rec.Body.String())
		}
	}
	if n, _ := rdb.XLen(context.Background(), seckill.DefaultStream).Result(); n != 1 {
		t.Fatalf("stream length = %d, want 1", n)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, cache.StrategyPassThrough, nil)
	if rec := f.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	h, err := New(Config{
		Cache:     f.cache,
		Resources: f.store,
		Reserver:  fakeReserver{},
		Health:    func(context.Context) error { return errors.New("pg down") },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
