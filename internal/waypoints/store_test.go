package waypoints

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultStoreConfig(t *testing.T) {
	cfg := DefaultStoreConfig()

	if cfg.BaseURL == "" {
		t.Error("BaseURL should not be empty")
	}
	if cfg.Timeout <= 0 {
		t.Error("Timeout should be positive")
	}
}

func TestStore_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/waypoints" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"waypoints":[{"id":"w1","x":1,"z":-1},{"x":2,"z":-2}]}`))
	}))
	defer server.Close()

	cfg := DefaultStoreConfig()
	cfg.BaseURL = server.URL
	store := NewStore(cfg, nil)

	points, err := store.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 waypoints, got %d", len(points))
	}
	if points[0].ID != "w1" {
		t.Errorf("ID = %q, want w1", points[0].ID)
	}
	if points[1].ID == "" {
		t.Error("missing ID should be assigned")
	}

	stats := store.Stats()
	if stats.Fetches != 1 || stats.LastCount != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !store.IsHealthy(context.Background()) {
		t.Error("store should be healthy")
	}
}

func TestStore_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	cfg := DefaultStoreConfig()
	cfg.BaseURL = server.URL
	store := NewStore(cfg, nil)

	if _, err := store.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if store.Stats().FetchErrors != 1 {
		t.Errorf("FetchErrors = %d, want 1", store.Stats().FetchErrors)
	}
	if store.IsHealthy(context.Background()) {
		t.Error("store should be unhealthy")
	}
}

func TestStore_Unreachable(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	store := NewStore(cfg, nil)

	if _, err := store.Fetch(context.Background()); err == nil {
		t.Error("expected error for unreachable store")
	}
}
