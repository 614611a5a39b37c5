package waypoints

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-nav/internal/navigation"
)

// StoreConfig holds waypoint store client configuration
type StoreConfig struct {
	BaseURL string        // Base URL of the waypoint store (e.g., "http://localhost:9000")
	Timeout time.Duration // HTTP request timeout
}

// DefaultStoreConfig returns sensible defaults
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BaseURL: "http://localhost:9000",
		Timeout: 5 * time.Second,
	}
}

type listResponse struct {
	Waypoints []navigation.Waypoint `json:"waypoints"`
}

// Store is the HTTP client for a remote waypoint store
type Store struct {
	cfg        StoreConfig
	logger     *slog.Logger
	httpClient *http.Client

	// Stats
	fetches     atomic.Uint64
	fetchErrors atomic.Uint64
	lastCount   atomic.Int64
}

// NewStore creates a new waypoint store client
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch downloads the current waypoint list
func (s *Store) Fetch(ctx context.Context) ([]navigation.Waypoint, error) {
	points, err := s.fetch(ctx)
	if err != nil {
		s.fetchErrors.Add(1)
		return nil, err
	}

	s.fetches.Add(1)
	s.lastCount.Store(int64(len(points)))
	s.logger.Info("waypoints fetched", "count", len(points), "url", s.cfg.BaseURL)
	return points, nil
}

func (s *Store) fetch(ctx context.Context) ([]navigation.Waypoint, error) {
	url := s.cfg.BaseURL + "/api/waypoints"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if err := Prepare(list.Waypoints); err != nil {
		return nil, err
	}
	return list.Waypoints, nil
}

// StoreStats contains client statistics
type StoreStats struct {
	Fetches     uint64 `json:"fetches"`
	FetchErrors uint64 `json:"fetch_errors"`
	LastCount   int64  `json:"last_count"`
}

// Stats returns client statistics
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Fetches:     s.fetches.Load(),
		FetchErrors: s.fetchErrors.Load(),
		LastCount:   s.lastCount.Load(),
	}
}

// IsHealthy checks if the store is reachable
func (s *Store) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.fetch(ctx)
	return err == nil
}
