package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/homegate/internal/infrastructure/config"
)

const catalogBody = `{
  "success": true,
  "devices": [
    {"id": "ESPURNA-SWITCH1", "name": "Hall", "firmware": "espurna", "protocol": "mqtt",
     "topics": {"relay": "/relay/0", "relaySet": "/relay/0/set", "status": "/status"}},
    {"id": "TASMOTA-BULB1", "name": "Lamp", "firmware": "tasmota",
     "topics": {"result": ["stat/", "/RESULT"], "backlog": ["cmnd/", "/Backlog"]}}
  ]
}`

func testLoader(url string) *CatalogLoader {
	l := NewCatalogLoader(config.CatalogConfig{URL: url, Timeout: 2})
	l.initialInterval = time.Millisecond
	l.maxInterval = 5 * time.Millisecond
	l.maxElapsed = 2 * time.Second
	return l
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config/devices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	entries, err := testLoader(srv.URL + "/").Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(entries) != 2 || entries[1].Firmware != FirmwareTasmota {
		t.Errorf("Fetch() = %+v", entries)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, "", ErrCatalogUnavailable},
		{"bad json", http.StatusOK, "{not json", ErrCatalogMalformed},
		{"success false", http.StatusOK, `{"success": false, "devices": []}`, ErrCatalogUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testLoader(srv.URL).Fetch(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

type fetchFailures struct{ n atomic.Int32 }

func (f *fetchFailures) CatalogFetchFailed() { f.n.Add(1) }

func TestLoadWithRetryEventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(catalogBody))
	}))
	defer srv.Close()

	loader := testLoader(srv.URL)
	failures := &fetchFailures{}
	loader.SetMetrics(failures)
	registry := NewRegistry()

	if err := loader.LoadWithRetry(context.Background(), registry); err != nil {
		t.Fatalf("LoadWithRetry() error = %v", err)
	}
	if registry.Count() != 2 {
		t.Errorf("registry Count() = %d, want 2", registry.Count())
	}
	if got := failures.n.Load(); got != 2 {
		t.Errorf("failed fetches = %d, want 2", got)
	}
}

func TestLoadWithRetryMalformedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("[[["))
	}))
	defer srv.Close()

	err := testLoader(srv.URL).LoadWithRetry(context.Background(), NewRegistry())
	if !errors.Is(err, ErrCatalogMalformed) {
		t.Fatalf("LoadWithRetry() error = %v, want ErrCatalogMalformed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on malformed body)", calls.Load())
	}
}

func TestLoadWithRetryGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	loader := testLoader(srv.URL)
	loader.maxElapsed = 50 * time.Millisecond
	registry := NewRegistry()

	err := loader.LoadWithRetry(context.Background(), registry)
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("LoadWithRetry() error = %v, want ErrCatalogUnavailable", err)
	}
	if registry.Count() != 0 {
		t.Error("registry should stay empty after a failed load")
	}
}

func TestLoadWithRetryHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	loader := testLoader(srv.URL)
	loader.maxElapsed = time.Minute

	start := time.Now()
	if err := loader.LoadWithRetry(ctx, NewRegistry()); err == nil {
		t.Fatal("LoadWithRetry() should fail once the context is done")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("LoadWithRetry() kept retrying after the context was cancelled")
	}
}
