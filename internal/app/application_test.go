package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

func TestConfiguredScrapeTimeoutReachesEngine(t *testing.T) {
	var mu sync.Mutex
	var timeouts []time.Duration
	engine := render.EngineFunc(func(_ context.Context, req render.Request) (string, error) {
		mu.Lock()
		timeouts = append(timeouts, req.Timeout)
		mu.Unlock()
		return "<html></html>", nil
	})

	const timeout = 42 * time.Second
	application, err := New(Stores{}, Options{
		Engine:        engine,
		ScrapeTimeout: timeout,
	}, logger.NewDefault("app-test"))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if len(application.Managers) != 3 {
		t.Fatalf("expected 3 managers, got %d", len(application.Managers))
	}

	for _, manager := range application.Managers {
		manager.Run(context.Background(), nil, false)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(timeouts) == 0 {
		t.Fatal("engine was never invoked")
	}
	for i, got := range timeouts {
		if got != timeout {
			t.Fatalf("render %d used timeout %v, want %v", i, got, timeout)
		}
	}
}
