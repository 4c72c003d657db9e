package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"midisession/internal/manager"
	"midisession/internal/metrics"
	"midisession/internal/resolver"
	"midisession/internal/testsupport"
	"midisession/internal/transport"
)

var _ manager.Metrics = (*metrics.Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	c := metrics.New()

	c.NotificationProcessed("added")
	c.NotificationProcessed("added")
	c.NotificationDropped("removed")
	c.CacheRebuilt(time.Millisecond, nil)
	c.CacheRebuilt(time.Millisecond, errors.New("enumerate"))
	c.BindingsReconciled("input_connection", 2, 1, 1)
	c.ResourcesChanged(map[string]int{"virtual_input": 3})

	expected := `
# HELP midisession_bindings_total Connection endpoint bindings applied, by resource kind and outcome
# TYPE midisession_bindings_total counter
midisession_bindings_total{outcome="bound",resource_kind="input_connection"} 2
midisession_bindings_total{outcome="failed",resource_kind="input_connection"} 1
midisession_bindings_total{outcome="unbound",resource_kind="input_connection"} 1
`
	if err := testutil.CollectAndCompare(c.Registry(), strings.NewReader(expected), "midisession_bindings_total"); err != nil {
		t.Fatalf("bindings: %v", err)
	}

	notifications := `
# HELP midisession_notifications_total Topology notifications published, by kind
# TYPE midisession_notifications_total counter
midisession_notifications_total{kind="added"} 2
`
	if err := testutil.CollectAndCompare(c.Registry(), strings.NewReader(notifications), "midisession_notifications_total"); err != nil {
		t.Fatalf("notifications: %v", err)
	}

	tests := []struct {
		name   string
		metric string
		want   int
	}{
		{name: "dropped series", metric: "midisession_notifications_dropped_total", want: 1},
		{name: "cache rebuild series", metric: "midisession_cache_rebuilds_total", want: 2},
		{name: "rebuild histogram", metric: "midisession_cache_rebuild_duration_seconds", want: 1},
		{name: "resources gauge series", metric: "midisession_resources", want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := testutil.CollectAndCount(c.Registry(), tc.metric); got != tc.want {
				t.Fatalf("got %d series, want %d", got, tc.want)
			}
		})
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := metrics.New()
	c.NotificationProcessed("setup_changed")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `midisession_notifications_total{kind="setup_changed"} 1`) {
		t.Fatalf("unexpected exposition:\n%s", body)
	}
}

func TestManagerReportsIntoCollector(t *testing.T) {
	sys := testsupport.NewSystem(t)
	c := metrics.New()
	m := manager.New(sys, "app", manager.WithMetrics(c))
	ctx := context.Background()
	t.Cleanup(func() { _ = m.Close(ctx) })
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.AddInputConnection(ctx, "all", nil, resolver.ModeAll, resolver.DefaultFilter(), nil); err != nil {
		t.Fatalf("AddInputConnection: %v", err)
	}

	dev := sys.AddDevice("Keys", "Acme", "K1")
	if _, err := sys.AddEndpoint(dev, "MIDI 1", transport.Output, 0); err != nil {
		t.Fatalf("AddEndpoint: %v", err)
	}
	sys.Flush()
	if err := m.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	expected := `
# HELP midisession_resources Managed resources currently registered, by kind
# TYPE midisession_resources gauge
midisession_resources{resource_kind="input_connection"} 1
midisession_resources{resource_kind="output_connection"} 0
midisession_resources{resource_kind="thru_connection"} 0
midisession_resources{resource_kind="virtual_input"} 0
midisession_resources{resource_kind="virtual_output"} 0
`
	if err := testutil.CollectAndCompare(c.Registry(), strings.NewReader(expected), "midisession_resources"); err != nil {
		t.Fatalf("resources: %v", err)
	}
	if n := testutil.CollectAndCount(c.Registry(), "midisession_bindings_total"); n == 0 {
		t.Fatal("expected binding counters after the endpoint appeared")
	}
}
