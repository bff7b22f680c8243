package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeNodeStats struct {
	known, live int
}

func (f *fakeNodeStats) KnownNodeCount() int  { return f.known }
func (f *fakeNodeStats) LiveMasterCount() int { return f.live }

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.MessagesSent == nil || r.MessagesReceived == nil {
		t.Error("message counters not initialized")
	}
	if r.PFailTotal == nil || r.FailTotal == nil {
		t.Error("gossip counters not initialized")
	}
	if r.AOFAppendsTotal == nil || r.SnapshotDuration == nil {
		t.Error("storage metrics not initialized")
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	h := r.Handler()
	if h == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)
	if !strings.Contains(bodyStr, "go_goroutines") {
		t.Error("expected go_goroutines metric from GoCollector")
	}
}

func TestRegistry_MessageAndGossipMetrics(t *testing.T) {
	r := NewRegistry()

	r.MessagesSent.WithLabelValues("Ping").Inc()
	r.MessagesSent.WithLabelValues("Ping").Inc()
	r.MessagesReceived.WithLabelValues("Pong").Inc()
	r.PFailTotal.Inc()
	r.FailTotal.Inc()
	r.AOFAppendsTotal.Inc()
	r.SnapshotDuration.Observe(0.05)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, `tokmesh_bus_messages_sent_total{kind="Ping"} 2`) {
		t.Error("expected tokmesh_bus_messages_sent_total{kind=\"Ping\"} 2")
	}
	if !strings.Contains(bodyStr, `tokmesh_bus_messages_received_total{kind="Pong"} 1`) {
		t.Error("expected tokmesh_bus_messages_received_total{kind=\"Pong\"} 1")
	}
	if !strings.Contains(bodyStr, "tokmesh_gossip_pfail_total 1") {
		t.Error("expected tokmesh_gossip_pfail_total 1")
	}
	if !strings.Contains(bodyStr, "tokmesh_gossip_fail_total 1") {
		t.Error("expected tokmesh_gossip_fail_total 1")
	}
	if !strings.Contains(bodyStr, "tokmesh_aof_appends_total 1") {
		t.Error("expected tokmesh_aof_appends_total 1")
	}
	if !strings.Contains(bodyStr, "tokmesh_rdb_snapshot_duration_seconds_count 1") {
		t.Error("expected tokmesh_rdb_snapshot_duration_seconds_count 1")
	}
}

func TestRegistry_NodeCollector(t *testing.T) {
	r := NewRegistry()
	r.RegisterNodeCollector(&fakeNodeStats{known: 3, live: 2})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "tokmesh_known_nodes 3") {
		t.Error("expected tokmesh_known_nodes 3")
	}
	if !strings.Contains(bodyStr, "tokmesh_live_masters 2") {
		t.Error("expected tokmesh_live_masters 2")
	}
}
