// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/action"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/anomaly"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/config"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/events"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/inspector"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/packetlog"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/pipeline"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/ratestats"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/rules"
	ws "github.com/dionjoshualobo/SchizoChatPlus/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// memStore is an in-memory events.Store for handler tests.
type memStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newMemStore() *memStore {
	return &memStore{events: make(map[string]*models.Event)}
}

func (m *memStore) SaveEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.EventID] = &copied
	return nil
}

func (m *memStore) QueryByTimeRange(_ context.Context, start, end time.Time, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, ev := range m.events {
		if !ev.Timestamp.Before(start) && !ev.Timestamp.After(end) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memStore) Statistics(_ context.Context) (models.EventStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.EventStatistics{TotalEvents: int64(len(m.events))}
	for _, ev := range m.events {
		switch ev.EventType {
		case models.EventTypeBlocked:
			stats.Blocked++
		case models.EventTypeFlagged:
			stats.Flagged++
		}
		if ev.Severity == models.SeverityHigh {
			stats.Suspicious++
		}
	}
	return stats, nil
}

func (m *memStore) Resolve(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return events.ErrNotFound
	}
	ev.Resolved = true
	return nil
}

// memPacketReader serves the packet forensics endpoint in tests.
type memPacketReader struct {
	mu      sync.Mutex
	packets map[string]*models.Packet
}

func newMemPacketReader() *memPacketReader {
	return &memPacketReader{packets: make(map[string]*models.Packet)}
}

func (m *memPacketReader) PacketByID(_ context.Context, id string) (*models.Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packets[id]
	if !ok {
		return nil, packetlog.ErrNotFound
	}
	return p, nil
}

func (m *memPacketReader) put(p *models.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets[p.ID] = p
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore, *memPacketReader) {
	t.Helper()

	rulesCfg := config.RulesConfig{
		Enabled:                 true,
		OversizedPacketLimit:    1 << 20,
		MaxImagesPerMinute:      5,
		RateLimitMessagesPerSec: 10,
		MaxTrackedSenders:       1000,
	}
	engine, err := rules.NewEngine(rules.DefaultRules(rulesCfg))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	store := newMemStore()
	reader := newMemPacketReader()
	recorder := events.NewRecorder(store, nil, events.RecorderConfig{})
	decider := action.NewDecider(50, 80, false, recorder)
	hub := ws.NewHub()

	pipe := pipeline.New(pipeline.Config{
		Inspector: inspector.New(config.PacketConfig{
			RequireValidJSON: true,
			DetectNullBytes:  true,
		}, rulesCfg.OversizedPacketLimit),
		Engine:    engine,
		Scorer:    anomaly.NewGaussianScorer(0.3),
		Decider:   decider,
		Tracker:   ratestats.NewTracker(rulesCfg.MaxTrackedSenders),
		NodeLabel: "entry",
		Enabled:   true,
	})

	handler := NewHandler(pipe, engine, recorder, hub, reader)
	router := NewRouter(handler, config.ServerConfig{
		Port:               5001,
		Timeout:            30 * time.Second,
		RateLimitPerMinute: 10000,
		NodeLabel:          "entry",
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store, reader
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSubmitPacketAllowed(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"alice","receiverId":"bob","payload":"{\"type\":\"text\",\"content\":\"hi\"}"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decode[submitPacketResponse](t, resp)
	if got.Result.Status != models.StatusAllowed {
		t.Errorf("Status = %q, want allowed", got.Result.Status)
	}
	if got.Result.PacketID == "" {
		t.Error("PacketID missing")
	}
}

func TestSubmitPacketBlockedAndEventRecorded(t *testing.T) {
	server, store, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"mallory","receiverId":"bob","payload":"{\"content\":\"1; DROP TABLE users\"}"}`)
	got := decode[submitPacketResponse](t, resp)

	if got.Result.Status != models.StatusBlocked {
		t.Fatalf("Status = %q, want blocked (assessment=%+v)", got.Result.Status, got.Assessment)
	}
	if got.Assessment.Action != models.ActionBlock {
		t.Errorf("Assessment.Action = %v, want block", got.Assessment.Action)
	}

	stats, err := store.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Blocked != 1 {
		t.Errorf("Blocked = %d, want 1", stats.Blocked)
	}
}

func TestSubmitPacketCarriesUpstreamState(t *testing.T) {
	server, _, _ := newTestServer(t)

	// A relay node already accumulated risk and an id; both survive and
	// the risk counts toward the verdict.
	resp := postJSON(t, server.URL+"/api/v1/packets",
		`{"id":"relay-7","senderId":"alice","receiverId":"bob","payload":"{\"content\":\"hi\"}","flags":["UPSTREAM_FLAG"],"riskScore":60}`)
	got := decode[submitPacketResponse](t, resp)

	if got.Result.PacketID != "relay-7" {
		t.Errorf("PacketID = %q, want relay-7", got.Result.PacketID)
	}
	if got.Result.Status != models.StatusFlagged {
		t.Errorf("Status = %q, want flagged from upstream risk", got.Result.Status)
	}
	if got.Assessment.TotalRisk < 60 {
		t.Errorf("TotalRisk = %d, want >= 60", got.Assessment.TotalRisk)
	}
}

func TestSubmitPacketBadBody(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/packets", `{not json`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetLoggedPacket(t *testing.T) {
	server, _, reader := newTestServer(t)
	reader.put(&models.Packet{ID: "pkt-1", SenderID: "alice", Payload: `{"content":"hi"}`})

	resp, err := http.Get(server.URL + "/api/v1/packets/pkt-1")
	if err != nil {
		t.Fatalf("GET packet: %v", err)
	}
	got := decode[models.Packet](t, resp)
	if got.SenderID != "alice" {
		t.Errorf("SenderID = %q, want alice", got.SenderID)
	}

	resp, err = http.Get(server.URL + "/api/v1/packets/no-such-packet")
	if err != nil {
		t.Fatalf("GET missing packet: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListEventsAndResolve(t *testing.T) {
	server, store, _ := newTestServer(t)

	// Block one packet to create an event.
	postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"mallory","receiverId":"bob","payload":"<script>x</script>"}`).Body.Close()

	resp, err := http.Get(server.URL + "/api/v1/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	listing := decode[struct {
		Events []models.Event `json:"events"`
		Count  int            `json:"count"`
	}](t, resp)

	if listing.Count != 1 || len(listing.Events) != 1 {
		t.Fatalf("events listing = %+v, want exactly one event", listing)
	}
	eventID := listing.Events[0].EventID

	resp = postJSON(t, server.URL+"/api/v1/events/"+eventID+"/resolve", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	store.mu.Lock()
	resolved := store.events[eventID].Resolved
	store.mu.Unlock()
	if !resolved {
		t.Error("event not marked resolved")
	}
}

func TestResolveUnknownEvent(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/events/no-such-id/resolve", `{}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventStatsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"m","receiverId":"b","payload":"<script>x</script>"}`).Body.Close()

	resp, err := http.Get(server.URL + "/api/v1/events/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	stats := decode[models.EventStatistics](t, resp)
	if stats.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", stats.TotalEvents)
	}
}

func TestListRules(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/rules")
	if err != nil {
		t.Fatalf("GET rules: %v", err)
	}
	listing := decode[struct {
		Rules   []rules.RuleInfo `json:"rules"`
		Enabled bool             `json:"enabled"`
	}](t, resp)

	if len(listing.Rules) != 8 {
		t.Errorf("len(Rules) = %d, want 8", len(listing.Rules))
	}
	if !listing.Enabled {
		t.Error("engine should report enabled")
	}
}

func TestCreateCustomRule(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/rules",
		`{"id":"C001","name":"forbidden word","riskScore":90,"action":"block","payloadContains":"forbidden"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// The new rule participates in evaluation immediately.
	resp = postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"a","receiverId":"b","payload":"{\"content\":\"totally forbidden\"}"}`)
	got := decode[submitPacketResponse](t, resp)
	if got.Result.Status != models.StatusBlocked {
		t.Errorf("Status = %q, want blocked by custom rule", got.Result.Status)
	}
}

func TestCreateCustomRuleInvalid(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/rules", `{"id":"C002","name":"broken","action":"block"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for spec without matcher", resp.StatusCode)
	}
}

func TestToggleRule(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/rules/R003/enabled", `{"enabled":false}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	info := decode[rules.RuleInfo](t, resp)
	if info.Enabled {
		t.Error("rule reported enabled after disable")
	}

	resp = postJSON(t, server.URL+"/api/v1/rules/NOPE/enabled", `{"enabled":true}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown rule toggle status = %d, want 404", resp.StatusCode)
	}
}

func TestPipelineStatusAndToggle(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/pipeline/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	status := decode[struct {
		Pipeline pipeline.Status `json:"pipeline"`
	}](t, resp)
	if !status.Pipeline.Enabled {
		t.Error("pipeline should start enabled")
	}

	resp = postJSON(t, server.URL+"/api/v1/pipeline/enabled", `{"enabled":false}`)
	resp.Body.Close()

	// Everything passes through now.
	resp = postJSON(t, server.URL+"/api/v1/packets",
		`{"senderId":"m","receiverId":"b","payload":"<script>x</script>"}`)
	got := decode[submitPacketResponse](t, resp)
	if got.Result.Status != models.StatusAllowed {
		t.Errorf("Status = %q, want allowed with pipeline disabled", got.Result.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
