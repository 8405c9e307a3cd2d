// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/events"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/logging"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/packetlog"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/pipeline"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/rules"
	ws "github.com/dionjoshualobo/SchizoChatPlus/internal/websocket"
)

// PacketReader looks up logged packets for the forensics endpoint.
type PacketReader interface {
	PacketByID(ctx context.Context, id string) (*models.Packet, error)
}

// Handler serves the admin and relay HTTP API.
type Handler struct {
	pipeline *pipeline.Pipeline
	engine   *rules.Engine
	recorder *events.Recorder
	hub      *ws.Hub
	packets  PacketReader
}

// NewHandler creates the API handler. packets may be nil when raw packet
// logging is disabled.
func NewHandler(p *pipeline.Pipeline, engine *rules.Engine, recorder *events.Recorder, hub *ws.Hub, packets PacketReader) *Handler {
	return &Handler{pipeline: p, engine: engine, recorder: recorder, hub: hub, packets: packets}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// submitPacketRequest is the inbound packet envelope from a relay node.
// Flags and riskScore carried by an upstream node are kept and extended,
// never replaced.
type submitPacketRequest struct {
	ID         string   `json:"id,omitempty"`
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	Payload    string   `json:"payload"`
	Size       int64    `json:"size,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	RiskScore  int      `json:"riskScore,omitempty"`
	NodeLabel  string   `json:"nodeLabel,omitempty"`
}

type submitPacketResponse struct {
	Result     models.ExecutionResult `json:"result"`
	Assessment models.RiskAssessment  `json:"assessment"`
}

// SubmitPacket runs one packet through the pipeline.
// POST /api/v1/packets
func (h *Handler) SubmitPacket(w http.ResponseWriter, r *http.Request) {
	var req submitPacketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	packet := &models.Packet{
		ID:         req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Payload:    req.Payload,
		Size:       req.Size,
		Flags:      req.Flags,
		RiskScore:  req.RiskScore,
	}

	result, assessment := h.pipeline.Process(r.Context(), packet, req.NodeLabel)
	writeJSON(w, http.StatusOK, submitPacketResponse{Result: result, Assessment: assessment})
}

// GetPacket returns a previously logged packet for triage.
// GET /api/v1/packets/{id}
func (h *Handler) GetPacket(w http.ResponseWriter, r *http.Request) {
	if h.packets == nil {
		writeError(w, http.StatusNotFound, "packet logging is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	packet, err := h.packets.PacketByID(r.Context(), id)
	if errors.Is(err, packetlog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "packet not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("packet_id", id).Msg("failed to read packet log")
		writeError(w, http.StatusInternalServerError, "failed to read packet log")
		return
	}

	writeJSON(w, http.StatusOK, packet)
}

// ListEvents returns events in a time range, newest first.
// GET /api/v1/events?start=RFC3339&end=RFC3339&limit=N
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time, expected RFC3339")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time, expected RFC3339")
			return
		}
		end = t
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := h.recorder.Store().QueryByTimeRange(r.Context(), start, end, limit)
	if err != nil {
		logging.Error().Err(err).Msg("failed to query events")
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	if list == nil {
		list = []models.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": list,
		"count":  len(list),
	})
}

// EventStats returns aggregate event counts.
// GET /api/v1/events/stats
func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recorder.Store().Statistics(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("failed to compute event statistics")
		writeError(w, http.StatusInternalServerError, "failed to compute event statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ResolveEvent marks an event as reviewed.
// POST /api/v1/events/{id}/resolve
func (h *Handler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	err := h.recorder.Store().Resolve(r.Context(), id)
	if errors.Is(err, events.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("event_id", id).Msg("failed to resolve event")
		writeError(w, http.StatusInternalServerError, "failed to resolve event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"eventId": id, "resolved": true})
}

// ListRules returns the registered rules.
// GET /api/v1/rules
func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":   h.engine.Rules(),
		"enabled": h.engine.Enabled(),
	})
}

// CreateRule registers a custom rule.
// POST /api/v1/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var spec rules.CustomRuleSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := spec.Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.Register(rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, _ := h.engine.Rule(rule.ID)
	writeJSON(w, http.StatusCreated, info)
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetRuleEnabled toggles one rule.
// POST /api/v1/rules/{id}/enabled
func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetRuleEnabled(id, req.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	info, _ := h.engine.Rule(id)
	writeJSON(w, http.StatusOK, info)
}

// PipelineStatus reports the live pipeline state.
// GET /api/v1/pipeline/status
func (h *Handler) PipelineStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.pipeline.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pipeline":          status,
		"eventStoreBreaker": h.recorder.BreakerState(),
		"websocketClients":  h.hub.ClientCount(),
	})
}

// SetPipelineEnabled toggles the whole pipeline.
// POST /api/v1/pipeline/enabled
func (h *Handler) SetPipelineEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.pipeline.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": req.Enabled})
}

// Health is the liveness probe.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// WebSocket upgrades the connection and attaches it to the hub.
// GET /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ws.ServeWS(h.hub, w, r)
}
