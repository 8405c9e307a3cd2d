// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

// Package inspector parses raw packets, extracts metadata, and computes the
// structural risk contribution: malformed payloads, oversize, embedded
// attack signatures, and null bytes. Content problems are captured as flags
// and risk points, never returned as errors.
package inspector

import (
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/config"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

// Flags raised by the inspector.
const (
	FlagInvalidStructure = "INVALID_STRUCTURE"
	FlagOversizedPacket  = "OVERSIZED_PACKET"
	FlagMalformedJSON    = "MALFORMED_JSON"
	FlagSQLInjection     = "SQL_INJECTION_ATTEMPT"
	FlagXSSAttempt       = "XSS_ATTEMPT"
	FlagNullByte         = "NULL_BYTE_DETECTED"
	FlagInvalidEncoding  = "INVALID_ENCODING"
)

// Risk contributions per structural finding.
const (
	riskInvalidStructure = 50
	riskOversizedPacket  = 40
	riskMalformedJSON    = 60
	riskSQLInjection     = 80
	riskXSSAttempt       = 70
	riskNullByte         = 65
	riskInvalidEncoding  = 45
)

// Metadata holds inspector-derived facts about a packet. Read-only after
// creation.
type Metadata struct {
	PacketID   string    `json:"packetId"`
	NodeLabel  string    `json:"nodeLabel"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Size       int64     `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is the outcome of one inspection.
type Result struct {
	NodeLabel string    `json:"nodeLabel"`
	PacketID  string    `json:"packetId"`
	Metadata  Metadata  `json:"metadata"`
	RiskScore int       `json:"riskScore"`
	Flags     []string  `json:"flags"`
	Timestamp time.Time `json:"timestamp"`
}

// Inspector runs the structural and content checks of the first pipeline
// stage. Inspection is stateless; one Inspector serves all concurrent
// evaluations.
type Inspector struct {
	strictness config.PacketConfig
	sizeLimit  int64
}

// New creates an inspector with the given validation strictness and
// oversize limit in bytes.
func New(strictness config.PacketConfig, sizeLimit int64) *Inspector {
	if sizeLimit <= 0 {
		sizeLimit = 1 << 20
	}
	return &Inspector{strictness: strictness, sizeLimit: sizeLimit}
}

// Inspect analyzes the packet and returns metadata plus the structural risk
// contribution. Every check runs even after a high-risk flag fires, so one
// packet can accumulate multiple flags. Inspect never fails on content:
// parse problems become flags.
func (i *Inspector) Inspect(packet *models.Packet, nodeLabel string) Result {
	now := time.Now()
	meta := extractMetadata(packet, nodeLabel, now)

	result := Result{
		NodeLabel: nodeLabel,
		PacketID:  meta.PacketID,
		Metadata:  meta,
		Flags:     []string{},
		Timestamp: now,
	}

	if !hasRequiredFields(packet) {
		result.raise(FlagInvalidStructure, riskInvalidStructure)
	}

	if meta.Size > i.sizeLimit {
		result.raise(FlagOversizedPacket, riskOversizedPacket)
	}

	if i.strictness.RequireValidJSON && !json.Valid([]byte(packet.Payload)) {
		result.raise(FlagMalformedJSON, riskMalformedJSON)
	}

	if ContainsSQLInjection(packet.Payload) {
		result.raise(FlagSQLInjection, riskSQLInjection)
	}

	if ContainsXSS(packet.Payload) {
		result.raise(FlagXSSAttempt, riskXSSAttempt)
	}

	if i.strictness.DetectNullBytes && ContainsNullByte(packet.Payload) {
		result.raise(FlagNullByte, riskNullByte)
	}

	if i.strictness.DetectNonUTF8 && !utf8.ValidString(packet.Payload) {
		result.raise(FlagInvalidEncoding, riskInvalidEncoding)
	}

	return result
}

// raise records one finding.
func (r *Result) raise(flag string, risk int) {
	r.Flags = append(r.Flags, flag)
	r.RiskScore += risk
}

// extractMetadata builds the read-only metadata for a packet. The packet id
// is always freshly generated; sender/receiver default to "unknown".
func extractMetadata(packet *models.Packet, nodeLabel string, now time.Time) Metadata {
	return Metadata{
		PacketID:   uuid.NewString(),
		NodeLabel:  nodeLabel,
		SenderID:   orUnknown(packet.SenderID),
		ReceiverID: orUnknown(packet.ReceiverID),
		Size:       serializedSize(packet),
		Timestamp:  now,
	}
}

// serializedSize computes the packet's byte length on the wire. Returns 0
// when the packet cannot be serialized.
func serializedSize(packet *models.Packet) int64 {
	data, err := json.Marshal(packet)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// hasRequiredFields checks that payload, sender, and receiver are present.
func hasRequiredFields(packet *models.Packet) bool {
	return packet.Payload != "" && packet.SenderID != "" && packet.ReceiverID != ""
}

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
