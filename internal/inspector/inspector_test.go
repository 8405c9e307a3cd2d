// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package inspector

import (
	"strings"
	"testing"

	"github.com/dionjoshualobo/SchizoChatPlus/internal/config"
	"github.com/dionjoshualobo/SchizoChatPlus/internal/models"
)

func strictConfig() config.PacketConfig {
	return config.PacketConfig{
		RequireValidJSON: true,
		DetectNullBytes:  true,
		DetectNonUTF8:    true,
	}
}

func cleanPacket() *models.Packet {
	return &models.Packet{
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    `{"type":"text","content":"hello"}`,
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func TestInspectCleanPacket(t *testing.T) {
	insp := New(strictConfig(), 1<<20)

	result := insp.Inspect(cleanPacket(), "entry")

	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %d, want 0", result.RiskScore)
	}
	if len(result.Flags) != 0 {
		t.Errorf("Flags = %v, want empty", result.Flags)
	}
	if result.PacketID == "" {
		t.Error("PacketID not assigned")
	}
	if result.NodeLabel != "entry" {
		t.Errorf("NodeLabel = %q, want %q", result.NodeLabel, "entry")
	}
}

func TestInspectFindings(t *testing.T) {
	tests := []struct {
		name     string
		packet   *models.Packet
		wantFlag string
		wantRisk int
	}{
		{
			name: "missing sender",
			packet: &models.Packet{
				ReceiverID: "bob",
				Payload:    `{"type":"text"}`,
			},
			wantFlag: FlagInvalidStructure,
			wantRisk: 50,
		},
		{
			name: "missing payload",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
			},
			// Empty payload also fails JSON validation.
			wantFlag: FlagInvalidStructure,
			wantRisk: 110,
		},
		{
			name: "malformed json payload",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				Payload:    `{"type":"text",`,
			},
			wantFlag: FlagMalformedJSON,
			wantRisk: 60,
		},
		{
			name: "sql injection",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				Payload:    `{"content":"1'; DROP TABLE users; --"}`,
			},
			wantFlag: FlagSQLInjection,
			wantRisk: 80,
		},
		{
			name: "xss script tag",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				Payload:    `{"content":"<script>alert(1)</script>"}`,
			},
			wantFlag: FlagXSSAttempt,
			wantRisk: 70,
		},
		{
			name: "onerror handler",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				Payload:    `{"content":"<img src=x onerror=alert(1)>"}`,
			},
			wantFlag: FlagXSSAttempt,
			wantRisk: 70,
		},
		{
			name: "null byte",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				// A raw NUL inside a JSON string is also invalid JSON, so
				// the malformed-JSON finding fires alongside.
				Payload:    "{\"content\":\"he\x00llo\"}",
			},
			wantFlag: FlagNullByte,
			wantRisk: 65 + 60,
		},
		{
			name: "invalid utf-8",
			packet: &models.Packet{
				SenderID:   "alice",
				ReceiverID: "bob",
				// A bare corrupted payload is also not valid JSON.
				Payload:    "hello \xff",
			},
			wantFlag: FlagInvalidEncoding,
			wantRisk: 45 + 60,
		},
	}

	insp := New(strictConfig(), 1<<20)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := insp.Inspect(tt.packet, "entry")
			if !hasFlag(result.Flags, tt.wantFlag) {
				t.Errorf("Flags = %v, want to contain %q", result.Flags, tt.wantFlag)
			}
			if result.RiskScore != tt.wantRisk {
				t.Errorf("RiskScore = %d, want %d", result.RiskScore, tt.wantRisk)
			}
		})
	}
}

func TestInspectOversized(t *testing.T) {
	insp := New(strictConfig(), 100)

	packet := &models.Packet{
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    `{"content":"` + strings.Repeat("a", 200) + `"}`,
	}

	result := insp.Inspect(packet, "entry")
	if !hasFlag(result.Flags, FlagOversizedPacket) {
		t.Errorf("Flags = %v, want to contain %q", result.Flags, FlagOversizedPacket)
	}
}

func TestInspectAccumulatesFindings(t *testing.T) {
	insp := New(strictConfig(), 1<<20)

	// Malformed JSON carrying both SQL and script signatures.
	packet := &models.Packet{
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    `SELECT * FROM users; <script>alert(1)</script>`,
	}

	result := insp.Inspect(packet, "entry")

	for _, want := range []string{FlagMalformedJSON, FlagSQLInjection, FlagXSSAttempt} {
		if !hasFlag(result.Flags, want) {
			t.Errorf("Flags = %v, want to contain %q", result.Flags, want)
		}
	}
	if want := 60 + 80 + 70; result.RiskScore != want {
		t.Errorf("RiskScore = %d, want %d", result.RiskScore, want)
	}
}

func TestInspectLenientConfig(t *testing.T) {
	lenient := config.PacketConfig{
		RequireValidJSON: false,
		DetectNullBytes:  false,
	}
	insp := New(lenient, 1<<20)

	packet := &models.Packet{
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    "not json \x00",
	}

	result := insp.Inspect(packet, "entry")
	if hasFlag(result.Flags, FlagMalformedJSON) {
		t.Error("MALFORMED_JSON raised with RequireValidJSON disabled")
	}
	if hasFlag(result.Flags, FlagNullByte) {
		t.Error("NULL_BYTE_DETECTED raised with DetectNullBytes disabled")
	}
}

func TestInspectMetadataDefaults(t *testing.T) {
	insp := New(strictConfig(), 1<<20)

	result := insp.Inspect(&models.Packet{Payload: `{}`}, "relay-2")

	if result.Metadata.SenderID != "unknown" {
		t.Errorf("SenderID = %q, want %q", result.Metadata.SenderID, "unknown")
	}
	if result.Metadata.ReceiverID != "unknown" {
		t.Errorf("ReceiverID = %q, want %q", result.Metadata.ReceiverID, "unknown")
	}
	if result.Metadata.Size <= 0 {
		t.Errorf("Size = %d, want > 0", result.Metadata.Size)
	}
	if result.Metadata.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestInspectGeneratesUniqueIDs(t *testing.T) {
	insp := New(strictConfig(), 1<<20)

	a := insp.Inspect(cleanPacket(), "entry")
	b := insp.Inspect(cleanPacket(), "entry")
	if a.PacketID == b.PacketID {
		t.Errorf("packet ids not unique: %q", a.PacketID)
	}
}

func TestSignatures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		fn      func(string) bool
		matches bool
	}{
		{"sql select with quote", "SELECT * FROM t WHERE a='x'", ContainsSQLInjection, true},
		{"sql keyword alone", "please select a color", ContainsSQLInjection, true},
		{"sql comment marker alone", "admin'--", ContainsSQLInjection, true},
		{"drop with semicolon", "x; DROP TABLE users", ContainsSQLInjection, true},
		{"plain text", "hello world", ContainsSQLInjection, false},
		{"keyword check ignores markers", "admin'--", ContainsSQLKeyword, false},
		{"keyword check matches statement", "DROP TABLE users", ContainsSQLKeyword, true},

		{"script tag", "<script>x</script>", ContainsXSS, true},
		{"script tag mixed case", "<ScRiPt>x</sCrIpT>", ContainsXSS, true},
		{"javascript scheme", "javascript:alert(1)", ContainsXSS, true},
		{"onload handler", "<body onload=evil()>", ContainsXSS, true},
		{"harmless angle brackets", "a < b > c", ContainsXSS, false},

		{"null byte", "a\x00b", ContainsNullByte, true},
		{"no null byte", "ab", ContainsNullByte, false},

		{"non-ascii", "héllo", ContainsNonASCII, true},
		{"ascii only", "hello", ContainsNonASCII, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.input); got != tt.matches {
				t.Errorf("got %v, want %v for %q", got, tt.matches, tt.input)
			}
		})
	}
}
