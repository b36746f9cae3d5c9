package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"foliohub.org/internal/auth"
	"foliohub.org/internal/obs"
)

func TestLogEventIncludesContext(t *testing.T) {
	logger := obs.Logger()
	origWriter := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithUser(ctx, "user-9")

	if err := LogEvent(ctx, "authz.role.assign", map[string]any{"role": "moderator"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("audit entry is not valid JSON: %v", err)
	}
	if entry["event"] != "authz.role.assign" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("missing request id: %v", entry)
	}
	if entry["user_id"] != "user-9" {
		t.Fatalf("missing user id: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["role"] != "moderator" {
		t.Fatalf("fields not forwarded: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty event name")
	}
}
