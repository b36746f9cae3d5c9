// Package audit emits append-style structured events for security-relevant
// actions: grant mutations, restriction toggles, token issuance.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"foliohub.org/internal/auth"
	"foliohub.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// entry is the wire shape of a single audit record.
type entry struct {
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// LogEvent writes an audit record enriched with the request id and acting
// user taken from the context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	e := entry{
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
		Type:   "audit",
		Event:  event,
		Fields: make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	if ctx != nil {
		if rid, ok := ctx.Value(requestIDKey).(string); ok {
			e.RequestID = rid
		}
		if userID, ok := auth.UserIDFromContext(ctx); ok {
			e.UserID = userID
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
