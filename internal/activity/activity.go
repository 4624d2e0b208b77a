// Package activity records mutations to the per-organization audit trail and
// mirrors each entry as a structured log line.
package activity

import (
	"context"
	"strings"
	"time"

	"portico.dev/internal/auth"
	"portico.dev/internal/ids"
	"portico.dev/internal/obs"
	"portico.dev/internal/store"
)

type ctxKey string

const requestIDKey ctxKey = "activity_request_id"

// WithRequestID attaches the request identifier to the context so recorded
// entries can be correlated with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder appends audit entries. Recording is fire-and-forget: a failed
// append must never fail the mutation that triggered it, so errors are logged
// and swallowed.
type Recorder struct {
	store store.ActivityStore
	now   func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(st store.ActivityStore) *Recorder {
	return &Recorder{store: st, now: time.Now}
}

// Record appends one entry for an action the actor performed on an entity.
func (r *Recorder) Record(ctx context.Context, actor auth.Principal, action, entity, entityID string) {
	entry := &store.ActivityEntry{
		ID:          ids.New(),
		OrgID:       actor.OrgID,
		ActorUserID: actor.UserID,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		CreatedAt:   r.now().UTC(),
	}
	line := map[string]any{
		"ts":        entry.CreatedAt.Format(time.RFC3339Nano),
		"type":      "activity",
		"event":     action,
		"org_id":    actor.OrgID,
		"user_id":   actor.UserID,
		"entity":    entity,
		"entity_id": entityID,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}

	if r.store != nil {
		if err := r.store.Append(ctx, entry); err != nil {
			line["append_error"] = err.Error()
		}
	}
	obs.LogRequest(line)
}
