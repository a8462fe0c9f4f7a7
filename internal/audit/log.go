package audit

import (
	"context"
	"fmt"
	"log/slog"

	"authcore/pkg/platform/privacy"
	"authcore/pkg/requestcontext"
)

// sensitiveKeys are masked before they reach a log line or an Event.
var sensitiveKeys = map[string]struct{}{
	"identifier":  {},
	"user_id":     {},
	"email":       {},
	"ip":          {},
	"contact":     {},
	"fingerprint": {},
	"session_id":  {},
}

// Log writes a structured audit line and emits the matching Event.
// attrList is a flat key/value list as accepted by slog. Values under
// sensitive keys are masked; "decision" and "reason" populate the Event.
func Log(ctx context.Context, logger *slog.Logger, emitter Emitter, event string, attrList ...any) {
	masked := maskAttrs(attrList)

	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		masked = append(masked, "request_id", requestID)
	}

	if logger != nil {
		args := append(append([]any{}, masked...), "event", event, "log_type", "audit")
		logger.InfoContext(ctx, event, args...)
	}

	if emitter == nil {
		return
	}

	fields := toMap(masked)
	e := Event{
		Action:    event,
		Timestamp: requestcontext.Now(ctx),
		UserID:    fields["user_id"],
		Decision:  fields["decision"],
		Reason:    fields["reason"],
		RequestID: requestID,
	}
	for _, key := range []string{"identifier", "user_id", "session_id", "ip"} {
		if v := fields[key]; v != "" {
			e.Subject = v
			break
		}
	}
	for _, key := range []string{"user_id", "decision", "reason", "request_id"} {
		delete(fields, key)
	}
	if len(fields) > 0 {
		e.Attrs = fields
	}

	if err := emitter.Emit(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}

func maskAttrs(attrList []any) []any {
	out := make([]any, 0, len(attrList))
	for i := 0; i < len(attrList); i += 2 {
		key, ok := attrList[i].(string)
		if !ok || i+1 >= len(attrList) {
			out = append(out, attrList[i:]...)
			break
		}
		val := attrList[i+1]
		if _, sensitive := sensitiveKeys[key]; sensitive {
			val = privacy.Mask(fmt.Sprint(val))
		}
		out = append(out, key, val)
	}
	return out
}

func toMap(attrList []any) map[string]string {
	m := make(map[string]string, len(attrList)/2)
	for i := 0; i+1 < len(attrList); i += 2 {
		key, ok := attrList[i].(string)
		if !ok {
			continue
		}
		m[key] = fmt.Sprint(attrList[i+1])
	}
	return m
}
