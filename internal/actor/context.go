/**
 * @description
 * Request-scoped actor attribution. The HTTP middleware attaches an Info to
 * the request context before any coordinator operation runs; audit writes
 * and tracing spans read it back without it being threaded through call
 * signatures. System-triggered work (scheduler callbacks) runs on a context
 * that carries no Info.
 */

package actor

import "context"

// contextKey is a private type so no other package can collide with our key.
type contextKey string

const infoKey contextKey = "actorInfo"

// Info is the attribution attached to one inbound request.
type Info struct {
	ActorID     string
	OriginIP    string
	ClientAgent string
}

// WithInfo returns a child context carrying the given attribution.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext returns the attribution on ctx, if any.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey).(Info)
	return info, ok
}

// ID returns the actor id on ctx, or nil when the context carries no actor
// (system-triggered work). The pointer form matches the audit log's nullable
// actor column.
func ID(ctx context.Context) *string {
	info, ok := FromContext(ctx)
	if !ok || info.ActorID == "" {
		return nil
	}
	id := info.ActorID
	return &id
}

// Metadata returns the request context fields recorded alongside audit
// entries. Empty fields are omitted.
func Metadata(ctx context.Context) map[string]string {
	info, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	meta := make(map[string]string, 2)
	if info.OriginIP != "" {
		meta["origin_ip"] = info.OriginIP
	}
	if info.ClientAgent != "" {
		meta["client_agent"] = info.ClientAgent
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
