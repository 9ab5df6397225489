/**
 * @description
 * Execution wrapper shared by every coordinator operation. Wrapping a unit
 * of work gives it a named otel span, span attributes derived from the
 * request's actor context plus caller-supplied metadata (with sensitive keys
 * redacted), and uniform error normalization into the apperr taxonomy.
 *
 * Ledger reverts are translated into classified ledger errors carrying a
 * cleaned human-readable reason; anything else unrecognized becomes a
 * generic internal error. Domain errors already classified pass through
 * untouched.
 *
 * @dependencies
 * - go.opentelemetry.io/otel: Tracing API. The SDK/exporter is wired by the
 *   deployment environment, not here.
 */

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/actor"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/apperr"
)

var tracer = otel.Tracer("etharis-deal-service")

// RedactionMarker replaces the values of sensitive metadata keys before they
// are attached to a span.
const RedactionMarker = "[REDACTED]"

// sensitiveKeys is the closed list of metadata keys that never reach the
// trace sink in clear text.
var sensitiveKeys = map[string]struct{}{
	"password":     {},
	"new_password": {},
	"old_password": {},
	"private_key":  {},
	"secret":       {},
	"token":        {},
}

// Reverter is implemented by ledger client errors that carry a raw revert
// message from the contract.
type Reverter interface {
	RevertRaw() string
}

var revertReasonPattern = regexp.MustCompile(`reverted with the following reason:\s*([^\n\r]*)`)

// CleanRevertReason extracts the human-readable reason from a raw revert
// message. When the standard marker is present the text after it up to the
// next line break is returned; otherwise all whitespace runs collapse to
// single spaces.
func CleanRevertReason(raw string) string {
	if match := revertReasonPattern.FindStringSubmatch(raw); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Redact returns a copy of meta with sensitive values replaced by the
// redaction marker.
func Redact(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return meta
	}
	clean := make(map[string]any, len(meta))
	for key, value := range meta {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			clean[key] = RedactionMarker
			continue
		}
		clean[key] = value
	}
	return clean
}

// Run executes fn inside a named span and normalizes its error. An empty
// name falls back to the calling function's name.
func Run[T any](ctx context.Context, name string, meta map[string]any, fn func(context.Context) (T, error)) (T, error) {
	if name == "" {
		name = callerLabel()
	}

	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if info, ok := actor.FromContext(ctx); ok {
		if info.ActorID != "" {
			span.SetAttributes(attribute.String("actor.id", info.ActorID))
		}
		if info.OriginIP != "" {
			span.SetAttributes(attribute.String("actor.origin_ip", info.OriginIP))
		}
		if info.ClientAgent != "" {
			span.SetAttributes(attribute.String("actor.client_agent", info.ClientAgent))
		}
	}
	for key, value := range Redact(meta) {
		span.SetAttributes(attribute.String(key, fmt.Sprint(value)))
	}

	result, err := fn(ctx)
	if err != nil {
		normalized := Normalize(err)
		span.RecordError(normalized)
		span.SetStatus(codes.Error, normalized.Error())
		span.SetAttributes(attribute.Bool("success", false))
		return result, normalized
	}

	span.SetAttributes(attribute.Bool("success", true))
	return result, nil
}

// Normalize maps err into the apperr taxonomy. Already-classified errors
// pass through unchanged; ledger reverts become ledger errors with a cleaned
// reason; everything else becomes an internal error carrying the original
// message.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if appErr := apperr.From(err); appErr != nil {
		return err
	}
	var reverter Reverter
	if errors.As(err, &reverter) {
		return apperr.Ledger(CleanRevertReason(reverter.RevertRaw()), err)
	}
	return apperr.Internal(err)
}

func callerLabel() string {
	// Skip callerLabel and Run itself.
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "operation"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "operation"
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
