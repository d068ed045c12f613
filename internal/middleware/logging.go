package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// LoggingInterceptor logs one line per RPC. Client mistakes (validation,
// missing access, conflicts) log at WARN with their reason code; server-side
// failures log at ERROR. Place it after RequireAuth so the user ID is known.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"user_id", GetUserID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err == nil {
				slog.InfoContext(ctx, "RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs, "code", code.String())
			if reason := errorReason(err); reason != "" {
				attrs = append(attrs, "reason", reason)
			}
			level := slog.LevelWarn
			if serverFault(code) {
				level = slog.LevelError
			}
			slog.Log(ctx, level, "RPC error", append(attrs, "error", err)...)
			return resp, err
		}
	}
}

func serverFault(code connect.Code) bool {
	switch code {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss, connect.CodeUnavailable:
		return true
	}
	return false
}

// errorReason reads the "reason" field of a structpb error detail, if any.
func errorReason(err error) string {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return ""
	}
	for _, d := range connectErr.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		if s, ok := v.(*structpb.Struct); ok {
			return s.GetFields()["reason"].GetStringValue()
		}
	}
	return ""
}
