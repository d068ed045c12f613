package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/storage"
)

var kindCodes = map[apperr.Kind]connect.Code{
	apperr.KindValidation:       connect.CodeInvalidArgument,
	apperr.KindNotFound:         connect.CodeNotFound,
	apperr.KindForbidden:        connect.CodePermissionDenied,
	apperr.KindConflict:         connect.CodeAlreadyExists,
	apperr.KindUpstreamDegraded: connect.CodeUnavailable,
	apperr.KindInternal:         connect.CodeInternal,
}

// toConnectError maps an error onto a Connect error with a {kind, reason}
// detail. Internal causes are logged and never sent to the client.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		// Storage sentinels that escaped translation
		switch {
		case errors.Is(err, storage.ErrNotFound):
			appErr = &apperr.Error{Kind: apperr.KindNotFound, Message: "not found", Err: err}
		case errors.Is(err, storage.ErrConflict):
			appErr = &apperr.Error{Kind: apperr.KindConflict, Message: "already exists", Err: err}
		default:
			appErr = apperr.Internal(err)
		}
	}

	code, ok := kindCodes[appErr.Kind]
	if !ok {
		code = connect.CodeInternal
	}

	msg := appErr.Message
	if code == connect.CodeInternal {
		slog.Error("Internal error", "error", err)
		msg = "internal error"
	}

	out := connect.NewError(code, errors.New(msg))
	detail, derr := structpb.NewStruct(map[string]any{
		"kind":   string(appErr.Kind),
		"reason": appErr.Reason,
	})
	if derr == nil {
		if d, derr := connect.NewErrorDetail(detail); derr == nil {
			out.AddDetail(d)
		}
	}
	return out
}

// ErrorInfo extracts the kind and reason attached by toConnectError.
func ErrorInfo(err error) (kind apperr.Kind, reason string) {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return apperr.KindOf(err), apperr.ReasonOf(err)
	}
	for _, d := range connectErr.Details() {
		v, verr := d.Value()
		if verr != nil {
			continue
		}
		s, ok := v.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		return apperr.Kind(fields["kind"].GetStringValue()), fields["reason"].GetStringValue()
	}
	return "", ""
}

// storeErr translates a storage error for a lookup of what.
func storeErr(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return apperr.Internal(err)
}
