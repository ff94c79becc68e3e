package errors

import (
	"context"
	"errors"
	"log/slog"
)

// Normalize maps any error onto the taxonomy. The result is always either a
// *ClientError or an *APIError, or nil when err is nil.
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewAPIError(CodeRequestAborted, AreaRequest, "The request was abandoned before it completed", err)
	}

	return NewAPIError(CodeServerError, AreaException, "An unexpected exception occurred", err)
}

// Handler logs errors and converts them into what the caller may see.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates an error handler.
// If logger is nil, it uses the default slog logger.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// Handle normalizes err, logs it and returns the client-facing error.
// Client errors are logged at warn level without an instance id. Server
// errors are logged at error level with their instance id and replaced by a
// generic error that references that id.
func (h *Handler) Handle(ctx context.Context, err error) *ClientError {
	switch e := Normalize(err).(type) {
	case *ClientError:
		h.logger.WarnContext(ctx, "client error", e.logArgs()...)
		return e
	case *APIError:
		h.logger.ErrorContext(ctx, "api error", e.logArgs()...)
		return e.ToClientError()
	}
	return nil
}
