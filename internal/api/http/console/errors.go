package console

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/engine"
)

// errResponse is a JSON error body.
type errResponse struct {
	// Err is the underlying error, not serialized.
	Err error `json:"-"`
	// HTTPStatusCode is the response status.
	HTTPStatusCode int `json:"-"`
	// ErrorText is the message returned to the client.
	ErrorText string `json:"error"`
}

// Render implements render.Renderer.
func (e *errResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)

	return nil
}

// errInvalidRequest answers 400 with the error text.
func errInvalidRequest(err error) render.Renderer {
	return &errResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		ErrorText:      err.Error(),
	}
}

// errFromService maps engine errors onto HTTP statuses.
func errFromService(ctx context.Context, err error) render.Renderer {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return errInvalidRequest(err)
	case errors.Is(err, engine.ErrNotFound):
		return &errResponse{Err: err, HTTPStatusCode: http.StatusNotFound, ErrorText: err.Error()}
	case errors.Is(err, engine.ErrStoreUnavailable):
		logger.ErrorKV(ctx, "Store unavailable", "error", err)

		return &errResponse{
			Err:            err,
			HTTPStatusCode: http.StatusServiceUnavailable,
			ErrorText:      "store unavailable, retry later",
		}
	default:
		logger.ErrorKV(ctx, "Request failed", "error", err)

		return &errResponse{
			Err:            err,
			HTTPStatusCode: http.StatusInternalServerError,
			ErrorText:      "internal error",
		}
	}
}
