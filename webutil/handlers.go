package webutil

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coreybb/signet/datastore"
	"github.com/coreybb/signet/storage"
)

// AppHandler represents a handler function that returns an error.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// MakeHandler adapts an AppHandler to the standard http.HandlerFunc signature.
// It executes the AppHandler and handles any returned error by logging appropriately
// and sending a standardized JSON error response.
func MakeHandler(handler AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		err := handler(tw, r)
		if err == nil {
			// The handler wrote its own successful response.
			return
		}

		statusCode, publicMessage := classifyError(r, err)

		if tw.wroteHeader {
			slog.Warn("Handler returned error after writing response header",
				"path", r.URL.Path,
				"method", r.Method,
				"error", err,
			)
			return
		}

		RespondWithError(tw, statusCode, publicMessage)
	}
}

// classifyError picks the status code and public message for err and logs it
// at a level matching its severity.
func classifyError(r *http.Request, err error) (int, string) {
	var httpErr *HTTPError

	switch {
	case errors.As(err, &httpErr):
		logLevel := slog.LevelWarn // Treat client errors as warnings server-side
		if httpErr.Code >= 500 {
			logLevel = slog.LevelError
		}
		attrs := []any{"code", httpErr.Code, "msg", httpErr.Message, "path", r.URL.Path, "method", r.Method}
		// Log the underlying cause if present and different from the public message
		if cause := errors.Unwrap(httpErr); cause != nil && cause.Error() != httpErr.Message {
			attrs = append(attrs, "cause", cause)
		}
		slog.Log(r.Context(), logLevel, "Client error response", attrs...)
		return httpErr.Code, httpErr.Message

	case errors.Is(err, sql.ErrNoRows), errors.Is(err, storage.ErrDocumentNotFound):
		slog.Info("Resource not found", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusNotFound, msgNotFound

	case errors.Is(err, datastore.ErrDuplicate):
		slog.Info("Duplicate resource", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusConflict, "Resource already exists"

	case errors.Is(err, datastore.ErrMissingReference):
		slog.Info("Missing referenced resource", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusNotFound, "Referenced resource not found"

	case errors.Is(err, datastore.ErrNotPending):
		slog.Info("Approval request already decided", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusConflict, "Approval request is no longer pending"

	case errors.Is(err, datastore.ErrAlreadySigned):
		slog.Info("Signature already signed", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusConflict, "Signature is already signed"

	case errors.Is(err, datastore.ErrNotCorporate):
		slog.Info("Approval list on individual CLA", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusUnprocessableEntity, "Only corporate CLAs have an approval list"

	default:
		slog.Error("Unhandled internal error", "path", r.URL.Path, "method", r.Method, "error", err)
		return http.StatusInternalServerError, msgInternalServer
	}
}
