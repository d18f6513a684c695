// Package http adapts error-returning handlers onto chi and maps
// service errors to JSON responses.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/vouchnet/settlement-middleware/pkg/app/errors"
)

// HandlerFunc is an http handler that reports failure through its
// return value instead of writing the error response itself.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// HandleError adapts h onto http.HandlerFunc, routing any returned
// error through DefaultErrorHandler.
//
//	r.Post("/borrow", http.HandleError(handler.borrow))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
}

// DefaultErrorHandler writes a JSON error body. ServiceError categories
// choose the status code; anything else becomes an opaque 500 so
// internals never leak to the client.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Unexpected Service Error"

	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		status = svcErr.StatusCode()
		message = svcErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&errorResponse{
		ErrMsg:     message,
		ErrMsgCode: status,
	})
}
