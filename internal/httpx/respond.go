package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Hint    string `json:"hint,omitempty"`
}

// writeErr renders err as {success:false, error, kind, hint}. Full details only go to the log.
func writeErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code := apperr.HTTPStatus(err)
	lvl := slog.LevelInfo
	if code >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	log.Log(r.Context(), lvl, "request failed",
		"method", r.Method, "path", r.URL.Path, "status", code,
		"request_id", middleware.GetReqID(r.Context()), "err", err)

	writeJSON(w, code, errorBody{
		Error: apperr.Public(err),
		Kind:  string(apperr.KindOf(err)),
		Hint:  apperr.Hint(err),
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("invalid json: %v", err)
}
