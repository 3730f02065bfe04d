package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type apiError struct {
	Error string `json:"error"`
}

// writeJSON streams v to the client. The status goes out before encoding, so
// an encode failure can only truncate the body, never rewrite the status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// parseListOpts reads the shared pagination and time-range parameters.
// Unparseable values fall back to defaults rather than erroring: list
// endpoints are read-only and a sloppy query deserves data, not a 400.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{
		Limit:  clampedInt(q.Get("limit"), defaultPageSize, maxPageSize),
		Offset: clampedInt(q.Get("offset"), 0, 1<<31-1),
	}
	if t, ok := timeParam(q.Get("since")); ok {
		opts.Since = &t
	}
	if t, ok := timeParam(q.Get("until")); ok {
		opts.Until = &t
	}
	return opts
}

// clampedInt parses raw as a non-negative int capped at ceil; def covers
// empty, malformed, and out-of-range input. A zero limit means "default",
// so raw must parse to a positive value to take effect.
func clampedInt(raw string, def, ceil int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if def > 0 && n == 0 {
		return def
	}
	if n > ceil {
		return ceil
	}
	return n
}

func timeParam(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// pathParam reads a route wildcard from the Go 1.22 mux.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
