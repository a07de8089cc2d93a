package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		amonerr.WriteHTTP(w, amonerr.Internal("response encoding failed").WithCause(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError renders err in the wire form. Internal errors keep their cause
// server-side, so they are logged here with full context.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var e *amonerr.Error
	if !errors.As(err, &e) || e.Code == amonerr.CodeInternalError {
		h.log.Error("request failed", "error", err)
	}
	amonerr.WriteHTTP(w, err)
}

// decodeMerged decodes the JSON body into a map, overlays the route-derived
// identity fields (route wins), and maps the result onto out. An empty body
// is allowed; identity then comes from the route alone.
func decodeMerged(r *http.Request, routeFields map[string]interface{}, out interface{}) error {
	merged := map[string]interface{}{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&merged); err != nil && !errors.Is(err, io.EOF) {
			return amonerr.InvalidArgument("invalid JSON body: %v", err)
		}
	}
	for k, v := range routeFields {
		merged[k] = v
	}
	if err := mapstructure.Decode(merged, out); err != nil {
		return amonerr.InvalidArgument("invalid body: %v", err)
	}
	return nil
}

// newRequestLogger adapts chi's RequestLogger to hclog.
func newRequestLogger(log hclog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&requestLogger{log: log})
}

type requestLogger struct {
	log hclog.Logger
}

func (l *requestLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestLogEntry{
		log: l.log.With(
			"method", r.Method,
			"uri", r.RequestURI,
			"reqid", middleware.GetReqID(r.Context()),
		),
	}
}

type requestLogEntry struct {
	log hclog.Logger
}

func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.log.Debug("request served", "status", status, "bytes", bytes, "elapsed", elapsed)
}

func (e *requestLogEntry) Panic(v interface{}, stack []byte) {
	e.log.Error("request panicked", "panic", v, "stack", string(stack))
}
