package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rtmonitor/internal/feed"
	"rtmonitor/internal/metrics"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestResponse acknowledges an accepted capture.
type IngestResponse struct {
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	Entities int    `json:"entities"`
}

// Handler returns the feed listener routes:
//
//	POST /{module_name}/{module_id}  raw feed body
//	GET  /health
//	GET  /metrics                    when m is non-nil
func Handler(s *Service, maxBytes int64, m *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"module":    s.moduleName + "." + s.moduleID,
			"timestamp": time.Now().UTC(),
		})
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	r.Post("/{module_name}/{module_id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "module_name") != s.moduleName || chi.URLParam(r, "module_id") != s.moduleID {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown module"})
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "feed too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "read body: " + err.Error()})
			return
		}
		if len(raw) == 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "empty feed"})
			return
		}

		msg, err := s.Ingest(r.Context(), raw)
		if err != nil {
			var de *feed.DecodeError
			if errors.As(err, &de) {
				// the capture is archived even though it did not decode
				writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, IngestResponse{
			Filename: msg.Filename,
			Filepath: msg.Filepath,
			Entities: len(msg.Entities),
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
