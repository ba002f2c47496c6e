package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/blueplane-ai/bp-telemetry-core/internal/errkind"
)

// maxRequestBodySize bounds a single POST /events body.
const maxRequestBodySize = 1 << 20 // 1 MiB

// requestTimeout bounds the enqueue (the Accept call) of one
// POST /events request (spec §6: timeout 1s); body decoding runs
// before it and is not covered by it.
const requestTimeout = 1 * time.Second

// Server exposes C3's HTTP surface: POST /events.
type Server struct {
	ingress *Ingress
	mux     *http.ServeMux
}

// NewServer builds a Server backed by ing.
func NewServer(ing *Ingress) *Server {
	s := &Server{ingress: ing, mux: http.NewServeMux()}
	s.mux.HandleFunc("/events", s.handleEvents)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeMethodNotAllowed(w, r.Method)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req Request
	if err := json.NewDecoder(limitedBody(w, r)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON request body", err)
		return
	}

	if _, err := s.ingress.Accept(ctx, req); err != nil {
		var ve *errkind.ValidationError
		if errors.As(err, &ve) {
			s.writeError(w, http.StatusBadRequest, "validation failed", err)
			return
		}
		// Broker unreachable or timed out: the event is lost, but the
		// caller is still never kept waiting or retried against.
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, cause error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := errorBody{Error: msg}
	if cause != nil {
		body.Cause = cause.Error()
	}
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", "POST")
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
}

func limitedBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, maxRequestBodySize)
}
