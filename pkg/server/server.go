// Package server exposes DVH and conformity calculations over HTTP.
//
// Every request carries a complete case document (JSON, or YAML when the
// Content-Type says so) and is answered with a JSON body stamped with a
// fresh run ID.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dvhcalc/internal/models"
	"dvhcalc/pkg/batch"
	"dvhcalc/pkg/caseio"
	"dvhcalc/pkg/dvh"
)

// maxBodyBytes bounds the size of an uploaded case.
const maxBodyBytes = 256 << 20

// Server is the HTTP front end of a batch runner.
type Server struct {
	// SliceTolerance overrides the dose slice snapping distance (mm) of
	// uploaded fields when positive.
	SliceTolerance float64

	// Indices are the default plan indices of DVH reports. The prescription
	// and external query parameters override them per request.
	Indices batch.Indices

	runner *batch.Runner
	logger *log.Logger
	router *mux.Router
	server *http.Server
}

// New creates a server listening on addr. A nil logger discards output.
func New(addr string, runner *batch.Runner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	router := mux.NewRouter()

	s := &Server{
		runner: runner,
		logger: logger,
		router: router,
		server: &http.Server{
			Addr:         addr,
			WriteTimeout: 5 * time.Minute,
			ReadTimeout:  time.Minute,
			IdleTimeout:  time.Minute,
			Handler:      router,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/dvh", s.handleDVH).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/structures/{id:[0-9]+}/conformity", s.handleConformity).Methods(http.MethodPost)
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("HTTP server starting on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.logger.Println("HTTP server stopped")
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

// conformityResponse is the answer to a conformity request.
type conformityResponse struct {
	RunID     string          `json:"run_id"`
	Structure string          `json:"structure"`
	Lower     float64         `json:"lower"`
	Result    *dvh.Conformity `json:"conformity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDVH(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()

	idx, err := s.indices(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	c, ok := s.readCase(w, r)
	if !ok {
		return
	}
	structures, field, err := caseio.Build(c)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.SliceTolerance > 0 {
		field.SliceTolerance = s.SliceTolerance
	}

	started := time.Now()
	report := batch.NewReport(runID, s.runner.Run(structures, field), idx)
	s.logger.Printf("run %s: %d structures in %v (%d failed)",
		runID, len(structures), time.Since(started).Round(time.Millisecond), len(report.Errors))
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleConformity(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid structure id: %w", err))
		return
	}
	lowerParam := r.URL.Query().Get("lower")
	if lowerParam == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing lower isodose limit"))
		return
	}
	lower, err := strconv.ParseFloat(lowerParam, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid lower isodose limit: %w", err))
		return
	}

	c, ok := s.readCase(w, r)
	if !ok {
		return
	}

	var target *models.Structure
	for i := range c.Structures {
		if c.Structures[i].ID == id {
			target = &c.Structures[i]
			break
		}
	}
	if target == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("structure %d not found", id))
		return
	}

	field, err := caseio.BuildField(c.Dose)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.SliceTolerance > 0 {
		field.SliceTolerance = s.SliceTolerance
	}
	structure, err := caseio.BuildStructure(*target)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.runner.Engine.ConformityIndex(structure, field, lower)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("run %s: conformity of %q at %.1f cGy is %.4f", runID, structure.Name, lower, res.CI)
	s.writeJSON(w, http.StatusOK, conformityResponse{
		RunID:     runID,
		Structure: structure.Name,
		Lower:     lower,
		Result:    res,
	})
}

// indices applies the query overrides to the default plan indices.
func (s *Server) indices(r *http.Request) (batch.Indices, error) {
	idx := s.Indices
	q := r.URL.Query()
	if v := q.Get("prescription"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			return idx, fmt.Errorf("invalid prescription %q", v)
		}
		idx.Prescription = p
	}
	if v := q.Get("external"); v != "" {
		idx.External = v
	}
	return idx, nil
}

// readCase decodes the request body, answering 400 on failure.
func (s *Server) readCase(w http.ResponseWriter, r *http.Request) (*models.Case, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, status, err)
		return nil, false
	}

	format := caseio.JSON
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		format = caseio.YAML
	}
	c, err := caseio.Decode(data, format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return c, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("writing response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("request failed with %d: %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
