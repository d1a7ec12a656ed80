package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clawtrust/engine/internal/pipeline"
	"github.com/clawtrust/engine/internal/trust"
)

// EvaluateRequest is the POST /api/v1/evaluate body.
type EvaluateRequest struct {
	Subject trust.Subject  `json:"subject"`
	Context *trust.Context `json:"context,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evalCtx := trust.Context{}
	if req.Context != nil {
		evalCtx = *req.Context
	}

	result, err := s.pipeline.Evaluate(r.Context(), req.Subject, evalCtx)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidSubject) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("evaluation failed", "subject", req.Subject.Key(), "err", err)
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvaluateGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subject := trust.Subject{
		Type:      trust.SubjectType(r.URL.Query().Get("type")),
		Namespace: vars["namespace"],
		ID:        vars["id"],
	}
	evalCtx := trust.Context{Action: trust.Action(r.URL.Query().Get("action"))}

	result, err := s.pipeline.Evaluate(r.Context(), subject, evalCtx)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidSubject) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("evaluation failed", "subject", subject.Key(), "err", err)
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.pipeline.Health(r.Context()),
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectKey string `json:"subject_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubjectKey == "" {
		writeError(w, http.StatusBadRequest, "subject_key is required")
		return
	}

	s.pipeline.Invalidate(r.Context(), req.SubjectKey)
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "subject_key": req.SubjectKey})
}

// AddLinkRequest is the challenge-workflow callback body. The link must
// already be verified by the caller; the engine records it as given.
type AddLinkRequest struct {
	A              trust.Subject            `json:"a"`
	B              trust.Subject            `json:"b"`
	Method         trust.VerificationMethod `json:"method"`
	Evidence       map[string]interface{}   `json:"evidence,omitempty"`
	AttestationRef string                   `json:"attestation_ref,omitempty"`
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req AddLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.A.Namespace == "" || req.A.ID == "" || req.B.Namespace == "" || req.B.ID == "" {
		writeError(w, http.StatusBadRequest, "both link endpoints require a namespace and an id")
		return
	}
	if req.Method == "" {
		req.Method = trust.MethodManual
	}

	link := s.pipeline.Graph().AddLink(req.A, req.B, req.Method, req.Evidence, req.AttestationRef)

	// Persistence is best-effort; the in-memory graph is already updated
	// and a restart re-hydrates from whatever the store accepted.
	if s.links != nil {
		if err := s.links.Upsert(r.Context(), *link); err != nil {
			slog.Error("link persistence failed", "a", req.A.Key(), "b", req.B.Key(), "err", err)
		}
	}

	// A fresh link changes the cohort for both endpoints.
	s.pipeline.Invalidate(r.Context(), req.A.Key())
	s.pipeline.Invalidate(r.Context(), req.B.Key())

	writeJSON(w, http.StatusOK, link)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
