package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/deploy"
	"github.com/thebtf/domainforge/internal/extract"
	"github.com/thebtf/domainforge/internal/record"
	"github.com/thebtf/domainforge/internal/synth"
	"github.com/thebtf/domainforge/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps pipeline errors onto HTTP statuses with a reason the
// caller can act on.
func writeError(w http.ResponseWriter, err error) {
	var verr *record.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"domain":     verr.Domain,
			"violations": verr.Violations,
		})
		return
	}

	status := http.StatusInternalServerError
	var te *db.TransitionError
	switch {
	case errors.As(err, &te), errors.Is(err, db.ErrDuplicateDomain):
		status = http.StatusConflict
	case errors.Is(err, record.ErrUnknownDomain), errors.Is(err, deploy.ErrProposalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, synth.ErrMalformedOutput), errors.Is(err, extract.ErrMalformedExtraction):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	captured, err := s.deps.Captures.Count(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	embedded, err := s.deps.Embeddings.Count(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := s.deps.Proposals.List(ctx, models.ProposalPending)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"captured_turns":    captured,
		"embedded_turns":    embedded,
		"pending_proposals": len(pending),
		"deployed_domains":  s.deps.Registry.Len(),
		"capture":           s.deps.Capture.Snapshot(),
	})
}

type captureRequest struct {
	Text       string                  `json:"text"`
	Extraction models.ExtractionResult `json:"extraction"`
}

func (s *Service) handleCaptureTurn(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	turn, err := s.deps.Capture.Capture(r.Context(), req.Text, req.Extraction)
	if err != nil {
		writeError(w, err)
		return
	}
	if turn == nil {
		writeJSON(w, http.StatusOK, map[string]any{"captured": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"captured": true, "turn": turn})
}

func (s *Service) handleListTurns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := s.deps.Captures.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns, "count": len(turns)})
}

func (s *Service) handleDeleteTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	affected, err := s.deps.Captures.Delete(r.Context(), []string{id})
	if err != nil {
		writeError(w, err)
		return
	}
	if affected == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "turn not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Service) handleEmbedAll(w http.ResponseWriter, r *http.Request) {
	embedded, err := s.deps.Capture.EmbedAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"embedded": embedded})
}

type detectRequest struct {
	MinSize   int     `json:"min_size"`
	Threshold float64 `json:"threshold"`
}

func (s *Service) handleDetectClusters(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}

	clusters, err := s.deps.Clusters.Detect(r.Context(), req.MinSize, req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters, "count": len(clusters)})
}

type proposeRequest struct {
	ClusterIndex int     `json:"cluster_index"`
	MinSize      int     `json:"min_size"`
	Threshold    float64 `json:"threshold"`
}

// handleCreateProposal re-runs detection and synthesizes a proposal for the
// requested cluster. Detection is deterministic over unchanged data, so the
// index refers to the same cluster the reviewer just saw.
func (s *Service) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	clusters, err := s.deps.Clusters.Detect(r.Context(), req.MinSize, req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.ClusterIndex < 0 || req.ClusterIndex >= len(clusters) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "cluster index out of range",
			"clusters": len(clusters),
		})
		return
	}

	proposal, err := s.deps.Synthesizer.Synthesize(r.Context(), clusters[req.ClusterIndex])
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Proposals.Create(r.Context(), proposal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleListProposals(w http.ResponseWriter, r *http.Request) {
	status := models.ProposalStatus(r.URL.Query().Get("status"))
	proposals, err := s.deps.Proposals.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals, "count": len(proposals)})
}

// loadProposal fetches the path proposal or writes the error response itself.
func (s *Service) loadProposal(w http.ResponseWriter, r *http.Request) *models.SchemaProposal {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid proposal id"})
		return nil
	}
	p, err := s.deps.Proposals.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "proposal not found"})
		return nil
	}
	return p
}

func (s *Service) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if p := s.loadProposal(w, r); p != nil {
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Service) handlePreviewTurns(w http.ResponseWriter, r *http.Request) {
	p := s.loadProposal(w, r)
	if p == nil {
		return
	}
	turns, err := s.deps.Reprocessor.Preview(r.Context(), p.SourceTurnIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns, "count": len(turns)})
}

func (s *Service) advanceProposal(w http.ResponseWriter, r *http.Request, next models.ProposalStatus) {
	p := s.loadProposal(w, r)
	if p == nil {
		return
	}
	updated, err := s.deps.Proposals.Advance(r.Context(), p.ID, next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleApproveProposal(w http.ResponseWriter, r *http.Request) {
	s.advanceProposal(w, r, models.ProposalApproved)
}

func (s *Service) handleRejectProposal(w http.ResponseWriter, r *http.Request) {
	s.advanceProposal(w, r, models.ProposalRejected)
}

func (s *Service) handleDeployProposal(w http.ResponseWriter, r *http.Request) {
	p := s.loadProposal(w, r)
	if p == nil {
		return
	}
	domain, err := s.deps.Deployer.Deploy(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain)
}

func (s *Service) handleReprocess(w http.ResponseWriter, r *http.Request) {
	p := s.loadProposal(w, r)
	if p == nil {
		return
	}
	if p.Status != models.ProposalDeployed {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "proposal must be deployed before reprocessing",
		})
		return
	}
	summary, err := s.deps.Reprocessor.Run(r.Context(), p.DomainName, p.SourceTurnIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains := s.deps.Registry.All()
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains, "count": len(domains)})
}

func (s *Service) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	rec, err := s.deps.Records.Create(r.Context(), chi.URLParam(r, "name"), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Service) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.deps.Records.List(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return 0, false
	}
	return id, true
}

func (s *Service) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.deps.Records.Get(r.Context(), chi.URLParam(r, "name"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	rec, err := s.deps.Records.Update(r.Context(), chi.URLParam(r, "name"), id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	deleted, err := s.deps.Records.Delete(r.Context(), chi.URLParam(r, "name"), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
