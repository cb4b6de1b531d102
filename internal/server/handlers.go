package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/contentmill/contentmill/internal/diff"
	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP status codes. Anything
// outside the taxonomy is a 500 with a generic message so driver
// details never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUpstream):
		status = http.StatusBadGateway
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.controller.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type createExperimentRequest struct {
	Name            string          `json:"name"`
	Variants        []store.Variant `json:"variants"`
	TrafficSplit    []float64       `json:"traffic_split"`
	SuccessMetrics  []string        `json:"success_metrics"`
	TestParameters  map[string]any  `json:"test_parameters"`
	ConfidenceLevel float64         `json:"confidence_level"`
	MinSampleSize   int             `json:"min_sample_size"`
	DurationDays    int             `json:"duration_days"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	exp, err := s.controller.Create(r.Context(), experiment.Config{
		Name:            req.Name,
		Variants:        req.Variants,
		TrafficSplit:    req.TrafficSplit,
		SuccessMetrics:  req.SuccessMetrics,
		TestParameters:  req.TestParameters,
		ConfidenceLevel: req.ConfidenceLevel,
		MinSampleSize:   req.MinSampleSize,
		DurationDays:    req.DurationDays,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.controller.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": experiments})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.controller.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.controller.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	abort := r.URL.Query().Get("abort") == "true"

	var result any
	var err error
	if abort {
		result, err = s.controller.Abort(r.Context(), r.PathValue("id"))
	} else {
		result, err = s.controller.Stop(r.Context(), r.PathValue("id"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.Analyze(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type recordMetricRequest struct {
	VariantID        string  `json:"variant_id"`
	SessionID        string  `json:"session_id"`
	QualityScore     float64 `json:"quality_score"`
	EngagementScore  float64 `json:"engagement_score"`
	ConversionFlag   bool    `json:"conversion"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

func (s *Server) handleRecordMetric(w http.ResponseWriter, r *http.Request) {
	var req recordMetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	err := s.controller.RecordMetric(r.Context(), r.PathValue("id"), req.VariantID, store.MetricSample{
		SessionID:        req.SessionID,
		QualityScore:     req.QualityScore,
		EngagementScore:  req.EngagementScore,
		ConversionFlag:   req.ConversionFlag,
		ProcessingTimeMs: req.ProcessingTimeMs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generateRequest struct {
	VariantID string         `json:"variant_id"`
	Request   map[string]any `json:"request"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	result, err := s.engine.GenerateForExperiment(r.Context(), r.PathValue("id"), req.Request, req.VariantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type createVersionRequest struct {
	BranchName      string             `json:"branch_name"`
	Artifact        json.RawMessage    `json:"artifact"`
	ParentVersionID *string            `json:"parent_version_id"`
	QualityMetrics  map[string]float64 `json:"quality_metrics"`
	ExperimentID    string             `json:"experiment_id"`
	VariantID       string             `json:"variant_id"`
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	if req.BranchName == "" {
		req.BranchName = "main"
	}

	version, err := s.store.CreateVersion(r.Context(), store.CreateVersionInput{
		ContentID:       r.PathValue("id"),
		BranchName:      req.BranchName,
		Artifact:        req.Artifact,
		ParentVersionID: req.ParentVersionID,
		QualityMetrics:  req.QualityMetrics,
		ExperimentID:    req.ExperimentID,
		VariantID:       req.VariantID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.GetVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	contentID := r.PathValue("id")
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))

	versions, hasMore, err := s.store.ListVersions(r.Context(), contentID, store.ListVersionsOptions{
		BranchName:      q.Get("branch"),
		IncludeArchived: q.Get("include_archived") == "true",
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := s.store.GetHistory(r.Context(), contentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"has_more": hasMore,
		"events":   events,
	})
}

func (s *Server) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	idA, idB := q.Get("version1"), q.Get("version2")
	if idA == "" || idB == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "version1 and version2 are required"})
		return
	}

	a, err := s.store.GetVersion(r.Context(), idA)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := s.store.GetVersion(r.Context(), idB)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diff.Compare(a, b))
}

type restoreRequest struct {
	BranchName string `json:"branch_name"`
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // empty body means same branch
	}

	version, err := s.store.RestoreVersion(r.Context(), r.PathValue("id"), req.BranchName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

type branchRequest struct {
	BranchName string `json:"branch_name"`
}

func (s *Server) handleBranchVersion(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	version, err := s.store.Branch(r.Context(), r.PathValue("id"), req.BranchName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

type archiveRequest struct {
	BranchName string `json:"branch_name"`
	Keep       int    `json:"keep"`
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if req.BranchName == "" {
		req.BranchName = "main"
	}

	archived, err := s.store.ArchiveOlderThan(r.Context(), r.PathValue("id"), req.BranchName, req.Keep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"archived": archived})
}
