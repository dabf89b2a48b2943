// Package api exposes the engine over HTTP: profile CRUD, the run
// lifecycle, diagnostics, dataset summaries, Prometheus metrics, and a
// websocket stream of live progress events.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/benchmark"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/catalog"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/config"
	enginerrors "github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/errors"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/question"
	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// Server is the HTTP boundary consumed by the dashboard.
type Server struct {
	store       *benchmark.Store
	scheduler   *benchmark.Scheduler
	diagnostics *benchmark.DiagnosticsRunner
	questions   *question.Repository
	catalog     *catalog.Catalog
	hub         *telemetry.Hub
	defaults    config.ProfileDefaults
	router      chi.Router
}

// Options bundles the server's collaborators.
type Options struct {
	Store       *benchmark.Store
	Scheduler   *benchmark.Scheduler
	Diagnostics *benchmark.DiagnosticsRunner
	Questions   *question.Repository
	Catalog     *catalog.Catalog
	Hub         *telemetry.Hub
	Defaults    config.ProfileDefaults
}

// NewServer builds the router and handlers.
func NewServer(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		scheduler:   opts.Scheduler,
		diagnostics: opts.Diagnostics,
		questions:   opts.Questions,
		catalog:     opts.Catalog,
		hub:         opts.Hub,
		defaults:    opts.Defaults,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/events", s.handleEvents)

	r.Route("/api", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Post("/", s.handleCreateProfile)
			r.Route("/{profileID}", func(r chi.Router) {
				r.Get("/", s.handleGetProfile)
				r.Put("/", s.handleUpdateProfile)
				r.Delete("/", s.handleDeleteProfile)
				r.Post("/diagnostics", s.handleRunDiagnostics)
				r.Get("/diagnostics", s.handleListDiagnostics)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/attempts", s.handleListAttempts)
				r.Get("/report", s.handleRunReport)
				r.Post("/enqueue", s.handleEnqueueRun)
				r.Post("/cancel", s.handleCancelRun)
			})
		})
		r.Get("/dataset", s.handleDatasetSummary)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// profileRequest is the wire form for creating and updating profiles. Omitted
// generation parameters fall back to the configured defaults.
type profileRequest struct {
	Name             string                   `json:"name"`
	EndpointBaseURL  string                   `json:"endpointBaseUrl"`
	APIKey           string                   `json:"apiKey"`
	ModelID          string                   `json:"modelId"`
	Temperature      *float64                 `json:"temperature"`
	TopP             *float64                 `json:"topP"`
	FrequencyPenalty *float64                 `json:"frequencyPenalty"`
	PresencePenalty  *float64                 `json:"presencePenalty"`
	MaxOutputTokens  *int                     `json:"maxOutputTokens"`
	RequestTimeoutMS *int64                   `json:"requestTimeoutMs"`
	SystemPrompt     *string                  `json:"systemPrompt"`
	Steps            []benchmark.PipelineStep `json:"steps"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerrors.Wrap(err, enginerrors.ErrCodeInvalidInput, "decoding profile"))
		return
	}

	profile := s.applyProfileRequest(&benchmark.ModelProfile{}, req)
	if profile.Name == "" {
		writeError(w, enginerrors.New(enginerrors.ErrCodeInvalidInput, "profile requires a name"))
		return
	}
	if err := s.store.SaveProfile(profile); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(chi.URLParam(r, "profileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(chi.URLParam(r, "profileID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerrors.Wrap(err, enginerrors.ErrCodeInvalidInput, "decoding profile"))
		return
	}

	updated := s.applyProfileRequest(profile, req)
	if err := s.store.SaveProfile(updated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProfile(chi.URLParam(r, "profileID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyProfileRequest overlays a request onto an existing profile, then fills
// anything still unset from the configured defaults.
func (s *Server) applyProfileRequest(base *benchmark.ModelProfile, req profileRequest) *benchmark.ModelProfile {
	if req.Name != "" {
		base.Name = req.Name
	}
	if req.EndpointBaseURL != "" {
		base.EndpointBaseURL = req.EndpointBaseURL
	}
	if req.APIKey != "" {
		base.APIKey = req.APIKey
	}
	if req.ModelID != "" {
		base.ModelID = req.ModelID
	}
	if req.Temperature != nil {
		base.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		base.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		base.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		base.PresencePenalty = *req.PresencePenalty
	}
	if req.MaxOutputTokens != nil {
		base.MaxOutputTokens = *req.MaxOutputTokens
	}
	if req.RequestTimeoutMS != nil {
		base.RequestTimeout = time.Duration(*req.RequestTimeoutMS) * time.Millisecond
	}
	if req.SystemPrompt != nil {
		base.SystemPrompt = *req.SystemPrompt
	}
	if req.Steps != nil {
		base.Steps = req.Steps
	}

	d := s.defaults
	if base.EndpointBaseURL == "" {
		base.EndpointBaseURL = d.EndpointBaseURL
	}
	if base.APIKey == "" {
		base.APIKey = d.APIKey
	}
	if base.ModelID == "" {
		base.ModelID = d.ModelID
	}
	if base.Temperature == 0 {
		base.Temperature = d.Temperature
	}
	if base.TopP == 0 {
		base.TopP = d.TopP
	}
	if base.MaxOutputTokens == 0 {
		base.MaxOutputTokens = d.MaxOutputTokens
	}
	if base.RequestTimeout == 0 {
		base.RequestTimeout = d.RequestTimeout
	}
	if base.SystemPrompt == "" {
		base.SystemPrompt = d.SystemPrompt
	}
	if len(base.Steps) == 0 {
		base.Steps = benchmark.DefaultSteps()
	}
	return base
}

func (s *Server) handleRunDiagnostics(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(chi.URLParam(r, "profileID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if s.scheduler.Busy(profile.ID) {
		writeError(w, enginerrors.New(enginerrors.ErrCodeRunConflict,
			"profile is executing a benchmark run; diagnostics refused"))
		return
	}

	var req struct {
		Level benchmark.DiagnosticsLevel `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerrors.Wrap(err, enginerrors.ErrCodeInvalidInput, "decoding diagnostics request"))
		return
	}
	if req.Level != benchmark.LevelHandshake && req.Level != benchmark.LevelReadiness {
		writeError(w, enginerrors.New(enginerrors.ErrCodeInvalidInput, "level must be handshake or readiness"))
		return
	}

	result, err := s.diagnostics.Run(r.Context(), profile, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDiagnostics(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListDiagnostics(chi.URLParam(r, "profileID"), 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// runRequest creates a draft run from a profile and a dataset filter.
type runRequest struct {
	ProfileID    string   `json:"profileId"`
	Label        string   `json:"label"`
	Types        []string `json:"types"`
	Tags         []string `json:"tags"`
	Difficulties []string `json:"difficulties"`
	Limit        int      `json:"limit"`
	Enqueue      bool     `json:"enqueue"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerrors.Wrap(err, enginerrors.ErrCodeInvalidInput, "decoding run request"))
		return
	}

	profile, err := s.store.GetProfile(req.ProfileID)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := question.Filter{
		Tags:         req.Tags,
		Difficulties: req.Difficulties,
		Limit:        req.Limit,
	}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, question.Type(t))
	}
	questions, summary := s.questions.Select(filter)

	run, err := s.scheduler.CreateRun(benchmark.RunSpec{
		Label:     req.Label,
		Profile:   profile,
		Questions: questions,
		Dataset:   summary,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Enqueue {
		run, err = s.scheduler.Enqueue(run.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var statuses []benchmark.RunStatus
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = append(statuses, benchmark.RunStatus(status))
	}
	runs, err := s.store.ListRuns(statuses...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if activeID, ok := s.scheduler.ActiveRunID(); ok && activeID == runID {
		writeError(w, enginerrors.New(enginerrors.ErrCodeRunConflict, "run is executing; cancel it first"))
		return
	}
	if err := s.store.DeleteRun(runID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.store.ListAttempts(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := s.store.ListAttempts(run.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(benchmark.RenderMarkdown(run, attempts)))
}

func (s *Server) handleEnqueueRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.scheduler.Enqueue(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.scheduler.Cancel(runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
}

func (s *Server) handleDatasetSummary(w http.ResponseWriter, r *http.Request) {
	_, summary := s.questions.Select(question.Filter{})
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":  summary,
		"subjects": s.catalog.Subjects(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch enginerrors.GetCode(err) {
	case enginerrors.ErrCodeRunNotFound, enginerrors.ErrCodeProfileInvalid:
		status = http.StatusNotFound
	case enginerrors.ErrCodeRunConflict:
		status = http.StatusConflict
	case enginerrors.ErrCodeInvalidInput, enginerrors.ErrCodeQuestionSet:
		status = http.StatusBadRequest
	case enginerrors.ErrCodeEndpointUnreachable, enginerrors.ErrCodeEndpointTimeout:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  string(enginerrors.GetCode(err)),
	})
}
