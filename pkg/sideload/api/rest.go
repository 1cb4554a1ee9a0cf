// Package api exposes identity verification and pipeline jobs over HTTP. It
// is an outer caller of the core: all verification and orchestration
// semantics live in the identity and pipeline packages.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prostore-ios/sideloader/pkg/sideload/identity"
	"github.com/prostore-ios/sideloader/pkg/sideload/install"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/pipeline"
	"github.com/prostore-ios/sideloader/pkg/sideload/profile"
	"github.com/prostore-ios/sideloader/pkg/sideload/transform"
	"github.com/sirupsen/logrus"
)

type RestServerConfig struct {
	LocalAddress  string                `yaml:"local_address"`
	SignerCommand string                `yaml:"signer_command"`
	ScratchDir    string                `yaml:"scratch_dir"`
	StageWeights  pipeline.StageWeights `yaml:"stage_weights"`
}

type RestServer struct {
	matcher      identity.Matcher
	orchestrator pipeline.Orchestrator

	httpServer *http.Server
	wsUpgrader websocket.Upgrader

	mu      sync.Mutex
	lastJob *pipeline.Job
}

func NewRestServerWithConfig(cfg RestServerConfig, installer install.Installer) (*RestServer, error) {
	if cfg.SignerCommand == "" {
		return nil, fmt.Errorf("signer_command is not configured%w", model.ErrInvalidParameter)
	}

	weights := cfg.StageWeights
	if weights == (pipeline.StageWeights{}) {
		weights = pipeline.DefaultStageWeights()
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.WithSigner(transform.NewExecSigner(cfg.SignerCommand)),
		pipeline.WithInstaller(installer),
		pipeline.WithStageWeights(weights),
		pipeline.WithScratchBase(cfg.ScratchDir),
	)

	return NewRestServerWithController(identity.NewMatcher(), orchestrator, cfg.LocalAddress), nil
}

func NewRestServerWithController(matcher identity.Matcher, orchestrator pipeline.Orchestrator, localAddress string) *RestServer {
	restServer := &RestServer{
		matcher:      matcher,
		orchestrator: orchestrator,
	}

	r := mux.NewRouter()
	r.HandleFunc("/identity/verify", restServer.verifyIdentity).Methods(http.MethodPost)
	r.HandleFunc("/jobs", restServer.createJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", restServer.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/cancel", restServer.cancelJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}/events", restServer.streamJobEvents).Methods(http.MethodGet)

	restServer.httpServer = &http.Server{
		Addr:    localAddress,
		Handler: r,
	}
	return restServer
}

func (s *RestServer) Run() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *RestServer) Close(ctx context.Context) error {
	s.httpServer.SetKeepAlivesEnabled(false)
	return s.httpServer.Shutdown(ctx)
}

type VerifyIdentityRequest struct {
	Identity   []byte `json:"identity"`
	Passphrase string `json:"passphrase"`
	Profile    []byte `json:"profile"`
}

type VerifyIdentityResponse struct {
	Result  model.MatchResult `json:"result"`
	Profile model.ProfileInfo `json:"profile"`
}

func (s *RestServer) verifyIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.matcher.Verify(ctx, identity.VerifyRequest{
		Identity:   req.Identity,
		Passphrase: req.Passphrase,
		Profile:    req.Profile,
	})
	if err != nil {
		http.Error(w, err.Error(), model.ErrToHttpStatus(err))
		return
	}

	resp := VerifyIdentityResponse{Result: result}
	if prof, err := profile.Parse(req.Profile); err == nil {
		resp.Profile = prof.Info()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.Warnf("verifyIdentity failed to encode/write response: %v", err)
	}
}

type CreateJobRequest struct {
	SourceURL  string `json:"source_url"`
	Identity   []byte `json:"identity"`
	Passphrase string `json:"passphrase"`
	Profile    []byte `json:"profile"`
}

func (s *RestServer) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.orchestrator.Start(ctx, pipeline.JobRequest{
		SourceURL:  req.SourceURL,
		Identity:   req.Identity,
		Passphrase: req.Passphrase,
		Profile:    req.Profile,
	})
	if err != nil {
		http.Error(w, err.Error(), model.ErrToHttpStatus(err))
		return
	}

	s.mu.Lock()
	s.lastJob = job
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(job.Snapshot()); err != nil {
		logrus.Warnf("createJob failed to encode/write response: %v", err)
	}
}

func (s *RestServer) findJob(jobID string) *pipeline.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastJob != nil && s.lastJob.ID() == jobID {
		return s.lastJob
	}
	return nil
}

func (s *RestServer) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job := s.findJob(jobID)
	if job == nil {
		http.Error(w, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(job.Snapshot()); err != nil {
		logrus.Warnf("getJob failed to encode/write response: %v", err)
	}
}

func (s *RestServer) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job := s.findJob(jobID)
	if job == nil {
		http.Error(w, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
		return
	}

	job.Cancel()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(job.Snapshot()); err != nil {
		logrus.Warnf("cancelJob failed to encode/write response: %v", err)
	}
}

// streamJobEvents forwards the job's event stream over a websocket. A job's
// stream carries a single subscriber; the first connection wins.
func (s *RestServer) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job := s.findJob(jobID)
	if job == nil {
		http.Error(w, fmt.Sprintf("job %s not found", jobID), http.StatusNotFound)
		return
	}

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("failed to upgrade websocket: %v", err)
		return
	}
	defer c.Close()

	for event := range job.Events() {
		payload, err := json.Marshal(event)
		if err != nil {
			logrus.Errorf("failed to encode job event: %v", err)
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			logrus.Errorf("failed to write job event: %v", err)
			return
		}
	}

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
