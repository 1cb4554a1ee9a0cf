// Package pipeline drives the download -> sign -> install flow for one
// package at a time, aggregating the stages into a single progress scale and
// guaranteeing scratch storage is reclaimed on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/prostore-ios/sideloader/pkg/sideload/download"
	"github.com/prostore-ios/sideloader/pkg/sideload/install"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/transform"
	"github.com/prostore-ios/sideloader/pkg/sideload/workspace"
	"github.com/prostore-ios/sideloader/pkg/util"
	"github.com/sirupsen/logrus"
)

// StageWeights splits the global [0,1] progress scale between the three
// stages. The weights must be non-negative and sum to 1.
type StageWeights struct {
	Download float64 `yaml:"download"`
	Sign     float64 `yaml:"sign"`
	Install  float64 `yaml:"install"`
}

func DefaultStageWeights() StageWeights {
	return StageWeights{Download: 1.0 / 3, Sign: 1.0 / 3, Install: 1.0 / 3}
}

// Fractions of the signing stage taken by its sub-phases. Unpack and repack
// report their own fractional progress; the signing operation itself is a
// single atomic step between them.
const (
	signPhaseUnpackEnd   = 0.45
	signPhaseSignedMark  = 0.55
	signPhaseRepackStart = 0.55
)

type JobRequest struct {
	SourceURL  string `json:"source_url"` // Where to fetch the package archive.
	Identity   []byte `json:"identity"`   // Raw PKCS#12 container, already verified against Profile.
	Passphrase string `json:"-"`          // Never serialized or logged.
	Profile    []byte `json:"profile"`    // Raw provisioning profile.
}

type JobSnapshot struct {
	ID       string         `json:"id"`
	State    model.JobState `json:"state"`
	Progress float64        `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// Orchestrator runs pipeline jobs. Only one job may be active at a time;
// starting a second one fails with ErrJobAlreadyRunning and the caller is
// responsible for cancelling the active job first.
type Orchestrator interface {
	Start(ctx context.Context, req JobRequest) (*Job, error)
	ActiveJob() *Job
}

type OrchestratorOption func(o *_Orchestrator)

func WithDownloader(d download.Downloader) OrchestratorOption {
	return func(o *_Orchestrator) { o.downloader = d }
}

func WithTransformer(t transform.Transformer) OrchestratorOption {
	return func(o *_Orchestrator) { o.transformer = t }
}

func WithSigner(s transform.Signer) OrchestratorOption {
	return func(o *_Orchestrator) { o.signer = s }
}

func WithInstaller(i install.Installer) OrchestratorOption {
	return func(o *_Orchestrator) { o.installer = i }
}

func WithStageWeights(w StageWeights) OrchestratorOption {
	return func(o *_Orchestrator) { o.weights = w }
}

// WithScratchBase overrides the directory scratch workspaces are created
// under. Defaults to the system temporary directory.
func WithScratchBase(baseDir string) OrchestratorOption {
	return func(o *_Orchestrator) { o.scratchBase = baseDir }
}

type _Orchestrator struct {
	downloader  download.Downloader
	transformer transform.Transformer
	signer      transform.Signer
	installer   install.Installer
	weights     StageWeights
	scratchBase string

	mu     sync.Mutex
	active *Job
}

func NewOrchestrator(opts ...OrchestratorOption) *_Orchestrator {
	o := &_Orchestrator{
		downloader:  download.NewDownloader(),
		transformer: transform.NewTransformer(),
		weights:     DefaultStageWeights(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.signer == nil {
		panic("signer is required")
	}
	if o.installer == nil {
		panic("installer is required")
	}
	if err := ValidateStageWeights(o.weights); err != nil {
		panic(err)
	}

	return o
}

func (o *_Orchestrator) Start(ctx context.Context, req JobRequest) (*Job, error) {
	if err := ValidateJobRequest(req); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && !o.active.State().Terminal() {
		return nil, fmt.Errorf("job %s is still active%w", o.active.ID(), model.ErrJobAlreadyRunning)
	}

	ws, err := workspace.New(o.scratchBase)
	if err != nil {
		return nil, fmt.Errorf("Orchestrator::Start(): fail to create workspace: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		id:     util.NewUUID(),
		orch:   o,
		req:    req,
		ws:     ws,
		ctx:    jobCtx,
		cancel: cancel,
		state:  model.JobStateIdle,
		events: make(chan model.JobEvent, 256),
	}
	o.active = job

	logrus.Infof("job %s: starting pipeline for %s", job.id, req.SourceURL)
	go job.run()
	return job, nil
}

// ActiveJob returns the currently active job, or nil when the orchestrator is
// idle.
func (o *_Orchestrator) ActiveJob() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *_Orchestrator) finish(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == job {
		o.active = nil
	}
}

// Job is one download-sign-install run. It exclusively owns its scratch
// workspace; the workspace is deleted before the job reports its terminal
// event.
type Job struct {
	id     string
	orch   *_Orchestrator
	req    JobRequest
	ws     *workspace.Workspace
	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool

	mu       sync.Mutex
	state    model.JobState
	progress float64
	finalErr error

	events chan model.JobEvent
}

func (j *Job) ID() string {
	return j.id
}

// Events returns the job's event stream. The stream is meant for exactly one
// subscriber and is closed after the terminal event. Progress and status
// events may be dropped when the subscriber lags; the terminal event is never
// dropped.
func (j *Job) Events() <-chan model.JobEvent {
	return j.events
}

func (j *Job) State() model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snapshot := JobSnapshot{
		ID:       j.id,
		State:    j.state,
		Progress: j.progress,
	}
	if j.finalErr != nil {
		snapshot.Error = j.finalErr.Error()
	}
	return snapshot
}

// Cancel requests cooperative cancellation. In-flight network and install
// work is aborted through the job context; no new stage is entered once
// cancellation has been requested. Cancel is idempotent and a no-op on
// terminal jobs.
func (j *Job) Cancel() {
	if j.cancelled.CompareAndSwap(false, true) {
		logrus.Infof("job %s: cancellation requested", j.id)
	}
	j.cancel()
}

func (j *Job) run() {
	err := j.execute()

	// Cleanup before anything observes the terminal state. A failed removal
	// is logged inside Remove and never escalated: it must not mask the job's
	// actual outcome nor block the next job.
	j.ws.Remove()
	j.orch.finish(j)

	event := model.JobEvent{Type: model.JobEventTerminal}
	switch {
	case err == nil:
		j.setTerminal(model.JobStateSucceeded, nil)
		j.forceProgress(1)
		event.Outcome = model.JobStateSucceeded
		logrus.Infof("job %s: succeeded", j.id)
	case j.cancelled.Load() || errors.Is(err, context.Canceled):
		j.setTerminal(model.JobStateCancelled, nil)
		event.Outcome = model.JobStateCancelled
		logrus.Infof("job %s: cancelled", j.id)
	default:
		j.setTerminal(model.JobStateFailed, err)
		event.Outcome = model.JobStateFailed
		event.Error = err.Error()
		logrus.Warnf("job %s: failed: %v", j.id, err)
	}

	j.deliverTerminal(event)
}

// deliverTerminal sends the terminal event and closes the stream. A job may
// never have had a subscriber (snapshot polling only), leaving the buffer full
// of stale progress events; those are evicted until the terminal event fits so
// run always returns instead of leaking the goroutine.
func (j *Job) deliverTerminal(event model.JobEvent) {
	for {
		select {
		case j.events <- event:
			close(j.events)
			return
		default:
		}
		select {
		case <-j.events:
		default:
		}
	}
}

func (j *Job) execute() error {
	// Preconditions. Failing any of them fails the job before Downloading.
	if err := j.orch.installer.VerifyPairing(j.ctx); err != nil {
		return fmt.Errorf("device pairing is not available: %w", err)
	}

	identityPath := filepath.Join(j.ws.InputsDir(), "identity.p12")
	profilePath := filepath.Join(j.ws.InputsDir(), "profile.mobileprovision")
	if err := os.WriteFile(identityPath, j.req.Identity, 0o600); err != nil {
		return fmt.Errorf("stage identity into workspace: %w", err)
	}
	if err := os.WriteFile(profilePath, j.req.Profile, 0o600); err != nil {
		return fmt.Errorf("stage profile into workspace: %w", err)
	}

	// Stage: download.
	if err := j.enterStage(model.JobStateDownloading, "Downloading package"); err != nil {
		return err
	}
	archivePath := filepath.Join(j.ws.InputsDir(), "package.ipa")
	if err := j.orch.downloader.Download(j.ctx, j.req.SourceURL, archivePath, j.stageProgress); err != nil {
		if cancelErr := j.cancelErr(); cancelErr != nil {
			return cancelErr
		}
		return fmt.Errorf("download failed: %w", err)
	}

	// Stage: sign.
	if err := j.enterStage(model.JobStateSigning, "Signing package"); err != nil {
		return err
	}
	unpackDir := filepath.Join(j.ws.WorkDir(), "unpacked")
	err := j.orch.transformer.Unpack(j.ctx, archivePath, unpackDir, j.subProgress(0, signPhaseUnpackEnd))
	if err != nil {
		if cancelErr := j.cancelErr(); cancelErr != nil {
			return cancelErr
		}
		return fmt.Errorf("signing failed: %w", err)
	}

	bundlePath, err := j.orch.transformer.LocateBundle(unpackDir)
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}

	signReq := transform.SignRequest{
		BundlePath:   bundlePath,
		IdentityPath: identityPath,
		ProfilePath:  profilePath,
		Passphrase:   j.req.Passphrase,
	}
	if err := j.orch.signer.Sign(j.ctx, signReq); err != nil {
		if cancelErr := j.cancelErr(); cancelErr != nil {
			return cancelErr
		}
		return fmt.Errorf("signing failed: %w", err)
	}
	j.stageProgress(signPhaseSignedMark)

	signedArchive := filepath.Join(j.ws.WorkDir(), "signed.ipa")
	if err := j.orch.transformer.Repack(j.ctx, unpackDir, signedArchive, j.subProgress(signPhaseRepackStart, 1)); err != nil {
		if cancelErr := j.cancelErr(); cancelErr != nil {
			return cancelErr
		}
		return fmt.Errorf("signing failed: %w", err)
	}

	// Stage: install.
	if err := j.enterStage(model.JobStateInstalling, "Installing on device"); err != nil {
		return err
	}
	err = j.orch.installer.Install(j.ctx, signedArchive, func(ev install.InstallEvent) {
		j.stageProgress(ev.Fraction)
		if ev.Status != "" {
			j.emit(model.JobEvent{Type: model.JobEventStatus, Stage: model.JobStateInstalling, Message: ev.Status})
		}
	})
	if err != nil {
		if cancelErr := j.cancelErr(); cancelErr != nil {
			return cancelErr
		}
		return fmt.Errorf("install failed: %w", err)
	}

	return nil
}

// enterStage transitions into the next stage unless cancellation has been
// requested, and anchors global progress at the stage's base weight.
func (j *Job) enterStage(state model.JobState, message string) error {
	if err := j.cancelErr(); err != nil {
		return err
	}

	j.mu.Lock()
	j.state = state
	j.mu.Unlock()

	j.emit(model.JobEvent{Type: model.JobEventStatus, Stage: state, Message: message})
	j.stageProgress(0)
	return nil
}

func (j *Job) cancelErr() error {
	if j.cancelled.Load() {
		return context.Canceled
	}
	return j.ctx.Err()
}

// stageProgress maps the current stage's internal fraction into the global
// scale. Global progress never decreases, even across stage transitions where
// the internal fraction resets to 0.
func (j *Job) stageProgress(fraction float64) {
	fraction = math.Max(0, math.Min(1, fraction))

	j.mu.Lock()
	var base, weight float64
	switch j.state {
	case model.JobStateDownloading:
		base, weight = 0, j.orch.weights.Download
	case model.JobStateSigning:
		base, weight = j.orch.weights.Download, j.orch.weights.Sign
	case model.JobStateInstalling:
		base, weight = j.orch.weights.Download+j.orch.weights.Sign, j.orch.weights.Install
	default:
		j.mu.Unlock()
		return
	}

	global := base + fraction*weight
	// Exactly 1 is reserved for the succeeded terminal.
	if global >= 1 {
		global = math.Nextafter(1, 0)
	}
	if global < j.progress {
		j.mu.Unlock()
		return
	}
	j.progress = global
	state := j.state
	j.mu.Unlock()

	j.emit(model.JobEvent{Type: model.JobEventProgress, Stage: state, Progress: global})
}

// subProgress returns a progress callback mapping a sub-phase's [0,1]
// fraction into the [lo,hi] slice of the current stage.
func (j *Job) subProgress(lo float64, hi float64) func(float64) {
	return func(fraction float64) {
		j.stageProgress(lo + fraction*(hi-lo))
	}
}

func (j *Job) setTerminal(state model.JobState, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	j.finalErr = err
}

func (j *Job) forceProgress(progress float64) {
	j.mu.Lock()
	j.progress = progress
	j.mu.Unlock()
	j.emit(model.JobEvent{Type: model.JobEventProgress, Stage: model.JobStateSucceeded, Progress: progress})
}

// emit delivers an event without ever blocking the pipeline. Progress and
// status events are dropped when the subscriber lags; the terminal event goes
// through deliverTerminal and is never dropped.
func (j *Job) emit(event model.JobEvent) {
	select {
	case j.events <- event:
	default:
		logrus.Debugf("job %s: subscriber lagging, dropped %s event", j.id, event.Type)
	}
}
