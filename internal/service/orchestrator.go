package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	c2aotel "github.com/code2api/code2api/internal/adapter/otel"
	"github.com/code2api/code2api/internal/domain/source"
	"github.com/code2api/code2api/internal/domain/workflow"
	"github.com/code2api/code2api/internal/port/broadcast"
)

// Options tunes the orchestrator.
type Options struct {
	MaxConcurrent int64         // parallel runs admitted
	PhaseTimeout  time.Duration // budget per phase, 0 for none
}

// Orchestrator sequences the pipeline phases for workflow runs. Phases
// within a run are strictly sequential; distinct runs execute in parallel
// up to MaxConcurrent. Concurrent requests for the same (repo, branch)
// join a single in-flight run.
type Orchestrator struct {
	tools   map[workflow.Phase]PhaseTool
	pub     broadcast.Publisher
	opts    Options
	log     *slog.Logger
	metrics *c2aotel.Metrics

	group singleflight.Group
	sem   *semaphore.Weighted

	mu       sync.Mutex
	runs     map[string]*runState
	inFlight map[string]string // request key -> run ID

	now func() time.Time // for testing
}

// runState is one registry entry.
type runState struct {
	run       workflow.Run
	requested bool // cancellation requested
}

// NewOrchestrator creates an Orchestrator over the given tools.
func NewOrchestrator(tools []PhaseTool, pub broadcast.Publisher, opts Options, log *slog.Logger) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	byPhase := make(map[workflow.Phase]PhaseTool, len(tools))
	for _, t := range tools {
		byPhase[t.Phase()] = t
	}
	if pub == nil {
		pub = broadcast.Nop{}
	}
	return &Orchestrator{
		tools:    byPhase,
		pub:      pub,
		opts:     opts,
		log:      log,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		runs:     make(map[string]*runState),
		inFlight: make(map[string]string),
		now:      time.Now,
	}
}

// SetMetrics attaches the pipeline metric instruments.
func (o *Orchestrator) SetMetrics(m *c2aotel.Metrics) {
	o.metrics = m
}

// Execute runs the full pipeline for a request and returns the finished
// run. A second caller with the same (repo, branch) while a run is in
// flight joins that run's result instead of duplicating work.
func (o *Orchestrator) Execute(ctx context.Context, req workflow.Request) (workflow.Run, error) {
	if req.Repo == "" || req.Branch == "" {
		return workflow.Run{}, fmt.Errorf("%w: repo and branch are required", workflow.ErrInvalidRequest)
	}

	v, err, _ := o.group.Do(req.Key(), func() (any, error) {
		return o.execute(ctx, req, nil)
	})
	if err != nil {
		return workflow.Run{}, err
	}
	return v.(workflow.Run), nil
}

func (o *Orchestrator) execute(ctx context.Context, req workflow.Request, registered func(string)) (workflow.Run, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return workflow.Run{}, err
	}
	defer o.sem.Release(1)

	id := uuid.NewString()
	runCtx, runSpan := c2aotel.StartRunSpan(ctx, id, req.Repo, req.Branch)
	defer runSpan.End()
	if o.metrics != nil {
		o.metrics.RunsStarted.Add(runCtx, 1, metric.WithAttributes(attribute.String("repo", req.Repo)))
	}

	o.register(id, req)
	defer o.clearInFlight(req.Key())
	if registered != nil {
		registered(id)
	}

	o.log.Info("workflow started", "run_id", id, "repo", req.Repo, "branch", req.Branch)

	acc := &workflow.Accumulated{}
	var warnings []string
	prevID := ""

	for _, phase := range workflow.Phases() {
		if err := runCtx.Err(); err != nil {
			return o.finishCancelled(id, acc, warnings), nil
		}
		if o.cancelled(id) {
			return o.finishCancelled(id, acc, warnings), nil
		}

		if ce := o.checkContract(req, phase, acc); ce != nil {
			run := o.finishFailed(id, acc, warnings, ce.Error())
			o.log.Warn("workflow failed on contract", "run_id", id, "phase", phase, "error", ce)
			return run, nil
		}

		o.setState(id, phase.RunningState())
		o.publishPhase(runCtx, id, req, phase, "started", nil)

		phaseCtx, phaseSpan := c2aotel.StartPhaseSpan(runCtx, id, string(phase))
		phaseStart := time.Now()
		res := o.runPhase(phaseCtx, phase, ToolInput{Request: req, Acc: acc})
		phaseSpan.SetAttributes(attribute.Bool("success", res.Success))
		phaseSpan.End()
		if o.metrics != nil {
			o.metrics.PhaseDuration.Record(runCtx, time.Since(phaseStart).Seconds(),
				metric.WithAttributes(attribute.String("phase", string(phase))))
		}
		res.ID = uuid.NewString()
		res.PrevID = prevID
		prevID = res.ID

		acc.Absorb(res)
		warnings = append(warnings, res.Warnings...)
		o.publishPhase(runCtx, id, req, phase, "finished", &res)

		if !res.Success {
			if phase.Critical() {
				diag := fmt.Sprintf("critical phase %s failed", phase)
				run := o.finishFailed(id, acc, warnings, diag)
				o.log.Warn("workflow failed", "run_id", id, "phase", phase)
				return run, nil
			}
			warnings = append(warnings, fmt.Sprintf("non-critical phase %s failed, output degraded", phase))
			o.log.Warn("non-critical phase failed, continuing", "run_id", id, "phase", phase)
		}
	}

	run := o.finishCompleted(id, acc, warnings)
	o.log.Info("workflow completed", "run_id", id, "warnings", len(run.Warnings))
	return run, nil
}

// runPhase executes one tool under the per-phase timeout budget.
func (o *Orchestrator) runPhase(ctx context.Context, phase workflow.Phase, in ToolInput) workflow.PhaseResult {
	tool, ok := o.tools[phase]
	if !ok {
		return workflow.PhaseResult{
			Phase:    phase,
			Warnings: []string{fmt.Sprintf("no tool registered for phase %s", phase)},
		}
	}

	if o.opts.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PhaseTimeout)
		defer cancel()
	}
	return tool.Execute(ctx, in)
}

// checkContract validates the next phase's input, attempting exactly one
// reconciliation pass from the original request plus all accumulated
// results before giving up.
func (o *Orchestrator) checkContract(req workflow.Request, phase workflow.Phase, acc *workflow.Accumulated) *workflow.ContractError {
	err := workflow.CheckInput(phase, acc)
	if err == nil {
		return nil
	}
	var ce *workflow.ContractError
	if !errors.As(err, &ce) {
		return &workflow.ContractError{Phase: phase}
	}

	o.log.Info("contract violation, reconciling",
		"phase", phase, "field", ce.Field, "producer", ce.Producer)
	if !reconcile(req, acc, ce) {
		return ce
	}

	if err := workflow.CheckInput(phase, acc); err != nil {
		errors.As(err, &ce)
		return ce
	}
	return nil
}

// reconcile re-derives a missing field from the original request plus the
// accumulated payloads. Returns false when the field cannot be re-derived.
func reconcile(req workflow.Request, acc *workflow.Accumulated, ce *workflow.ContractError) bool {
	switch ce.Field {
	case "fetch", "fetch.units":
		if len(req.Files) == 0 {
			return false
		}
		units := make([]source.SourceUnit, 0, len(req.Files))
		for _, f := range req.Files {
			units = append(units, source.SourceUnit{Path: f.Path, Language: f.Language, Text: f.Text})
		}
		acc.Fetch = &workflow.FetchPayload{Repo: req.Repo, Branch: req.Branch, Units: units}
		return true
	case "analyze.candidates":
		if acc.Analyze == nil {
			return false
		}
		acc.Analyze.Candidates = []source.CandidateFunction{}
		return true
	case "analyze.purpose":
		if acc.Analyze == nil {
			return false
		}
		acc.Analyze.Purpose = source.RepositoryPurpose{Purpose: source.PurposeGeneric}
		return true
	case "design", "design.endpoints":
		if acc.Analyze == nil {
			return false
		}
		acc.Design = &workflow.DesignPayload{
			Endpoints: FallbackEndpoints(apiCandidates(acc.Analyze.Candidates)),
		}
		return true
	case "generate":
		if acc.Design == nil {
			return false
		}
		acc.Generate = &workflow.GeneratePayload{Files: TemplateFiles(acc.Design.Endpoints)}
		return true
	}
	return false
}

// buildResult unions the accumulated payloads into the final result.
func buildResult(acc *workflow.Accumulated, warnings []string) *workflow.Result {
	res := &workflow.Result{Warnings: warnings}
	if acc.Analyze != nil {
		res.Purpose = acc.Analyze.Purpose
		res.Candidates = acc.Analyze.Candidates
	}
	if acc.Design != nil {
		res.CandidateEndpoints = acc.Design.Endpoints
	}
	if acc.Generate != nil {
		res.GeneratedFiles = acc.Generate.Files
	}
	if acc.Secure != nil {
		res.SecurityNotes = acc.Secure.Notes
	}
	if acc.Test != nil {
		res.TestManifest = acc.Test.Manifest
	}
	if acc.Document != nil {
		res.DocManifest = acc.Document.Manifest
	}
	return res
}
