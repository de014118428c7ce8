package service

import (
	"context"
	"fmt"
	"time"

	"github.com/code2api/code2api/internal/domain"
	"github.com/code2api/code2api/internal/domain/workflow"
)

// Start launches a run in the background and returns its ID immediately.
// A request whose (repo, branch) is already in flight returns the existing
// run's ID instead of starting a duplicate.
func (o *Orchestrator) Start(req workflow.Request) (string, error) {
	if req.Repo == "" || req.Branch == "" {
		return "", fmt.Errorf("%w: repo and branch are required", workflow.ErrInvalidRequest)
	}

	o.mu.Lock()
	if id, ok := o.inFlight[req.Key()]; ok {
		o.mu.Unlock()
		return id, nil
	}
	o.mu.Unlock()

	ready := make(chan string, 1)
	go func() {
		_, _, _ = o.group.Do(req.Key(), func() (any, error) {
			return o.execute(context.Background(), req, func(id string) {
				select {
				case ready <- id:
				default:
				}
			})
		})
	}()

	// A racing duplicate joins the winner's singleflight call, so its own
	// callback never fires; fall back to polling the in-flight index.
	timeout := time.After(5 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case id := <-ready:
			return id, nil
		case <-tick.C:
			o.mu.Lock()
			id, ok := o.inFlight[req.Key()]
			o.mu.Unlock()
			if ok {
				return id, nil
			}
		case <-timeout:
			return "", fmt.Errorf("workflow did not register in time")
		}
	}
}

// Status returns the registry record for a run.
func (o *Orchestrator) Status(id string) (workflow.Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[id]
	if !ok {
		return workflow.Run{}, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return st.run, nil
}

// Cancel requests cooperative cancellation of a run. The current phase is
// allowed to finish, so an external call already in flight completes and
// its response still lands in the cache; the run stops at the next
// transition. Cancelling a terminal run is an error.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if st.run.State.Terminal() {
		return fmt.Errorf("run %s already %s: %w", id, st.run.State, domain.ErrConflict)
	}
	st.requested = true
	o.log.Info("cancellation requested", "run_id", id)
	return nil
}

// CleanupCompleted drops terminal runs older than the given age from the
// registry and returns how many were removed.
func (o *Orchestrator) CleanupCompleted(olderThan time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := o.now().Add(-olderThan)
	removed := 0
	for id, st := range o.runs {
		if st.run.State.Terminal() && st.run.CompletedAt != nil && st.run.CompletedAt.Before(cutoff) {
			delete(o.runs, id)
			removed++
		}
	}
	return removed
}

// Stats reports run counts by state.
func (o *Orchestrator) Stats() map[workflow.State]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[workflow.State]int)
	for _, st := range o.runs {
		out[st.run.State]++
	}
	return out
}

func (o *Orchestrator) register(id string, req workflow.Request) {
	o.mu.Lock()
	o.runs[id] = &runState{
		run: workflow.Run{
			ID:        id,
			Repo:      req.Repo,
			Branch:    req.Branch,
			State:     workflow.StatePending,
			StartedAt: o.now(),
		},
	}
	o.inFlight[req.Key()] = id
	o.mu.Unlock()
}

func (o *Orchestrator) clearInFlight(key string) {
	o.mu.Lock()
	delete(o.inFlight, key)
	o.mu.Unlock()
}

func (o *Orchestrator) setState(id string, s workflow.State) {
	o.mu.Lock()
	if st, ok := o.runs[id]; ok {
		st.run.State = s
	}
	o.mu.Unlock()
}

func (o *Orchestrator) cancelled(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[id]
	return ok && st.requested
}

func (o *Orchestrator) finish(id string, state workflow.State, acc *workflow.Accumulated, warnings []string, diagnostic string) workflow.Run {
	now := o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[id]
	if !ok {
		return workflow.Run{}
	}
	st.run.State = state
	st.run.Warnings = warnings
	st.run.Diagnostic = diagnostic
	st.run.Result = buildResult(acc, warnings)
	st.run.CompletedAt = &now

	if o.metrics != nil {
		switch state {
		case workflow.StateCompleted:
			o.metrics.RunsCompleted.Add(context.Background(), 1)
		case workflow.StateFailed:
			o.metrics.RunsFailed.Add(context.Background(), 1)
		}
	}
	return st.run
}

func (o *Orchestrator) finishCompleted(id string, acc *workflow.Accumulated, warnings []string) workflow.Run {
	return o.finish(id, workflow.StateCompleted, acc, warnings, "")
}

// finishFailed records the deepest successful payload plus a diagnostic
// naming the missing field and producing phase.
func (o *Orchestrator) finishFailed(id string, acc *workflow.Accumulated, warnings []string, diagnostic string) workflow.Run {
	return o.finish(id, workflow.StateFailed, acc, warnings, diagnostic)
}

// finishCancelled discards nothing from the cache but reports no result
// beyond what completed phases produced.
func (o *Orchestrator) finishCancelled(id string, acc *workflow.Accumulated, warnings []string) workflow.Run {
	return o.finish(id, workflow.StateCancelled, acc, warnings, workflow.ErrCancelled.Error())
}

// phaseEvent is the payload published per phase transition.
type phaseEvent struct {
	RunID    string         `json:"run_id"`
	Repo     string         `json:"repo"`
	Branch   string         `json:"branch"`
	Phase    workflow.Phase `json:"phase"`
	Event    string         `json:"event"` // started, finished
	Success  *bool          `json:"success,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (o *Orchestrator) publishPhase(ctx context.Context, id string, req workflow.Request, phase workflow.Phase, event string, res *workflow.PhaseResult) {
	ev := phaseEvent{
		RunID:  id,
		Repo:   req.Repo,
		Branch: req.Branch,
		Phase:  phase,
		Event:  event,
	}
	if res != nil {
		ev.Success = &res.Success
		ev.Warnings = res.Warnings
	}
	subject := fmt.Sprintf("workflows.%s.%s", id, phase)
	if err := o.pub.Publish(ctx, subject, ev); err != nil {
		o.log.Warn("event publish failed", "subject", subject, "error", err)
	}
}
