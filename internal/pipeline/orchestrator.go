package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/statuslog"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

// ErrCycleInProgress is returned when a cycle is started while another one
// is still running.
var ErrCycleInProgress = errors.New("cycle already in progress")

// State is the orchestrator's position in the daily cycle.
type State string

const (
	StateIdle              State = "idle"
	StateDownloading       State = "downloading"
	StateSentimentAnalysis State = "sentiment_analysis"
	StatePredicting        State = "predicting"
	StateSyncing           State = "syncing"
)

var stageStates = map[string]State{
	store.StageDownload:  StateDownloading,
	store.StageSentiment: StateSentimentAnalysis,
	store.StagePredict:   StatePredicting,
	store.StageSync:      StateSyncing,
}

// Stage outcomes as written to reports and the status log.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

type StageOutcome struct {
	Name     string
	Label    string
	Outcome  string
	Err      error
	Duration time.Duration
}

type CycleReport struct {
	RunID      string
	Date       time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []StageOutcome
}

// Failed reports whether any stage failed.
func (r CycleReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithPolicies sets per-stage continuation policies. Stages without an
// entry continue.
func WithPolicies(p map[string]string) Option {
	return func(o *Orchestrator) { o.policies = p }
}

// Orchestrator runs the configured stages in order, at most one cycle at a time.
type Orchestrator struct {
	stages   []interfaces.Stage
	symbols  map[string]string
	cutover  artifacts.Cutover
	status   *statuslog.Log
	policies map[string]string
	now      func() time.Time

	mu      sync.Mutex
	running bool
	state   State
}

func NewOrchestrator(stages []interfaces.Stage, symbols map[string]string, cutover artifacts.Cutover, status *statuslog.Log, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:  stages,
		symbols: symbols,
		cutover: cutover,
		status:  status,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) policy(stage string) string {
	if p, ok := o.policies[stage]; ok {
		return p
	}
	return store.PolicyContinue
}

// RunCycle runs every stage for every tracked symbol.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	return o.RunCycleFor(ctx, nil)
}

// RunCycleFor runs a cycle restricted to the given tickers. An empty list
// means all tracked symbols. Unknown tickers fail before any stage runs.
func (o *Orchestrator) RunCycleFor(ctx context.Context, symbols []string) (CycleReport, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return CycleReport{}, ErrCycleInProgress
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.state = StateIdle
		o.mu.Unlock()
	}()

	selected, err := o.selectSymbols(symbols)
	if err != nil {
		return CycleReport{}, err
	}

	started := o.now()
	rc := types.RunContext{
		RunID:   uuid.NewString(),
		Date:    artifacts.EffectiveDate(started, o.cutover),
		Symbols: selected,
	}
	report := CycleReport{RunID: rc.RunID, Date: rc.Date, StartedAt: started}

	timer := logger.StartOperation(ctx, "pipeline.RunCycle",
		"run_id", rc.RunID,
		"date", rc.Date.Format(types.DateLayout),
		"symbols", len(selected),
	)
	ctx = timer.GetContext()
	o.writeStatus(ctx, "Started daily update")

	aborted := false
	for _, st := range o.stages {
		out := StageOutcome{Name: st.Name(), Label: st.Label()}
		if aborted {
			out.Outcome = OutcomeSkipped
			o.writeStatus(ctx, st.Label()+" skipped")
			logger.Stage(ctx, st.Name(), OutcomeSkipped, "run_id", rc.RunID)
			report.Stages = append(report.Stages, out)
			continue
		}

		if s, ok := stageStates[st.Name()]; ok {
			o.setState(s)
		}
		begin := o.now()
		err := st.Run(ctx, rc)
		out.Duration = o.now().Sub(begin)

		if err != nil {
			out.Outcome = OutcomeFailed
			out.Err = err
			o.writeStatus(ctx, fmt.Sprintf("%s failed: %v", st.Label(), err))
			logger.Stage(ctx, st.Name(), OutcomeFailed, "run_id", rc.RunID, "error", err.Error())
			if o.policy(st.Name()) == store.PolicyAbort {
				aborted = true
			}
		} else {
			out.Outcome = OutcomeCompleted
			o.writeStatus(ctx, st.Label()+" completed")
			logger.Stage(ctx, st.Name(), OutcomeCompleted, "run_id", rc.RunID, "duration_ms", out.Duration.Milliseconds())
		}
		report.Stages = append(report.Stages, out)
	}

	report.FinishedAt = o.now()
	if report.Failed() {
		o.writeStatus(ctx, "Daily update failed")
		timer.EndWithError(errors.New("one or more stages failed"), "run_id", rc.RunID)
	} else {
		o.writeStatus(ctx, "Daily update completed")
		timer.End("run_id", rc.RunID)
	}
	return report, nil
}

func (o *Orchestrator) selectSymbols(requested []string) (map[string]string, error) {
	if len(requested) == 0 {
		out := make(map[string]string, len(o.symbols))
		for k, v := range o.symbols {
			out[k] = v
		}
		return out, nil
	}
	out := make(map[string]string, len(requested))
	var unknown []string
	for _, r := range requested {
		sym := strings.ToUpper(strings.TrimSpace(r))
		q, ok := o.symbols[sym]
		if !ok {
			unknown = append(unknown, r)
			continue
		}
		out[sym] = q
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown symbols %s", types.ErrValidation, strings.Join(unknown, ", "))
	}
	return out, nil
}

// writeStatus never fails the cycle; a broken status log is only logged.
func (o *Orchestrator) writeStatus(ctx context.Context, status string) {
	if o.status == nil {
		return
	}
	if err := o.status.Write(status); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write status log", err, "status", status)
	}
}
