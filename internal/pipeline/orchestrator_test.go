package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecaster/internal/artifacts"
	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/statuslog"
	"stock-forecaster/internal/store"
	"stock-forecaster/internal/types"
)

type fakeStage struct {
	name, label string
	err         error
	block       chan struct{}
	started     chan struct{}

	mu    sync.Mutex
	runs  []types.RunContext
	state State
	orch  *Orchestrator
}

func (f *fakeStage) Name() string  { return f.name }
func (f *fakeStage) Label() string { return f.label }

func (f *fakeStage) Run(_ context.Context, rc types.RunContext) error {
	f.mu.Lock()
	f.runs = append(f.runs, rc)
	if f.orch != nil {
		f.state = f.orch.State()
	}
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func (f *fakeStage) ran() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func fourStages() (*fakeStage, *fakeStage, *fakeStage, *fakeStage) {
	return &fakeStage{name: store.StageDownload, label: "Download datasets"},
		&fakeStage{name: store.StageSentiment, label: "Generate sentiment"},
		&fakeStage{name: store.StagePredict, label: "Save predictions"},
		&fakeStage{name: store.StageSync, label: "Git sync"}
}

var tracked = map[string]string{"AAPL": "Apple Inc", "MSFT": "Microsoft"}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func statuses(t *testing.T, l *statuslog.Log) []string {
	t.Helper()
	entries, err := l.ReadAll()
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}

func newOrch(t *testing.T, stages []interfaces.Stage, opts ...Option) (*Orchestrator, *statuslog.Log) {
	t.Helper()
	log := statuslog.New(filepath.Join(t.TempDir(), "logs", "scheduler_log.csv"))
	opts = append([]Option{WithClock(fixedClock(time.Date(2024, 3, 15, 2, 30, 0, 0, time.UTC)))}, opts...)
	return NewOrchestrator(stages, tracked, artifacts.Cutover{Hour: 2}, log, opts...), log
}

func TestRunCycle_AllStagesInOrder(t *testing.T) {
	d, s, p, y := fourStages()
	o, log := newOrch(t, []interfaces.Stage{d, s, p, y})
	for _, st := range []*fakeStage{d, s, p, y} {
		st.orch = o
	}

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), report.Date)

	assert.Equal(t, StateDownloading, d.state)
	assert.Equal(t, StateSentimentAnalysis, s.state)
	assert.Equal(t, StatePredicting, p.state)
	assert.Equal(t, StateSyncing, y.state)
	assert.Equal(t, StateIdle, o.State())

	assert.Equal(t, []string{
		"Started daily update",
		"Download datasets completed",
		"Generate sentiment completed",
		"Save predictions completed",
		"Git sync completed",
		"Daily update completed",
	}, statuses(t, log))

	rc := d.runs[0]
	assert.Equal(t, tracked, rc.Symbols)
	assert.Equal(t, rc, y.runs[0], "every stage sees the same run context")
}

func TestRunCycle_ContinueAfterFailure(t *testing.T) {
	d, s, p, y := fourStages()
	s.err = errors.New("classifier failed to load")
	o, log := newOrch(t, []interfaces.Stage{d, s, p, y})

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, p.ran())
	assert.Equal(t, 1, y.ran())
	assert.Equal(t, OutcomeFailed, report.Stages[1].Outcome)
	assert.EqualError(t, report.Stages[1].Err, "classifier failed to load")

	got := statuses(t, log)
	assert.Contains(t, got, "Generate sentiment failed: classifier failed to load")
	assert.Contains(t, got, "Save predictions completed")
	assert.Equal(t, "Daily update failed", got[len(got)-1])
}

func TestRunCycle_AbortSkipsRemaining(t *testing.T) {
	d, s, p, y := fourStages()
	d.err = errors.New("no dataset downloaded")
	o, log := newOrch(t, []interfaces.Stage{d, s, p, y},
		WithPolicies(map[string]string{store.StageDownload: store.PolicyAbort}))

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.ran()+p.ran()+y.ran())
	require.Len(t, report.Stages, 4)
	for _, st := range report.Stages[1:] {
		assert.Equal(t, OutcomeSkipped, st.Outcome, st.Name)
	}
	assert.Equal(t, []string{
		"Started daily update",
		"Download datasets failed: no dataset downloaded",
		"Generate sentiment skipped",
		"Save predictions skipped",
		"Git sync skipped",
		"Daily update failed",
	}, statuses(t, log))
}

func TestRunCycle_ReentrancyGuard(t *testing.T) {
	d := &fakeStage{name: store.StageDownload, label: "Download datasets",
		block: make(chan struct{}), started: make(chan struct{})}
	o, _ := newOrch(t, []interfaces.Stage{d})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunCycle(context.Background())
		done <- err
	}()
	<-d.started

	_, err := o.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, StateDownloading, o.State())

	close(d.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, d.ran())
	assert.Equal(t, StateIdle, o.State())
}

func TestRunCycleFor_UnknownSymbolRunsNothing(t *testing.T) {
	d, s, p, y := fourStages()
	o, log := newOrch(t, []interfaces.Stage{d, s, p, y})

	_, err := o.RunCycleFor(context.Background(), []string{"aapl", "NOPE"})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "NOPE")
	assert.Equal(t, 0, d.ran()+s.ran()+p.ran()+y.ran())
	assert.Empty(t, statuses(t, log))

	_, err = o.RunCycleFor(context.Background(), []string{"aapl"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AAPL": "Apple Inc"}, d.runs[0].Symbols)
}

func TestRunCycle_EffectiveDateBeforeCutover(t *testing.T) {
	d := &fakeStage{name: store.StageDownload, label: "Download datasets"}
	o, _ := newOrch(t, []interfaces.Stage{d},
		WithClock(fixedClock(time.Date(2024, 3, 15, 1, 59, 0, 0, time.UTC))))

	report, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", report.Date.Format(types.DateLayout))
	assert.Equal(t, report.Date, d.runs[0].Date)
}

func TestRunCycle_DistinctRunIDs(t *testing.T) {
	o, _ := newOrch(t, nil)
	a, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	b, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}
