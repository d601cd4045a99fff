package stageobs

import (
	"context"

	"stock-forecaster/internal/interfaces"
	"stock-forecaster/internal/logger"
	"stock-forecaster/internal/types"
)

type observableStage struct {
	stage interfaces.Stage
}

var _ interfaces.Stage = (*observableStage)(nil)

func Wrap(stage interfaces.Stage) interfaces.Stage {
	return &observableStage{stage: stage}
}

func (o *observableStage) Name() string  { return o.stage.Name() }
func (o *observableStage) Label() string { return o.stage.Label() }

// Run traces the stage and logs its start and result.
func (o *observableStage) Run(ctx context.Context, rc types.RunContext) error {
	timer := logger.StartOperation(ctx, "stage."+o.stage.Name(),
		"run_id", rc.RunID,
		"date", rc.Date.Format(types.DateLayout),
		"symbols", len(rc.Symbols),
	)
	logger.Info(timer.GetContext(), "Stage started", "stage", o.stage.Label())

	if err := o.stage.Run(timer.GetContext(), rc); err != nil {
		timer.EndWithError(err, "stage", o.stage.Label())
		return err
	}

	timer.End()
	logger.Info(timer.GetContext(), "Stage finished", "stage", o.stage.Label())
	return nil
}
