package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/observability"
	"github.com/matzehuels/osgirepo/pkg/pipeline"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, rounded to the millisecond.
// Example output: "Finished target (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// spinnerHooks shows the running stage on a spinner.
type spinnerHooks struct {
	spinner *Spinner
}

func (h spinnerHooks) OnStageStart(_ context.Context, stage string) {
	h.spinner.SetMessage("Running " + stage + "...")
}

func (h spinnerHooks) OnStageComplete(context.Context, string, int, time.Duration, error) {}

// runQuiet runs the pipeline with info logs suppressed and a spinner on
// stderr. Warnings still reach the log.
func (c *CLI) runQuiet(ctx context.Context, runner *pipeline.Runner, until pipeline.Stage) (*pipeline.Result, error) {
	level := c.Logger.GetLevel()
	if level < log.WarnLevel {
		c.Logger.SetLevel(log.WarnLevel)
		defer c.Logger.SetLevel(level)
	}

	s := newSpinnerWithContext(ctx, "Resolving artifacts...")
	observability.SetPipelineHooks(spinnerHooks{spinner: s})
	defer observability.SetPipelineHooks(observability.NoopPipelineHooks{})

	s.Start()
	res, err := runner.Run(ctx, until)
	if err != nil {
		s.Stop()
		return res, err
	}
	s.StopWithSuccess("Repository assembled")
	return res, nil
}
