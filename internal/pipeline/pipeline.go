package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/mpasite/internal/model"
)

// Step is one stage of a check. Steps are executed in sequence, each
// receiving the report accumulated by the previous ones.
type Step interface {
	// Do executes the step. Problems found on the site are recorded as
	// findings; an error means the step itself could not run.
	Do(ctx context.Context, report *model.CheckReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The error of the failed step is recorded in
// the report and subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order. Cancellation is checked between steps;
// a cancelled check is marked as timed out and returns ctx.Err().
//
// A failing step records its error in the report. Without
// WithContinueOnError the error is also returned and later steps are skipped.
func (p *Pipeline) Execute(ctx context.Context, report *model.CheckReport) error {
	p.logger.Debug("check started", "site", report.Site, "steps", p.StepNames())
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("check cancelled before step", "step", step.Name(), "site", report.Site, "reason", err)
			report.TimedOut = true
			return err
		}

		if err := p.run(ctx, step, report); err != nil && !p.continueOnError {
			return err
		}
		report.Steps = append(report.Steps, step.Name())
	}
	return nil
}

// run executes a single step and records its failure in report.
func (p *Pipeline) run(ctx context.Context, step Step, report *model.CheckReport) error {
	started := time.Now()
	err := step.Do(ctx, report)
	elapsed := time.Since(started)

	if err == nil {
		p.logger.Debug("step completed", "step", step.Name(), "site", report.Site, "elapsed", elapsed)
		return nil
	}

	p.logger.Error("step failed", "step", step.Name(), "site", report.Site, "elapsed", elapsed, "error", err)
	report.Error = err.Error()
	if ctx.Err() != nil {
		report.TimedOut = true
	}
	return err
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
