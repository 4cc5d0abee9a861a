// Package simulator fabricates progress for the processing pipeline. No media
// work is performed; stages advance on a fixed cadence.
package simulator

import (
	"context"
	"fmt"
	"time"
)

// Default cadence: 3s per stage, one tick every 50ms
const (
	DefaultStepDuration = 3 * time.Second
	DefaultTickInterval = 50 * time.Millisecond
	DefaultStages       = 5
)

// Outcome tags how a run ended
type Outcome string

// Outcome constants
const (
	Completed Outcome = "completed"
	Cancelled Outcome = "cancelled"
	Failed    Outcome = "failed"
)

// Result is returned by Run. StepIndex is the stage active when the run
// stopped, or the last stage when it completed.
type Result struct {
	Outcome   Outcome
	StepIndex int
	Progress  int
	Err       error
}

// FaultFunc is consulted before every progress report; a non-nil error fails
// the run at that point.
type FaultFunc func(stepIndex, progress int) error

// Config holds the simulation cadence
type Config struct {
	Stages       int
	StepDuration time.Duration
	TickInterval time.Duration
	Clock        Clock
	Fault        FaultFunc
}

// Simulator runs fake multi-stage progress sequences
type Simulator struct {
	stages       int
	ticks        int
	tickInterval time.Duration
	clock        Clock
	fault        FaultFunc
}

// New creates a simulator, filling zero fields with the defaults
func New(cfg Config) *Simulator {
	if cfg.Stages <= 0 {
		cfg.Stages = DefaultStages
	}
	if cfg.StepDuration <= 0 {
		cfg.StepDuration = DefaultStepDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}

	ticks := int(cfg.StepDuration / cfg.TickInterval)
	if ticks < 1 {
		ticks = 1
	}

	return &Simulator{
		stages:       cfg.Stages,
		ticks:        ticks,
		tickInterval: cfg.TickInterval,
		clock:        cfg.Clock,
		fault:        cfg.Fault,
	}
}

// Stages returns the number of stages a run goes through
func (s *Simulator) Stages() int {
	return s.stages
}

// TicksPerStage returns how many progress reports each stage emits
func (s *Simulator) TicksPerStage() int {
	return s.ticks
}

// Run drives every stage from 0 to 100 in order, calling onProgress on each
// tick and onComplete once after the last stage. Cancellation is checked
// before every tick; once it is observed no callback fires.
func (s *Simulator) Run(ctx context.Context, projectID string, onProgress func(stepIndex, progress int), onComplete func()) Result {
	last := Result{Outcome: Completed}

	for stage := 0; stage < s.stages; stage++ {
		for tick := 1; tick <= s.ticks; tick++ {
			if err := ctx.Err(); err != nil {
				return Result{Outcome: Cancelled, StepIndex: stage, Progress: last.Progress, Err: err}
			}

			select {
			case <-ctx.Done():
				return Result{Outcome: Cancelled, StepIndex: stage, Progress: last.Progress, Err: ctx.Err()}
			case <-s.clock.After(s.tickInterval):
			}

			if err := ctx.Err(); err != nil {
				return Result{Outcome: Cancelled, StepIndex: stage, Progress: last.Progress, Err: err}
			}

			progress := tick * 100 / s.ticks
			if s.fault != nil {
				if err := s.fault(stage, progress); err != nil {
					return Result{
						Outcome:   Failed,
						StepIndex: stage,
						Progress:  progress,
						Err:       fmt.Errorf("project %s stage %d: %w", projectID, stage, err),
					}
				}
			}

			onProgress(stage, progress)
			last = Result{Outcome: Completed, StepIndex: stage, Progress: progress}
		}
	}

	onComplete()
	return last
}
