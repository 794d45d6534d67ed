// Package pipeline runs the ordered extension stages applied to a
// checkout on every mutation: Consent, Discount, Fulfillment, Mandate.
// Stages mutate a working copy of the session; a stage failure aborts
// the remaining stages and the caller discards the copy.
package pipeline

import (
	"context"
	"fmt"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

type Phase int

const (
	PhaseUpdate Phase = iota
	PhaseComplete
)

// Warning is a non-fatal condition surfaced to the caller alongside an
// otherwise successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const WarningDiscountInvalidated = "discount_invalidated"

// Context carries per-invocation state across stages.
type Context struct {
	Phase    Phase
	Patch    *domain.UpdatePatch // nil on complete
	Warnings []Warning
}

func (c *Context) AddWarning(code, message string) {
	c.Warnings = append(c.Warnings, Warning{Code: code, Message: message})
}

// Stage is the narrow contract every extension implements.
type Stage interface {
	Name() string
	Apply(ctx context.Context, s *domain.CheckoutSession, pc *Context) error
}

// StageError identifies which stage rejected the call.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Pipeline struct {
	stages []Stage
}

// New builds a pipeline. Stage order is fixed by the caller and never
// reordered at runtime.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run applies each stage in order, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context, s *domain.CheckoutSession, pc *Context) error {
	for _, stage := range p.stages {
		if err := stage.Apply(ctx, s, pc); err != nil {
			return &StageError{Stage: stage.Name(), Err: err}
		}
	}
	return nil
}
