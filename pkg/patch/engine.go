package patch

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/flowpatch/pkg/logging"
	"github.com/dd0wney/flowpatch/pkg/metrics"
	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Outcome classifies what happened to one edit.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeWarned  Outcome = "warned"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Step records the outcome of one edit.
type Step struct {
	Index       int
	Op          string
	Description string
	Outcome     Outcome
	Err         error
	// Issues lists integrity issues that first appeared after this step.
	Issues   []workflow.Issue
	Duration time.Duration
}

// Result is the outcome of an engine run.
type Result struct {
	Steps     []Step
	Checklist *verify.Checklist
	// Issues are the integrity issues of the document after the last step.
	Issues []workflow.Issue
}

// Count returns how many steps ended with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Engine applies edits in order, logging each one.
type Engine struct {
	logger  logging.Logger
	metrics *metrics.Registry
	policy  Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records every edit in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(logger logging.Logger, policy Policy, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Engine{
		logger: logger.With(logging.Component("patch")),
		policy: policy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs edits against doc in order. Missing targets and no-op edits are
// skipped and the run continues. A fatal error stops the run; the returned
// Result still describes the steps taken, and doc keeps their effects, so
// callers must not persist it.
func (e *Engine) Apply(doc *workflow.Document, edits []Edit) (*Result, error) {
	timer := logging.StartTimer(e.logger, "edits applied", logging.Count(len(edits)))
	result := &Result{}
	seen := issueSet(doc.Integrity())

	for i, edit := range edits {
		start := time.Now()
		err := edit.Apply(doc, e.policy)
		step := Step{
			Index:       i + 1,
			Op:          edit.Op(),
			Description: edit.String(),
			Err:         err,
			Duration:    time.Since(start),
		}
		step.Outcome = e.classify(err)
		e.logStep(step)

		current := doc.Integrity()
		for _, issue := range current {
			if _, ok := seen[issue.String()]; ok {
				continue
			}
			seen[issue.String()] = struct{}{}
			step.Issues = append(step.Issues, issue)
			e.logger.Warn("integrity issue", append(issueFields(issue),
				logging.Step(step.Index),
				logging.Edit(step.Op),
			)...)
		}

		if e.metrics != nil {
			e.metrics.RecordEdit(step.Op, string(step.Outcome), step.Duration)
		}
		result.Steps = append(result.Steps, step)

		if step.Outcome == OutcomeFailed {
			result.Issues = current
			timer.StopError(err)
			return result, fmt.Errorf("step %d (%s): %w", step.Index, step.Op, err)
		}
	}

	result.Checklist = Expectations(edits)
	result.Issues = doc.Integrity()
	if e.metrics != nil {
		e.metrics.ObserveDocument(doc)
	}
	timer.Stop(
		logging.Int("applied", result.Count(OutcomeApplied)),
		logging.Int("warned", result.Count(OutcomeWarned)),
		logging.Int("skipped", result.Count(OutcomeSkipped)),
	)
	return result, nil
}

func (e *Engine) classify(err error) Outcome {
	var warning *Warning
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.As(err, &warning):
		return OutcomeWarned
	case workflow.IsNotFound(err):
		if e.policy.AbortOnNotFound {
			return OutcomeFailed
		}
		return OutcomeSkipped
	case errors.Is(err, ErrUnchanged), errors.Is(err, ErrNoCodeParameter):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

func (e *Engine) logStep(s Step) {
	fields := []logging.Field{
		logging.Step(s.Index),
		logging.Edit(s.Op),
		logging.String("outcome", string(s.Outcome)),
		logging.String("description", s.Description),
	}
	switch s.Outcome {
	case OutcomeApplied:
		e.logger.Info("edit applied", fields...)
	case OutcomeSkipped:
		if errors.Is(s.Err, ErrUnchanged) {
			e.logger.Info("edit skipped", append(fields, logging.Error(s.Err))...)
			return
		}
		e.logger.Warn("edit skipped", append(fields, logging.Error(s.Err))...)
	case OutcomeWarned:
		e.logger.Warn("edit applied with warning", append(fields, logging.Error(s.Err))...)
	default:
		e.logger.Error("edit failed", append(fields, logging.Error(s.Err))...)
	}
}

func issueFields(issue workflow.Issue) []logging.Field {
	fields := []logging.Field{
		logging.String("kind", string(issue.Kind)),
		logging.String("issue", issue.String()),
	}
	if issue.Kind == workflow.IssueDuplicateName {
		return append(fields, logging.Node(issue.Node))
	}
	fields = append(fields, logging.Source(issue.Node))
	if issue.Target != "" {
		fields = append(fields, logging.Target(issue.Target))
	}
	return fields
}

func issueSet(issues []workflow.Issue) map[string]struct{} {
	set := make(map[string]struct{}, len(issues))
	for _, issue := range issues {
		set[issue.String()] = struct{}{}
	}
	return set
}
