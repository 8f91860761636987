package editing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"survey-backend/internal/instrument"
	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
)

// SaveState is where a save request ends up after evaluation.
type SaveState string

const (
	StateRejected            SaveState = "REJECTED"
	StatePendingConfirmation SaveState = "PENDING_CONFIRMATION"
	StatePersisted           SaveState = "PERSISTED"
)

var errEmptyCondition = errors.New("empty condition")

// Verdict is the result of one rule against one answer set.
type Verdict struct {
	RuleID       string            `json:"rule_id"`
	Severity     metadata.Severity `json:"severity"`
	Message      string            `json:"message"`
	Condition    string            `json:"condition"`
	TargetField  string            `json:"target_field"`
	TargetFormID string            `json:"target_form_id,omitempty"`
	Matched      bool              `json:"matched"`
	Expression   string            `json:"expression,omitempty"`
	Skipped      bool              `json:"skipped,omitempty"`
	Err          error             `json:"-"`
}

func (v Verdict) Descriptor() metadata.WarningDescriptor {
	return metadata.WarningDescriptor{
		RuleID:       v.RuleID,
		Message:      v.Message,
		Condition:    v.Condition,
		TargetField:  v.TargetField,
		TargetFormID: v.TargetFormID,
		Severity:     v.Severity,
	}
}

// Outcome splits the matched verdicts of a save by severity.
type Outcome struct {
	Verdicts []Verdict
	Errors   []Verdict
	Warnings []Verdict
}

// State applies the save rules: any matched error rejects, warnings wait for
// confirmation unless force is set, everything else persists.
func (o Outcome) State(force bool) SaveState {
	switch {
	case len(o.Errors) > 0:
		return StateRejected
	case len(o.Warnings) > 0 && !force:
		return StatePendingConfirmation
	default:
		return StatePersisted
	}
}

func (o Outcome) WarningDescriptors() []metadata.WarningDescriptor {
	out := make([]metadata.WarningDescriptor, 0, len(o.Warnings))
	for _, v := range o.Warnings {
		out = append(out, v.Descriptor())
	}
	return out
}

// Messages returns the rule messages of vs in order.
func Messages(vs []Verdict) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Message)
	}
	return out
}

type Options struct {
	NumericCoercion bool
}

// Evaluator runs editing rules. It keeps no per-call state and is safe for
// concurrent use. Any failure inside a rule means the rule does not match.
type Evaluator struct {
	interp Interpreter
	log    *logger.Logger
}

func NewEvaluator(log *logger.Logger, opts Options) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{
		interp: Interpreter{NumericCoercion: opts.NumericCoercion},
		log:    log,
	}
}

// Evaluate checks a single rule.
func (e *Evaluator) Evaluate(rule metadata.EditRule, answers *metadata.AnswerSet, aliases AliasTable) (v Verdict) {
	v = Verdict{
		RuleID:       rule.ID,
		Severity:     rule.Severity,
		Message:      rule.Message,
		Condition:    rule.Condition,
		TargetField:  rule.TargetField,
		TargetFormID: rule.TargetFormID,
	}

	if !rule.Severity.Valid() {
		v.Err = fmt.Errorf("unknown severity %q", rule.Severity)
		e.log.Warn("editing rule skipped", "rule_id", rule.ID, "error", v.Err)
		return v
	}
	if strings.TrimSpace(rule.Condition) == "" {
		v.Err = errEmptyCondition
		e.log.Warn("editing rule skipped", "rule_id", rule.ID, "error", v.Err)
		return v
	}
	if rule.TargetFormID != "" && !answers.AppliesTo(rule.TargetFormID) {
		v.Skipped = true
		e.log.Debug("editing rule not applicable", "rule_id", rule.ID, "target_form_id", rule.TargetFormID)
		return v
	}

	defer func() {
		if r := recover(); r != nil {
			v.Matched = false
			v.Err = fmt.Errorf("panic: %v", r)
			e.log.Error("editing rule panicked", "rule_id", rule.ID, "error", v.Err)
		}
	}()

	expression, err := Transform(rule.Condition, NewResolver(answers, aliases))
	v.Expression = expression
	matched := false
	if err == nil {
		matched, err = e.run(expression)
	}
	if err != nil {
		v.Err = err
		e.log.Warn("editing rule failed, treating as not matched",
			"rule_id", rule.ID, "expression", v.Expression, "error", err)
		return v
	}
	v.Matched = matched
	return v
}

func (e *Evaluator) run(expression string) (bool, error) {
	node, err := Parse(expression)
	if err != nil {
		return false, err
	}
	val, err := e.interp.Eval(node)
	if err != nil {
		return false, err
	}
	// A bare value matches by truthiness, as it does as an and/or operand.
	return truthy(val), nil
}

// EvaluateAll checks every rule and classifies the matches.
func (e *Evaluator) EvaluateAll(ctx context.Context, rules []metadata.EditRule, answers *metadata.AnswerSet, aliases AliasTable) Outcome {
	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "editing", "rules.evaluate")
	defer span.End()
	span.SetMetadata("rules", len(rules))

	var out Outcome
	failed := 0
	for _, rule := range rules {
		v := e.Evaluate(rule, answers, aliases)
		out.Verdicts = append(out.Verdicts, v)
		if v.Err != nil {
			failed++
		}
		instrument.RecordVerdict(ctx, string(v.Severity), verdictOutcome(v))
		if !v.Matched {
			continue
		}
		if v.Severity == metadata.SeverityError {
			out.Errors = append(out.Errors, v)
		} else {
			out.Warnings = append(out.Warnings, v)
		}
	}

	span.SetMetadata("errors", len(out.Errors))
	span.SetMetadata("warnings", len(out.Warnings))
	span.SetMetadata("failed", failed)
	if len(out.Errors) > 0 {
		span.SetStatus("error")
	} else {
		span.SetStatus("ok")
	}
	return out
}

func verdictOutcome(v Verdict) string {
	switch {
	case v.Err != nil:
		return "failed"
	case v.Skipped:
		return "skipped"
	case v.Matched:
		return "matched"
	default:
		return "passed"
	}
}

// Check reports whether a condition is well formed, for use when rules are
// authored. Evaluation itself never fails on a bad condition.
func Check(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return errEmptyCondition
	}
	expression, err := Transform(condition, NewResolver(nil, nil))
	if err != nil {
		return err
	}
	_, err = Parse(expression)
	return err
}
