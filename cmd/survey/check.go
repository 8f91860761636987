package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"survey-backend/internal/admin"
	"survey-backend/internal/editing"
	"survey-backend/internal/metadata"
)

var errRejected = errors.New("answers rejected by editing rules")

type checkOptions struct {
	rulesFile   string
	answersFile string
	formsFile   string
	force       bool
	coercion    bool
}

func checkCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate editing rules against a set of answers offline",
		Long: `Check runs a YAML rule set against a JSON answers document the same way
a save request does, and prints every verdict with its substituted expression.
The command fails when an ERROR rule matches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := os.ReadFile(opts.rulesFile)
			if err != nil {
				return err
			}
			answers, err := os.ReadFile(opts.answersFile)
			if err != nil {
				return err
			}
			var forms []byte
			if opts.formsFile != "" {
				if forms, err = os.ReadFile(opts.formsFile); err != nil {
					return err
				}
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), rules, answers, forms, opts)
		},
	}
	cmd.Flags().StringVar(&opts.rulesFile, "rules", "", "rule set (YAML)")
	cmd.Flags().StringVar(&opts.answersFile, "answers", "", "answers keyed by form version (JSON)")
	cmd.Flags().StringVar(&opts.formsFile, "forms", "", "form versions used to resolve renamed fields (JSON array)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "evaluate as a forced save")
	cmd.Flags().BoolVar(&opts.coercion, "numeric-coercion", true, "compare numeric strings with numbers numerically")
	_ = cmd.MarkFlagRequired("rules")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, rulesData, answersData, formsData []byte, opts checkOptions) error {
	rules, err := admin.DecodeRules(rulesData)
	if err != nil {
		return err
	}
	for i := range rules {
		if sev, err := metadata.ParseSeverity(string(rules[i].Severity)); err == nil {
			rules[i].Severity = sev
		}
	}

	var answers metadata.AnswerSet
	if err := json.Unmarshal(answersData, &answers); err != nil {
		return fmt.Errorf("parse answers: %w", err)
	}

	var forms []*metadata.FormVersion
	if len(formsData) > 0 {
		if err := json.Unmarshal(formsData, &forms); err != nil {
			return fmt.Errorf("parse forms: %w", err)
		}
		metadata.SortForms(forms)
	}

	evaluator := editing.NewEvaluator(nil, editing.Options{NumericCoercion: opts.coercion})
	outcome := evaluator.EvaluateAll(ctx, rules, &answers, editing.NewAliasTable(forms))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tSEVERITY\tRESULT\tEXPRESSION")
	for _, v := range outcome.Verdicts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.RuleID, v.Severity, result(v), v.Expression)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	state := outcome.State(opts.force)
	fmt.Fprintf(out, "\nstate: %s (errors: %d, warnings: %d)\n", state, len(outcome.Errors), len(outcome.Warnings))
	for _, v := range outcome.Errors {
		fmt.Fprintf(out, "  error   %s: %s\n", v.RuleID, v.Message)
	}
	for _, v := range outcome.Warnings {
		fmt.Fprintf(out, "  warning %s: %s\n", v.RuleID, v.Message)
	}

	if state == editing.StateRejected {
		return errRejected
	}
	return nil
}

func result(v editing.Verdict) string {
	switch {
	case v.Err != nil:
		return "failed: " + v.Err.Error()
	case v.Skipped:
		return "skipped"
	case v.Matched:
		return "matched"
	default:
		return "passed"
	}
}
