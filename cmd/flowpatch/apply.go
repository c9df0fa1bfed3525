package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dd0wney/flowpatch/pkg/backup"
	"github.com/dd0wney/flowpatch/pkg/logging"
	"github.com/dd0wney/flowpatch/pkg/metrics"
	"github.com/dd0wney/flowpatch/pkg/patch"
	"github.com/dd0wney/flowpatch/pkg/plan"
	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

type applyOptions struct {
	planPath string
	in       string
	out      string
	dryRun   bool
}

func newApplyCmd(a *app) *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a plan to a workflow document and verify the result",
		Long: `Apply loads the document, runs every edit of the plan in order, writes the
result and reloads it to verify each expected change.

Exit status is 0 on success, 1 when the plan or document is unusable or an
edit fails, and 2 when verification fails and --fail-on-verify is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.apply(opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.planPath, "plan", "p", "", "plan file (YAML)")
	f.StringVarP(&opts.in, "in", "i", "", "workflow document to patch")
	f.StringVarP(&opts.out, "out", "o", "", "output path (default: overwrite --in)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "apply and verify in memory without writing")
	f.Bool("backup", false, "write a compressed backup of the output file before overwriting it")
	f.Int("backup-keep", 0, "keep only the newest N backups (0 keeps all)")
	f.Bool("strict", false, "refuse edits that would create duplicate node names")
	f.Bool("abort-on-not-found", false, "fail instead of skipping edits whose target is missing")
	f.Bool("prune-inbound", false, "drop edges into removed nodes")
	f.Bool("fail-on-verify", false, "exit 2 when any verification check fails")
	f.String("report", "text", "report format: text or json")
	f.String("metrics-file", "", "write Prometheus metrics in text format to this file")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func (a *app) apply(opts applyOptions) error {
	out := opts.out
	if out == "" {
		out = opts.in
	}
	log := a.logger.With(logging.Path(out), logging.Bool("dry_run", opts.dryRun))
	reg := metrics.NewRegistry()

	p, err := plan.Load(opts.planPath)
	if err != nil {
		return err
	}
	edits, err := p.Edits()
	if err != nil {
		return err
	}
	doc, err := workflow.Load(opts.in)
	if err != nil {
		return err
	}
	log.Info("plan loaded",
		logging.String("plan", p.Path()),
		logging.Count(len(edits)),
		logging.Int("nodes", len(doc.Nodes)),
	)

	engine := patch.NewEngine(a.logger, a.cfg.policy(), patch.WithMetrics(reg))
	result, err := engine.Apply(doc, edits)
	steps := stepViews(result)
	if a.cfg.format() == verify.FormatText && result != nil {
		renderSteps(a.stdout, result)
	}
	if err != nil {
		reg.RecordRun("error")
		a.writeMetrics(reg)
		err = fmt.Errorf("%s left unchanged: %w", out, err)
		if a.cfg.format() == verify.FormatJSON {
			if encErr := encodeJSON(a.stdout, struct {
				Steps []stepView `json:"steps"`
				Error string     `json:"error"`
			}{steps, err.Error()}); encErr != nil {
				return encErr
			}
		}
		return err
	}

	list := p.Checklist(edits)
	var report *verify.Report
	if opts.dryRun {
		report = verify.Verify(doc, list)
		report.Source = out + " (dry run)"
	} else {
		if a.cfg.Backup {
			if err := a.backup(out, reg); err != nil {
				return err
			}
		}
		if err := workflow.Save(doc, out); err != nil {
			return err
		}
		log.Info("document written", logging.Int("nodes", len(doc.Nodes)))

		report, err = verify.VerifyFile(out, list)
		if err != nil {
			return err
		}
	}
	return a.finish(report, reg, steps)
}

// backup snapshots out before it is overwritten. A missing out means a new
// file, which has nothing to back up.
func (a *app) backup(out string, reg *metrics.Registry) error {
	info, err := backup.Write(out, time.Now())
	if errors.Is(err, backup.ErrNoSource) {
		return nil
	}
	if err != nil {
		return err
	}
	reg.RecordBackup(info.Size)
	a.logger.Info("backup written",
		logging.Path(info.Path),
		logging.Int("raw_bytes", int(info.RawSize)),
		logging.Int("bytes", int(info.Size)),
	)

	removed, err := backup.Prune(out, a.cfg.BackupKeep)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		a.logger.Debug("backups pruned", logging.Strings("paths", removed))
	}
	return nil
}

// finish renders the report, records metrics and maps a failed verification
// to its exit code. JSON output carries steps when there are any.
func (a *app) finish(report *verify.Report, reg *metrics.Registry, steps []stepView) error {
	if a.cfg.format() == verify.FormatJSON && steps != nil {
		if err := encodeJSON(a.stdout, struct {
			Steps []stepView `json:"steps"`
			*verify.Report
			Passed bool `json:"passed"`
		}{steps, report, report.Passed()}); err != nil {
			return err
		}
	} else if err := report.Render(a.stdout, a.cfg.format()); err != nil {
		return err
	}
	for _, f := range report.Findings {
		reg.RecordCheck(string(f.Status))
	}

	failures := report.Failures()
	if len(failures) == 0 {
		reg.RecordRun("ok")
	} else {
		reg.RecordRun("verify_failed")
		for _, f := range failures {
			a.logger.Warn("check failed",
				logging.String("check", f.Check),
				logging.String("expected", f.Expected),
				logging.String("actual", f.Actual),
			)
		}
	}
	a.writeMetrics(reg)

	if len(failures) > 0 && a.cfg.FailOnVerify {
		return &exitError{
			code: exitVerifyFailed,
			err:  fmt.Errorf("%d of %d checks failed", len(failures), len(report.Findings)),
		}
	}
	return nil
}

func (a *app) writeMetrics(reg *metrics.Registry) {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := reg.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Error("write metrics", logging.Error(err))
	}
}

// stepView is the JSON form of a patch.Step.
type stepView struct {
	Index       int      `json:"index"`
	Op          string   `json:"op"`
	Description string   `json:"description"`
	Outcome     string   `json:"outcome"`
	Error       string   `json:"error,omitempty"`
	Issues      []string `json:"issues,omitempty"`
}

func stepViews(result *patch.Result) []stepView {
	if result == nil {
		return nil
	}
	views := make([]stepView, 0, len(result.Steps))
	for _, s := range result.Steps {
		v := stepView{
			Index:       s.Index,
			Op:          s.Op,
			Description: s.Description,
			Outcome:     string(s.Outcome),
		}
		if s.Err != nil {
			v.Error = s.Err.Error()
		}
		for _, issue := range s.Issues {
			v.Issues = append(v.Issues, issue.String())
		}
		views = append(views, v)
	}
	return views
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func renderSteps(w io.Writer, result *patch.Result) {
	styles := verify.NewStyles(lipgloss.NewRenderer(w))

	fmt.Fprintln(w, styles.Title.Render("EDITS"))
	for _, s := range result.Steps {
		var outcome string
		switch s.Outcome {
		case patch.OutcomeApplied:
			outcome = styles.Pass.Render(string(s.Outcome))
		case patch.OutcomeFailed:
			outcome = styles.Fail.Render(string(s.Outcome))
		case patch.OutcomeWarned:
			outcome = styles.Warn.Render(string(s.Outcome))
		default:
			outcome = styles.Muted.Render(string(s.Outcome))
		}
		fmt.Fprintf(w, "%3d  %-8s %s\n", s.Index, outcome, s.Description)
		if s.Err != nil && s.Outcome != patch.OutcomeApplied {
			fmt.Fprintln(w, styles.Detail.Render(s.Err.Error()))
		}
		for _, issue := range s.Issues {
			fmt.Fprintln(w, styles.Warn.PaddingLeft(6).Render("! "+issue.String()))
		}
	}
	fmt.Fprintf(w, "%d applied, %d warned, %d skipped, %d failed\n\n",
		result.Count(patch.OutcomeApplied),
		result.Count(patch.OutcomeWarned),
		result.Count(patch.OutcomeSkipped),
		result.Count(patch.OutcomeFailed),
	)
}
