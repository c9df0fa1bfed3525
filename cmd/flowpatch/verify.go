package main

import (
	"github.com/spf13/cobra"

	"github.com/dd0wney/flowpatch/pkg/logging"
	"github.com/dd0wney/flowpatch/pkg/metrics"
	"github.com/dd0wney/flowpatch/pkg/plan"
	"github.com/dd0wney/flowpatch/pkg/verify"
)

func newVerifyCmd(a *app) *cobra.Command {
	var planPath, in string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a document against the expected state of a plan",
		Long: `Verify builds the checklist a plan would produce and evaluates it against the
document as it is on disk, without applying anything. Checks that depend on
generated ids (appended annotations) fall back to name checks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}
			edits, err := p.Edits()
			if err != nil {
				return err
			}
			list := p.Checklist(edits)

			report, err := verify.VerifyFile(in, list)
			if err != nil {
				return err
			}
			a.logger.Info("document verified",
				logging.Path(in),
				logging.Count(len(report.Findings)),
				logging.Int("failed", len(report.Failures())),
			)
			return a.finish(report, metrics.NewRegistry(), nil)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&planPath, "plan", "p", "", "plan file (YAML)")
	f.StringVarP(&in, "in", "i", "", "workflow document to check")
	f.Bool("fail-on-verify", false, "exit 2 when any check fails")
	f.String("report", "text", "report format: text or json")
	f.String("metrics-file", "", "write Prometheus metrics in text format to this file")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}
