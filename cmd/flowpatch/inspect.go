package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// nodeSummary is one row of inspect output.
type nodeSummary struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Path    string   `json:"path,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

type inspection struct {
	Source      string        `json:"source"`
	Nodes       []nodeSummary `json:"nodes"`
	Connections int           `json:"connections"`
	Issues      []string      `json:"issues"`
}

func newInspectCmd(a *app) *cobra.Command {
	var in, typ string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List nodes, their outgoing edges and integrity issues",
		Long: `Inspect prints every node of a document with its type, webhook path and
targets, followed by any duplicate names or dangling connections.

--type matches the full type or its last segment, so "webhook" selects
n8n-nodes-base.webhook.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := workflow.Load(in)
			if err != nil {
				return err
			}
			ins := inspect(doc, typ)
			ins.Source = in
			if a.cfg.format() == verify.FormatJSON {
				return encodeJSON(a.stdout, ins)
			}
			renderInspection(a.stdout, ins)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&in, "in", "i", "", "workflow document")
	f.StringVarP(&typ, "type", "t", "", "only list nodes of this type")
	f.String("report", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func inspect(doc *workflow.Document, typ string) inspection {
	ins := inspection{
		Nodes:       []nodeSummary{},
		Connections: len(doc.Connections),
		Issues:      []string{},
	}
	for _, n := range doc.Nodes {
		if typ != "" && !matchesType(n.Type, typ) {
			continue
		}
		row := nodeSummary{
			Name:    n.Name,
			Type:    n.Type,
			ID:      n.ID,
			Targets: doc.Connections.Targets(n.Name),
		}
		if p, ok := n.Parameters["path"].(string); ok && n.IsTrigger() {
			row.Path = p
		}
		ins.Nodes = append(ins.Nodes, row)
	}
	for _, issue := range doc.Integrity() {
		ins.Issues = append(ins.Issues, issue.String())
	}
	return ins
}

func matchesType(nodeType, want string) bool {
	if nodeType == want {
		return true
	}
	return strings.HasSuffix(strings.ToLower(nodeType), "."+strings.ToLower(want))
}

func renderInspection(w io.Writer, ins inspection) {
	styles := verify.NewStyles(lipgloss.NewRenderer(w))

	fmt.Fprintln(w, styles.Title.Render("NODES  "+ins.Source))
	width := 0
	for _, n := range ins.Nodes {
		width = max(width, len(n.Name))
	}
	for _, n := range ins.Nodes {
		line := fmt.Sprintf("%-*s  %s", width, n.Name, styles.Muted.Render(n.Type))
		if n.Path != "" {
			line += "  /" + strings.TrimPrefix(n.Path, "/")
		}
		fmt.Fprintln(w, line)
		if len(n.Targets) > 0 {
			targets := append([]string(nil), n.Targets...)
			sort.Strings(targets)
			fmt.Fprintln(w, styles.Detail.Render("-> "+strings.Join(targets, ", ")))
		}
	}
	fmt.Fprintf(w, "%d nodes, %d connection sources\n", len(ins.Nodes), ins.Connections)

	if len(ins.Issues) == 0 {
		fmt.Fprintln(w, styles.Pass.Render("no integrity issues"))
		return
	}
	fmt.Fprintln(w, styles.Fail.Render(fmt.Sprintf("%d integrity issues", len(ins.Issues))))
	for _, issue := range ins.Issues {
		fmt.Fprintln(w, styles.Warn.Render("  ! "+issue))
	}
}
