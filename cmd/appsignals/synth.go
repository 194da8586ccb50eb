package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/assets"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/deploy"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/stack"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/template"
	"github.com/spf13/cobra"
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Emit the CloudFormation template",
	Long: `Build the resource graph and print the template the engine would receive.

The canary code directory is packaged locally so the template references the
same content-addressed object a deploy would upload; nothing is uploaded.

Examples:
  # Print JSON to stdout
  appsignals synth

  # Write YAML to a file
  appsignals synth --format yaml -o template.yaml`,
	RunE: runSynth,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List resources in creation order",
	RunE:  runPlan,
}

func init() {
	synthCmd.Flags().StringP("output", "o", "", "Write the template to this file instead of stdout")
	synthCmd.Flags().String("format", string(template.FormatJSON), "Template format (json, yaml)")

	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(planCmd)
}

// synthesize packages the canary code and builds the stack around its location
func synthesize() (*stack.Stack, *assets.Asset, error) {
	asset, err := assets.Package(cfg.Canary.AssetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to package canary code: %w", err)
	}
	st, err := stack.Synthesize(cfg, asset.Location(assets.BucketName(cfg)))
	if err != nil {
		return nil, nil, err
	}
	return st, asset, nil
}

func runSynth(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")

	st, _, err := synthesize()
	if err != nil {
		return err
	}
	tmpl, err := template.Render(st.Graph, deploy.Description)
	if err != nil {
		return err
	}
	data, err := tmpl.Encode(template.Format(strings.ToLower(format)))
	if err != nil {
		return err
	}

	if output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %d resources to %s (%s)\n", st.Graph.Len(), output, humanize.Bytes(uint64(len(data))))
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	st, asset, err := synthesize()
	if err != nil {
		return err
	}
	order, err := st.Graph.Order()
	if err != nil {
		return err
	}

	fmt.Printf("Stack %s in %s\n", st.Name, st.Region)
	fmt.Printf("  Task: %s vCPU, %s memory, %s\n",
		humanize.FtoaWithDigits(float64(st.Task.CPU)/1024, 2),
		humanize.IBytes(uint64(st.Task.Memory)*humanize.MiByte),
		st.Task.Architecture)
	for _, c := range st.Task.Containers {
		fmt.Printf("    %-12s %s\n", c.Name, c.Image)
	}
	fmt.Printf("  Canary code: %s (%d files, %s)\n", asset.Key(), asset.Files, humanize.Bytes(uint64(asset.Size())))
	fmt.Println()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Logical ID", "Type", "Depends On"})
	for i, id := range order {
		n, _ := st.Graph.Node(id)
		tw.AppendRow(table.Row{i + 1, id, n.Type, dependsOn(st.Graph, id)})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d resources", len(order)), "", ""})
	tw.Render()
	return nil
}

// dependsOn lists dependencies, marking explicit ones with an asterisk
func dependsOn(g *graph.Graph, id string) string {
	var deps []string
	for _, e := range g.DependenciesOf(id) {
		if e.Kind == graph.EdgeExplicit {
			deps = append(deps, e.To+"*")
		} else {
			deps = append(deps, e.To)
		}
	}
	sort.Strings(deps)
	return strings.Join(deps, ", ")
}
