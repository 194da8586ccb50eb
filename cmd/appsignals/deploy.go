package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/assets"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/deploy"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/engine"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/reconciler"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the stack",
	Long: `Package and upload the canary code, synthesize the template and hand it
to CloudFormation. The stack is created if it does not exist and updated
otherwise.

Examples:
  # Deploy and wait for the stack to settle
  appsignals deploy --wait

  # Deploy a specific application image
  APP_TAG=v1.4.2 appsignals deploy --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		poll, _ := cmd.Flags().GetDuration("poll-interval")

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		d, closeFn, err := newDeployer(cmd, poll)
		if err != nil {
			return err
		}
		defer closeFn()

		fmt.Printf("Deploying stack %s to %s...\n", cfg.StackName, cfg.Region)
		rec, err := d.Deploy(ctx, cfg, wait)
		if err != nil {
			return err
		}

		switch rec.Status {
		case types.DeploymentStatusUnchanged:
			fmt.Println("✓ Stack is up to date")
		case types.DeploymentStatusSubmitted:
			fmt.Printf("✓ Deployment %s submitted; run 'appsignals status' to follow it\n", rec.ID)
		default:
			fmt.Printf("✓ Stack %s %s in %s\n", rec.StackName, rec.StackStatus,
				rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
			printOutputs(rec.Outputs)
		}
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the stack",
	Long: `Delete the stack. The canary artifact bucket is retained; the asset
bucket holding canary code and oversized templates is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		poll, _ := cmd.Flags().GetDuration("poll-interval")

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		d, closeFn, err := newDeployer(cmd, poll)
		if err != nil {
			return err
		}
		defer closeFn()

		fmt.Printf("Deleting stack %s in %s...\n", cfg.StackName, cfg.Region)
		rec, err := d.Destroy(ctx, cfg, wait)
		if err != nil {
			return err
		}
		if rec.Finished() {
			fmt.Println("✓ Stack deleted")
		} else {
			fmt.Printf("✓ Deletion %s submitted\n", rec.ID)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stack status and outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeFn, err := newDeployer(cmd, 0)
		if err != nil {
			return err
		}
		defer closeFn()

		state, rec, err := d.Status(cmd.Context(), cfg.StackName)
		if err != nil {
			return err
		}

		if state == nil {
			fmt.Printf("Stack %s does not exist in %s\n", cfg.StackName, cfg.Region)
		} else {
			fmt.Printf("Stack:   %s\n", state.Name)
			fmt.Printf("Status:  %s\n", state.Status)
			if state.Reason != "" {
				fmt.Printf("Reason:  %s\n", state.Reason)
			}
			if !state.LastUpdated.IsZero() {
				fmt.Printf("Updated: %s\n", humanize.Time(state.LastUpdated))
			}
			printOutputs(state.Outputs)
		}

		if rec != nil {
			fmt.Println()
			fmt.Printf("Last local %s: %s (%s, started %s)\n",
				rec.Action, rec.ID, rec.Status, humanize.Time(rec.StartedAt))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List deployments recorded on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stackName := cfg.StackName
		if all {
			stackName = ""
		}
		records, err := store.ListDeployments(stackName)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No deployments recorded")
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Stack", "Action", "Status", "Stack Status", "Resources", "Started", "Took"})
		for _, r := range records {
			took := ""
			if r.Finished() {
				took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			tw.AppendRow(table.Row{r.ID[:8], r.StackName, r.Action, r.Status, r.StackStatus, r.Resources, humanize.Time(r.StartedAt), took})
		}
		tw.Render()
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{deployCmd, destroyCmd} {
		c.Flags().Bool("wait", false, "Wait for the stack to reach a terminal status")
		c.Flags().Duration("poll-interval", reconciler.DefaultInterval, "Time between status polls while waiting")
	}
	historyCmd.Flags().Bool("all", false, "Show records of every stack")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

// newDeployer wires the AWS-backed engine and uploader to the local store.
// Progress events are printed while the command runs.
func newDeployer(cmd *cobra.Command, poll time.Duration) (*deploy.Deployer, func(), error) {
	awsCfg, err := loadAWS(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	broker, stopEvents := printEvents()
	eng := engine.NewCloudFormation(awsCfg)
	rec := reconciler.NewReconciler(eng, broker, poll)
	d := deploy.NewDeployer(eng, assets.NewS3Uploader(awsCfg), store, rec, broker)

	return d, func() {
		stopEvents()
		store.Close()
	}, nil
}

func printOutputs(outputs map[string]string) {
	if len(outputs) == 0 {
		return
	}
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("Outputs:")
	for _, k := range keys {
		fmt.Printf("  %-16s %s\n", k, outputs[k])
	}
}
