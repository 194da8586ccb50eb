package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/autoscaling"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/engine"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/health"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/monitor"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/stack"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the deployed endpoint the way the load balancer does",
	Long: `Probe the load balancer of the deployed stack: first a TCP connect on the
listener port, then an HTTP GET of the health check path. Each check repeats
at the health check interval until it crosses the healthy or unhealthy
threshold.

Examples:
  # Verify the deployed stack
  appsignals verify

  # Verify a known endpoint without describing the stack
  appsignals verify --endpoint lb-123.ap-northeast-1.elb.amazonaws.com --interval 2s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		st, _, err := synthesize()
		if err != nil {
			return err
		}
		binding := st.Service.LoadBalancer
		policy := binding.HealthCheck

		if endpoint == "" {
			awsCfg, err := loadAWS(ctx)
			if err != nil {
				return err
			}
			state, err := engine.NewCloudFormation(awsCfg).Describe(ctx, cfg.StackName)
			if err != nil {
				return err
			}
			endpoint = state.Outputs[stack.OutputLoadBalancerDNS]
			if endpoint == "" {
				return fmt.Errorf("stack %s has no %s output yet (status %s)", cfg.StackName, stack.OutputLoadBalancerDNS, state.Status)
			}
		}

		hc := health.ConfigFromPolicy(policy)
		if interval > 0 {
			hc.Interval = interval
			if hc.Timeout >= interval {
				hc.Timeout = interval / 2
			}
		}

		probePolicy := policy
		probePolicy.Timeout = hc.Timeout
		listener := health.NewListenerProbe(endpoint, binding.ListenerPort, hc.Timeout)
		path := health.NewPathProbe("http://"+listener.Address, probePolicy)
		broker, stopEvents := printEvents()
		defer stopEvents()

		v := health.NewVerifier(hc,
			listener,
			path,
		)
		v.Publisher = broker

		fmt.Printf("Verifying %s (healthy after %d, unhealthy after %d, every %s)\n",
			path.URL, hc.HealthyThreshold, hc.UnhealthyThreshold, hc.Interval)
		report, err := v.Run(ctx)
		if err != nil {
			return err
		}

		for _, c := range report.Checks {
			mark := "✓"
			if c.Status.State != health.StateHealthy {
				mark = "✗"
			}
			fmt.Printf("%s %-4s %s: %s after %d attempts (%s)\n",
				mark, c.Type, c.Target, c.Status.State, c.Status.Attempts, c.Status.LastResult.Message)
		}
		if !report.Healthy() {
			return errors.New("endpoint is unhealthy")
		}
		return nil
	},
}

var canaryCmd = &cobra.Command{
	Use:   "canary",
	Short: "Inspect the synthetic canary",
}

var canaryRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent canary runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		awsCfg, err := loadAWS(cmd.Context())
		if err != nil {
			return err
		}
		var rt monitor.Runtime = monitor.NewSynthetics(awsCfg)

		state, err := rt.State(cmd.Context(), cfg.Canary.Name)
		if err != nil {
			return err
		}
		runs, err := rt.Runs(cmd.Context(), cfg.Canary.Name, limit)
		if err != nil {
			return err
		}
		summary := monitor.Summarize(runs)
		monitor.Record(summary)

		fmt.Printf("Canary %s is %s\n", cfg.Canary.Name, state)
		if len(runs) == 0 {
			fmt.Println("No runs yet")
			return nil
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Run", "State", "Started", "Duration", "Reason"})
		for _, r := range runs {
			tw.AppendRow(table.Row{r.ID, r.State, humanize.Time(r.Started), r.Duration().Round(time.Millisecond), r.Reason})
		}
		tw.AppendFooter(table.Row{
			fmt.Sprintf("%d runs", summary.Total),
			fmt.Sprintf("%d failed", summary.Failed),
			"", "",
			fmt.Sprintf("%.1f%% passed", summary.SuccessRate()),
		})
		tw.Render()
		return nil
	},
}

var scalingCmd = &cobra.Command{
	Use:   "scaling",
	Short: "Exercise the scaling policy offline",
}

var scalingSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay CPU samples through the target-tracking policy",
	Long: `Replay average CPU samples, one per step, through a model of the
service's target-tracking policy and print every decision, including
changes suppressed by a cooldown.

Examples:
  appsignals scaling simulate --cpu 90,95,95,40,20,20 --step 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, _ := cmd.Flags().GetFloat64Slice("cpu")
		step, _ := cmd.Flags().GetDuration("step")
		if len(samples) == 0 {
			return errors.New("--cpu needs at least one sample")
		}

		policy := autoscaling.PolicyFromConfig(cfg.Scaling)
		if err := policy.Validate(); err != nil {
			return err
		}
		eval := autoscaling.NewEvaluator(policy, cfg.Scaling.DesiredCount)

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"T", "CPU %", "Action", "Tasks", "Note"})
		start := time.Time{}
		for i, cpu := range samples {
			d := eval.Evaluate(start.Add(time.Duration(i)*step), cpu)
			note := ""
			if d.Cooldown {
				note = "cooldown"
			}
			tw.AppendRow(table.Row{
				"+" + (time.Duration(i) * step).String(),
				fmt.Sprintf("%.0f", d.CPU),
				d.Action,
				fmt.Sprintf("%d → %d", d.From, d.To),
				note,
			})
		}
		tw.Render()
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("endpoint", "", "Load balancer DNS name (default: the stack's output)")
	verifyCmd.Flags().Duration("interval", 0, "Override the health check interval")

	canaryRunsCmd.Flags().IntP("limit", "n", 10, "Number of runs to show")
	canaryCmd.AddCommand(canaryRunsCmd)

	scalingSimulateCmd.Flags().Float64Slice("cpu", nil, "Average CPU utilization samples, in percent")
	scalingSimulateCmd.Flags().Duration("step", 30*time.Second, "Time between samples")
	scalingCmd.AddCommand(scalingSimulateCmd)

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(canaryCmd)
	rootCmd.AddCommand(scalingCmd)
}
