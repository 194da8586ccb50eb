package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/events"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is resolved once in PersistentPreRunE and read by every command
var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appsignals",
	Short: "Deploy a Fargate service instrumented for CloudWatch Application Signals",
	Long: `appsignals synthesizes the AWS topology for a containerized service
instrumented with OpenTelemetry: a VPC, an ECS Fargate service behind an
Application Load Balancer, ADOT collector and CloudWatch agent sidecars,
the IAM roles they need, and a Synthetics canary probing the public endpoint.

The topology is emitted as a CloudFormation template and can be deployed,
verified and destroyed from the same binary.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(viper.GetViper(), file)
		if err != nil {
			return err
		}
		cfg = loaded

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("metrics-file")
		if path == "" {
			return nil
		}
		return metrics.WriteTextfile(path)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"appsignals version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Flag defaults mirror config.Default so an unset flag never blanks a value
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("region", defaults.Region, "AWS region")
	flags.String("stack-name", defaults.StackName, "Stack name")
	flags.String("data-dir", defaults.DataDir, "Directory for local deployment records")
	flags.String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.Bool("log-json", defaults.Log.JSON, "Log as JSON")
	flags.String("metrics-file", "", "Write metrics to this file on exit (node-exporter textfile format)")

	_ = viper.BindPFlag("region", flags.Lookup("region"))
	_ = viper.BindPFlag("stack-name", flags.Lookup("stack-name"))
	_ = viper.BindPFlag("data-dir", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.json", flags.Lookup("log-json"))

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Configuration is not needed to print the version
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("appsignals version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// loadAWS resolves credentials through the default provider chain
func loadAWS(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return awsCfg, nil
}

func openStore() (*storage.BoltStore, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Join(cfg.DataDir, "appsignals.db"), err)
	}
	return store, nil
}

// printEvents starts a broker whose events are printed as progress lines.
// The returned stop function drains the queue before returning.
func printEvents() (*events.Broker, func()) {
	broker := events.NewBroker()
	sub := broker.Subscribe()
	broker.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub {
			fmt.Printf("  %s  %-22s %s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Message)
		}
	}()

	return broker, func() {
		broker.Stop()
		broker.Unsubscribe(sub)
		<-done
	}
}
