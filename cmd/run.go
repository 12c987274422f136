package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"power-budget/internal/config"
	"power-budget/internal/database"
	"power-budget/internal/logging"
	"power-budget/internal/power"
	"power-budget/internal/publisher"
	"power-budget/internal/trace"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configFile string
	influx     bool
	nats       bool
	spool      bool
	spoolDir   string
	asJSON     bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a device trace against the power budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTrace(ctx, cmd.OutOrStdout(), opts)
		},
	}

	runCmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to power budget configuration file")
	runCmd.Flags().BoolVar(&opts.influx, "influx", false, "Write every step to InfluxDB")
	runCmd.Flags().BoolVar(&opts.nats, "nats", false, "Publish every step to NATS")
	runCmd.Flags().BoolVar(&opts.spool, "spool", false, "Write a gzip JSON artifact of the run")
	runCmd.Flags().StringVar(&opts.spoolDir, "spool-dir", "", "Directory for spool artifacts (overrides config)")
	runCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the final report as JSON")
	runCmd.MarkFlagRequired("config")

	return runCmd
}

func newDemoCmd() *cobra.Command {
	var asJSON bool

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Replay the built-in three-device reference scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), asJSON)
		},
	}
	demoCmd.Flags().BoolVar(&asJSON, "json", false, "Print the final report as JSON")
	return demoCmd
}

func newValidateCmd() *cobra.Command {
	var configFile string

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a power budget configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to power budget configuration file")
	validateCmd.MarkFlagRequired("config")
	return validateCmd
}

func newShowCmd() *cobra.Command {
	var file string
	var asJSON bool

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the final allocation stored in a spool artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showArtifact(cmd.OutOrStdout(), file, asJSON)
		},
	}
	showCmd.Flags().StringVarP(&file, "file", "f", "", "Path to a spool artifact (.json.gz)")
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print the final report as JSON")
	showCmd.MarkFlagRequired("file")
	return showCmd
}

func validateConfig(out io.Writer, configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	checksum, err := config.TraceChecksum(cfg)
	if err != nil {
		return fmt.Errorf("failed to compute trace checksum: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"config_file": configFile,
		"events":      len(cfg.Trace),
		"checksum":    checksum,
	}).Info("Configuration is valid")
	_, err = fmt.Fprintf(out, "%s: valid (%d events, checksum %s)\n", configFile, len(cfg.Trace), checksum)
	return err
}

func runDemo(ctx context.Context, out io.Writer, asJSON bool) error {
	m, err := power.NewManager(power.Options{Limits: power.DefaultLimits()})
	if err != nil {
		return err
	}
	replayer := trace.NewReplayer(m, nil)
	if _, err := replayer.Replay(ctx, trace.NewRun("demo", ""), trace.ReferenceScenario()); err != nil {
		return fmt.Errorf("demo replay failed: %w", err)
	}
	return printReport(out, m.Snapshot(), asJSON)
}

func runTrace(ctx context.Context, out io.Writer, opts runOptions) error {
	logger := logging.GetLogger()

	cfg, configContent, err := config.LoadConfigWithContent(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Manager.LogLevel != "" {
		if err := logging.SetLogLevel(cfg.Manager.LogLevel); err != nil {
			logger.WithField("log_level", cfg.Manager.LogLevel).WithError(err).Warn("Invalid log level in config, keeping current level")
		}
	}

	checksum, err := config.TraceChecksum(cfg)
	if err != nil {
		return fmt.Errorf("failed to compute trace checksum: %w", err)
	}

	m, err := power.NewManager(cfg.ManagerOptions())
	if err != nil {
		return fmt.Errorf("failed to create power manager: %w", err)
	}

	run := trace.NewRun(cfg.Manager.Name, checksum)
	replayer := trace.NewReplayer(m, logger)

	var dbClient database.DatabaseClient
	if opts.influx {
		dbCfg, err := databaseConfig(cfg.Data.DB)
		if err != nil {
			return err
		}
		client, err := database.NewInfluxDBClient(dbCfg)
		if err != nil {
			return fmt.Errorf("failed to create database client: %w", err)
		}
		defer client.Close()
		dbClient = client
		replayer.AddRecorder(client)
	}

	if opts.nats {
		pub, err := publisher.NewNATSPublisher(cfg.Data.NATS)
		if err != nil {
			return err
		}
		defer pub.Close()
		replayer.AddRecorder(pub)
	}

	logger.WithFields(logrus.Fields{
		"run_id":        run.ID,
		"manager":       cfg.Manager.Name,
		"events":        len(cfg.Trace),
		"checksum":      checksum,
		"safe_capacity": cfg.Manager.SafeCapacity,
	}).Info("Starting trace replay")

	steps, err := replayer.Replay(ctx, run, cfg.Trace)
	if err != nil {
		return fmt.Errorf("trace replay failed: %w", err)
	}

	final := m.Snapshot()
	endTime := time.Now()
	metadata := database.CollectRunMetadata(run, cfg, steps, final, endTime, Version)

	if dbClient != nil {
		if err := dbClient.WriteRunMetadata(ctx, metadata); err != nil {
			return err
		}
	}

	if opts.spool || cfg.Data.Spool.Enabled {
		dir := opts.spoolDir
		if dir == "" {
			dir = cfg.Data.Spool.Dir
		}
		artifact := database.BuildSpoolArtifact(run, configContent, metadata, steps, final, endTime)
		path, err := database.WriteSpoolArtifact(dir, artifact)
		if err != nil {
			return fmt.Errorf("failed to write spool artifact: %w", err)
		}
		logger.WithField("path", path).Info("Wrote spool artifact")
	}

	logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"steps":     len(steps),
		"throttles": metadata.TotalThrottle,
		"total":     final.Total,
	}).Info("Trace replay finished")

	return printReport(out, final, opts.asJSON)
}

func showArtifact(out io.Writer, file string, asJSON bool) error {
	artifact, err := database.ReadSpoolArtifact(file)
	if err != nil {
		return fmt.Errorf("failed to read spool artifact: %w", err)
	}
	if asJSON {
		return printReport(out, artifact.Final, true)
	}
	if _, err := fmt.Fprintf(out, "run %s (%s, checksum %s, %d steps)\n",
		artifact.RunID, artifact.ManagerName, artifact.TraceChecksum, len(artifact.Steps)); err != nil {
		return err
	}
	return printReport(out, artifact.Final, false)
}

func printReport(out io.Writer, report power.Report, asJSON bool) error {
	if !asJSON {
		return report.Print(out)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// databaseConfig fills empty fields from the INFLUXDB_* environment.
func databaseConfig(db config.DatabaseConfig) (config.DatabaseConfig, error) {
	logger := logging.GetLogger()

	fill := func(field *string, env string, missing *[]string) {
		if *field != "" {
			return
		}
		*field = os.Getenv(env)
		if *field == "" {
			*missing = append(*missing, env)
		}
	}

	var missing []string
	fill(&db.Host, "INFLUXDB_HOST", &missing)
	fill(&db.Name, "INFLUXDB_BUCKET", &missing)
	fill(&db.Password, "INFLUXDB_TOKEN", &missing)
	fill(&db.Org, "INFLUXDB_ORG", &missing)
	if db.User == "" {
		db.User = os.Getenv("INFLUXDB_USER")
	}

	if len(missing) > 0 {
		logger.WithField("missing_vars", missing).Error("Missing required environment variables")
		return db, fmt.Errorf("missing required environment variables: %v. Please ensure your .env file contains these variables", missing)
	}
	return db, nil
}
