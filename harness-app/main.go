package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/compose-network/ledger-harness/harness-app/config"
	"github.com/compose-network/ledger-harness/log"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/scenario"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:           "ledger-harness",
		Short:         "Ledger network verification harness",
		Long:          banner + "\n\nProbes a multi-node ledger network, runs ordered transaction scenarios against it and exports every node's block log.",
		RunE:          runScenarios,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Probe the network, run the enabled scenarios and export block logs",
		RunE:  runScenarios,
	}

	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Check that every configured node accepts connections",
		RunE:  runProbe,
	}

	exportCmd = &cobra.Command{
		Use:   "export-logs",
		Short: "Write each node's block history to <logs.dir>/<node>.log",
		RunE:  runExportLogs,
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen [label...]",
		Short: "Generate key pairs and print them in .env form",
		RunE:  runKeygen,
	}

	devnetCmd = &cobra.Command{
		Use:   "devnet",
		Short: "Run an in-memory development ledger behind gRPC until interrupted",
		RunE:  runDevnet,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
 _          _                   _                                 
| | ___  __| | __ _  ___ _ __  | |__   __ _ _ __ _ __   ___  ___ ___ 
| |/ _ \/ _' |/ _' |/ _ \ '__| | '_ \ / _' | '__| '_ \ / _ \/ __/ __|
| |  __/ (_| | (_| |  __/ |    | | | | (_| | |  | | | |  __/\__ \__ \
|_|\___|\__,_|\__, |\___|_|    |_| |_|\__,_|_|  |_| |_|\___||___/___/
              |___/`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initCommands() {
	rootCmd.AddCommand(runCmd, probeCmd, exportCmd, keygenCmd, devnetCmd, versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"harness-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Run flags
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().Bool("step", false, "ask for confirmation before each scenario group")
		c.Flags().String("policy", "", "failure policy (fail-fast, continue, skip-dependents)")
		c.Flags().StringSlice("scenarios", nil, "scenarios or groups to run, in catalog order")
		c.Flags().Int("retries", 0, "re-run a failed scenario this many times")
		c.Flags().Bool("devnet", false, "start an in-process devnet and run against it")
		c.Flags().String("report", "", "write the run report to this file")
	}

	exportCmd.Flags().String("dir", "", "output directory")
	exportCmd.Flags().String("format", "", "log format (json, yaml)")

	keygenCmd.Flags().String("scheme", "ed25519", "key scheme (ed25519, secp256k1)")

	devnetCmd.Flags().Int("nodes", 0, "number of gRPC listeners")
	devnetCmd.Flags().Int("base-port", 0, "port of the first listener")
	devnetCmd.Flags().Duration("block-interval", 0, "time between blocks")
}

func loadConfig(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")
	logger.Info().
		Str("config_file", cfgFile).
		Int("nodes", len(cfg.Network.Nodes)).
		Str("policy", string(cfg.Runner.Policy)).
		Strs("scenarios", cfg.Runner.Scenarios).
		Bool("devnet", cfg.Devnet.Embedded).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")
	return cfg, logger, nil
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), cfg, logger.Module("harness"))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	var opts RunOptions
	if cfg.Runner.Step {
		opts.Confirmer = scenario.NewPromptConfirmer(os.Stdin, os.Stdout)
	}

	report, runErr := app.Run(cmd.Context(), opts)
	printReport(report)
	return runErr
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := NewApp(cmd.Context(), cfg, logger.Module("probe"))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	report := app.Probe(cmd.Context())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tADDRESS\tREACHABLE\tLATENCY\tERROR")
	for _, r := range report.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", r.Endpoint.Name, r.Endpoint.Address(), r.Reachable, r.Latency, errText)
	}
	_ = w.Flush()
	return report.Err()
}

func runExportLogs(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := NewApp(cmd.Context(), cfg, logger.Module("blocklog"))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	files, err := app.ExportLogs(cmd.Context())
	for _, f := range files {
		fmt.Printf("%s\t%d blocks\t%s\n", f.Node, f.Blocks, f.Path)
	}
	return err
}

func runKeygen(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("scheme")
	scheme, err := keys.ParseScheme(name)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"key"}
	}
	for _, label := range args {
		kp, err := keys.Generate(scheme)
		if err != nil {
			return err
		}
		fmt.Println(keys.EnvLines(label, kp))
	}
	return nil
}

func runDevnet(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Devnet.Embedded = true

	app, err := NewApp(cmd.Context(), cfg, logger.Module("devnet"))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	net := app.Devnet()
	for _, ep := range net.Endpoints() {
		logger.Info().Str("node", ep.Name).Str("addr", ep.Address()).Msg("Devnet node listening")
	}
	if addr := net.APIAddr(); addr != "" {
		logger.Info().Str("addr", addr).Msg("Devnet API listening")
	}

	<-cmd.Context().Done()
	logger.Info().Msg("Shutting down devnet")
	return nil
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Ledger Harness\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printReport(r scenario.Report) {
	if len(r.Records) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tNODE\tSTATE\tEXPECTED\tACTUAL\tATTEMPTS\tRESULT")
	for _, rec := range r.Records {
		result := "PASS"
		switch {
		case rec.State == scenario.StateSkipped:
			result = "SKIP"
		case !rec.Passed:
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.Name, rec.Node, rec.State, rec.Expected, rec.Actual, rec.Attempts, result)
	}
	_ = w.Flush()
	fmt.Printf("\nrun %s: %d passed, %d failed, %d skipped\n", r.RunID, r.Passed(), r.Failed(), r.Skipped())
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if changed("log-pretty") {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}

	if changed("step") {
		cfg.Runner.Step, _ = flags.GetBool("step")
	}
	if changed("policy") {
		name, _ := flags.GetString("policy")
		p, err := scenario.ParsePolicy(name)
		if err != nil {
			return err
		}
		cfg.Runner.Policy = p
	}
	if changed("scenarios") {
		cfg.Runner.Scenarios, _ = flags.GetStringSlice("scenarios")
	}
	if changed("retries") {
		cfg.Runner.Retries, _ = flags.GetInt("retries")
	}
	if changed("devnet") {
		cfg.Devnet.Embedded, _ = flags.GetBool("devnet")
	}
	if changed("report") {
		cfg.Report.Path, _ = flags.GetString("report")
	}

	if changed("dir") {
		cfg.Logs.Dir, _ = flags.GetString("dir")
	}
	if changed("format") {
		cfg.Logs.Format, _ = flags.GetString("format")
	}

	if changed("nodes") {
		cfg.Devnet.Nodes, _ = flags.GetInt("nodes")
	}
	if changed("base-port") {
		cfg.Devnet.BasePort, _ = flags.GetInt("base-port")
	}
	if changed("block-interval") {
		cfg.Devnet.BlockInterval, _ = flags.GetDuration("block-interval")
	}
	return nil
}
