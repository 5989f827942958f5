package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"cowfork/internal/config"
	"cowfork/internal/metrics"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/sim"
	"cowfork/kernel/sys"
	"cowfork/lib/fork"

	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath string
	logLevel   string
	metrics    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a fork scenario on the reference kernel",
		Long:  "Run a fork scenario on the reference kernel.\n\nScenarios:\n" + scenarioHelp(),
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return scenarioNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print kernel metrics after the scenario")
	return cmd
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scenarioHelp() string {
	var b strings.Builder
	for _, name := range scenarioNames() {
		fmt.Fprintf(&b, "  %-9s %s\n", name, scenarios[name].desc)
	}
	return b.String()
}

func loadConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	if opts.configPath == "" {
		return config.Default(), nil
	}

	cfg, warnings, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	return cfg, nil
}

func setupLogging(w io.Writer, cfg *config.Config, opts runOptions) error {
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}

	kfmt.SetOutput(w)
	if err := kfmt.SetLevel(level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if err := kfmt.SetFormat(cfg.Log.Format); err != nil {
		return fmt.Errorf("invalid log format %q: %w", cfg.Log.Format, err)
	}
	return nil
}

func runScenario(cmd *cobra.Command, name string, opts runOptions) error {
	sc, ok := scenarios[name]
	if !ok {
		return fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(scenarioNames(), ", "))
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err = setupLogging(cmd.ErrOrStderr(), cfg, opts); err != nil {
		return err
	}

	kcfg := sim.Config{
		Frames:  cfg.Kernel.Frames,
		MaxEnvs: cfg.Kernel.MaxEnvs,
	}

	var collector *metrics.Collector
	if opts.metrics || cfg.Metrics.Enabled {
		collector = metrics.New()
		kcfg.Observer = collector
	}

	k, kerr := sim.New(kcfg)
	if kerr != nil {
		return kerr
	}

	root, kerr := k.Spawn(func(s sys.Syscalls) {
		if err := sc.run(fork.New(s)); err != nil {
			kfmt.Panic(err)
		}
	})
	if kerr != nil {
		return kerr
	}
	k.Wait()

	out := cmd.OutOrStdout()
	if _, err = io.WriteString(out, k.Console()); err != nil {
		return err
	}

	if collector != nil {
		if err = collector.WriteText(out); err != nil {
			return err
		}
	}

	if exitErr, _ := k.ExitErr(root); exitErr != nil {
		return fmt.Errorf("scenario %s failed: %s", name, exitErr.Message)
	}
	return nil
}
