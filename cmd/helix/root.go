package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/logging"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/modules"
	"github.com/kingrea/helix/internal/output"
	"github.com/kingrea/helix/internal/pipeline"
)

// errRunFailed signals a finished command whose report was already printed.
var errRunFailed = errors.New("helix: run reported failures")

// cli holds state shared by every command.
type cli struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "helix",
		Short:         "Resumable record analysis pipeline",
		Long:          "helix runs analysis modules over sequence records, writes their outputs and an archive\nthat later runs can reuse with --reuse-results.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "project config file (YAML)")
	root.PersistentFlags().BoolVarP(&c.verbose, config.FlagVerbose, "v", false, "log debug output")

	root.AddCommand(c.newRunCmd(), c.newCheckCmd(), c.newVerifyCmd(), c.newModulesCmd())
	return root
}

// optionSets returns every module and output plugin option set. The registry
// is only used for its declarations.
func optionSets() []config.OptionSet {
	return modules.OptionSets(modules.Builtins(modules.Options{}), output.NewHTML().Options())
}

// bindPipelineFlags registers the core and module flags on fs.
func bindPipelineFlags(fs *pflag.FlagSet) {
	config.BindCore(fs)
	for _, set := range optionSets() {
		set.Bind(fs)
	}
}

// loadConfig merges the project file with flags.
func (c *cli) loadConfig(fs *pflag.FlagSet) (config.Config, config.ProjectConfig, error) {
	project, err := config.LoadProjectConfig(c.configPath)
	if err != nil {
		return config.Config{}, project, err
	}
	cfg, err := config.Build(project, fs, optionSets())
	if err != nil {
		return config.Config{}, project, err
	}
	return cfg, project, nil
}

// session wires the logger, registry, gateway and driver for one command.
type session struct {
	logger   *zap.Logger
	registry *module.Registry
	gateway  *output.Gateway
}

// newSession logs to logsDir, or only to stderr when logsDir is empty.
func newSession(cfg config.Config, logsDir string, console bool) (*session, error) {
	logger, err := logging.New(logsDir, logging.Options{Verbose: cfg.Verbose, Console: console})
	if err != nil {
		return nil, err
	}
	reg := modules.Builtins(modules.Options{Logger: logger})
	return &session{
		logger:   logger,
		registry: reg,
		gateway:  output.New(reg, output.WithLogger(logger)),
	}, nil
}

func (s *session) driver(opts ...pipeline.Option) (*pipeline.Driver, error) {
	base := []pipeline.Option{pipeline.WithLogger(s.logger), pipeline.WithToolVersion(version)}
	return pipeline.New(s.registry, s.gateway, append(base, opts...)...)
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// signalContext cancels on interrupt so a run stops without writing an
// archive.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printErrors(cmd *cobra.Command, errs []error) {
	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s %v\n", failStyle.Render("✗"), err)
	}
}
