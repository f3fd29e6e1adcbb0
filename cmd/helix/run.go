package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/pipeline"
	"github.com/kingrea/helix/internal/record"
	"github.com/kingrea/helix/internal/tui"
)

func (c *cli) newRunCmd() *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "run [records...]",
		Short: "Run the pipeline over record files",
		Long: `Runs every enabled module over the records in the given files (YAML or JSON)
and writes module outputs, index.html and <archive-name>.json to the output directory.

With --reuse-results, results stored in a previous archive are reused instead of
recomputed. Without record files the records are read back from that archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args, progress)
		},
	}
	bindPipelineFlags(cmd.Flags())
	cmd.Flags().BoolVar(&progress, "progress", false, "show an interactive progress view")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, args []string, progress bool) error {
	cfg, project, err := c.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	records, err := readRecords(args, cfg)
	if err != nil {
		return err
	}
	cfg = defaultArchiveName(cfg, project, cmd.Flags(), args)

	s, err := newSession(cfg, cfg.LogsDir(), !progress)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var report pipeline.Report
	if progress {
		report, err = c.runWithProgress(ctx, s, records, cfg)
	} else {
		var d *pipeline.Driver
		if d, err = s.driver(); err != nil {
			return err
		}
		report, err = d.Run(ctx, records, cfg)
	}
	printReport(cmd.OutOrStdout(), report)
	if err != nil && len(report.Failures()) == 0 && !report.Cancelled && !report.Aborted {
		return err
	}
	if err != nil || report.HasFailures() {
		return errRunFailed
	}
	return nil
}

func (c *cli) runWithProgress(ctx context.Context, s *session, records []*record.Record, cfg config.Config) (pipeline.Report, error) {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	plan, errs := pipeline.NewPlan(s.registry, cfg)
	var modules []string
	if len(errs) == 0 {
		modules = plan.EnabledIDs()
	}
	return tui.Run(ctx, cfg.ArchiveName, ids, modules, func(ctx context.Context, observe pipeline.Observer) (pipeline.Report, error) {
		d, err := s.driver(pipeline.WithObserver(observe))
		if err != nil {
			return pipeline.Report{}, err
		}
		return d.Run(ctx, records, cfg)
	})
}

// readRecords loads input files, or the records stored in the reused archive
// when no files are given.
func readRecords(paths []string, cfg config.Config) ([]*record.Record, error) {
	if len(paths) > 0 {
		return record.LoadFiles(paths...)
	}
	if cfg.ReuseResults == "" {
		return nil, fmt.Errorf("no record files given and no --%s archive to read records from", config.FlagReuseResults)
	}
	arc, err := archive.Load(cfg.ReuseResults)
	if err != nil {
		return nil, err
	}
	return arc.DecodeRecords()
}

// defaultArchiveName names the archive after the first input unless a name
// was configured.
func defaultArchiveName(cfg config.Config, project config.ProjectConfig, fs *pflag.FlagSet, args []string) config.Config {
	if fs.Changed(config.FlagArchiveName) || project.ArchiveName != "" {
		return cfg
	}
	switch {
	case len(args) > 0:
		cfg.ArchiveName = record.Stem(args[0])
	case cfg.ReuseResults != "":
		cfg.ArchiveName = record.Stem(cfg.ReuseResults)
	}
	return cfg
}
