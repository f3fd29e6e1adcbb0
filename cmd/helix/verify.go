package main

import (
	"github.com/spf13/cobra"

	"github.com/kingrea/helix/internal/config"
)

func (c *cli) newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check that every cached result in an archive can be reused",
		Long: `Rebuilds and applies each stored result against the records in the archive
without computing anything or writing outputs. Malformed payloads are reported
as failures; results for disabled modules are skipped. Outputs under the output
directory that are missing or were edited since they were written are listed as
stale. Logs go to stderr only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			cfg.ReuseResults = args[0]
			s, err := newSession(cfg, "", true)
			if err != nil {
				return err
			}
			defer s.close()
			d, err := s.driver()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			report, err := d.Verify(ctx, cfg)
			printReport(cmd.OutOrStdout(), report)
			if err != nil && len(report.Failures()) == 0 {
				return err
			}
			if err != nil || report.HasFailures() {
				return errRunFailed
			}
			return nil
		},
	}
	bindPipelineFlags(cmd.Flags())
	_ = cmd.Flags().MarkHidden(config.FlagReuseResults)
	return cmd
}
