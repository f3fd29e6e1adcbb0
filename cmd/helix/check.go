package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [records...]",
		Short: "Validate options, module readiness and record files without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				if _, err := readRecords(args, cfg); err != nil {
					return err
				}
			}
			s, err := newSession(cfg, "", true)
			if err != nil {
				return err
			}
			defer s.close()
			d, err := s.driver()
			if err != nil {
				return err
			}
			plan, errs := d.Prepare(cfg)
			out := cmd.OutOrStdout()
			if plan != nil {
				for _, step := range plan.Steps() {
					state := skipStyle.Render("disabled")
					if step.Enabled {
						state = okStyle.Render("enabled")
					}
					fmt.Fprintf(out, "%-32s %s\n", step.Info.ID, state)
				}
			}
			if len(errs) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d problem(s) found:\n", len(errs))
				printErrors(cmd, errs)
				return errRunFailed
			}
			fmt.Fprintln(out, okStyle.Render("ready"))
			return nil
		},
	}
	bindPipelineFlags(cmd.Flags())
	return cmd
}
