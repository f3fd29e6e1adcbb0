package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/helix/internal/modules"
	"github.com/kingrea/helix/internal/output"
	"github.com/kingrea/helix/internal/pipeline"
)

func (c *cli) newModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List modules in execution order with their options",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			reg := modules.Builtins(modules.Options{})
			plan, errs := pipeline.NewPlan(reg, cfg)
			if plan == nil {
				printErrors(cmd, errs)
				return errRunFailed
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("MODULE", "VERSION", "ENABLED", "DEPENDS ON", "OPTIONS")
			for _, step := range plan.Steps() {
				t.Row(step.Info.ID, step.Info.Version, fmt.Sprint(step.Enabled), strings.Join(step.Info.DependsOn, ", "), optionNames(step.Module.Options().Options))
			}
			html := output.NewHTML()
			t.Row(html.Info().ID, html.Info().Version, fmt.Sprint(html.IsEnabled(cfg)), "", optionNames(html.Options().Options))
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	bindPipelineFlags(cmd.Flags())
	return cmd
}
