package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#6C6C6C")
	errorColor     = lipgloss.Color("#FF6B6B")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

func newTasksCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks and their prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(flags)
			if err != nil {
				return err
			}
			g, err := c.Graph()
			if err != nil {
				return err
			}

			names := g.Names()
			width := 0
			for _, name := range names {
				width = max(width, len(name))
			}
			nameStyle := TitleStyle.Width(width + 2)

			out := cmd.OutOrStdout()
			for _, name := range names {
				t, _ := g.Task(name)
				line := nameStyle.Render(name) + t.Description
				if len(t.Deps) > 0 {
					line += SubtleStyle.Render(" (after " + strings.Join(t.Deps, ", ") + ")")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
