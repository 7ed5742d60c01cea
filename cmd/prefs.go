package cmd

import (
	"fmt"
	"os"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/example/teetime-scheduler/internal/preffile"
	"github.com/spf13/cobra"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect booking preferences",
	}
	cmd.AddCommand(newPrefsShowCmd(a))
	cmd.AddCommand(newPrefsInitCmd())
	return cmd
}

func newPrefsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Resolve preferences from the configured sources and print them as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			set, err := a.preferenceSource(cmd.Context()).LoadPreferences(cmd.Context())
			if err != nil {
				return err
			}
			b, err := preffile.Marshal(set)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newPrefsInitCmd() *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in default preferences to a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := preffile.Marshal(booking.DefaultPreferences())
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	c.Flags().StringVarP(&out, "out", "o", "preferences.yaml", "output path, - for stdout")
	return c
}
