package main

import (
	"fmt"
	"strings"

	"aider-web/internal/settings"

	"github.com/spf13/cobra"
)

// settingsCmd groups the stored model settings commands.
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change stored model settings",
	Long: `Model settings are sent to the backend when a session starts.

Available subcommands:
  show - Print the stored settings as YAML
  set  - Change one or more settings (key=value)
  keys - List setting keys`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored settings as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settings.Open(cfg.SettingsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		s, err := store.Load()
		if err != nil {
			return err
		}
		return writeSettingsYAML(cmd.OutOrStdout(), s)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value [key=value ...]",
	Short: "Change stored settings",
	Example: `  aider-web settings set model=gpt-4o
  aider-web settings set edit_format=diff lazy=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settings.Open(cfg.SettingsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		s, err := store.Load()
		if err != nil {
			return err
		}
		if err := applyAssignments(&s, args); err != nil {
			return err
		}
		if err := store.Save(s); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
		return nil
	},
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List setting keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range settings.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimPrefix(k, "aider_"))
		}
	},
}

// applyAssignments applies key=value arguments in order, stopping at the
// first invalid one.
func applyAssignments(s *settings.Settings, args []string) error {
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", a)
		}
		if err := s.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return nil
}
