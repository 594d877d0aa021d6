package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage starting the daemon at login",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start the daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}

		a := infra.NewAutostart()
		if a.IsInstalled() && !a.NeedsUpdate(execPath, configPath) {
			fmt.Fprintf(cmd.OutOrStdout(), "Autostart already enabled (%s)\n", a.Path())
			return nil
		}
		if err := a.Install(execPath, configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Autostart enabled (%s)\n", a.Path())
		return nil
	},
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop starting the daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := infra.NewAutostart()
		if err := a.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Autostart disabled.")
		return nil
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon starts at login",
	Run: func(cmd *cobra.Command, args []string) {
		a := infra.NewAutostart()
		state := "disabled"
		if a.IsInstalled() {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Autostart: %s (%s)\n", state, a.Path())
	},
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd, autostartDisableCmd, autostartStatusCmd)
}
