package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/app_lock/internal/config"
	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/transport"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

const (
	callTimeout   = 10 * time.Second
	spawnTimeout  = 5 * time.Second
	spawnInterval = 100 * time.Millisecond
)

// errNotRunning is returned when a command needs the daemon and none is registered.
var errNotRunning = errors.New("applock daemon is not running (run 'applock start')")

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon if needed and turn the lock on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, true, func(ctx context.Context, c *transport.Client) error {
			return expectOK(ctx, c, cmd.OutOrStdout(), transport.MethodStartOverlayService, nil, "Lock on.")
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Turn the lock off (the daemon keeps running)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, false, func(ctx context.Context, c *transport.Client) error {
			return expectOK(ctx, c, cmd.OutOrStdout(), transport.MethodStopOverlayService, nil, "Lock off.")
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the daemon process",
	RunE:  runShutdown,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, lock and overlay state",
	RunE:  runStatus,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Turn the lock on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, true, func(ctx context.Context, c *transport.Client) error {
			return expectOK(ctx, c, cmd.OutOrStdout(), transport.MethodLock, nil, "Lock on.")
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <tag>",
	Short: "Turn the lock off with your tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, false, func(ctx context.Context, c *transport.Client) error {
			params := transport.UnlockParams{Tag: args[0]}
			return expectOK(ctx, c, cmd.OutOrStdout(), transport.MethodUnlock, params, "Unlocked.")
		})
	},
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage locked applications",
}

var appsSetCmd = &cobra.Command{
	Use:   "set <app>...",
	Short: "Replace the locked applications and turn the lock on",
	Long: `Replaces the locked applications. A non-empty selection turns the lock on;
an empty one turns it off.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setApps(cmd, args)
	},
}

var appsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all locked applications and turn the lock off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setApps(cmd, nil)
	},
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locked applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, false, func(ctx context.Context, c *transport.Client) error {
			st, err := fetchStatus(ctx, c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(st.Selection) == 0 {
				fmt.Fprintln(out, "No locked applications.")
				return nil
			}
			for _, id := range st.Selection {
				fmt.Fprintf(out, "  - %s\n", id)
			}
			return nil
		})
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the unlock tag",
}

var keySetCmd = &cobra.Command{
	Use:   "set <tag>",
	Short: "Store the tag that unlocks applock",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeySet,
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Check or request the overlay permission",
}

var permissionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether overlays may be drawn",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, true, func(ctx context.Context, c *transport.Client) error {
			resp, err := c.Call(ctx, transport.MethodCheckOverlayPermission, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay permission: %s\n", grantedLabel(resp.OK))
			return nil
		})
	},
}

var permissionRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Open the overlay settings and wait for the permission",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, true, func(ctx context.Context, c *transport.Client) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Waiting for overlay permission...")
			resp, err := c.Call(context.Background(), transport.MethodRequestOverlayPermission, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay permission: %s\n", grantedLabel(resp.OK))
			return nil
		})
	},
}

var permissionAccessibilityCmd = &cobra.Command{
	Use:   "accessibility",
	Short: "Open the accessibility settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, true, func(ctx context.Context, c *transport.Client) error {
			return expectOK(ctx, c, cmd.OutOrStdout(), transport.MethodOpenAccessibilitySettings, nil, "Accessibility settings opened.")
		})
	},
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	appsCmd.AddCommand(appsSetCmd, appsClearCmd, appsListCmd)
	keyCmd.AddCommand(keySetCmd)
	permissionCmd.AddCommand(permissionCheckCmd, permissionRequestCmd, permissionAccessibilityCmd)
}

// withDaemon connects to the running daemon, spawning it first when spawn is set.
func withDaemon(cmd *cobra.Command, spawn bool, fn func(ctx context.Context, c *transport.Client) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	registry := infra.NewFileRegistry(cfg.Storage.DataDir, infra.NewProcessManager())

	rec, err := findDaemon(registry)
	if err != nil {
		return err
	}
	if rec == nil {
		if !spawn {
			return errNotRunning
		}
		if rec, err = spawnDaemon(cmd.OutOrStdout(), registry); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	client, err := transport.Dial(ctx, rec.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, client)
}

// findDaemon returns the record of a live daemon, or nil.
func findDaemon(registry domain.ServerRegistry) (*domain.ServerRecord, error) {
	rec, err := registry.Lookup()
	if err != nil || rec == nil {
		return nil, err
	}
	alive, err := registry.IsAlive()
	if err != nil || !alive {
		return nil, err
	}
	return rec, nil
}

func spawnDaemon(out io.Writer, registry domain.ServerRegistry) (*domain.ServerRecord, error) {
	var args []string
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	pid, err := daemon.SpawnServer("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), spawnTimeout)
	defer cancel()
	rec, err := daemon.WaitForServer(ctx, registry, pid, spawnInterval)
	if err != nil {
		return nil, fmt.Errorf("daemon (pid %d): %w", pid, err)
	}
	fmt.Fprintf(out, "Started applock daemon (pid %d, %s)\n", rec.PID, rec.Addr)
	return rec, nil
}

func expectOK(ctx context.Context, c *transport.Client, out io.Writer, method string, params any, success string) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if !resp.OK {
		if resp.Error != "" {
			return fmt.Errorf("%s failed: %s", method, resp.Error)
		}
		return fmt.Errorf("%s was refused (see the daemon log)", method)
	}
	fmt.Fprintln(out, success)
	return nil
}

// setApps replaces the selection, then toggles the lock to match it.
func setApps(cmd *cobra.Command, ids []string) error {
	return withDaemon(cmd, len(ids) > 0, func(ctx context.Context, c *transport.Client) error {
		out := cmd.OutOrStdout()
		if ids == nil {
			ids = []string{}
		}
		if err := expectOK(ctx, c, io.Discard, transport.MethodSetLockedPackages, ids, ""); err != nil {
			return err
		}

		st, err := fetchStatus(ctx, c)
		if err != nil {
			return err
		}
		method, msg := lockToggle(st.Selection)
		if err := expectOK(ctx, c, io.Discard, method, nil, ""); err != nil {
			return err
		}
		if skipped := len(ids) - len(st.Selection); skipped > 0 {
			fmt.Fprintf(out, "Skipped %d invalid identifier(s).\n", skipped)
		}
		fmt.Fprintf(out, "Locked applications: %d. %s\n", len(st.Selection), msg)
		return nil
	})
}

// lockToggle picks the command that matches the selection: any app locks.
func lockToggle(selection []string) (method, msg string) {
	if len(selection) > 0 {
		return transport.MethodStartOverlayService, "Lock on."
	}
	return transport.MethodStopOverlayService, "Lock off."
}

func fetchStatus(ctx context.Context, c *transport.Client) (transport.StatusResult, error) {
	var st transport.StatusResult
	resp, err := c.Call(ctx, transport.MethodStatus, nil)
	if err != nil {
		return st, err
	}
	if !resp.OK {
		return st, fmt.Errorf("status failed: %s", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		return st, fmt.Errorf("malformed status: %w", err)
	}
	return st, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	err := withDaemon(cmd, false, func(ctx context.Context, c *transport.Client) error {
		st, err := fetchStatus(ctx, c)
		if err != nil {
			return err
		}
		if statusJSON {
			data, _ := json.Marshal(st)
			fmt.Fprintln(out, string(data))
			return nil
		}
		printStatus(out, st)
		return nil
	})
	if errors.Is(err, errNotRunning) {
		if statusJSON {
			fmt.Fprintln(out, `{"daemon":false}`)
		} else {
			fmt.Fprintln(out, "Daemon: NOT RUNNING")
			fmt.Fprintln(out, "\nRun 'applock start' to turn the lock on.")
		}
		return nil
	}
	return err
}

func printStatus(out io.Writer, st transport.StatusResult) {
	fmt.Fprintln(out, "\n=== applock Status ===")
	fmt.Fprintln(out, "Daemon: RUNNING")
	if st.Running {
		fmt.Fprintln(out, "Lock: ON")
	} else {
		fmt.Fprintln(out, "Lock: OFF")
	}
	if st.Running {
		fmt.Fprintf(out, "Foreground: %s\n", orDash(st.Foreground))
		fmt.Fprintf(out, "Previous: %s\n", orDash(st.Previous))
		fmt.Fprintf(out, "Overlay: %s\n", st.Overlay)
		fmt.Fprintf(out, "Pending actions: %d\n", st.Pending)
	}
	fmt.Fprintln(out, "\nLocked applications:")
	if len(st.Selection) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, id := range st.Selection {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	fmt.Fprintln(out, "======================")
}

func runShutdown(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.Storage.DataDir, pm)

	rec, err := findDaemon(registry)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "applock daemon is not running")
		return nil
	}
	if err := pm.Terminate(rec.PID); err != nil {
		return fmt.Errorf("failed to stop daemon (pid %d): %w", rec.PID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped applock daemon (pid %d)\n", rec.PID)
	return nil
}

func runKeySet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	tag := strings.TrimSpace(args[0])

	store, err := infra.OpenStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := usecase.NewKeyVerifier(store).SetSecret(tag); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Unlock tag stored.")
	return nil
}

func grantedLabel(ok bool) string {
	if ok {
		return "granted"
	}
	return "not granted"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
