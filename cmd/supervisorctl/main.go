// Command supervisorctl is the CLI surface for the supervisor: install,
// uninstall, start, stop, restart, and status for the host service
// (§4.F), plus vault inspection. It is a thin wrapper over
// internal/service and internal/vault, following the teacher's
// convention of a single small main package per binary (cmd/attn,
// cmd/cm) rather than a generated scaffold.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cowork-run/supervisor/internal/agentpath"
	"github.com/cowork-run/supervisor/internal/config"
	"github.com/cowork-run/supervisor/internal/dashboard"
	"github.com/cowork-run/supervisor/internal/facade"
	"github.com/cowork-run/supervisor/internal/service"
	"github.com/cowork-run/supervisor/internal/vault"
	"github.com/cowork-run/supervisor/internal/worker"
)

var modeFlag string

func main() {
	root := &cobra.Command{
		Use:   "supervisorctl",
		Short: "Manage the cowork supervisor's host service and credential vault",
	}
	root.PersistentFlags().StringVar(&modeFlag, "mode", "", "service mode: user or system (defaults to the persisted mode)")

	root.AddCommand(
		newStatusCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newVaultCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveMode(dataDir string) service.Mode {
	if modeFlag != "" {
		return service.Mode(modeFlag)
	}
	return service.LoadMode(dataDir)
}

func workerSpec() (service.WorkerSpec, error) {
	dataDir, err := agentpath.DataDir(config.AppID)
	if err != nil {
		return service.WorkerSpec{}, fmt.Errorf("resolve data directory: %w", err)
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	ep := agentpath.ResolveEndpoint(dataDir, agentpath.SanitizeUsername(user))

	daemonPath, err := agentpath.StageBinary("supervisord", "", dataDir)
	if err != nil {
		// Status/uninstall/stop should still work even if the daemon
		// binary hasn't been staged yet; only Install needs it to exist.
		daemonPath = ""
	}

	return service.WorkerSpec{
		ServiceID:  "run.cowork.supervisor",
		BinaryPath: daemonPath,
		Args: []string{
			"--data-dir", dataDir,
			"--endpoint", ep.String(),
			"--token-file", agentpath.TokenPath(dataDir),
			"--lock-file", agentpath.LockPath(dataDir),
		},
		DataDir:   dataDir,
		Endpoint:  ep.String(),
		TokenPath: agentpath.TokenPath(dataDir),
		LockPath:  agentpath.LockPath(dataDir),
	}, nil
}

func newStatusCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the installed service's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			if watch {
				return runWatch(spec)
			}
			status, err := service.ForHost().Status(resolveMode(spec.DataDir), spec)
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "show a live-updating view of session, transport, and service state")
	return cmd
}

// runWatch drives the bubbletea dashboard over the same facade and
// service surfaces newStatusCmd's one-shot path uses.
func runWatch(spec service.WorkerSpec) error {
	v, err := openVault()
	if err != nil {
		return err
	}

	workerPath, workerArgs, err := agentpath.ResolveWorkerExec("worker", "", spec.DataDir)
	if err != nil {
		workerPath = ""
	}
	f := facade.New(worker.New(), v, worker.Options{
		DataDir:          spec.DataDir,
		DaemonBinaryPath: spec.BinaryPath,
		WorkerBinaryPath: workerPath,
		WorkerArgs:       workerArgs,
	})

	m := dashboard.NewModel(f, service.ForHost(), resolveMode(spec.DataDir), spec, v)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the supervisor as a host service",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			if spec.BinaryPath == "" {
				return fmt.Errorf("supervisord binary could not be staged; build it and place it alongside this binary")
			}
			mode := resolveMode(spec.DataDir)
			if err := service.ForHost().Install(mode, spec); err != nil {
				return err
			}
			return service.PersistMode(spec.DataDir, mode)
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the installed host service",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			mode := resolveMode(spec.DataDir)
			if err := service.ForHost().Uninstall(mode, spec); err != nil {
				return err
			}
			return service.ClearMode(spec.DataDir)
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the installed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			return service.ForHost().Start(resolveMode(spec.DataDir), spec)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the installed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			return service.ForHost().Stop(resolveMode(spec.DataDir), spec)
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the installed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := workerSpec()
			if err != nil {
				return err
			}
			return service.ForHost().Restart(resolveMode(spec.DataDir), spec)
		},
	}
}

func newVaultCmd() *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect the credential vault",
	}
	vaultCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the (service, account) pairs with a stored credential, never the secret values",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			pairs, err := v.List()
			if err != nil {
				return err
			}
			return printJSON(pairs)
		},
	})
	vaultCmd.AddCommand(&cobra.Command{
		Use:   "wipe",
		Short: "Reset the vault file and remove the keychain connector seed (logout-and-cleanup's vault step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			return v.WipeAll()
		},
	})
	return vaultCmd
}

func openVault() (*vault.Vault, error) {
	dataDir, err := agentpath.DataDir(config.AppID)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	return vault.Open(vault.Config{
		VaultFilePath: filepath.Join(dataDir, "credentials.vault.json"),
		ConfigDir:     dataDir,
		AppID:         config.AppID,
		PriorAppID:    config.PriorAppID,
		Backend:       vault.BackendFromEnv(),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
