package service

import (
	"fmt"
	"strings"
)

// scmInstaller implements §4.F's Windows host family: Task Scheduler for
// ModeUser (a logon-triggered task), the Service Control Manager for
// ModeSystem (an auto-start service).
type scmInstaller struct{}

func (s *scmInstaller) binPath(spec WorkerSpec) string {
	parts := append([]string{quoteWindowsArg(spec.BinaryPath)}, quoteWindowsArgs(spec.Args)...)
	return strings.Join(parts, " ")
}

func quoteWindowsArg(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func quoteWindowsArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = quoteWindowsArg(a)
	}
	return out
}

func (s *scmInstaller) Install(mode Mode, spec WorkerSpec) error {
	if mode == ModeUser {
		_, err := runCombined("schtasks", "/Create", "/TN", spec.ServiceID, "/SC", "ONLOGON",
			"/TR", s.binPath(spec), "/RL", "LIMITED", "/F")
		return err
	}
	_, err := runCombined("sc", "create", spec.ServiceID, "binPath=", s.binPath(spec),
		"start=", "auto", "DisplayName=", spec.ServiceID)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		_, err = runCombined("sc", "config", spec.ServiceID, "binPath=", s.binPath(spec), "start=", "auto")
	}
	if err != nil {
		return fmt.Errorf("create/reconfigure service: %w", err)
	}
	_, err = runCombined("sc", "description", spec.ServiceID, spec.ServiceID)
	return err
}

func (s *scmInstaller) Uninstall(mode Mode, spec WorkerSpec) error {
	if mode == ModeUser {
		_, err := runCombined("schtasks", "/Delete", "/TN", spec.ServiceID, "/F")
		return err
	}
	_, _ = runCombined("sc", "stop", spec.ServiceID)
	_, err := runCombined("sc", "delete", spec.ServiceID)
	return err
}

func (s *scmInstaller) Start(mode Mode, spec WorkerSpec) error {
	if mode == ModeUser {
		_, err := runCombined("schtasks", "/Run", "/TN", spec.ServiceID)
		return err
	}
	_, err := runCombined("sc", "start", spec.ServiceID)
	return err
}

func (s *scmInstaller) Stop(mode Mode, spec WorkerSpec) error {
	if mode == ModeUser {
		_, err := runCombined("schtasks", "/End", "/TN", spec.ServiceID)
		return err
	}
	_, err := runCombined("sc", "stop", spec.ServiceID)
	return err
}

func (s *scmInstaller) Restart(mode Mode, spec WorkerSpec) error {
	if err := s.Stop(mode, spec); err != nil {
		_ = err // best-effort, may not have been running
	}
	return s.Start(mode, spec)
}

func (s *scmInstaller) Status(mode Mode, spec WorkerSpec) (Status, error) {
	status := Status{
		Mode:       mode,
		ServiceID:  spec.ServiceID,
		WorkerPath: spec.BinaryPath,
		WorkerArgs: spec.Args,
		DataDir:    spec.DataDir,
		Endpoint:   spec.Endpoint,
		TokenPath:  spec.TokenPath,
		LockPath:   spec.LockPath,
	}
	if mode == ModeUser {
		status.Manager = "task-scheduler"
		out, err := runCombined("schtasks", "/Query", "/TN", spec.ServiceID, "/V", "/FO", "LIST")
		status.Details = out
		if err == nil {
			status.Installed = true
			status.Running = strings.Contains(out, "Running")
			status.Enabled = !strings.Contains(out, "Disabled")
		}
		return status, nil
	}
	status.Manager = "scm"
	out, err := runCombined("sc", "query", spec.ServiceID)
	status.Details = out
	if err == nil {
		status.Installed = true
		status.Running = strings.Contains(out, "RUNNING")
	}
	configOut, _ := runCombined("sc", "qc", spec.ServiceID)
	status.Enabled = strings.Contains(configOut, "AUTO_START")
	return status, nil
}
