package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// systemdInstaller implements §4.F's systemd-style host family (Linux):
// a unit under ~/.config/systemd/user/ for ModeUser, or
// /etc/systemd/system/ for ModeSystem.
type systemdInstaller struct{}

const systemdUnitTemplate = `[Unit]
Description={{.ServiceID}}

[Service]
Type=simple
ExecStart={{.BinaryPath}}{{range .Args}} {{.}}{{end}}
Restart=always
RestartSec=2
WorkingDirectory={{.DataDir}}
Environment=COWORK_DATA_DIR={{.DataDir}}

[Install]
WantedBy={{.WantedBy}}
`

var systemdTmpl = template.Must(template.New("unit").Parse(systemdUnitTemplate))

func (s *systemdInstaller) unitPath(mode Mode, spec WorkerSpec) (string, error) {
	name := spec.ServiceID + ".service"
	if mode == ModeSystem {
		return filepath.Join("/etc/systemd/system", name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", name), nil
}

func (s *systemdInstaller) ctlArgs(mode Mode, args ...string) []string {
	if mode == ModeUser {
		return append([]string{"--user"}, args...)
	}
	return args
}

func (s *systemdInstaller) Install(mode Mode, spec WorkerSpec) error {
	path, err := s.unitPath(mode, spec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create systemd unit dir: %w", err)
	}

	wantedBy := "default.target"
	if mode == ModeSystem {
		wantedBy = "multi-user.target"
	}
	var buf strings.Builder
	data := struct {
		WorkerSpec
		WantedBy string
	}{WorkerSpec: spec, WantedBy: wantedBy}
	if err := systemdTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render unit: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}

	if _, err := runCombined("systemctl", s.ctlArgs(mode, "daemon-reload")...); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if _, err := runCombined("systemctl", s.ctlArgs(mode, "enable", "--now", spec.ServiceID+".service")...); err != nil {
		return fmt.Errorf("enable --now: %w", err)
	}
	return nil
}

func (s *systemdInstaller) Uninstall(mode Mode, spec WorkerSpec) error {
	_, _ = runCombined("systemctl", s.ctlArgs(mode, "disable", "--now", spec.ServiceID+".service")...)
	path, err := s.unitPath(mode, spec)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit: %w", err)
	}
	_, err = runCombined("systemctl", s.ctlArgs(mode, "daemon-reload")...)
	return err
}

func (s *systemdInstaller) Start(mode Mode, spec WorkerSpec) error {
	_, err := runCombined("systemctl", s.ctlArgs(mode, "start", spec.ServiceID+".service")...)
	return err
}

func (s *systemdInstaller) Stop(mode Mode, spec WorkerSpec) error {
	_, err := runCombined("systemctl", s.ctlArgs(mode, "stop", spec.ServiceID+".service")...)
	return err
}

func (s *systemdInstaller) Restart(mode Mode, spec WorkerSpec) error {
	_, err := runCombined("systemctl", s.ctlArgs(mode, "restart", spec.ServiceID+".service")...)
	return err
}

func (s *systemdInstaller) Status(mode Mode, spec WorkerSpec) (Status, error) {
	unit := spec.ServiceID + ".service"
	enabledOut, enabledErr := runCombined("systemctl", s.ctlArgs(mode, "is-enabled", unit)...)
	activeOut, _ := runCombined("systemctl", s.ctlArgs(mode, "is-active", unit)...)
	statusOut, _ := runCombined("systemctl", s.ctlArgs(mode, "status", "--no-pager", unit)...)

	path, pathErr := s.unitPath(mode, spec)
	status := Status{
		Mode:       mode,
		Manager:    "systemd",
		ServiceID:  spec.ServiceID,
		WorkerPath: spec.BinaryPath,
		WorkerArgs: spec.Args,
		DataDir:    spec.DataDir,
		Endpoint:   spec.Endpoint,
		TokenPath:  spec.TokenPath,
		LockPath:   spec.LockPath,
		Details:    statusOut,
	}
	if pathErr == nil {
		status.ConfigPath = path
		if _, statErr := os.Stat(path); statErr == nil {
			status.Installed = true
		}
	}
	status.Enabled = enabledErr == nil && strings.TrimSpace(enabledOut) == "enabled"
	status.Running = strings.TrimSpace(activeOut) == "active"
	return status, nil
}
