package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// launchdInstaller implements §4.F's launchd-style host family (macOS):
// a property list under ~/Library/LaunchAgents for ModeUser, or
// /Library/LaunchDaemons for ModeSystem.
type launchdInstaller struct{}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.ServiceID}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
{{range .Args}}		<string>{{.}}</string>
{{end}}	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>WorkingDirectory</key>
	<string>{{.DataDir}}</string>
	<key>StandardOutPath</key>
	<string>{{.LogDir}}/supervisor.out.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogDir}}/supervisor.err.log</string>
</dict>
</plist>
`

var launchdTmpl = template.Must(template.New("plist").Parse(launchdPlistTemplate))

func (l *launchdInstaller) plistPath(mode Mode, spec WorkerSpec) (string, error) {
	if mode == ModeSystem {
		return filepath.Join("/Library/LaunchDaemons", spec.ServiceID+".plist"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", spec.ServiceID+".plist"), nil
}

func (l *launchdInstaller) Install(mode Mode, spec WorkerSpec) error {
	path, err := l.plistPath(mode, spec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create launchd dir: %w", err)
	}
	logDir := filepath.Join(spec.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	var buf strings.Builder
	data := struct {
		WorkerSpec
		LogDir string
	}{WorkerSpec: spec, LogDir: logDir}
	if err := launchdTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render plist: %w", err)
	}
	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}

	domain := launchdDomain(mode)
	// bootout the prior instance; a failure here (e.g. not currently
	// loaded) is expected and ignored.
	_, _ = runCombined("launchctl", "bootout", domain+"/"+spec.ServiceID)

	if _, err := runCombined("launchctl", "bootstrap", domain, path); err != nil {
		if _, legacyErr := runCombined("launchctl", "load", "-w", path); legacyErr != nil {
			return fmt.Errorf("bootstrap/load plist: %w", err)
		}
	}
	if _, err := runCombined("launchctl", "enable", domain+"/"+spec.ServiceID); err != nil {
		return fmt.Errorf("enable service: %w", err)
	}
	if _, err := runCombined("launchctl", "kickstart", "-k", domain+"/"+spec.ServiceID); err != nil {
		return fmt.Errorf("kickstart service: %w", err)
	}
	return nil
}

func (l *launchdInstaller) Uninstall(mode Mode, spec WorkerSpec) error {
	domain := launchdDomain(mode)
	_, _ = runCombined("launchctl", "bootout", domain+"/"+spec.ServiceID)
	_, _ = runCombined("launchctl", "disable", domain+"/"+spec.ServiceID)
	path, err := l.plistPath(mode, spec)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

func (l *launchdInstaller) Start(mode Mode, spec WorkerSpec) error {
	domain := launchdDomain(mode)
	_, err := runCombined("launchctl", "kickstart", "-k", domain+"/"+spec.ServiceID)
	return err
}

func (l *launchdInstaller) Stop(mode Mode, spec WorkerSpec) error {
	domain := launchdDomain(mode)
	_, err := runCombined("launchctl", "bootout", domain+"/"+spec.ServiceID)
	return err
}

func (l *launchdInstaller) Restart(mode Mode, spec WorkerSpec) error {
	if err := l.Stop(mode, spec); err != nil {
		// ignored: the prior instance may not have been running
		_ = err
	}
	return l.Start(mode, spec)
}

func (l *launchdInstaller) Status(mode Mode, spec WorkerSpec) (Status, error) {
	domain := launchdDomain(mode)
	out, err := runCombined("launchctl", "print", domain+"/"+spec.ServiceID)
	path, pathErr := l.plistPath(mode, spec)
	status := Status{
		Mode:       mode,
		Manager:    "launchd",
		ServiceID:  spec.ServiceID,
		WorkerPath: spec.BinaryPath,
		WorkerArgs: spec.Args,
		DataDir:    spec.DataDir,
		Endpoint:   spec.Endpoint,
		TokenPath:  spec.TokenPath,
		LockPath:   spec.LockPath,
		Details:    out,
	}
	if pathErr == nil {
		status.ConfigPath = path
		if _, statErr := os.Stat(path); statErr == nil {
			status.Installed = true
		}
	}
	if err == nil {
		status.Running = strings.Contains(out, "state = running")
		status.Enabled = !strings.Contains(out, "disabled")
	}
	return status, nil
}

func launchdDomain(mode Mode) string {
	if mode == ModeSystem {
		return "system"
	}
	return fmt.Sprintf("gui/%d", os.Getuid())
}
