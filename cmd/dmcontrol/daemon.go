package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"dmcontrol/internal/config"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.dmcontrol.bot"
	systemdUnit  = "dmcontrol.service"
)

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install dmcontrol as a user daemon (launchd/systemd)",
		Long: `Generates a service file that runs dmcontrol from the current directory,
so the daemon reads and updates this directory's config.yml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			cfgPath, err := filepath.Abs(config.DefaultPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err != nil {
				return fmt.Errorf("no %s in this directory: %w", config.DefaultPath, err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(home, execPath, filepath.Dir(cfgPath))
			case "linux":
				return installSystemd(home, execPath, filepath.Dir(cfgPath))
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the dmcontrol user daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			switch runtime.GOOS {
			case "darwin":
				return removeServiceFile(launchdPlistPath(home))
			case "linux":
				return removeServiceFile(systemdUnitPath(home))
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	}
}

func launchdPlistPath(home string) string {
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func systemdUnitPath(home string) string {
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

func renderServiceFile(tmpl, execPath, workDir string) string {
	out := strings.ReplaceAll(tmpl, "{{EXEC}}", execPath)
	out = strings.ReplaceAll(out, "{{WORKDIR}}", workDir)
	return strings.ReplaceAll(out, "{{LABEL}}", launchdLabel)
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func installLaunchd(home, execPath, workDir string) error {
	plistPath := launchdPlistPath(home)
	if err := writeServiceFile(plistPath, renderServiceFile(launchdTemplate, execPath, workDir)); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("Logs: %s\n", filepath.Join(workDir, "dmcontrol.log"))
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func installSystemd(home, execPath, workDir string) error {
	unitPath := systemdUnitPath(home)
	if err := writeServiceFile(unitPath, renderServiceFile(systemdTemplate, execPath, workDir)); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start dmcontrol\n")
	fmt.Printf("To enable: systemctl --user enable dmcontrol\n")
	fmt.Printf("Logs:      journalctl --user -u dmcontrol\n")
	return nil
}

func removeServiceFile(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", path)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{WORKDIR}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>{{WORKDIR}}/dmcontrol.log</string>
    <key>StandardErrorPath</key>
    <string>{{WORKDIR}}/dmcontrol.log</string>
</dict>
</plist>`

// systemctl stop sends SIGTERM; the bot saves last_seen before exiting.
const systemdTemplate = `[Unit]
Description=dmcontrol DM inbox bot
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{WORKDIR}}
ExecStart={{EXEC}}
Restart=on-failure
RestartSec=30

[Install]
WantedBy=default.target`
