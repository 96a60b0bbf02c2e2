package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"dmcontrol/internal/config"
	"dmcontrol/internal/inbox"
	"dmcontrol/internal/media"
	"dmcontrol/internal/memory"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var doctorTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("230")).
	Background(lipgloss.Color("62")).
	Padding(0, 1)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	checkStyle = lipgloss.NewStyle().Width(22)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// doctorReport tallies check results.
type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	printCheck(passStyle.Render("[PASS]"), check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	printCheck(warnStyle.Render("[WARN]"), check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	printCheck(failStyle.Render("[FAIL]"), check, detail)
}

func printCheck(tag, check, detail string) {
	fmt.Printf("  %s %s %s\n", tag, checkStyle.Render(check), detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the dmcontrol setup",
		Long: `Verifies that config.yml is complete, the TV show directory and history
database are usable, and the media services answer. Reports pass/fail for each check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(doctorTitle.Render("dmcontrol doctor v" + version))
			fmt.Println()

			r := &doctorReport{}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if _, err := os.Stat(config.DefaultPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", config.DefaultPath))
				fmt.Println(hintStyle.Render("\nCreate config.yml in the working directory; see config.example.yml."))
				return fmt.Errorf("config file missing")
			}
			r.pass("Config file", config.DefaultPath)

			cfg, err := config.Load(config.DefaultPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config validation", "valid")

			runDoctorChecks(ctx, r, cfg)

			fmt.Println()
			fmt.Printf("Results: %s passed, %s warnings, %s failed\n",
				passStyle.Render(strconv.Itoa(r.passed)),
				warnStyle.Render(strconv.Itoa(r.warned)),
				failStyle.Render(strconv.Itoa(r.failed)))
			if r.failed > 0 {
				fmt.Println(hintStyle.Render("Please fix the failed checks before running dmcontrol."))
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Println(hintStyle.Render("dmcontrol should work but consider fixing the warnings."))
			} else {
				fmt.Println(hintStyle.Render("All checks passed! dmcontrol is ready to run."))
			}
			return nil
		},
	}
}

func runDoctorChecks(ctx context.Context, r *doctorReport, cfg *config.Config) {
	if info, err := os.Stat(cfg.TVShowDir); err != nil {
		r.warn("TV show dir", fmt.Sprintf("not found locally: %s (fine if Sonarr runs elsewhere)", cfg.TVShowDir))
	} else if !info.IsDir() {
		r.fail("TV show dir", fmt.Sprintf("not a directory: %s", cfg.TVShowDir))
	} else {
		r.pass("TV show dir", cfg.TVShowDir)
	}

	client := media.SharedHTTPClient(cfg.Inbox.Timeout())
	if _, err := inbox.New(cfg, client, logger); err != nil {
		r.fail("Inbox", err.Error())
	} else {
		r.pass("Inbox", cfg.Inbox.Provider)
	}

	if cfg.History.Enabled {
		if err := checkHistory(ctx, cfg.History.DBPath); err != nil {
			r.fail("History database", err.Error())
		} else {
			r.pass("History database", cfg.History.DBPath)
		}
	}

	services := []struct {
		name string
		svc  config.ServiceConfig
	}{
		{"Sonarr", cfg.Sonarr.ServiceConfig},
		{"CouchPotato", cfg.CouchPotato.ServiceConfig},
		{"SABnzbd", cfg.SAB},
	}
	for _, s := range services {
		addr := net.JoinHostPort(s.svc.Host, strconv.Itoa(s.svc.Port))
		if err := checkReachable(ctx, addr); err != nil {
			r.warn(s.name, fmt.Sprintf("%s unreachable: %v", addr, err))
			continue
		}
		if s.svc.APIKey == "" {
			r.warn(s.name, addr+" reachable, but no apikey configured")
			continue
		}
		r.pass(s.name, s.svc.BaseURL())
	}

	sab := media.NewSABnzbd(media.SABnzbdConfig{
		BaseURL: cfg.SAB.BaseURL(),
		APIKey:  cfg.SAB.APIKey,
		Client:  client,
		Logger:  logger,
	})
	if stats := sab.QueueStats(ctx); stats == nil {
		r.warn("SABnzbd queue", "queue not readable with the configured apikey")
	} else {
		r.pass("SABnzbd queue", stats.State)
	}

	if cfg.Metrics.Enabled {
		if err := checkListen(cfg.Metrics.Listen); err != nil {
			r.warn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
		} else {
			r.pass("Metrics listen", cfg.Metrics.Listen+" available")
		}
	}
}

func checkHistory(ctx context.Context, dbPath string) error {
	store, err := memory.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Ping(ctx)
}

func checkReachable(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
