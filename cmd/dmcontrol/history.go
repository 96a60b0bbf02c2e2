package main

import (
	"fmt"
	"strconv"
	"strings"

	"dmcontrol/internal/config"
	"dmcontrol/internal/memory"

	"github.com/spf13/cobra"
)

const defaultHistoryLimit = 20

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [limit]",
		Short: "Show the most recent commands and their replies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := defaultHistoryLimit
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("limit must be a positive number, got %q", args[0])
				}
				limit = n
			}

			cfg, err := config.Load(config.DefaultPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("command history is disabled (history.enabled: false)")
			}

			store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("No commands recorded yet.")
				return nil
			}

			for _, r := range recs {
				line := r.Name
				if r.Args != "" {
					line += ": " + r.Args
				}
				fmt.Printf("%s  #%s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.MessageID, line)
				for _, l := range strings.Split(r.Reply, "\n") {
					fmt.Printf("    > %s\n", l)
				}
			}
			return nil
		},
	}
}
