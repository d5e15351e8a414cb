package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"diskpark/internal/config"
	"diskpark/internal/history"
)

func newHistoryCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent spin-down and spin-up events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return errors.New("no history path configured")
			}
			if _, err := os.Stat(cfg.History.Path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "no history recorded yet")
				return nil
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no history recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					e.At.Local().Format(time.RFC3339),
					e.Device,
					e.Kind,
					shortSession(e.Session),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"TIME", "DEVICE", "EVENT", "SESSION"},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events to show")
	return cmd
}

func shortSession(session string) string {
	if len(session) > 8 {
		return session[:8]
	}
	return session
}
