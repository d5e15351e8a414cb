package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"diskpark/internal/config"
	"diskpark/internal/directive"
)

func newResolveCommand(configFlag *string) *cobra.Command {
	var devicesFlag string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the resolved per-device configuration table",
		Long: "Resolve parses the device directive and prints the configuration each\n" +
			"device ends up with, plus the final default applied to drives discovered\n" +
			"at runtime.\n\n" + directive.Grammar,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := devicesFlag
			if input == "" {
				cfg, _, _, err := config.Load(*configFlag)
				if err != nil {
					return err
				}
				input = cfg.Devices
			}

			res, err := directive.Resolve(input)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(res.Devices)+1)
			for _, e := range res.Devices {
				rows = append(rows, configRow(e.Path, e.Config))
			}
			rows = append(rows, configRow("(runtime default)", res.Default))

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"DEVICE", "IDLE TIMEOUT", "SYNC BEFORE", "SYNC AFTER", "VERBOSITY"},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&devicesFlag, "devices", "", "Directive string to resolve instead of the configured one")
	return cmd
}

func configRow(name string, cfg directive.DeviceConfig) []string {
	timeout := "disabled"
	if cfg.IdleTimeout > 0 {
		timeout = cfg.IdleTimeout.String()
	}
	return []string{
		name,
		timeout,
		yesNo(cfg.SyncBeforeSpindown),
		yesNo(cfg.SyncAfterSpinup),
		strconv.Itoa(cfg.Verbosity),
	}
}
