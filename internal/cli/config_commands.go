package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rainforce/smbclient/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the resolved configuration.

Settings come from, in increasing priority: built-in defaults, the YAML
config file, a .env file in the working directory and SMBCLIENT_*
environment variables.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.NewViper(), cfgFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			metricsAddr := cfg.MetricsAddr
			if metricsAddr == "" {
				metricsAddr = "(disabled)"
			}
			historyDB := cfg.HistoryDB
			if historyDB == "" {
				historyDB = "(disabled)"
			}
			fmt.Fprintf(out, "%-17s %s\n", config.KeyLogLevel+":", cfg.LogLevel)
			fmt.Fprintf(out, "%-17s %d\n", config.KeyMaxConcurrent+":", cfg.MaxConcurrent)
			fmt.Fprintf(out, "%-17s %s\n", config.KeyDialTimeout+":", cfg.DialTimeout)
			fmt.Fprintf(out, "%-17s %t\n", config.KeyUseProxy+":", cfg.UseProxy)
			fmt.Fprintf(out, "%-17s %s\n", config.KeyCredentialsFile+":", cfg.CredentialsFile)
			fmt.Fprintf(out, "%-17s %s\n", config.KeyKeyFile+":", cfg.KeyFile)
			fmt.Fprintf(out, "%-17s %s\n", config.KeyHistoryDB+":", historyDB)
			fmt.Fprintf(out, "%-17s %s\n", config.KeyMetricsAddr+":", metricsAddr)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigFile()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
