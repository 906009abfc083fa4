package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"httpd/internal/config"
)

var (
	configInitForce bool
	configInitPath  string
	configShowPath  string
	configFormat    string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage httpd configuration",
	Long:  "Create and inspect the TOML configuration read by 'httpd serve'",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as TOML.

Examples:
  httpd config init                    # ./httpd.toml
  httpd config init --path ~/.httpd/httpd.toml --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display configuration after defaults, file and environment are merged.

Examples:
  httpd config show
  httpd config show --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printEnvOverrides(cmd.OutOrStdout())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().StringVar(&configInitPath, "path", config.ConfigFileName+".toml", "Where to write the file")

	configShowCmd.Flags().StringVar(&configShowPath, "config", "", "Path to a TOML config file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := writeDefaultConfig(configInitPath, configInitForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", configInitPath)
	return nil
}

// writeDefaultConfig refuses to replace an existing file unless force is set
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.DefaultConfig().Save(path)
}

// ConfigShowResponse is the JSON shape of 'config show'
type ConfigShowResponse struct {
	ConfigPath   string         `json:"configPath,omitempty"`
	UsedDefaults bool           `json:"usedDefaults"`
	Config       *config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, path, err := config.LoadConfig(configShowPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(ConfigShowResponse{
			ConfigPath:   path,
			UsedDefaults: path == "",
			Config:       cfg,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "human":
		printConfigHuman(out, cfg, path)
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	return nil
}

func printConfigHuman(w io.Writer, cfg *config.Config, path string) {
	defaults := config.DefaultConfig()

	fmt.Fprintln(w, "httpd Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if path == "" {
		fmt.Fprintln(w, "Source: defaults (no config file found)")
	} else {
		fmt.Fprintf(w, "Source: %s\n", path)
	}
	fmt.Fprintln(w)

	printSetting(w, "directory", valueOrDefault(cfg.Directory, "(none)"), "(none)")

	fmt.Fprintln(w, "\nserver:")
	printSetting(w, "  host", cfg.Server.Host, defaults.Server.Host)
	printSetting(w, "  port", cfg.Server.Port, defaults.Server.Port)
	printSetting(w, "  maxConnections", cfg.Server.MaxConnections, defaults.Server.MaxConnections)
	printSetting(w, "  queueTimeoutMs", cfg.Server.QueueTimeoutMs, defaults.Server.QueueTimeoutMs)
	printSetting(w, "  retryAfterSeconds", cfg.Server.RetryAfterSeconds, defaults.Server.RetryAfterSeconds)
	printSetting(w, "  idleTimeoutMs", cfg.Server.IdleTimeoutMs, defaults.Server.IdleTimeoutMs)
	printSetting(w, "  readBufferSize", cfg.Server.ReadBufferSize, defaults.Server.ReadBufferSize)
	printSetting(w, "  maxRequestBytes", cfg.Server.MaxRequestBytes, defaults.Server.MaxRequestBytes)
	printSetting(w, "  shutdownTimeoutMs", cfg.Server.ShutdownTimeoutMs, defaults.Server.ShutdownTimeoutMs)

	fmt.Fprintln(w, "\nfiles:")
	printSetting(w, "  confine", cfg.Files.Confine, defaults.Files.Confine)

	fmt.Fprintln(w, "\nlogging:")
	printSetting(w, "  format", cfg.Logging.Format, defaults.Logging.Format)
	printSetting(w, "  level", cfg.Logging.Level, defaults.Logging.Level)
	printSetting(w, "  file", valueOrDefault(cfg.Logging.File, "(none)"), "(none)")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Use 'httpd config env' to see supported environment variables")
}

func printSetting(w io.Writer, name string, value, defaultValue interface{}) {
	modified := ""
	if fmt.Sprint(value) != fmt.Sprint(defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	fmt.Fprintf(w, "%s: %v%s\n", name, value, modified)
}

func valueOrDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func printEnvOverrides(w io.Writer) {
	fmt.Fprintln(w, "Supported Environment Variables")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	for _, o := range config.SupportedEnvOverrides {
		fmt.Fprintf(w, "  %-24s %-24s %s\n", o.EnvVar, o.Key, o.Description)
	}
}
