package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGHARVEST_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file holding the defaults",
	Long: `Write a configuration file holding every option at its default value.

The file is created as '.igharvest.yaml' in the current directory unless
a different path is given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source.

Session cookies are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".igharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	display := *cfg
	display.Instagram.SessionID = mask(display.Instagram.SessionID)
	display.Instagram.CSRFToken = mask(display.Instagram.CSRFToken)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Fprint(ui.Output, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		problems := configProblems(err)
		if len(problems) == 0 {
			return err
		}
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(ui.Output, "  - %s\n", p)
		}
		return errors.New("invalid configuration")
	}

	if cfg.Instagram.SessionID == "" || cfg.Instagram.CSRFToken == "" {
		ui.PrintWarning("Session cookies not configured")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Batch size", fmt.Sprint(cfg.Scrape.BatchSize))
	ui.PrintInfo("Concurrency limit", fmt.Sprint(cfg.Scrape.ConcurrencyLimit))
	ui.PrintInfo("Max retries", fmt.Sprint(cfg.Scrape.MaxRetries))
	ui.PrintInfo("Max pages", fmt.Sprint(cfg.Scrape.MaxPages))
	ui.PrintInfo("Earliest post date", cfg.Scrape.EarliestPostDate)
	ui.PrintInfo("Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	return nil
}

// configProblems flattens wrapped and joined errors into the messages of
// every ConfigError they hold
func configProblems(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		var ce *errs.ConfigError
		if errors.As(e, &ce) {
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, inner := range joined.Unwrap() {
					walk(inner)
				}
				return
			}
			if inner := errors.Unwrap(e); inner != nil {
				walk(inner)
				return
			}
			out = append(out, ce.Error())
		}
	}
	walk(err)
	return out
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	default:
		return "***"
	}
}
