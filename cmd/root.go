// Package cmd provides the command-line interface for prologbook.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --output, ...)
//  2. PROLOGBOOK_CONFIG_FILE environment variable
//  3. Individual environment variables following the
//     PROLOGBOOK_<SECTION>_<OPTION> pattern (PROLOGBOOK_BOOK_OUTPUT_DIR,
//     PROLOGBOOK_SWISH_SERVER_URL, ...)
//  4. Configuration file (.prologbook.yml in the current directory)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prologbook/prologbook/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "prologbook",
	Short: "Cross-reference and content engine for Prolog-infused books",
	Long: `Prologbook maintains the entity graph of a Prolog-infused book:
labelled info boxes, numbered exercise/solution pairs and interactive SWISH
code and query blocks declared across its pages.

It resolves every block's content (inline, derived file or linked exercise),
assigns exercise numbers in declaration order, validates cross-document
references and composes the merged .pl build files that SWISH loads.

Quick start:
  prologbook build                Build the whole book once
  prologbook watch                Rebuild incrementally on file changes
  prologbook list                 List the registered entities`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .prologbook.yml, can also use PROLOGBOOK_CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper's config sources: the --config flag wins, then the
// PROLOGBOOK_CONFIG_FILE environment variable, then .prologbook.yml in the
// working directory. A missing config file is not an error; defaults and
// environment variables still apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PROLOGBOOK_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".prologbook")
	}

	viper.SetEnvPrefix("PROLOGBOOK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the merged configuration.
func newLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log.level")),
		Format: viper.GetString("log.format"),
		Output: os.Stderr,
	})
}
