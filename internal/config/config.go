// Package config provides configuration management for prologbook using
// Viper for flexible configuration loading from files, environment variables
// and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the PROLOGBOOK_ prefix, and validation. It manages the
// book's page sources, the content fallback directories consulted by the
// resolver, numbered-reference format strings and the SWISH execution
// settings.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/prologbook/prologbook/internal/errors"
)

// DefaultSwishServerURL is the public SWISH execution endpoint used when no
// server is configured.
const DefaultSwishServerURL = "https://swish.swi-prolog.org/"

type Config struct {
	Book      BookConfig      `yaml:"book" mapstructure:"book"`
	Content   ContentConfig   `yaml:"content" mapstructure:"content"`
	Numbering NumberingConfig `yaml:"numbering" mapstructure:"numbering"`
	Swish     SwishConfig     `yaml:"swish" mapstructure:"swish"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// BookConfig locates the authored pages and the build output subtree.
type BookConfig struct {
	Pages     []string `yaml:"pages" mapstructure:"pages"`
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
}

// ContentConfig holds the directories consulted for content file fallback.
type ContentConfig struct {
	// ExerciseDir backs ex:/sol: entities declared without inline content.
	ExerciseDir string `yaml:"exercise_dir" mapstructure:"exercise_dir"`
	// CodeDir backs swish: entities and start/end source fragments.
	CodeDir string `yaml:"code_dir" mapstructure:"code_dir"`
}

// NumberingConfig holds the numbered-reference format strings. Each must
// contain exactly one numeric placeholder.
type NumberingConfig struct {
	ExerciseFormat string `yaml:"exercise_format" mapstructure:"exercise_format"`
	SolutionFormat string `yaml:"solution_format" mapstructure:"solution_format"`
}

// SwishConfig holds the interactive code box settings.
type SwishConfig struct {
	// ServerURL is the SWISH execution endpoint embedded in code boxes.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	// BookURL is the absolute base under which emitted artifacts are
	// addressable. Required only when some code entity sets build-file.
	BookURL string `yaml:"book_base_url" mapstructure:"book_base_url"`
	// HideExamples is the build-wide default for stripping /** <examples> */
	// blocks; a code box's own tri-state flag overrides it.
	HideExamples bool `yaml:"hide_examples" mapstructure:"hide_examples"`
}

// ServerConfig configures the watch command's reload notification server.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// Load builds the configuration from viper's merged sources and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle slice values set via viper (workaround for viper slice handling)
	if viper.IsSet("book.pages") && len(config.Book.Pages) == 0 {
		config.Book.Pages = viper.GetStringSlice("book.pages")
	}
	if len(config.Book.Pages) == 0 {
		config.Book.Pages = []string{"./pages"}
	}
	if config.Book.OutputDir == "" {
		config.Book.OutputDir = "_build"
	}

	if config.Numbering.ExerciseFormat == "" {
		config.Numbering.ExerciseFormat = "Exercise %s"
	}
	if config.Numbering.SolutionFormat == "" {
		config.Numbering.SolutionFormat = "Solution %s"
	}

	if config.Swish.ServerURL == "" {
		config.Swish.ServerURL = DefaultSwishServerURL
	}
	if viper.IsSet("swish.hide_examples") {
		config.Swish.HideExamples = viper.GetBool("swish.hide_examples")
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 7332
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks configuration values for correctness.
func Validate(config *Config) error {
	if err := validateFormat("numbering.exercise_format", config.Numbering.ExerciseFormat); err != nil {
		return err
	}
	if err := validateFormat("numbering.solution_format", config.Numbering.SolutionFormat); err != nil {
		return err
	}

	if err := validateURL("swish.server_url", config.Swish.ServerURL, false); err != nil {
		return err
	}
	if err := validateURL("swish.book_base_url", config.Swish.BookURL, true); err != nil {
		return err
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return errors.NewConfigError(
			fmt.Sprintf("server.port must be within 1-65535, got %d", config.Server.Port))
	}

	return nil
}

// validateFormat ensures a numbered format string carries exactly one
// string placeholder and no other verbs.
func validateFormat(key, format string) error {
	if strings.Count(format, "%s") != 1 || strings.Count(format, "%") != 1 {
		return errors.NewConfigError(
			fmt.Sprintf("%s must contain exactly one %%s placeholder, got %q", key, format))
	}
	return nil
}

func validateURL(key, value string, optional bool) error {
	if value == "" {
		if optional {
			return nil
		}
		return errors.NewConfigError(key + " must be set")
	}
	parsed, err := url.Parse(value)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.NewConfigError(
			fmt.Sprintf("%s must be an absolute http(s) URL, got %q", key, value))
	}
	return nil
}
