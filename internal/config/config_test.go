package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologbook/prologbook/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"./pages"}, cfg.Book.Pages)
	assert.Equal(t, "_build", cfg.Book.OutputDir)
	assert.Equal(t, "Exercise %s", cfg.Numbering.ExerciseFormat)
	assert.Equal(t, "Solution %s", cfg.Numbering.SolutionFormat)
	assert.Equal(t, DefaultSwishServerURL, cfg.Swish.ServerURL)
	assert.False(t, cfg.Swish.HideExamples)
	assert.Empty(t, cfg.Swish.BookURL)
	assert.Equal(t, 7332, cfg.Server.Port)
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("book.pages", []string{"./src/text"})
	viper.Set("content.exercise_dir", "src/exercises")
	viper.Set("content.code_dir", "src/code")
	viper.Set("numbering.exercise_format", "Task %s")
	viper.Set("swish.hide_examples", true)
	viper.Set("swish.book_base_url", "https://book.example.org/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"./src/text"}, cfg.Book.Pages)
	assert.Equal(t, "src/exercises", cfg.Content.ExerciseDir)
	assert.Equal(t, "src/code", cfg.Content.CodeDir)
	assert.Equal(t, "Task %s", cfg.Numbering.ExerciseFormat)
	assert.True(t, cfg.Swish.HideExamples)
	assert.Equal(t, "https://book.example.org/", cfg.Swish.BookURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing placeholder", func(c *Config) { c.Numbering.ExerciseFormat = "Exercise" }},
		{"two placeholders", func(c *Config) { c.Numbering.SolutionFormat = "Solution %s %s" }},
		{"extra verb", func(c *Config) { c.Numbering.ExerciseFormat = "Exercise %s (%d)" }},
		{"relative book url", func(c *Config) { c.Swish.BookURL = "book/" }},
		{"bad swish scheme", func(c *Config) { c.Swish.ServerURL = "ftp://swish.example.org" }},
		{"port out of range", func(c *Config) { c.Server.Port = 123456 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Numbering: NumberingConfig{ExerciseFormat: "Exercise %s", SolutionFormat: "Solution %s"},
				Swish:     SwishConfig{ServerURL: DefaultSwishServerURL},
				Server:    ServerConfig{Host: "localhost", Port: 7332},
			}
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
		})
	}
}

func TestAbsoluteContentDirsKeptVerbatim(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	viper.Set("content.exercise_dir", dir)
	viper.Set("content.code_dir", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Content.ExerciseDir)
	assert.Equal(t, dir, cfg.Content.CodeDir)
}
