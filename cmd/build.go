package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/engine"
)

var buildStrict bool

// buildCmd runs one full build of the book.
var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the whole book once",
	Long: `Build parses every page manifest, registers the declared entities,
assigns exercise numbers, validates references and emits the composite .pl
build files.

Non-fatal problems (a directive without content, a dangling reference, a
failed artifact write) are reported per page and do not stop the build.
Fatal problems (a solution without its exercise, a cross-page inherit) abort
it.`,
	RunE: runBuildCommand,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringSlice("pages", nil, "page files or directories to build")
	buildCmd.Flags().StringP("output", "o", "", "build output directory")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "exit non-zero when diagnostics were reported")
	viper.BindPFlag("book.pages", buildCmd.Flags().Lookup("pages"))
	viper.BindPFlag("book.output_dir", buildCmd.Flags().Lookup("output"))
}

func runBuildCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := engine.NewSession(cfg, newLogger())
	report, err := session.Build(ctx)
	if report != nil {
		printDiagnostics(report)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Built %d pages: %d entities, %d artifacts\n",
		len(report.Pages), report.Entities, len(report.Artifacts))
	for _, artifact := range report.Artifacts {
		fmt.Printf("  %s -> %s\n", artifact.EntityID, artifact.Location.RelPath)
		if artifact.Location.SwishURL != "" {
			fmt.Printf("      swish: %s\n", artifact.Location.SwishURL)
		}
	}

	if buildStrict && report.HasDiagnostics() {
		return fmt.Errorf("%d problems reported", len(report.Diagnostics))
	}
	return nil
}

func printDiagnostics(report *engine.Report) {
	for _, diagnostic := range report.Diagnostics {
		fmt.Fprintf(os.Stderr, "WARN %v\n", diagnostic.Err)
	}
}
