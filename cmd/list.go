package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/engine"
	"github.com/prologbook/prologbook/internal/types"
)

var (
	listKind   string
	listFormat string
)

// listCmd builds the book and prints the registered entities.
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the registered entities",
	Long: `List runs a build and prints every registered entity in
first-declaration order: its id, kind, declaring page, sequence number and
where its content came from.

Examples:
  prologbook list                 # every entity
  prologbook list --kind ex       # exercises only
  prologbook list --format json   # machine-readable output`,
	RunE: runListCommand,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listKind, "kind", "k", "",
		"only list one kind (ibox, ex, sol, swish, swishq)")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "output format (text, json)")
}

// listedEntity is the JSON projection of a registry entry.
type listedEntity struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Page   string `json:"page"`
	Title  string `json:"title,omitempty"`
	Number int    `json:"number,omitempty"`
	Source string `json:"source"`
}

func runListCommand(cmd *cobra.Command, args []string) error {
	if listKind != "" && !types.EntityKind(listKind).Valid() {
		return fmt.Errorf("unknown kind %q (ibox, ex, sol, swish, swishq)", listKind)
	}

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

	var listed []listedEntity
	for _, entity := range session.Registry().InOrder() {
		if listKind != "" && entity.Kind != types.EntityKind(listKind) {
			continue
		}
		listed = append(listed, listedEntity{
			ID:     entity.ID,
			Kind:   string(entity.Kind),
			Page:   string(entity.Page),
			Title:  entity.Title,
			Number: entity.Number,
			Source: entity.Content.Source.String(),
		})
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(listed)
	case "text":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tPAGE\tNUMBER\tSOURCE")
		for _, e := range listed {
			number := "-"
			if e.Number > 0 {
				number = fmt.Sprintf("%d", e.Number)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.Page, number, e.Source)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", listFormat)
	}
}
