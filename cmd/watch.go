package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/engine"
	"github.com/prologbook/prologbook/internal/server"
	"github.com/prologbook/prologbook/internal/types"
	"github.com/prologbook/prologbook/internal/watcher"
)

var watchDebounce time.Duration

// watchCmd runs the incremental rebuild loop.
var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild incrementally on file changes",
	Long: `Watch performs a full build, then monitors the page manifests and
content files and rebuilds exactly the pages affected by each change. After
every rebuild the set of affected pages is broadcast to connected WebSocket
clients so open views can reload.`,
	RunE: runWatchCommand,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond,
		"settle interval before a change batch triggers a rebuild")
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger()
	session := engine.NewSession(cfg, log)

	report, err := session.Build(ctx)
	if report != nil {
		printDiagnostics(report)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Built %d pages: %d entities, %d artifacts\n",
		len(report.Pages), report.Entities, len(report.Artifacts))

	reload := server.New(cfg.Server, log)
	if err := reload.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reload.Shutdown(shutdownCtx)
	}()
	fmt.Printf("Live reload on ws://%s/ws\n", reload.Addr())

	fw, err := watcher.NewFileWatcher(watchDebounce, log)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.BookFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoOutputFilter(cfg.Book.OutputDir))

	for _, root := range watchRoots(cfg) {
		if err := fw.AddRecursive(root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		paths := make([]string, len(events))
		for i, event := range events {
			paths[i] = event.Path
		}
		// Rebuild re-discovers pages, so manifests created or deleted in
		// this batch are picked up even without a tracked dependency.
		// Signature-stale pages cover edits coalesced out of the batch.
		pages := mergePages(session.PagesForFiles(paths), session.OutdatedPages())
		rebuilt, err := session.Rebuild(ctx, pages)
		if rebuilt != nil {
			printDiagnostics(rebuilt)
		}
		if err != nil {
			// an authoring error mid-edit must not kill the loop
			log.Error(ctx, err, "rebuild failed")
			return nil
		}
		fmt.Printf("Rebuilt %d pages (%d affected)\n", len(rebuilt.Pages), len(rebuilt.Affected))
		reload.Broadcast(ctx, rebuilt.Affected)
		return nil
	})

	if err := fw.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	fmt.Println("\nShutting down")
	return nil
}

// mergePages unions two already sorted page sets.
func mergePages(a, b []types.PageRef) []types.PageRef {
	seen := make(map[types.PageRef]struct{}, len(a)+len(b))
	merged := make([]types.PageRef, 0, len(a)+len(b))
	for _, page := range append(a, b...) {
		if _, dup := seen[page]; dup {
			continue
		}
		seen[page] = struct{}{}
		merged = append(merged, page)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	return merged
}

// watchRoots lists the directories and files feeding the build: page
// entries plus the content fallback directories.
func watchRoots(cfg *config.Config) []string {
	roots := append([]string{}, cfg.Book.Pages...)
	for _, dir := range []string{cfg.Content.ExerciseDir, cfg.Content.CodeDir} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			roots = append(roots, dir)
		}
	}
	return roots
}
