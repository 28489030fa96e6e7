package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/registry"
)

const defaultWatchDebounce = 250 * time.Millisecond

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Compile every prompt under a directory",
	Long: `Compile every *.prompt.md file under a directory and report the outcome per file.

Prompts that compile are also checked as a set: names must be unique and every
extends chain must resolve without cycles.

The directory defaults to prompts.dir from config, then to the repository root.
With --watch the check re-runs whenever a file under the directory changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addOutputFlags(checkCmd)

	checkCmd.Flags().Bool("watch", false, "Re-run the check when files change")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	dir, err := resolvePromptDir(args, cfg.Prompts.Dir)
	if err != nil {
		return err
	}

	formatter := output.NewFormatter(format)
	runOnce := func() error {
		report, err := checkDir(dir)
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatCheck(report)
		if err != nil {
			return err
		}
		if err := emit(cmd, rendered); err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d prompt(s) failed", report.Failed, report.Total)
		}
		return nil
	}

	if !watch {
		return runOnce()
	}

	debounce := cfg.Prompts.WatchDebounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return watchDir(ctx, dir, debounce, func() {
		if err := runOnce(); err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	})
}

// resolvePromptDir picks the directory to scan: the argument, then the
// configured prompts dir, then the repository root.
func resolvePromptDir(args []string, configured string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if strings.TrimSpace(configured) != "" {
		return configured, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := pathfinder.FindRepositoryRoot(cwd, []string{"go.mod", ".git"}, pathfinder.WithMaxDepth(10))
	if err != nil {
		return cwd, nil
	}
	return root, nil
}

// checkDir compiles every prompt under dir, then verifies the ones that
// compiled as a registry.
func checkDir(dir string) (*output.CheckReport, error) {
	start := time.Now()
	results, err := registry.Scan(dir)
	if err != nil {
		return nil, promptdef.WrapError(promptdef.KindIo, err.Error(), err)
	}

	report := &output.CheckReport{Dir: dir}
	var entries []*registry.Entry
	byEntry := map[*registry.Entry]int{}
	for _, res := range results {
		item := output.CheckItem{Path: res.Path, Status: output.StatusOK}
		if res.Err != nil {
			item.Status = output.StatusError
			item.Kind = promptdef.KindOf(res.Err).String()
			item.Message = res.Err.Error()
		} else {
			item.Name = res.Entry.Name()
			entries = append(entries, res.Entry)
			byEntry[res.Entry] = len(report.Items)
		}
		report.Add(item)
	}

	if len(entries) > 0 {
		reg, err := registry.New(entries)
		if err != nil {
			markSetFailure(report, err)
		} else {
			for _, entry := range reg.List() {
				if _, err := reg.Lineage(entry.Name()); err != nil {
					failItem(report, byEntry[entry], err)
				}
			}
		}
	}

	observability.Logger().Debug("Checked prompts",
		zap.String("dir", dir),
		zap.Int("total", report.Total),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", time.Since(start)))
	metrics.SetPromptsLoaded(report.Total - report.Failed)
	return report, nil
}

// failItem marks a compiled item failed by a registry-level problem.
func failItem(report *output.CheckReport, idx int, err error) {
	item := &report.Items[idx]
	if item.Status == output.StatusError {
		return
	}
	item.Status = output.StatusError
	item.Kind = registryKind(err)
	item.Message = err.Error()
	report.Failed++
}

func markSetFailure(report *output.CheckReport, err error) {
	report.Add(output.CheckItem{
		Path:    "(registry)",
		Status:  output.StatusError,
		Kind:    registryKind(err),
		Message: err.Error(),
	})
}

func registryKind(err error) string {
	if kind := promptdef.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "registry"
}

// watchDir calls onChange once immediately and again after each burst of
// file events under dir, until ctx is done.
func watchDir(ctx context.Context, dir string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	if err := addWatchTree(watcher, dir); err != nil {
		return err
	}

	onChange()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchTree(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			observability.Logger().Warn("Watch error", zap.String("dir", dir), zap.Error(err))
		case <-fire:
			fire = nil
			onChange()
		}
	}
}

func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
