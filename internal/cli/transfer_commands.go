package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/journal"
	"github.com/transana/srbxfer/internal/localfs"
	"github.com/transana/srbxfer/internal/pathutil"
	"github.com/transana/srbxfer/internal/progress"
	"github.com/transana/srbxfer/internal/ratelimit"
	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/remote/providers"
	"github.com/transana/srbxfer/internal/transfer"
	"github.com/transana/srbxfer/internal/util/filter"
)

var (
	errNoCollection  = errors.New("no collection: pass --collection or set one in the profile")
	errDuplicateName = errors.New("duplicate remote name")
)

// transferFlags are shared by upload, download and move.
type transferFlags struct {
	collection string
	localDir   string
	chunkSize  int
	limitRate  string
	resource   string
	include    string
	exclude    string
	noHistory  bool
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.collection, "collection", "C", "", "Remote collection (default: the profile's collection)")
	cmd.Flags().StringVarP(&f.localDir, "local-dir", "d", "", "Local directory downloads are written to (default: local_dir setting)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "Bytes per read/write call (default: chunk_size setting)")
	cmd.Flags().StringVar(&f.limitRate, "limit-rate", "", "Bandwidth limit, e.g. 512K or 2M (default: limit_rate setting)")
	cmd.Flags().StringVar(&f.resource, "resource", "", "Storage resource new remote objects are created on")
	cmd.Flags().StringVar(&f.include, "include", "", "Upload only files matching these comma-separated globs")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "Skip files matching these comma-separated globs")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record the transfers in the history journal")
}

// apply overlays the flags on cfg.
func (f *transferFlags) apply(cfg *config.Config) error {
	if f.chunkSize != 0 {
		cfg.ChunkSize = f.chunkSize
	}
	if f.limitRate != "" {
		rate, err := config.ParseByteSize(f.limitRate)
		if err != nil {
			return fmt.Errorf("invalid --limit-rate: %w", err)
		}
		cfg.LimitRate = rate
	}
	if f.resource != "" {
		cfg.DefaultResource = f.resource
	}
	if f.localDir != "" {
		cfg.LocalDir = f.localDir
	}
	return cfg.Validate()
}

func (f *transferFlags) filter() filter.Config {
	return filter.Config{
		Include: filter.ParsePatternList(f.include),
		Exclude: filter.ParsePatternList(f.exclude),
	}
}

func newUploadCmd() *cobra.Command {
	var flags transferFlags
	cmd := &cobra.Command{
		Use:   "upload <file-or-dir>...",
		Short: "Upload local files to a remote collection",
		Long: `Upload local files to a remote collection, one after another.

A directory argument uploads the regular files directly inside it;
hidden files and subdirectories are skipped.`,
		Example: `  srbxfer upload interview.mpg -C /home/dw.sdsc/interviews
  srbxfer upload "media/*.wav" --exclude "*_draft*" --limit-rate 2M`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfers(cmd, transfer.Upload, false, args, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var flags transferFlags
	cmd := &cobra.Command{
		Use:     "download <name>...",
		Short:   "Download objects from a remote collection",
		Example: `  srbxfer download interview.mpg -C /home/dw.sdsc/interviews -d ~/media`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfers(cmd, transfer.Download, false, args, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newMoveCmd() *cobra.Command {
	var flags transferFlags
	cmd := &cobra.Command{
		Use:   "move <upload|download> <file-or-name>...",
		Short: "Transfer files and delete each source once its copy succeeded",
		Long: `Move transfers files like upload or download, then deletes the source
of every transfer that completed. A failed or cancelled transfer keeps its
source.`,
		Example: `  srbxfer move upload clip.wav -C archive
  srbxfer move download clip.wav -C archive -d ~/media`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := transfer.ParseDirection(args[0])
			if err != nil {
				return err
			}
			return runTransfers(cmd, dir, true, args[1:], &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRmCmd() *cobra.Command {
	var collection string
	var force bool
	cmd := &cobra.Command{
		Use:     "rm <name>...",
		Aliases: []string{"delete"},
		Short:   "Delete objects from a remote collection",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			log := GetLogger()
			cfg, profile, err := loadConfig()
			if err != nil {
				return err
			}
			collection = resolveCollection(collection, profile)
			if collection == "" {
				return errNoCollection
			}

			out := cmd.OutOrStdout()
			if !force {
				fmt.Fprintf(out, "About to delete %d object(s) from %s:\n", len(args), collection)
				for _, name := range args {
					fmt.Fprintf(out, "  - %s\n", name)
				}
				if !newPrompter(cmd.InOrStdin(), out).confirm("Continue?") {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			session := transfer.NewSession(transfer.Options{Logger: log, Errors: errorPrinter(cmd.ErrOrStderr())})
			var errs []error
			for _, name := range args {
				if err := session.Remove(ctx, store, collection, name); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					continue
				}
				fmt.Fprintf(out, "✓ Deleted %s\n", name)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "C", "", "Remote collection (default: the profile's collection)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")
	return cmd
}

// runTransfers builds one request per argument and runs them through a
// transfer queue, one after another.
func runTransfers(cmd *cobra.Command, dir transfer.Direction, move bool, args []string, flags *transferFlags) error {
	ctx := GetContext()
	log := GetLogger()

	cfg, profile, err := loadConfig()
	if err != nil {
		return err
	}
	if err := flags.apply(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	collection := resolveCollection(flags.collection, profile)
	if collection == "" {
		return errNoCollection
	}

	var reqs []transfer.Request
	if dir == transfer.Upload {
		reqs, err = uploadRequests(args, flags.filter())
	} else {
		reqs, err = downloadRequests(args, cfg.LocalDir)
	}
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return errors.New("no files selected")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	for i := range reqs {
		reqs[i].Connection = store
		reqs[i].Collection = collection
		reqs[i].Resource = cfg.DefaultResource
	}

	sink := progressSink(cmd.ErrOrStderr(), len(reqs))
	errOut := cmd.ErrOrStderr()
	if ui, ok := sink.(*progress.MultiUI); ok {
		errOut = ui.Writer()
	}
	queue := transfer.NewQueue(transfer.Options{
		Logger:         log,
		Progress:       []progress.Sink{sink},
		Errors:         errorPrinter(errOut),
		ChunkSize:      cfg.ChunkSize,
		Limiter:        ratelimit.NewBandwidthLimiter(cfg.LimitRate),
		CheckDiskSpace: cfg.CheckDiskSpace,
	})
	for _, req := range reqs {
		if move {
			queue.AddMove(req)
		} else {
			queue.Add(req)
		}
	}

	log.Debug().
		Str("direction", dir.String()).
		Bool("move", move).
		Int("files", len(reqs)).
		Str("collection", collection).
		Str("store", remote.StoreName(store)).
		Msg("starting transfers")

	activeQueue.Store(queue)
	runErr := queue.Run(ctx)
	activeQueue.Store(nil)
	if ui, ok := sink.(*progress.MultiUI); ok {
		ui.Wait()
	}

	tasks := queue.GetTasks()
	if !flags.noHistory {
		recordHistory(cfg.JournalPath, tasks)
	}
	printSummary(cmd.OutOrStdout(), dir, move, queue.GetStats())
	return runErr
}

func resolveCollection(flag string, profile *config.Profile) string {
	if flag != "" {
		return flag
	}
	if profile != nil {
		return profile.Collection
	}
	return ""
}

// uploadRequests expands globs, applies the filter and sizes each file. A
// directory argument stands for the visible regular files directly in it.
func uploadRequests(patterns []string, f filter.Config) ([]transfer.Request, error) {
	paths, err := expandGlobPatterns(patterns)
	if err != nil {
		return nil, err
	}

	var reqs []transfer.Request
	seen := make(map[string]bool)
	byName := make(map[string]string) // remote name -> local path
	add := func(p string, size int64) error {
		name := filepath.Base(p)
		if seen[p] || !filter.Match(name, f) {
			return nil
		}
		if other, ok := byName[name]; ok {
			return fmt.Errorf("%w: %s and %s would both be stored as %q", errDuplicateName, other, p, name)
		}
		seen[p] = true
		byName[name] = p
		reqs = append(reqs, transfer.Request{
			FileName:  name,
			FileSize:  size,
			LocalDir:  filepath.Dir(p),
			Direction: transfer.Upload,
		})
		return nil
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := add(p, info.Size()); err != nil {
				return nil, err
			}
			continue
		}
		entries, err := localfs.ListDirectory(p, localfs.ListOptions{FilesOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		for _, e := range entries {
			if err := add(e.Path, e.Size); err != nil {
				return nil, err
			}
		}
	}
	return reqs, nil
}

// downloadRequests leaves FileSize unset so the session asks the store.
func downloadRequests(names []string, localDir string) ([]transfer.Request, error) {
	dir, err := pathutil.ResolveAbsolutePath(localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", localDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local directory: %w", err)
	}
	seen := make(map[string]bool, len(names))
	reqs := make([]transfer.Request, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		reqs = append(reqs, transfer.Request{
			FileName:  name,
			LocalDir:  dir,
			Direction: transfer.Download,
		})
	}
	return reqs, nil
}

// expandGlobPatterns expands glob patterns like *.wav, even when quoted.
// Returns a deduplicated list of absolute paths.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches := []string{pattern}
		if strings.ContainsAny(pattern, "*?[]") {
			var err error
			matches, err = filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("no files match pattern: %s", pattern)
			}
		}
		for _, match := range matches {
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("failed to get absolute path for %s: %w", match, err)
			}
			if !seen[abs] {
				expanded = append(expanded, abs)
				seen[abs] = true
			}
		}
	}
	return expanded, nil
}

func openStore(cfg *config.Config) (remote.Store, error) {
	store, err := providers.NewFactory(GetLogger()).NewStore(GetContext(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

// progressSink picks a terminal display when w is a terminal and plain
// lines otherwise.
func progressSink(w io.Writer, files int) progress.Sink {
	if f, ok := w.(*os.File); ok {
		return progress.ForTerminal(f, files)
	}
	return progress.NewTextSink(w, time.Second)
}

// errorPrinter shows each transfer error with its status code.
func errorPrinter(w io.Writer) transfer.ErrorSink {
	return func(err error) {
		if code := transfer.CodeOf(err); code != 0 {
			fmt.Fprintf(w, "Error %d (%s): %v\n", code, remote.StatusText(code), err)
			return
		}
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func recordHistory(path string, tasks []transfer.TaskSnapshot) {
	entries := make([]journal.Entry, 0, len(tasks))
	for _, task := range tasks {
		if task.IsTerminal() {
			entries = append(entries, journal.FromTask(task))
		}
	}
	if err := journal.New(path).Append(entries...); err != nil {
		GetLogger().Warn().Err(err).Str("path", path).Msg("failed to record transfer history")
	}
}

func printSummary(w io.Writer, dir transfer.Direction, move bool, stats transfer.QueueStats) {
	verb := dir.String()
	if move {
		verb = "move (" + verb + ")"
	}
	fmt.Fprintf(w, "\n%s: %d completed, %d failed, %d cancelled\n",
		verb, stats.Completed, stats.Failed, stats.Cancelled)
}
