// Package cli provides the command-line interface for srbxfer.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/constants"
	srbhttp "github.com/transana/srbxfer/internal/http"
	"github.com/transana/srbxfer/internal/logging"
	"github.com/transana/srbxfer/internal/transfer"
	"github.com/transana/srbxfer/internal/version"
)

var (
	// Global flags
	cfgFile      string
	profilesFile string
	envFile      string
	profileName  string
	verbose      bool
	debug        bool
	timing       bool
	logFile      string

	// Global logger
	logger    *logging.Logger
	logCloser io.Closer

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// activeQueue is the batch currently running, so a signal can stop it
	// at a chunk boundary instead of tearing down in-flight calls.
	activeQueue atomic.Pointer[transfer.Queue]
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "srbxfer",
		Short: "Chunked file transfer between local disk and a remote store",
		Long: `srbxfer ` + version.Version + ` - Built: ` + version.BuildTime + `
Moves media files one at a time between a local directory and a remote
collection (local directory store, S3 or Azure Blob), in fixed-size chunks,
with progress reporting and clean cancellation.

Press Ctrl+C once to stop after the current chunk and remove the partial
copy; press it again to abort in-flight calls.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			if timing {
				os.Setenv(constants.EnvPrefix+"TIMING", "1")
			}
			if logFile != "" {
				logCloser = logger.TeeToFile(logFile)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
				logCloser = nil
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles-file", "", "Connection profiles file (default "+config.GetDefaultProfilesPath()+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file with backend credentials")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "Connection profile to use (default: the profile marked default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().BoolVar(&timing, "timing", false, "Print [TIMING] lines for each transfer phase")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated at 10 MB)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for srbxfer.

  bash:        source <(srbxfer completion bash)
  zsh:         srbxfer completion zsh > "${fpath[1]}/_srbxfer"
  fish:        srbxfer completion fish | source
  powershell:  srbxfer completion powershell | Out-String | Invoke-Expression`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletion(out)
			}
			return fmt.Errorf("unsupported shell: %s", args[0])
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// First signal stops the running batch at the next chunk boundary,
	// any further signal cancels the context.
	go func() {
		for sig := range sigChan {
			if sig == nil {
				continue
			}
			if q := activeQueue.Swap(nil); q != nil {
				fmt.Fprintf(os.Stderr, "\n\n🛑 Received signal %v, stopping after the current chunk...\n", sig)
				fmt.Fprintf(os.Stderr, "   Partial copies will be removed. Press Ctrl+C again to abort.\n\n")
				q.CancelAll()
				continue
			}
			fmt.Fprintf(os.Stderr, "\n\n🛑 Received signal %v, cancelling operations...\n", sig)
			cancelFunc()
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProfilesCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

func profilesPath() string {
	if profilesFile != "" {
		return profilesFile
	}
	return config.GetDefaultProfilesPath()
}

// loadConfig builds the effective configuration: .env, config.csv,
// SRBXFER_* overrides, then the selected profile. It prompts for the proxy
// password when the proxy needs one and none was supplied.
func loadConfig() (*config.Config, *config.Profile, error) {
	var envErr error
	if envFile != "" {
		envErr = config.LoadEnv(envFile)
	} else {
		envErr = config.LoadEnv()
	}
	if envErr != nil {
		return nil, nil, envErr
	}

	cfg, err := config.LoadConfigCSV(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.MergeEnv()

	profiles, err := config.LoadProfiles(profilesPath())
	if err != nil {
		return nil, nil, err
	}
	profile, err := profiles.Get(profileName)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyProfile(profile)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if srbhttp.NeedsProxyPassword(cfg) {
		pw, err := promptPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = pw
	}

	GetLogger().Debug().
		Str("config", configPath()).
		Str("backend", cfg.Backend).
		Str("profile", profileLabel(profile)).
		Msg("configuration loaded")
	return cfg, profile, nil
}

func profileLabel(p *config.Profile) string {
	if p == nil {
		return "(none)"
	}
	return p.Name
}
