package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/transana/srbxfer/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage srbxfer configuration",
		Long: `Configuration management commands for srbxfer.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  set   - Change one setting
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for srbxfer.

The configuration is saved to ` + config.GetDefaultConfigPath() + `
unless --config names another file. Credentials are never written
there: put them in the environment or in ` + config.GetDefaultEnvPath() + `.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "srbxfer Configuration Setup")
			fmt.Fprintln(out, "===========================")
			fmt.Fprintln(out)

			p := newPrompter(cmd.InOrStdin(), out)
			cfg := config.Default()

			cfg.Backend = p.choice("Backend", cfg.Backend,
				config.BackendLocalDir, config.BackendS3, config.BackendAzure, config.BackendMemory)
			switch cfg.Backend {
			case config.BackendLocalDir:
				cfg.StoreRoot = p.line("Store root directory", cfg.StoreRoot)
			case config.BackendS3:
				cfg.S3Bucket = p.line("S3 bucket", "")
				cfg.S3Region = p.line("S3 region", "us-east-1")
				cfg.S3Endpoint = p.line("S3 endpoint (blank for AWS)", "")
				if cfg.S3Endpoint != "" {
					cfg.S3PathStyle = p.confirm("Use path-style addressing?")
				}
			case config.BackendAzure:
				cfg.AzureAccount = p.line("Storage account", "")
				cfg.AzureContainer = p.line("Container", "")
				cfg.AzureEndpoint = p.line("Endpoint (blank for the public cloud)", "")
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Transfer Settings (press Enter for defaults)")
			fmt.Fprintln(out, "--------------------------------------------")
			cfg.ChunkSize = p.number("Chunk size in bytes", cfg.ChunkSize)
			cfg.LocalDir = p.line("Default local directory", cfg.LocalDir)
			cfg.DefaultResource = p.line("Storage resource", cfg.DefaultResource)

			fmt.Fprintln(out)
			if p.confirm("Configure proxy?") {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Proxy Configuration")
				fmt.Fprintln(out, "-------------------")
				cfg.ProxyMode = p.choice("Proxy mode", config.ProxySystem, config.ProxyNone, config.ProxySystem, config.ProxyBasic, config.ProxyNTLM)
				if cfg.ProxyMode != config.ProxyNone {
					cfg.ProxyHost = p.line("Proxy host", "")
					cfg.ProxyPort = p.number("Proxy port", 8080)
				}
				if cfg.ProxyMode == config.ProxyBasic || cfg.ProxyMode == config.ProxyNTLM {
					cfg.ProxyUser = p.line("Proxy user", "")
				}
				cfg.NoProxy = p.line("Hosts that bypass the proxy (comma-separated)", "")
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			switch cfg.Backend {
			case config.BackendS3:
				fmt.Fprintln(out, "  Set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY (or AWS_PROFILE) in the environment or .env")
			case config.BackendAzure:
				fmt.Fprintln(out, "  Set AZURE_STORAGE_SAS_TOKEN or AZURE_STORAGE_KEY in the environment or .env")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (config.csv)
  2. Environment variables (SRBXFER_<KEY>, HTTPS_PROXY)
  3. The selected connection profile (--profile or the default)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()

			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeEnv()
			profiles, err := config.LoadProfiles(profilesPath())
			if err != nil {
				return err
			}
			profile, err := profiles.Get(profileName)
			if err != nil {
				return err
			}
			cfg.ApplyProfile(profile)

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)
			for _, r := range cfg.Records() {
				value := r[1]
				if value == "" {
					value = "<not set>"
				}
				fmt.Fprintf(out, "  %-18s %s\n", r[0]+":", value)
			}
			if cfg.ProxyPassword != "" {
				fmt.Fprintf(out, "  %-18s <set (%d chars)>\n", "proxy_password:", len(cfg.ProxyPassword))
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Profile: %s\n", profileLabel(profile))
			if profile != nil && profile.Collection != "" {
				fmt.Fprintf(out, "  Collection: %s\n", profile.Collection)
			}
			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\n⚠️  %v\n", err)
			}
			return nil
		},
	}

	return cmd
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration setting",
		Long: `Change one setting in config.csv and save it.

Keys: chunk_size, limit_rate, check_disk_space, local_dir, backend,
store_root, default_resource, s3_bucket, s3_region, s3_endpoint,
s3_path_style, s3_prefix, azure_account, azure_container, azure_endpoint,
azure_prefix, proxy_mode, proxy_host, proxy_port, proxy_user, no_proxy,
http_retries, journal_path.

limit_rate accepts K, M and G suffixes, e.g. 512K.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s updated in %s\n", args[0], path)
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the paths of the configuration, profiles and environment files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, f := range []struct{ label, path string }{
				{"Configuration", configPath()},
				{"Profiles", profilesPath()},
				{"Environment", config.GetDefaultEnvPath()},
			} {
				status := "missing"
				if info, err := os.Stat(f.path); err == nil {
					status = strconv.FormatInt(info.Size(), 10) + " bytes, modified " +
						info.ModTime().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%-14s %s (%s)\n", f.label+":", f.path, status)
			}
			return nil
		},
	}

	return cmd
}
