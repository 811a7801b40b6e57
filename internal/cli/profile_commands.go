package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/transana/srbxfer/internal/config"
)

// newProfilesCmd creates the 'profiles' command group.
func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "Manage connection profiles",
		Long: `A connection profile names a store, a collection and a storage resource
so transfers can be run with --profile instead of repeating flags.

Profiles live in profiles.ini. One profile may be marked default.`,
	}

	cmd.AddCommand(newProfilesListCmd())
	cmd.AddCommand(newProfilesAddCmd())
	cmd.AddCommand(newProfilesRmCmd())
	cmd.AddCommand(newProfilesDefaultCmd())

	return cmd
}

func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List connection profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := config.LoadProfiles(profilesPath())
			if err != nil {
				return err
			}
			names := ps.Names()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No profiles. Add one with: srbxfer profiles add <name> --backend ...")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tNAME\tBACKEND\tCOLLECTION\tRESOURCE")
			for _, name := range names {
				p, _ := ps.Get(name)
				marker := ""
				if name == ps.Default {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, name, p.Backend, p.Collection, p.Resource)
			}
			return w.Flush()
		},
	}
}

func newProfilesAddCmd() *cobra.Command {
	var (
		p          config.Profile
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a connection profile",
		Example: `  srbxfer profiles add archive --backend s3 --bucket transana-media --collection interviews
  srbxfer profiles add scratch --backend localdir --store-root /srv/media --default`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := profilesPath()
			ps, err := config.LoadProfiles(path)
			if err != nil {
				return err
			}
			profile := p
			profile.Name = args[0]
			if err := ps.Put(&profile); err != nil {
				return err
			}
			if setDefault {
				ps.Default = profile.Name
			}
			if err := config.SaveProfiles(ps, path); err != nil {
				return err
			}
			GetLogger().Info().Str("profile", profile.Name).Str("path", path).Msg("Profile saved")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Profile %q saved\n", profile.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&p.Backend, "backend", "", "Store backend (memory, localdir, s3, azure)")
	cmd.Flags().StringVar(&p.Collection, "collection", "", "Remote collection used when --collection is not given")
	cmd.Flags().StringVar(&p.Username, "username", "", "User name recorded with the profile")
	cmd.Flags().StringVar(&p.Resource, "resource", "", "Storage resource new objects are created on")
	cmd.Flags().StringVar(&p.Bucket, "bucket", "", "S3 bucket")
	cmd.Flags().StringVar(&p.Container, "container", "", "Azure container")
	cmd.Flags().StringVar(&p.Endpoint, "endpoint", "", "S3 or Azure endpoint override")
	cmd.Flags().StringVar(&p.StoreRoot, "store-root", "", "Root directory for the localdir backend")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default profile")

	return cmd
}

func newProfilesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Delete a connection profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := profilesPath()
			ps, err := config.LoadProfiles(path)
			if err != nil {
				return err
			}
			if err := ps.Delete(args[0]); err != nil {
				return err
			}
			if err := config.SaveProfiles(ps, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Profile %q deleted\n", args[0])
			return nil
		},
	}
}

func newProfilesDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default [name]",
		Short: "Show or set the default connection profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := profilesPath()
			ps, err := config.LoadProfiles(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				if ps.Default == "" {
					fmt.Fprintln(out, "No default profile")
				} else {
					fmt.Fprintln(out, ps.Default)
				}
				return nil
			}
			if _, err := ps.Get(args[0]); err != nil {
				return err
			}
			ps.Default = args[0]
			if err := config.SaveProfiles(ps, path); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Default profile is now %q\n", args[0])
			return nil
		},
	}
}
