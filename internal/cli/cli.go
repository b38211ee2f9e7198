// Package cli defines the imageforge command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/imageforge/internal/app"
	"github.com/vk/imageforge/internal/buildcfg"
	"github.com/vk/imageforge/internal/manifest"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	profile    string
}

// NewRootCmd builds the command tree. All commands construct the App from
// the resolved settings at run time, so flags and config files compose.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "imageforge",
		Short:         "Declarative bootable image builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "builder config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")
	root.PersistentFlags().StringVarP(&flags.profile, "profile", "p", "", "profile to build")

	root.AddCommand(newBuildCmd(flags))
	root.AddCommand(newRealizeCmd(flags))
	root.AddCommand(newRebuildCmd(flags))
	root.AddCommand(newInfoCmd(flags))
	return root
}

func (f *rootFlags) newApp(cmd *cobra.Command) (*app.App, error) {
	settings, err := buildcfg.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		settings.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		settings.LogFormat = f.logFormat
	}
	if f.profile != "" {
		settings.Profile = f.profile
	}
	return app.NewApp(cmd.ErrOrStderr(), settings)
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the bootable disk image for a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.newApp(cmd)
			if err != nil {
				return err
			}
			result, err := a.Build(cmd.Context(), flags.profile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "boot: %s\nroot: %s\ndisk: %s\n",
				result.BootImage, result.RootImage, result.DiskImage)
			return nil
		},
	}
}

func newRealizeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "realize",
		Short: "Realize a profile and print its configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.newApp(cmd)
			if err != nil {
				return err
			}
			r, err := a.Realize(flags.profile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "profiles: %s\n", strings.Join(r.Profiles, " -> "))
			fmt.Fprintf(out, "hash:     %s\n", r.InputHash())

			hostname, err := r.String("system", "hostname")
			if err != nil {
				return err
			}
			mode, err := r.String("networking", "mode")
			if err != nil {
				return err
			}
			pkgs, err := r.StringList("packages", "list")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "hostname: %s\n", hostname)
			fmt.Fprintf(out, "network:  %s\n", mode)
			fmt.Fprintf(out, "packages: %s\n", strings.Join(pkgs, ", "))
			return nil
		},
	}
}

func newRebuildCmd(flags *rootFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "rebuild <request.json>",
		Short: "Serve one bridge rebuild request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.newApp(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			resp, _, err := a.Rebuild(cmd.Context(), data)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			encoded = append(encoded, '\n')

			if outPath != "" {
				return os.WriteFile(outPath, encoded, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the response to a file instead of stdout")
	return cmd
}

func newInfoCmd(flags *rootFlags) *cobra.Command {
	var diffPath string
	cmd := &cobra.Command{
		Use:   "info <manifest.json>",
		Short: "Show manifest details, optionally diffed against another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if diffPath != "" {
				other, err := manifest.Load(diffPath)
				if err != nil {
					return err
				}
				printDelta(out, manifest.Diff(m, other))
				return nil
			}

			printManifest(out, m)
			return nil
		},
	}
	cmd.Flags().StringVar(&diffPath, "diff", "", "second manifest to diff against")
	return cmd
}

func printManifest(out io.Writer, m *manifest.Manifest) {
	fmt.Fprintf(out, "System:\n")
	fmt.Fprintf(out, "  Version:    %s\n", m.System.Version)
	fmt.Fprintf(out, "  Target:     %s\n", m.System.Target)
	fmt.Fprintf(out, "  Profile:    %s\n", m.System.Profile)
	fmt.Fprintf(out, "  Hostname:   %s\n", m.System.Hostname)
	fmt.Fprintf(out, "  Generation: %d (%s)\n", m.Generation.ID, m.Generation.Timestamp)
	fmt.Fprintf(out, "Configuration:\n")
	fmt.Fprintf(out, "  Disk:       %d MB (boot %d MB)\n", m.Configuration.Boot.DiskSizeMB, m.Configuration.Boot.ESPSizeMB)
	fmt.Fprintf(out, "  Networking: %s (enabled=%t)\n", m.Configuration.Networking.Mode, m.Configuration.Networking.Enabled)
	fmt.Fprintf(out, "  Graphics:   enabled=%t\n", m.Configuration.Graphics.Enabled)
	fmt.Fprintf(out, "Packages:     %d\n", len(m.Packages))
	fmt.Fprintf(out, "Drivers:      %s\n", strings.Join(m.Drivers.All, ", "))
	fmt.Fprintf(out, "Files:        %d\n", len(m.Files))
}

func printDelta(out io.Writer, d *manifest.Delta) {
	if d.Empty() {
		fmt.Fprintln(out, "no changes")
		return
	}
	fmt.Fprintf(out, "generation %d -> %d\n", d.GenerationFrom, d.GenerationTo)
	printList(out, "packages added", d.PackagesAdded)
	printList(out, "packages removed", d.PackagesRemoved)
	printList(out, "drivers added", d.DriversAdded)
	printList(out, "drivers removed", d.DriversRemoved)
	printList(out, "users added", d.UsersAdded)
	printList(out, "users removed", d.UsersRemoved)
	printList(out, "config", d.ConfigChanges)
}

func printList(out io.Writer, label string, items []string) {
	for _, item := range items {
		fmt.Fprintf(out, "%s: %s\n", label, item)
	}
}
