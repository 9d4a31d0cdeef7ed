package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/workspace"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var (
		url    string
		bindDN string
		baseDN string
		local  string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a data directory with a sample config",
		Long: `Create a data directory with a sample config.

The bind password is not written by init. Put it in the config, in a .env
file next to it, or in the DIRSYNC_DIRECTORY_PASSWORD environment variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			ws, err := workspace.New(dataDir(cmd))
			if err != nil {
				return err
			}

			if ws.Initialized() && !force {
				fmt.Fprintln(out, "dirsync already initialized")
				fmt.Fprintf(out, "Config Path: %s\n", green.Render(ws.ConfigPath))
				fmt.Fprintf(out, "%s\n", gray.Render("use --force to overwrite it"))
				return nil
			}

			if err := ws.Setup(); err != nil {
				return err
			}

			cfg := config.Default(ws.Root)
			if url != "" {
				cfg.Directory.URL = url
			}
			if bindDN != "" {
				cfg.Directory.BindDN = bindDN
			}
			if baseDN != "" {
				cfg.Directory.BaseDN = baseDN
			}
			if local != "" {
				cfg.Local.Path = local
			}

			if err := cfg.Save(ws.ConfigPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			envFile := filepath.Join(ws.Root, config.EnvFileName)
			if _, err := os.Stat(envFile); os.IsNotExist(err) {
				if err := os.WriteFile(envFile, []byte("# "+config.EnvPrefix+"_DIRECTORY_PASSWORD=\n"), 0o600); err != nil {
					return fmt.Errorf("write env file: %w", err)
				}
			}

			fmt.Fprintln(out, "dirsync initialized")
			fmt.Fprintf(out, "Config Path: %s\n", green.Render(ws.ConfigPath))
			fmt.Fprintf(out, "Directory:   %s\n", cyan.Render(cfg.Directory.URL))
			fmt.Fprintf(out, "Base DN:     %s\n", cyan.Render(cfg.Directory.BaseDN))
			fmt.Fprintf(out, "Local Store: %s\n", cyan.Render(cfg.LocalPath()))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&url, "url", "u", "", "directory URL, ldap:// or ldaps://")
	cmd.Flags().StringVar(&bindDN, "bind-dn", "", "DN used to bind to the directory")
	cmd.Flags().StringVar(&baseDN, "base-dn", "", "subtree holding the synced entries")
	cmd.Flags().StringVar(&local, "local", "", "path of the local contact store")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")

	return cmd
}
