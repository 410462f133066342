// Package config implements the 'spot config' command family.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spot-perf/spot/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage spot configuration",
		Long: `Manage spot configuration.

Configuration Priority:
  1. Command-line flags (highest)
  2. SPOT_* environment variables
  3. Config file (~/.spot/config.yaml)
  4. Built-in defaults

Environment Variables:
  SPOT_CONFIG  Override the config file path`,
	}

	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}

func newLoader() *config.Loader {
	return config.NewLoader(afero.NewOsFs())
}

// newViewCmd creates the 'config view' command.
func newViewCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file and SPOT_*
environment variables are merged.

Use --raw to output the YAML without the header comment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := newLoader()
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if !raw {
				exists, err := loader.Exists()
				if err != nil {
					return err
				}
				state := "present"
				if !exists {
					state = "not present, using defaults"
				}
				cmd.Printf("# Config file: %s (%s)\n", loader.Path(), state)
			}
			cmd.Print(string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Output raw YAML without annotations")

	return cmd
}

// newPathCmd creates the 'config path' command.
func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(newLoader().Path())
		},
	}
}

// newInitCmd creates the 'config init' command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := newLoader()

			exists, err := loader.Exists()
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", loader.Path())
			}

			if err := loader.Save(loader.Defaults()); err != nil {
				return err
			}
			cmd.Println(loader.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := newLoader()
			if _, err := loader.Load(); err != nil {
				var multi *config.MultiValidationError
				if errors.As(err, &multi) {
					for _, e := range multi.Errors {
						cmd.Printf("  %s\n", e.Error())
					}
					return fmt.Errorf("validation failed with %d errors", len(multi.Errors))
				}
				return err
			}

			cmd.Printf("%s: valid\n", loader.Path())
			return nil
		},
	}
}
