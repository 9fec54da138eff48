package main

import (
	"fmt"
	"path/filepath"

	"github.com/forest6511/keyp/internal/config"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings",
	Long: fmt.Sprintf(`Read and change settings stored in ~/.keyp/%s.

Environment variables prefixed with %s override the file, for example
KEYP_CLIPBOARD_CLEAR_AFTER=10s. Set %s to move the whole directory.`, config.FileName, config.EnvPrefix, config.HomeEnv),
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			value, err := cfg.Get(args[0])
			if err != nil {
				return fmt.Errorf("%w (valid keys: %v)", err, config.Keys())
			}
			fmt.Println(value)
			return nil
		}
		for _, key := range config.Keys() {
			value, _ := cfg.Get(key)
			fmt.Printf("%s = %s\n", key, value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Reload so command-line flags are not persisted.
		c, err := config.Load(configDir)
		if err != nil {
			return err
		}
		if err := c.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.EnsureDir(configDir); err != nil {
			return err
		}
		if err := c.Save(configDir); err != nil {
			return err
		}
		fmt.Printf("%s set to %s\n", args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config and vault locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("config: %s\n", filepath.Join(configDir, config.FileName))
		fmt.Printf("vault:  %s\n", cfg.VaultPath)
		return nil
	},
}
