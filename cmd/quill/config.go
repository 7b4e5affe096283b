package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"quill/internal/options"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the project's compiler options",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a compiler option, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a compiler option (value is a JSON literal)",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func locateConfig() (string, []byte, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	path, found, err := options.FindConfigFile(wd)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, fmt.Errorf("no %s found; run 'quill init' first", options.ConfigFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return path, data, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	path, data, err := locateConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		all := gjson.GetBytes(data, "compilerOptions")
		if !all.Exists() {
			return fmt.Errorf("%s has no compilerOptions object", path)
		}
		fmt.Fprintln(cmd.OutOrStdout(), all.Raw)
		return nil
	}
	v := gjson.GetBytes(data, "compilerOptions."+args[0])
	if !v.Exists() {
		return fmt.Errorf("compiler option %q is not set in %s", args[0], path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Raw)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, data, err := locateConfig()
	if err != nil {
		return err
	}
	key, value := args[0], args[1]

	var out []byte
	if gjson.Valid(value) {
		out, err = sjson.SetRawBytes(data, "compilerOptions."+key, []byte(value))
	} else {
		// Голое слово трактуем как строку, по аналогии с прагмами.
		out, err = sjson.SetBytes(data, "compilerOptions."+key, value)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: compilerOptions.%s = %s\n", path, key, value)
	return nil
}
