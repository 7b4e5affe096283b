package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"quill/internal/options"
	"quill/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a quill project",
	Long: `Initialize a quill project by creating a compiler configuration
(quill.json) and a kernel manifest (quill.toml). If [path] is omitted,
initializes the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

const defaultConfigJSON = `{
  "compilerOptions": {
    "typeCheck": true,
    "allowImports": true,
    "module": "repl",
    "ignoreUnused": true,
    "maxDiagnostics": 20
  }
}
`

const defaultManifestTOML = `[kernel]
prompt = "In"
show_source = true

[cache]
enabled = false

[eval]
timeout_ms = 0
`

func runInit(cmd *cobra.Command, args []string) error {
	var target string
	if len(args) == 0 || args[0] == "." {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		target = wd
	} else if filepath.IsAbs(args[0]) {
		target = args[0]
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		target = filepath.Join(wd, args[0])
	}

	if st, err := os.Stat(target); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", target)
	}

	cfgPath := filepath.Join(target, options.ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", cfgPath)
	}
	manPath := filepath.Join(target, project.ManifestName)
	if _, err := os.Stat(manPath); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", manPath)
	}

	if err := os.WriteFile(cfgPath, []byte(defaultConfigJSON), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(manPath, []byte(defaultManifestTOML), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created %s\ncreated %s\n", cfgPath, manPath)
	return nil
}
