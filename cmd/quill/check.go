package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quill/internal/diagfmt"
	"quill/internal/langsvc"
	"quill/internal/options"
	"quill/internal/pragma"
	"quill/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Diagnose notebook script files without evaluating them",
	Long: `Run the configuration, syntax and type-checking layers over whole
notebook script files. Each file is treated as one accumulated buffer; its
leading pragma block applies the same way it does in a live session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Int("jobs", 0, "max files processed in parallel (0 = GOMAXPROCS)")
}

type checkReport struct {
	path   string
	output string
	broken bool
	err    error
}

func runCheck(cmd *cobra.Command, args []string) error {
	colorOn, err := colorFromFlags(cmd)
	if err != nil {
		return err
	}
	maxDiag, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	reports := make([]checkReport, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			reports[i] = checkFile(ctx, path, maxDiag, colorOn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	broken := 0
	for _, r := range reports {
		if r.err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.path, r.err)
			broken++
			continue
		}
		fmt.Fprint(cmd.OutOrStdout(), r.output)
		if r.broken {
			broken++
		}
	}
	if broken > 0 {
		return fmt.Errorf("%d of %d files had problems", broken, len(args))
	}
	return nil
}

func checkFile(ctx context.Context, path string, maxDiag int, colorOn bool) checkReport {
	report := checkReport{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		report.err = err
		return report
	}

	cleaned, ov, err := pragma.Parse(source.Normalize(string(data)))
	if err != nil {
		report.err = err
		return report
	}

	resolver := options.NewResolver(filepath.Dir(path))
	set, _ := resolver.Resolve(ov)
	if maxDiag > 0 {
		set = withMaxDiagnostics(set, maxDiag)
	}

	doc := source.NewDocument()
	if err := doc.Stage(cleaned); err != nil {
		report.err = err
		return report
	}

	res, err := langsvc.NewGoService(doc, filepath.Dir(path)).Compile(ctx, set)
	if err != nil {
		report.err = err
		return report
	}

	var b strings.Builder
	diagfmt.Pretty(&b, res.Bag, path, diagfmt.Opts{Color: colorOn})
	report.output = b.String()
	report.broken = res.Bag.HasErrors()
	return report
}

// withMaxDiagnostics overlays the CLI cap without touching file options.
func withMaxDiagnostics(set options.Set, maxDiag int) options.Set {
	m := set.Map()
	m[options.KeyMaxDiagnostics] = maxDiag
	return options.NewSet(m)
}
