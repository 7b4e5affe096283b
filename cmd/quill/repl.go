package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quill/internal/cache"
	"quill/internal/diagfmt"
	"quill/internal/eval"
	"quill/internal/project"
	"quill/internal/session"
)

var replCmd = &cobra.Command{
	Use:   "repl [flags] [dir]",
	Short: "Start an interactive notebook session",
	Long: `Start an interactive kernel session in the given directory (default: cwd).
Cells are submitted with an empty line; state accumulates across cells.
Meta commands: :reset recreates the session, :quit exits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func init() {
	replCmd.Flags().Bool("no-eval", false, "print the transpiled slices instead of evaluating them")
}

type replStyles struct {
	banner lipgloss.Style
	prompt lipgloss.Style
	out    lipgloss.Style
	err    lipgloss.Style
}

func newReplStyles(colorOn bool) replStyles {
	if !colorOn {
		s := lipgloss.NewStyle()
		return replStyles{banner: s, prompt: s, out: s, err: s}
	}
	return replStyles{
		banner: lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		out:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	workdir := "."
	if len(args) == 1 {
		workdir = args[0]
	}
	if workdir == "." {
		if wd, err := os.Getwd(); err == nil {
			workdir = wd
		}
	}

	colorOn, err := colorFromFlags(cmd)
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	timings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	noEval, err := cmd.Flags().GetBool("no-eval")
	if err != nil {
		return fmt.Errorf("failed to get no-eval flag: %w", err)
	}

	manifest, _, err := project.Load(workdir)
	if err != nil {
		return err
	}

	var disk *cache.Disk
	if manifest.Config.Cache.Enabled {
		if dir := manifest.Config.Cache.Dir; dir != "" {
			disk, err = cache.OpenDiskAt(dir)
		} else {
			disk, err = cache.OpenDisk("quill")
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "disk cache unavailable: %v\n", err)
			disk = nil
		}
	}

	newSession := func() *session.Session {
		return session.New(session.Config{
			Workdir: workdir,
			Disk:    disk,
			Format:  diagfmt.Opts{Color: colorOn, ShowSource: manifest.Config.Kernel.ShowSource},
			Timings: timings,
		})
	}
	newEvaluator := func() (*eval.Evaluator, error) {
		if noEval {
			return nil, nil
		}
		timeout := time.Duration(manifest.Config.Eval.TimeoutMS) * time.Millisecond
		return eval.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), timeout)
	}

	sess := newSession()
	ev, err := newEvaluator()
	if err != nil {
		return err
	}

	styles := newReplStyles(colorOn)
	out := cmd.OutOrStdout()
	if !quiet {
		fmt.Fprintln(out, styles.banner.Render("quill "+strings.TrimSpace(rootCmd.Version)+" — Go notebook kernel"))
		fmt.Fprintln(out, "submit a cell with an empty line; :quit to exit")
	}

	prompt := manifest.Config.Kernel.Prompt
	var background errgroup.Group
	defer func() { _ = background.Wait() }()
	// Сериализует доступ к интерпретатору и вывод между async-ячейкой и
	// синхронной следующей.
	var evalMu sync.Mutex

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	cellNo := 1
	var buf []string
	showPrompt := func() {
		if quiet {
			return
		}
		if len(buf) == 0 {
			fmt.Fprint(out, styles.prompt.Render(fmt.Sprintf("%s[%d]: ", prompt, cellNo)))
		} else {
			fmt.Fprint(out, styles.prompt.Render(" ...: "))
		}
	}

	showPrompt()
	for scanner.Scan() {
		line := scanner.Text()

		if len(buf) == 0 {
			switch strings.TrimSpace(line) {
			case ":quit", ":exit":
				return nil
			case ":reset":
				sess = newSession()
				if ev, err = newEvaluator(); err != nil {
					return err
				}
				fmt.Fprintln(out, "session reset")
				showPrompt()
				continue
			}
		}

		if line != "" {
			buf = append(buf, line)
			showPrompt()
			continue
		}
		if len(buf) == 0 {
			showPrompt()
			continue
		}

		cell := strings.Join(buf, "\n")
		buf = nil

		res, err := sess.Execute(cmd.Context(), cell)
		if err != nil {
			fmt.Fprintln(out, styles.err.Render(err.Error()))
			showPrompt()
			continue
		}
		if timings {
			if summary := sess.Timings(); summary != "" {
				fmt.Fprint(out, summary)
			}
		}

		runSlice(cmd, res, ev, styles, &background, &evalMu, cellNo, noEval)
		cellNo++
		showPrompt()
	}
	return scanner.Err()
}

func runSlice(cmd *cobra.Command, res session.Result, ev *eval.Evaluator, styles replStyles, background *errgroup.Group, evalMu *sync.Mutex, cellNo int, noEval bool) {
	out := cmd.OutOrStdout()
	if noEval || ev == nil {
		fmt.Fprint(out, res.Code)
		return
	}

	run := func() error {
		evalMu.Lock()
		defer evalMu.Unlock()
		value, err := ev.Eval(cmd.Context(), res.Code)
		if err != nil {
			fmt.Fprintln(out, styles.err.Render(fmt.Sprintf("eval: %v", err)))
			return nil
		}
		if value != "" {
			fmt.Fprintln(out, styles.out.Render(fmt.Sprintf("Out[%d]: %s", cellNo, value)))
		}
		return nil
	}

	if res.Async {
		background.Go(run)
		return
	}
	_ = run()
}
