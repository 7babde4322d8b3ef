package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"receitas/internal/backend"
	"receitas/internal/cli"
	"receitas/internal/core"
	applog "receitas/internal/log"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: receitas <command> [flags]

commands:
  add     -name NAME -start MM/YYYY [-end MM/YYYY] [-continuous] [-description TEXT]
  update  -id ID [-name NAME] [-start MM/YYYY] [-end MM/YYYY] [-continuous=true|false] [-description TEXT]
  list    [-active MM/YYYY]
  show    -id ID
  delete  -id ID
`

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitError)
	}
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentCLI)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(exitError)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(exitError)
	}

	code := run(ctx, res.Backend, os.Args[1:], os.Stdout, os.Stderr)

	if res.Cleanup != nil {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", applog.FieldError, err)
		}
	}
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code
func run(ctx context.Context, b backend.Backend, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "add":
		err = runSave(ctx, b, rest, false, stdout, stderr)
	case "update":
		err = runSave(ctx, b, rest, true, stdout, stderr)
	case "list":
		err = runList(ctx, b, rest, stdout, stderr)
	case "show":
		err = runShow(ctx, b, rest, stdout, stderr)
	case "delete":
		err = runDelete(ctx, b, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	return report(err, stderr)
}

// usageError marks bad flags or arguments
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func report(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}

	var ve *core.ValidationError
	var ue *usageError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintln(stderr, ve.Error())
		return exitUsage
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, ue.msg)
		return exitUsage
	case errors.Is(err, flag.ErrHelp):
		return exitUsage
	case errors.Is(err, core.ErrNotFound):
		fmt.Fprintln(stderr, "income not found")
		return exitError
	default:
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags reports flag errors as usage errors; the FlagSet already printed them
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{err.Error()}
	}
	if fs.NArg() > 0 {
		return &usageError{fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " "))}
	}
	return nil
}

func runSave(ctx context.Context, b backend.Backend, args []string, update bool, stdout, stderr io.Writer) error {
	name := "add"
	if update {
		name = "update"
	}
	fs := newFlagSet(name, stderr)
	id := fs.Int64("id", 0, "income id (update only)")
	incomeName := fs.String("name", "", "income name")
	description := fs.String("description", "", "optional description")
	start := fs.String("start", "", "start month, MM/YYYY")
	end := fs.String("end", "", "end month, MM/YYYY (empty clears it on update)")
	continuous := fs.Bool("continuous", false, "income has no defined end")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var in core.Income
	if update {
		if *id <= 0 {
			return &usageError{"update requires -id"}
		}
		existing, err := b.Get(ctx, *id)
		if err != nil {
			return err
		}
		in = *existing
	} else if set["id"] {
		return &usageError{"add does not take -id; use update"}
	}

	if set["name"] || !update {
		in.Name = *incomeName
	}
	if set["description"] {
		in.Description = *description
	}
	if set["continuous"] || !update {
		in.IsContinuous = *continuous
	}
	if set["start"] || !update {
		if strings.TrimSpace(*start) == "" {
			in.StartedAt = core.Month{}
		} else {
			m, err := core.ParseMonth(*start)
			if err != nil {
				return &core.ValidationError{Code: "invalid_month", Field: core.FieldStartedAt, Message: "start must be MM/YYYY.", Err: err}
			}
			in.StartedAt = m
		}
	}
	if set["end"] {
		if strings.TrimSpace(*end) == "" {
			in.EndedAt = nil
		} else {
			m, err := core.ParseMonth(*end)
			if err != nil {
				return &core.ValidationError{Code: "invalid_month", Field: core.FieldEndedAt, Message: "end must be MM/YYYY.", Err: err}
			}
			in.EndedAt = &m
		}
	}

	if err := b.Save(ctx, &in); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d\t%s\n", in.ID, in.String())
	return nil
}

func runList(ctx context.Context, b backend.Backend, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	active := fs.String("active", "", "only incomes active in this month, MM/YYYY")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		incomes []core.Income
		err     error
	)
	if *active != "" {
		m, perr := core.ParseMonth(*active)
		if perr != nil {
			return &usageError{fmt.Sprintf("invalid -active month %q: expected MM/YYYY", *active)}
		}
		incomes, err = b.ListActive(ctx, m)
	} else {
		incomes, err = b.List(ctx)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tINCOME")
	for _, in := range incomes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", in.ID, in.Kind(), in.String())
	}
	return tw.Flush()
}

func runShow(ctx context.Context, b backend.Backend, args []string, stdout, stderr io.Writer) error {
	id, err := parseID("show", args, stderr)
	if err != nil {
		return err
	}
	in, err := b.Get(ctx, id)
	if err != nil {
		return err
	}

	end := "-"
	if in.EndedAt != nil {
		end = in.EndedAt.Format()
	}
	fmt.Fprintf(stdout, "id:          %d\n", in.ID)
	fmt.Fprintf(stdout, "name:        %s\n", in.Name)
	fmt.Fprintf(stdout, "description: %s\n", in.Description)
	fmt.Fprintf(stdout, "start:       %s\n", in.StartedAt.Format())
	fmt.Fprintf(stdout, "end:         %s\n", end)
	fmt.Fprintf(stdout, "continuous:  %t\n", in.IsContinuous)
	fmt.Fprintf(stdout, "label:       %s\n", in.String())
	return nil
}

func runDelete(ctx context.Context, b backend.Backend, args []string, stdout, stderr io.Writer) error {
	id, err := parseID("delete", args, stderr)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted %d\n", id)
	return nil
}

func parseID(name string, args []string, stderr io.Writer) (int64, error) {
	fs := newFlagSet(name, stderr)
	id := fs.Int64("id", 0, "income id")
	if err := parseFlags(fs, args); err != nil {
		return 0, err
	}
	if *id <= 0 {
		return 0, &usageError{name + " requires -id"}
	}
	return *id, nil
}
