package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/DennySORA/Remove-Background/internal/history"
	"github.com/DennySORA/Remove-Background/internal/server"
	"github.com/DennySORA/Remove-Background/internal/ui"
	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/internal/watch"
	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/report"
	"github.com/DennySORA/Remove-Background/pkg/resolver"
	"github.com/DennySORA/Remove-Background/pkg/runner"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// runFlags are the batch settings shared by run and watch
type runFlags struct {
	in       string
	out      string
	method   string
	strength *float64
	mode     string
	workers  int
	timeout  time.Duration
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.in, "in", "", "source folder (required)")
	fs.StringVar(&f.out, "out", "", "output folder (default <in>/<output.dir_name>)")
	fs.StringVar(&f.method, "method", string(backend.GeneralID), "method id, see 'rembg methods'")
	fs.Func("strength", "removal strength (default is the method's)", func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		f.strength = &v
		return nil
	})
	fs.StringVar(&f.mode, "mode", string(types.ModeGeneralPhoto), "general-photo|green-screen")
	fs.IntVar(&f.workers, "workers", 0, "images processed at once (default from config)")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-image time limit (default from config)")
}

func (f *runFlags) request(e *env) resolver.Request {
	req := resolver.Request{
		Method:       types.MethodID(f.method),
		Mode:         types.Mode(f.mode),
		SourceFolder: f.in,
		OutputFolder: f.out,
	}
	if f.strength != nil {
		req.Strength = resolver.Strength(*f.strength)
	}
	if req.OutputFolder == "" && f.in != "" {
		req.OutputFolder = filepath.Join(f.in, e.cfg.Output.DirName)
	}
	return req
}

func (f *runFlags) runnerOptions(e *env, skipExisting bool, progress func(types.ProgressEvent)) []runner.Option {
	workers := e.cfg.Runner.Workers
	if f.workers > 0 {
		workers = f.workers
	}
	timeout := e.cfg.Timeout()
	if f.timeout > 0 {
		timeout = f.timeout
	}
	return []runner.Option{
		runner.WithWorkers(workers),
		runner.WithTimeout(timeout),
		runner.WithLogger(e.logger),
		runner.WithSkipExisting(skipExisting),
		runner.WithProgress(progress),
	}
}

func cmdRun(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c            common
		rf           runFlags
		skipExisting bool
		reportPath   string
	)
	c.register(fs)
	rf.register(fs)
	fs.BoolVar(&skipExisting, "skip-existing", false, "skip images whose output already exists (default from config)")
	fs.StringVar(&reportPath, "report", "", "also write the summary to this .xlsx file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if rf.in == "" {
		fmt.Fprintln(stderr, "run: -in is required")
		fs.Usage()
		return errUsage
	}

	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	job, err := resolver.Resolve(reg, rf.request(e))
	if err != nil {
		return err
	}
	paths, err := utils.ListImageFiles(job.SourceFolder)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPath, err)
	}
	if len(paths) == 0 {
		fmt.Fprintf(stdout, "No images found in %s\n", job.SourceFolder)
		return nil
	}

	st := e.openStore(ctx)
	if st != nil {
		defer st.Close()
	}

	r := runner.New(reg, rf.runnerOptions(e, skipExisting || e.cfg.Runner.SkipExisting, ui.Progress(stdout))...)
	result, runErr := r.Run(ctx, job, paths)
	if result.ID == "" {
		return runErr
	}

	fmt.Fprintln(stdout)
	if err := report.FormatSummary(stdout, result); err != nil {
		return err
	}
	e.record(ctx, st, job, result)
	if reportPath != "" {
		if err := report.WriteXLSX(result, reportPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Report written to %s\n", reportPath)
	}

	if runErr != nil {
		return runErr
	}
	return exitStatus(result)
}

// exitStatus turns a finished batch into errBatchFailed when anything failed
func exitStatus(r types.BatchResult) error {
	if r.Failed > 0 {
		return errBatchFailed
	}
	return nil
}

func cmdInteractive(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("interactive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	// interactive output goes to stdout, so logs stay quiet unless asked for
	if c.logLevel == "" {
		c.logLevel = "warn"
	}
	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	st := e.openStore(ctx)
	if st != nil {
		defer st.Close()
	}

	ui.Banner(stdout, utils.SupportedExtensions())
	prompter := ui.NewPrompter(stdin, stdout, reg, history.New(e.cfg.History.File), e.cfg.Output.DirName)

	var rf runFlags
	batch := func(ctx context.Context, job types.JobConfiguration, paths []string, progress func(types.ProgressEvent)) (types.BatchResult, error) {
		r := runner.New(reg, rf.runnerOptions(e, e.cfg.Runner.SkipExisting, progress)...)
		result, err := r.Run(ctx, job, paths)
		e.record(ctx, st, job, result)
		return result, err
	}

	last, err := ui.Session(ctx, prompter, batch)
	if err != nil {
		return err
	}
	return exitStatus(last)
}

func cmdMethods(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("methods", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSPEED\tDEFAULT\tGREEN SCREEN\tDESCRIPTION")
	for _, d := range reg.List() {
		gs := "no"
		if d.SupportsGreenScreen {
			gs = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", d.ID, d.DisplayName, d.SpeedClass, d.DefaultStrength, gs, d.Description)
	}
	return tw.Flush()
}

func cmdHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c     common
		limit int
		id    string
	)
	c.register(fs)
	fs.IntVar(&limit, "limit", 10, "number of batches to show")
	fs.StringVar(&id, "id", "", "show the failures of one batch")
	if err := parse(fs, args); err != nil {
		return err
	}
	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	st := e.openStore(ctx)
	if st == nil {
		return fmt.Errorf("cannot open run store at %s", e.cfg.History.DBPath)
	}
	defer st.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	if id != "" {
		b, err := st.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		failures, err := st.BatchFailures(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Batch %s: %s on %s, %d/%d succeeded\n", b.ID, b.Method, b.SourceFolder, b.Succeeded, b.Total)
		if len(failures) == 0 {
			fmt.Fprintln(stdout, "No failures.")
			return nil
		}
		fmt.Fprintln(tw, "FILE\tREASON\tDETAIL")
		for _, f := range failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", filepath.Base(f.Path), f.Reason, f.Detail)
		}
		return tw.Flush()
	}

	batches, err := st.RecentBatches(ctx, limit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(stdout, "No batches recorded yet.")
		return nil
	}
	fmt.Fprintln(tw, "ID\tSTARTED\tMETHOD\tTOTAL\tOK\tFAILED\tSKIPPED\tELAPSED\tSOURCE")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%.1fs\t%s\n",
			b.ID, b.StartedAt.Local().Format("2006-01-02 15:04"), b.Method,
			b.Total, b.Succeeded, b.Failed, b.Skipped, b.ElapsedSeconds, b.SourceFolder)
	}
	return tw.Flush()
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c       common
		addr    string
		timeout time.Duration
	)
	c.register(fs)
	fs.StringVar(&addr, "addr", "", "listen address (default from config)")
	fs.DurationVar(&timeout, "timeout", 0, "per-request time limit (default from config)")
	if err := parse(fs, args); err != nil {
		return err
	}
	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	if timeout <= 0 {
		timeout = e.cfg.Timeout()
	}
	return server.New(reg, e.logger, timeout).ListenAndServe(ctx, addr)
}

func cmdWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		c        common
		rf       runFlags
		debounce time.Duration
		every    string
		noSweep  bool
	)
	c.register(fs)
	rf.register(fs)
	fs.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before new files are processed")
	fs.StringVar(&every, "every", "", "cron schedule for full re-sweeps, e.g. \"*/10 * * * *\" or \"@hourly\"")
	fs.BoolVar(&noSweep, "no-initial-sweep", false, "do not process images already in the folder at start")
	if err := parse(fs, args); err != nil {
		return err
	}
	if rf.in == "" {
		fmt.Fprintln(stderr, "watch: -in is required")
		fs.Usage()
		return errUsage
	}

	e, err := c.setup(stderr)
	if err != nil {
		return err
	}
	reg, err := e.registry()
	if err != nil {
		return err
	}
	job, err := resolver.Resolve(reg, rf.request(e))
	if err != nil {
		return err
	}
	st := e.openStore(ctx)
	var recorder watch.Recorder
	if st != nil {
		defer st.Close()
		recorder = st
	}

	r := runner.New(reg, rf.runnerOptions(e, true, ui.Progress(stdout))...)
	w, err := watch.New(watch.Config{
		Job:          job,
		Debounce:     debounce,
		Every:        every,
		InitialSweep: !noSweep,
	}, r, recorder, e.logger)
	if err != nil {
		return err
	}
	w.OnBatch(func(result types.BatchResult) {
		fmt.Fprintln(stdout)
		_ = report.FormatSummary(stdout, result)
	})
	return w.Run(ctx)
}
