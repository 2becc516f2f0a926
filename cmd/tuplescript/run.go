package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/tuplescript/config"
	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/logger"
	"github.com/Comcast/tuplescript/metrics"
	"github.com/Comcast/tuplescript/sched"
	"github.com/Comcast/tuplescript/sio"
	"github.com/Comcast/tuplescript/storage"
	_ "github.com/Comcast/tuplescript/storage/bolt"
	_ "github.com/Comcast/tuplescript/storage/sqlite"
	"github.com/Comcast/tuplescript/subs"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OpenTimeout bounds retrying to open a storage backend.
var OpenTimeout = 5 * time.Second

type runOptions struct {
	configFile  string
	kernelName  string
	kernelID    int
	stdio       bool
	stateIn     string
	stateOut    string
	storage     string
	metricsAddr string
	hold        bool
	logLevel    string
	logFormat   string
	queue       int
	shellExpand bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [files]",
		Short: "Run scripts as tasks over one store",
		Long: `Each file is one task.  All tasks share one store.  The process
exits when all tasks have ended or, with --hold, on a signal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return exitError(ExitUsage, "configuration", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &runner{
				cfg:         cfg,
				shellExpand: opts.shellExpand,
				in:          cmd.InOrStdin(),
				out:         cmd.OutOrStdout(),
				errOut:      cmd.ErrOrStderr(),
			}
			return r.run(ctx, args)
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML, TOML, or JSON configuration file")
	f.StringVar(&opts.kernelName, "kernel-name", def.Kernel.Name, "kernel name")
	f.IntVar(&opts.kernelID, "kernel-id", def.Kernel.ID, "kernel id, which is the owner for the scripts' own tuples")
	f.BoolVar(&opts.stdio, "stdio", false, "couple external components through JSON lines on stdin and stdout")
	f.StringVar(&opts.stateIn, "state-in", "", "JSON state file to load")
	f.StringVar(&opts.stateOut, "state-out", "", "JSON state file to write")
	f.StringVar(&opts.storage, "storage", def.Storage, `storage backend: "none", "bolt:PATH", or "sqlite:PATH"`)
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address")
	f.BoolVar(&opts.hold, "hold", false, "keep running after all tasks end")
	f.StringVar(&opts.logLevel, "log-level", def.Log.Level, "DEBUG, INFO, WARN, or ERROR")
	f.StringVar(&opts.logFormat, "log-format", def.Log.Format, "CONSOLE or JSON")
	f.IntVar(&opts.queue, "queue", def.Store.Queue, "capacity of each subscription queue")
	f.BoolVar(&opts.shellExpand, "shell-expand", false, "with --stdio, replace <<COMMAND>> in requests with the command's output")

	return cmd
}

// config loads the configuration file, if any, and then applies the
// flags that were given explicitly.
func (o *runOptions) config(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return cfg, err
		}
	}

	f := cmd.Flags()
	if f.Changed("kernel-name") {
		cfg.Kernel.Name = o.kernelName
	}
	if f.Changed("kernel-id") {
		cfg.Kernel.ID = o.kernelID
	}
	if f.Changed("stdio") {
		cfg.Stdio = o.stdio
	}
	if f.Changed("state-in") {
		cfg.StateIn = o.stateIn
	}
	if f.Changed("state-out") {
		cfg.StateOut = o.stateOut
	}
	if f.Changed("storage") {
		cfg.Storage = o.storage
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if f.Changed("hold") {
		cfg.Hold = o.hold
	}
	if f.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if f.Changed("queue") {
		cfg.Store.Queue = o.queue
	}

	return cfg, cfg.Validate()
}

type runner struct {
	cfg         config.Config
	shellExpand bool
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	log         *zap.Logger
}

func (r *runner) run(ctx context.Context, files []string) error {
	logger.Initialize(r.cfg.Log.Level, logger.ParseFormat(r.cfg.Log.Format, logger.FormatConsole))
	r.log = logger.For(logger.ComponentCLI)
	defer logger.Sync()

	// Everything parses before anything runs.
	tasks, err := compileAll(ctx, r.cfg, files)
	if err != nil {
		return err
	}

	store := tuples.NewStore(&tuples.Options{
		Shards:       r.cfg.Store.Shards,
		MaxMetaDepth: r.cfg.Store.MaxMetaDepth,
		Logger:       logger.For(logger.ComponentStore),
	})
	m := subs.NewManager(&subs.Options{
		Capacity: r.cfg.Store.Queue,
		Logger:   logger.For(logger.ComponentSubs),
	})
	store.AddListener(m)
	metrics.Register()
	store.AddListener(metrics.StoreListener{})

	backends, err := r.open(ctx, store)
	defer r.close(backends)
	if err != nil {
		return exitError(ExitUsage, "storage", err)
	}

	interval, err := r.cfg.Flush()
	if err != nil {
		return exitError(ExitUsage, "configuration", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for _, b := range backends {
		j := storage.NewJournal(b, logger.For(logger.ComponentStorage), interval)
		store.AddListener(j)
		g.Go(func() error {
			return j.Run(gctx)
		})
	}

	if r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, r.cfg.MetricsAddr, logger.For(logger.ComponentMetrics))
		})
	}

	// With stdio, script output goes to stderr so it doesn't
	// mix with the protocol.
	output := r.out
	var stdioDone chan struct{}
	if r.cfg.Stdio {
		output = r.errOut
		stdioDone = make(chan struct{})

		std := sio.NewStdio(store, m)
		std.In, std.Out = r.in, r.out
		std.Logger = logger.For(logger.ComponentStdio)
		std.ShellExpand = r.shellExpand
		g.Go(func() error {
			defer close(stdioDone)
			if err := std.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	s := sched.New(sched.Options{
		Space: store,
		Subs:  m,
		Kernel: core.Kernel{
			Name: r.cfg.Kernel.Name,
			ID:   r.cfg.Kernel.ID,
		},
		Output: output,
		Logger: logger.For(logger.ComponentSched),
	})
	if err = s.Start(gctx); err != nil {
		cancel()
		g.Wait()
		return exitError(ExitUsage, "scheduler", err)
	}

	for _, t := range tasks {
		if _, err = s.Spawn(t.name, t.interp, t.prog); err != nil {
			cancel()
			g.Wait()
			return exitError(ExitUsage, "spawn "+t.name, err)
		}
	}
	r.log.Info("running", zap.Int("tasks", len(tasks)), zap.String("kernel", r.cfg.Kernel.Name))

	taskErr := s.Wait(gctx)
	interrupted := gctx.Err() != nil

	switch {
	case r.cfg.Hold:
		r.log.Info("holding")
		<-gctx.Done()
	case len(tasks) == 0 && stdioDone != nil:
		select {
		case <-gctx.Done():
		case <-stdioDone:
		}
	}

	cancel()
	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(ExitUsage, "component failed", err)
	}

	if taskErr != nil && !interrupted {
		return exitError(ExitRuntime, "task failed", taskErr)
	}
	return nil
}

// open opens the storage backend and the state file, if configured,
// and restores their tuples into the store.  The returned backends
// need closing even when there's an error.
func (r *runner) open(ctx context.Context, store *tuples.Store) ([]storage.Storage, error) {
	var acc []storage.Storage

	if r.cfg.Storage != "" && r.cfg.Storage != "none" {
		s, err := storage.Parse(r.cfg.Storage)
		if err != nil {
			return acc, err
		}
		if err = storage.OpenRetrying(ctx, s, OpenTimeout); err != nil {
			return acc, err
		}
		acc = append(acc, s)

		n, err := storage.Restore(ctx, s, store)
		if err != nil {
			return acc, err
		}
		r.log.Info("restored", zap.String("storage", r.cfg.Storage), zap.Int("tuples", n))
	}

	if r.cfg.StateIn != "" || r.cfg.StateOut != "" {
		js := sio.NewJSONStore(r.cfg.StateIn, r.cfg.StateOut)
		if err := js.Open(ctx); err != nil {
			return acc, err
		}
		acc = append(acc, js)

		n, err := storage.Restore(ctx, js, store)
		if err != nil {
			return acc, err
		}
		r.log.Info("restored", zap.String("state", r.cfg.StateIn), zap.Int("tuples", n))

		// The state file also gets what came from the other
		// backend.
		all := store.All()
		cs := make([]storage.Change, len(all))
		for i, t := range all {
			cs[i] = storage.Change{Ref: t.Ref(), Tuple: t, Seq: t.Seq}
		}
		if err = js.Write(ctx, cs); err != nil {
			return acc, err
		}
	}

	return acc, nil
}

func (r *runner) close(bs []storage.Storage) {
	ctx, cancel := context.WithTimeout(context.Background(), OpenTimeout)
	defer cancel()
	for _, b := range bs {
		if err := b.Close(ctx); err != nil {
			r.log.Error("close storage", zap.Error(err))
		}
	}
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
