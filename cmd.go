package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cockroachdb/pebble"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

type rootOptions struct {
	ConfigPath string
	Verbose    bool
	LogJSON    bool
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "offchaind",
		Short:         "Ordered call queues with an offchain dispatch loop",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yml", "config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.LogJSON, "log-json", false, "log as JSON")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCycleCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if o.Verbose {
		hopts.Level = slog.LevelDebug
	}
	if o.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

type openedNode struct {
	*Node
	db  *pebble.DB
	cfg Config
	reg *prometheus.Registry
}

func (o *rootOptions) open(log *slog.Logger) (*openedNode, error) {
	cfg, err := LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	db, err := pebble.Open(cfg.DBPath, &cfg.DBOptions)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	n, err := NewNode(db, cfg, reg, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &openedNode{Node: n, db: db, cfg: cfg, reg: reg}, nil
}

func (n *openedNode) close() error {
	jerr := n.Close()
	if err := n.db.Close(); err != nil {
		return err
	}
	return jerr
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the flush loop and the dispatch scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shutdownContext(cmd.Context())
			defer cancel()
			return serve(ctx, opts)
		},
	}
}

// signals that start a graceful shutdown
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, shutdownSignals...)
}

func serve(ctx context.Context, opts *rootOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := opts.logger(os.Stderr)
	n, err := opts.open(log)
	if err != nil {
		return err
	}
	defer n.close()
	if err := n.Ledger.Reconcile(ctx); err != nil {
		return err
	}

	s := fasthttp.Server{
		Handler:               NewAPI(n.Node, n.reg, log.With("component", "api")).Router().Handler,
		Concurrency:           100000,
		ReadBufferSize:        10000,
		WriteBufferSize:       10000,
		NoDefaultServerHeader: true,
	}
	go func() {
		log.Info("START", "addr", n.cfg.ListenAddr)
		if err := s.ListenAndServe(n.cfg.ListenAddr); err != nil {
			log.Error("http server", "err", err)
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = n.Scheduler(n.cfg).Run(ctx)
	}()

	// all previous updates are flushed when this returns
	err = n.Store.FlushLoop(ctx)
	if serr := s.Shutdown(); serr != nil {
		log.Error("http shutdown", "err", serr)
	}
	wg.Wait()
	return err
}

func newCycleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single dispatch cycle and print what it did",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.open(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer n.close()
			if err := n.Ledger.Reconcile(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n.Dispatcher.RunCycle(cmd.Context()))
		},
	}
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [method...]",
		Short: "Print counters and cursors of the queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.open(opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer n.close()
			if len(args) == 0 {
				args = n.Registry.Methods()
			}
			var out []QueueState
			for _, m := range args {
				if !n.Registry.Has(m) {
					return fmt.Errorf("inspect %q: unknown method", m)
				}
				s, err := n.QueueState(m)
				if err != nil {
					return err
				}
				out = append(out, s)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	d, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(d))
	return err
}
