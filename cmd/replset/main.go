// Command replset runs the replica-set consistency lab: the replication,
// strong, eventual and causal experiments, a describe table, and an HTTP
// server with health, metrics and status.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-replset/pkg/lab"
	"github.com/dd0wney/cluso-replset/pkg/logging"
	"github.com/dd0wney/cluso-replset/pkg/metrics"
)

type options struct {
	configPath string
	logLevel   string
	jsonOut    bool
	addr       string

	cfg    *lab.Config
	logger logging.Logger
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{
		configPath: os.Getenv("REPLSET_CONFIG"),
		logLevel:   os.Getenv("LOG_LEVEL"),
		addr:       os.Getenv("REPLSET_METRICS_ADDR"),
	}

	root := &cobra.Command{
		Use:          "replset",
		Short:        "In-process replica set consistency lab",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load()
		},
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", o.configPath, "YAML lab config (env REPLSET_CONFIG)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", o.logLevel, "debug|info|warn|error (env LOG_LEVEL, overrides the config)")
	root.PersistentFlags().BoolVar(&o.jsonOut, "json", false, "print reports as JSON")

	for _, name := range lab.Experiments {
		root.AddCommand(experimentCmd(o, name))
	}
	root.AddCommand(allCmd(o), statusCmd(o), serveCmd(o))
	return root
}

var experimentHelp = map[string]string{
	"replication": "Compare write-concern latency, fail the primary over and resync it",
	"strong":      "Majority write and read, then a write refused during failover",
	"eventual":    "w=1 write with a lagging secondary that converges later",
	"causal":      "Causally ordered reply across two sessions",
}

// load reads the config file, if any, and builds the logger
func (o *options) load() error {
	cfg := lab.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = lab.LoadConfig(o.configPath); err != nil {
			return err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.addr != "" {
		cfg.Serve.Addr = o.addr
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(o.logger)
	return nil
}

// withLab bootstraps a lab for one command and closes it afterwards
func (o *options) withLab(cmd *cobra.Command, fn func(ctx context.Context, l *lab.Lab) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := lab.New(ctx, o.cfg, o.logger, metrics.DefaultRegistry())
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(ctx, l)
}

func (o *options) print(cmd *cobra.Command, r *lab.Report) error {
	if o.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), lab.Render(r))
	return err
}

func experimentCmd(o *options, name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: experimentHelp[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLab(cmd, func(ctx context.Context, l *lab.Lab) error {
				r, err := l.Run(ctx, name)
				if r != nil {
					if perr := o.print(cmd, r); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func allCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run every experiment against one replica set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLab(cmd, func(ctx context.Context, l *lab.Lab) error {
				for _, name := range lab.Experiments {
					r, err := l.Run(ctx, name)
					if r != nil {
						if perr := o.print(cmd, r); perr != nil {
							return perr
						}
					}
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
				}
				return nil
			})
		},
	}
}

func statusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Bootstrap the replica set and print its describe table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLab(cmd, func(ctx context.Context, l *lab.Lab) error {
				st := l.Status()
				if o.jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				_, err := fmt.Fprint(cmd.OutOrStdout(), lab.RenderStatus(st))
				return err
			})
		},
	}
}

func serveCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replica set and expose /health, /ready, /metrics and /status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLab(cmd, func(ctx context.Context, l *lab.Lab) error {
				return lab.NewServer(l).Run(ctx, o.cfg.Serve.Addr)
			})
		},
	}
	cmd.Flags().StringVar(&o.addr, "addr", o.addr, "listen address (env REPLSET_METRICS_ADDR, overrides the config)")
	return cmd
}
