package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/driver"
	"github.com/goforj/mcstore/observe"
	"github.com/goforj/mcstore/storecore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	store   *mcstore.Store
	logger  *zap.Logger
	metrics *observe.Metrics
}

// run executes one CLI invocation and releases the backend client afterwards.
func run(args []string, out, errOut io.Writer) error {
	a := &app{v: viper.New()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.Execute()
	if a.metrics != nil {
		a.metrics.WritePrometheus(errOut)
	}
	a.close()
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "mcstore",
		Short:             "Read and write a cache store",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("driver", "memory", "backend driver ("+strings.Join(driver.Names(), ", ")+")")
	flags.String("prefix", "mcstore", "key namespace")
	flags.Duration("ttl", 0, "ttl for writes; 0 uses the driver default")
	flags.String("codec", "", "value codec (json, msgpack, cbor, raw)")
	flags.String("compression", "", "value compression (none, gzip, snappy, zstd)")
	flags.StringArray("opt", nil, "driver option as key=value, repeatable")
	flags.String("log-level", "warn", "log level for store operations")
	flags.Bool("metrics", false, "print operation metrics to stderr on exit")

	root.AddCommand(
		a.getCmd(),
		a.getManyCmd(),
		a.setCmd(),
		a.delCmd(),
		a.flushCmd(),
		a.pingCmd(),
		a.ttlCmd(),
		a.keysCmd(),
		driversCmd(),
	)
	return root
}

// setup loads env files, binds flags and builds the store.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("mcstore")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := newLogger(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = logger

	factory, err := driver.Lookup(a.v.GetString("driver"))
	if err != nil {
		return err
	}
	raw, err := cmd.Flags().GetStringArray("opt")
	if err != nil {
		return err
	}
	options, err := a.options(raw)
	if err != nil {
		return err
	}
	observer := observe.Zap(logger)
	if a.v.GetBool("metrics") {
		a.metrics = observe.NewMetrics(nil)
		observer = observe.Chain(observer, a.metrics)
	}
	a.store, err = mcstore.NewWith(factory, options, mcstore.WithObserver(observer))
	return err
}

func (a *app) options(raw []string) (storecore.Options, error) {
	options := storecore.Options{"prefix": a.v.GetString("prefix")}
	for _, key := range []string{"codec", "compression"} {
		if val := a.v.GetString(key); val != "" {
			options[key] = val
		}
	}
	for _, pair := range raw {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --opt %q, want key=value", pair)
		}
		options[strings.TrimSpace(key)] = val
	}
	return options, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func (a *app) close() {
	if a.store != nil {
		if c, ok := a.store.Client().(io.Closer); ok {
			_ = c.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
