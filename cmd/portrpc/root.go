package main

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portrpc/registry"
)

// globalFlags are shared by all subcommands.
type globalFlags struct {
	Debug        bool
	ManifestDirs []string
	Etcd         []string
	MetricsAddr  string
}

type app struct {
	flags    globalFlags
	logger   *zap.Logger
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	reg := prometheus.NewRegistry()
	a.registry, a.gatherer = reg, reg

	root := &cobra.Command{
		Use:   "portrpc",
		Short: "Call native messaging hosts",
		Long: `portrpc talks to WebExtensions native messaging hosts the way a browser
does: it starts the host registered for an application, sends framed
JSON requests on its stdin and reads responses from its stdout.

Host manifests are looked up in the browsers' manifest directories or,
with --etcd, in an etcd cluster.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if a.flags.Debug {
				cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "create logger")
			}
			a.logger = logger

			if a.flags.MetricsAddr != "" {
				a.serveMetrics()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVar(&a.flags.Debug, "debug", false, "trace requests, responses and connections")
	root.PersistentFlags().StringSliceVar(&a.flags.ManifestDirs, "manifest-dir", nil, "host manifest `DIR` (default: browser manifest directories)")
	root.PersistentFlags().StringSliceVar(&a.flags.Etcd, "etcd", nil, "etcd `ENDPOINTS` holding host manifests instead of directories")
	root.PersistentFlags().StringVar(&a.flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on `ADDR` while running")

	root.AddCommand(newCallCmd(a))
	root.AddCommand(newHostsCmd(a))
	return root
}

// openRegistry returns the etcd registry when endpoints are given, the
// manifest directories otherwise. The returned func releases it.
func (a *app) openRegistry() (registry.Registry, func(), error) {
	if len(a.flags.Etcd) > 0 {
		r, err := registry.NewEtcdRegistry(a.flags.Etcd, a.logger.Named("registry"))
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	}
	return registry.NewDirRegistry(a.flags.ManifestDirs...), func() {}, nil
}

func (a *app) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.flags.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
}
