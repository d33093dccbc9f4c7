package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/rollup-job-handler/configs"
	"github.com/compose-network/rollup-job-handler/internal/dispatcher"
	"github.com/compose-network/rollup-job-handler/internal/driver"
	fsjson "github.com/compose-network/rollup-job-handler/internal/infra/filesystem/json"
	"github.com/compose-network/rollup-job-handler/internal/infra/docker"
	"github.com/compose-network/rollup-job-handler/internal/jobs/chain"
	"github.com/compose-network/rollup-job-handler/internal/jobs/feed"
	"github.com/compose-network/rollup-job-handler/internal/metrics"
	"github.com/compose-network/rollup-job-handler/internal/registry"
	"github.com/compose-network/rollup-job-handler/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func start(ctx context.Context, cfg configs.Config) error {
	slog.Info("instantiating Docker client")

	cli, err := docker.New(docker.Options{
		NetworkName:  cfg.Runtime.NetworkName,
		RPCPort:      cfg.Runtime.RPCPort,
		HostIP:       cfg.Runtime.HostIP,
		BuildContext: cfg.Runtime.BuildContext,
		Dockerfile:   cfg.Runtime.Dockerfile,
	})
	if err != nil {
		return errors.Join(err, errors.New("failed to instantiate Docker client"))
	}
	defer cli.Close()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, promRegistry); err != nil {
				slog.With("err", err.Error()).Error("metrics server stopped")
			}
		}()
	}

	reg, err := registry.New(registry.NewFileStore(cfg.Registry.StateFile, fsjson.NewReader(), fsjson.NewWriter()))
	if err != nil {
		return errors.Join(err, errors.New("failed to load rollup registry"))
	}

	drv := driver.NewDriver(cli, driver.Config{
		Image:            cfg.Runtime.Image,
		OperationTimeout: cfg.Driver.OperationTimeout,
		StopTimeout:      cfg.Runtime.StopTimeout,
		MaxAttempts:      cfg.Driver.MaxAttempts,
		InitialBackoff:   cfg.Driver.InitialBackoff,
		MaxBackoff:       cfg.Driver.MaxBackoff,
		Networks:         cfg.Networks,
	}, m)

	d := dispatcher.New(
		validation.NewValidator(validation.Policy{MainnetChainIDFloor: cfg.Validation.MainnetChainIDFloor}),
		reg,
		drv,
		m,
		dispatcher.Config{MaxConcurrentJobs: cfg.Dispatcher.MaxConcurrentJobs},
	)

	source, closeSource, err := newSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer closeSource()

	sink := feed.NewSink(cfg.Source.ResultsFile, fsjson.NewWriter())

	return NewService(source, sink, d, cfg.Dispatcher.ReconcileOnStart).Run(ctx)
}

func newSource(ctx context.Context, cfg configs.Source) (jobSource, func(), error) {
	switch cfg.Kind {
	case configs.SourceKindChain:
		slog.With("rpc_url", cfg.RPCURL, "contract", cfg.ContractAddress).Info("connecting to job contract")

		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
		}
		return chain.NewSource(client, common.HexToAddress(cfg.ContractAddress), cfg.ServiceIDs, cfg.StartBlock), client.Close, nil
	case configs.SourceKindFile:
		slog.With("file", cfg.File).Info("reading jobs from feed")
		return feed.NewSource(cfg.File), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported job source kind '%s'", cfg.Kind)
	}
}
