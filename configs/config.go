package configs

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/ethereum/go-ethereum/common"
)

var Values Config

type (
	SourceKind string

	Config struct {
		Log        Log                                     `mapstructure:"log"`
		Validation Validation                              `mapstructure:"validation"`
		Networks   map[rollup.Network]rollup.NetworkParams `mapstructure:"networks"`
		Runtime    Runtime                                 `mapstructure:"runtime"`
		Driver     Driver                                  `mapstructure:"driver"`
		Registry   Registry                                `mapstructure:"registry"`
		Dispatcher Dispatcher                              `mapstructure:"dispatcher"`
		Source     Source                                  `mapstructure:"source"`
		Metrics    Metrics                                 `mapstructure:"metrics"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}

	Validation struct {
		MainnetChainIDFloor uint64 `mapstructure:"mainnet-chain-id-floor"`
	}

	Runtime struct {
		Image        string        `mapstructure:"image"`
		BuildContext string        `mapstructure:"build-context"`
		Dockerfile   string        `mapstructure:"dockerfile"`
		NetworkName  string        `mapstructure:"network-name"`
		RPCPort      int           `mapstructure:"rpc-port"`
		HostIP       string        `mapstructure:"host-ip"`
		StopTimeout  time.Duration `mapstructure:"stop-timeout"`
	}

	Driver struct {
		OperationTimeout time.Duration `mapstructure:"operation-timeout"`
		MaxAttempts      uint64        `mapstructure:"max-attempts"`
		InitialBackoff   time.Duration `mapstructure:"initial-backoff"`
		MaxBackoff       time.Duration `mapstructure:"max-backoff"`
	}

	Registry struct {
		StateFile string `mapstructure:"state-file"`
	}

	Dispatcher struct {
		MaxConcurrentJobs int  `mapstructure:"max-concurrent-jobs"`
		ReconcileOnStart  bool `mapstructure:"reconcile-on-start"`
	}

	Source struct {
		Kind            SourceKind `mapstructure:"kind"`
		File            string     `mapstructure:"file"`
		RPCURL          string     `mapstructure:"rpc-url"`
		ContractAddress string     `mapstructure:"contract-address"`
		ServiceIDs      []uint64   `mapstructure:"service-ids"`
		StartBlock      uint64     `mapstructure:"start-block"`
		ResultsFile     string     `mapstructure:"results-file"`
	}

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	}
)

const (
	SourceKindFile  SourceKind = "file"
	SourceKindChain SourceKind = "chain"
)

func (c *Config) Validate() error {
	var errs []error

	if c.Validation.MainnetChainIDFloor == 0 {
		errs = append(errs, errors.New("validation.mainnet-chain-id-floor is required"))
	}

	for _, network := range []rollup.Network{rollup.NetworkMainnet, rollup.NetworkTestnet} {
		params, ok := c.Networks[network]
		if !ok {
			errs = append(errs, fmt.Errorf("networks.%s is required", network))
			continue
		}
		if params.ParentChainID == 0 {
			errs = append(errs, fmt.Errorf("networks.%s.parent-chain-id is required", network))
		}
		if params.ParentRPCURL == "" {
			errs = append(errs, fmt.Errorf("networks.%s.parent-rpc-url is required", network))
		}
	}

	if err := c.Runtime.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Driver.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Registry.StateFile == "" {
		errs = append(errs, errors.New("registry.state-file is required"))
	}
	if c.Dispatcher.MaxConcurrentJobs <= 0 {
		errs = append(errs, errors.New("dispatcher.max-concurrent-jobs must be positive"))
	}

	if err := c.Source.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr is invalid: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Runtime) Validate() error {
	var errs []error

	if c.Image == "" {
		errs = append(errs, errors.New("runtime.image is required"))
	}
	if c.NetworkName == "" {
		errs = append(errs, errors.New("runtime.network-name is required"))
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		errs = append(errs, errors.New("runtime.rpc-port must be a valid port"))
	}
	if c.HostIP != "" && net.ParseIP(c.HostIP) == nil {
		errs = append(errs, errors.New("runtime.host-ip must be an IP address"))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, errors.New("runtime.stop-timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Driver) Validate() error {
	var errs []error

	if c.OperationTimeout <= 0 {
		errs = append(errs, errors.New("driver.operation-timeout must be positive"))
	}
	if c.MaxAttempts == 0 {
		errs = append(errs, errors.New("driver.max-attempts must be at least 1"))
	}
	if c.InitialBackoff <= 0 {
		errs = append(errs, errors.New("driver.initial-backoff must be positive"))
	}
	if c.MaxBackoff < c.InitialBackoff {
		errs = append(errs, errors.New("driver.max-backoff must not be below driver.initial-backoff"))
	}

	return errors.Join(errs...)
}

func (c *Source) Validate() error {
	var errs []error

	switch c.Kind {
	case SourceKindFile:
		if c.File == "" {
			errs = append(errs, errors.New("source.file is required for the file source"))
		}
	case SourceKindChain:
		if c.RPCURL == "" {
			errs = append(errs, errors.New("source.rpc-url is required for the chain source"))
		}
		if !common.IsHexAddress(c.ContractAddress) {
			errs = append(errs, errors.New("source.contract-address must be a hex address"))
		}
	case "":
		errs = append(errs, errors.New("source.kind is required"))
	default:
		errs = append(errs, fmt.Errorf("source.kind must be either '%s' or '%s'", SourceKindFile, SourceKindChain))
	}

	if c.ResultsFile == "" {
		errs = append(errs, errors.New("source.results-file is required"))
	}

	return errors.Join(errs...)
}
