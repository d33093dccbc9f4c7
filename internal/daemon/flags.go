package daemon

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags override the config file only when set on the command line; their defaults mirror
// config.example.yaml.
type (
	flagType interface {
		string | int | uint64 | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	stringFlags = []flagDef[string]{
		// Job source
		{"source-kind", "source.kind", "file", "Job source kind (file or chain)"},
		{"source-file", "source.file", "-", "JSON lines job feed, '-' for stdin"},
		{"rpc-url", "source.rpc-url", "", "Websocket or IPC endpoint of the chain emitting job events"},
		{"contract-address", "source.contract-address", "", "Address of the job contract"},
		{"results-file", "source.results-file", "-", "JSON lines result file, '-' for stdout"},

		// Runtime
		{"image", "runtime.image", "ghcr.io/compose-network/rollup-node:latest", "Rollup node image"},
		{"build-context", "runtime.build-context", "", "Build the rollup image from this directory instead of pulling it"},
		{"network-name", "runtime.network-name", "rollup-network", "Docker network rollup containers join"},

		// State
		{"state-file", "registry.state-file", "./state/rollups.json", "Rollup registry snapshot file"},

		// Metrics
		{"metrics-addr", "metrics.addr", "127.0.0.1:9464", "Prometheus metrics listen address"},
	}

	intFlags = []flagDef[int]{
		{"max-concurrent-jobs", "dispatcher.max-concurrent-jobs", 8, "Maximum number of jobs processed at once"},
		{"rpc-port", "runtime.rpc-port", 8547, "RPC port exposed by rollup containers"},
	}

	uint64Flags = []flagDef[uint64]{
		{"start-block", "source.start-block", 0, "Replay job events from this block at startup"},
	}

	boolFlags = []flagDef[bool]{
		{"reconcile-on-start", "dispatcher.reconcile-on-start", true, "Reconcile the registry with the container runtime before taking jobs"},
		{"metrics-enabled", "metrics.enabled", true, "Serve Prometheus metrics"},
	}
)

func init() {
	if err := declareFlags(CMD.Flags(), stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(CMD.Flags(), intFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(CMD.Flags(), uint64Flags); err != nil {
		panic(err)
	}
	if err := declareFlags(CMD.Flags(), boolFlags); err != nil {
		panic(err)
	}
}

func declareFlags[T flagType](fs *pflag.FlagSet, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(fs, flag); err != nil {
			return err
		}
	}
	return nil
}

func declareFlag[T flagType](fs *pflag.FlagSet, flag flagDef[T]) error {
	switch v := any(flag.defaultValue).(type) {
	case string:
		fs.String(flag.name, v, flag.description)
	case int:
		fs.Int(flag.name, v, flag.description)
	case uint64:
		fs.Uint64(flag.name, v, flag.description)
	case bool:
		fs.Bool(flag.name, v, flag.description)
	}
	return viper.BindPFlag(flag.viperKey, fs.Lookup(flag.name))
}
