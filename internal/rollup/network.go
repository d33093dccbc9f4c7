package rollup

type (
	Network string

	// NetworkParams describes the parent chain a rollup settles to.
	NetworkParams struct {
		ParentChainID uint64 `mapstructure:"parent-chain-id"`
		ParentRPCURL  string `mapstructure:"parent-rpc-url"`
	}
)

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

var (
	DefaultMainnetParams = NetworkParams{ParentChainID: 1, ParentRPCURL: "https://arb1.arbitrum.io/rpc"}
	DefaultTestnetParams = NetworkParams{ParentChainID: 11155111, ParentRPCURL: "https://sepolia-rollup.arbitrum.io/rpc"}
)
