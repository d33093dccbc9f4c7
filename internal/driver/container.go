package driver

import (
	"strconv"
	"strings"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

const (
	LabelManagedBy = "com.compose-network.managed-by"
	LabelRollupID  = "com.compose-network.rollup-id"
	LabelChainID   = "com.compose-network.chain-id"
	LabelNetwork   = "com.compose-network.network"

	ManagedByValue = "rollup-job-handler"
)

// Environment is the rollup node configuration handed to the container.
func Environment(id rollup.ID, cfg rollup.Config, params rollup.NetworkParams) []string {
	validators := make([]string, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		validators = append(validators, v.Hex())
	}

	return []string{
		"ROLLUP_ID=" + id.String(),
		"CHAIN_ID=" + strconv.FormatUint(cfg.ChainID, 10),
		"NETWORK=" + string(cfg.Network()),
		"PARENT_CHAIN_ID=" + strconv.FormatUint(params.ParentChainID, 10),
		"PARENT_CHAIN_RPC=" + params.ParentRPCURL,
		"INITIAL_CHAIN_OWNER=" + cfg.InitialChainOwner.Hex(),
		"VALIDATORS=" + strings.Join(validators, ","),
		"BATCH_POSTER_ADDRESS=" + cfg.BatchPosterAddress.Hex(),
		"BATCH_POSTER_MANAGER=" + cfg.BatchPosterManager.Hex(),
	}
}

// Labels tag rollup containers so they can be listed and traced back to their rollup.
func Labels(id rollup.ID, cfg rollup.Config) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRollupID:  id.String(),
		LabelChainID:   strconv.FormatUint(cfg.ChainID, 10),
		LabelNetwork:   string(cfg.Network()),
	}
}
