package jobs

import (
	"fmt"
	"math/big"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	Kind uint8

	// JobCall is one job invocation emitted by the orchestration contract.
	JobCall struct {
		ServiceID uint64        `json:"service_id"`
		Kind      Kind          `json:"kind"`
		CallID    uint64        `json:"call_id"`
		Inputs    hexutil.Bytes `json:"inputs"`
	}

	// Result is reported back for every JobCall, success or not.
	Result struct {
		ServiceID uint64        `json:"service_id"`
		CallID    uint64        `json:"call_id"`
		Kind      Kind          `json:"kind"`
		RollupID  rollup.ID     `json:"rollup_id,omitempty"`
		Success   bool          `json:"success"`
		Outputs   hexutil.Bytes `json:"outputs"`
		ChainID   uint64        `json:"chain_id,omitempty"`
		Error     string        `json:"error,omitempty"`
	}

	// CreateParams are the raw CREATE inputs before validation.
	CreateParams struct {
		ChainID            *big.Int
		InitialChainOwner  string
		Validators         []string
		BatchPosterAddress string
		BatchPosterManager string
		IsMainnet          bool
	}
)

const (
	KindCreate Kind = iota
	KindStart
	KindStop
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k <= KindDelete
}

// Succeeded builds a successful result for call.
func Succeeded(call JobCall, id rollup.ID, chainID uint64) Result {
	return Result{
		ServiceID: call.ServiceID,
		CallID:    call.CallID,
		Kind:      call.Kind,
		RollupID:  id,
		Success:   true,
		Outputs:   EncodeOutput(true),
		ChainID:   chainID,
	}
}

// Failed builds a failed result for call carrying err as the reason.
func Failed(call JobCall, id rollup.ID, err error) Result {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}

	return Result{
		ServiceID: call.ServiceID,
		CallID:    call.CallID,
		Kind:      call.Kind,
		RollupID:  id,
		Success:   false,
		Outputs:   EncodeOutput(false),
		Error:     reason,
	}
}
