package jobs

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// orchestratorABI describes the job inputs and outputs of the orchestration contract along
// with the event it emits for every job call.
const orchestratorABI = `[
	{"type":"function","name":"create","inputs":[
		{"name":"chainId","type":"uint256"},
		{"name":"initialChainOwner","type":"address"},
		{"name":"validators","type":"address[]"},
		{"name":"batchPosterAddress","type":"address"},
		{"name":"batchPosterManager","type":"address"},
		{"name":"isMainnet","type":"bool"}
	],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"start","inputs":[{"name":"rollupId","type":"string"}],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"stop","inputs":[{"name":"rollupId","type":"string"}],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"delete","inputs":[{"name":"rollupId","type":"string"}],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"event","name":"JobCalled","inputs":[
		{"name":"serviceId","type":"uint64","indexed":true},
		{"name":"job","type":"uint8","indexed":true},
		{"name":"callId","type":"uint64","indexed":false},
		{"name":"inputs","type":"bytes","indexed":false}
	]}
]`

var (
	ErrMalformedInputs = errors.New("malformed job inputs")

	ABI = mustParseABI()
)

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(orchestratorABI))
	if err != nil {
		panic(fmt.Errorf("failed to parse orchestrator ABI: %w", err))
	}
	return parsed
}

// DecodeCreate unpacks ABI encoded CREATE inputs.
func DecodeCreate(inputs []byte) (CreateParams, error) {
	values, err := ABI.Methods["create"].Inputs.Unpack(inputs)
	if err != nil {
		return CreateParams{}, fmt.Errorf("%w: %w", ErrMalformedInputs, err)
	}
	if len(values) != 6 {
		return CreateParams{}, fmt.Errorf("%w: expected 6 values, got %d", ErrMalformedInputs, len(values))
	}

	chainID, ok := values[0].(*big.Int)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: chain id has type %T", ErrMalformedInputs, values[0])
	}
	owner, ok := values[1].(common.Address)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: initial chain owner has type %T", ErrMalformedInputs, values[1])
	}
	validators, ok := values[2].([]common.Address)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: validators have type %T", ErrMalformedInputs, values[2])
	}
	poster, ok := values[3].(common.Address)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: batch poster has type %T", ErrMalformedInputs, values[3])
	}
	manager, ok := values[4].(common.Address)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: batch poster manager has type %T", ErrMalformedInputs, values[4])
	}
	isMainnet, ok := values[5].(bool)
	if !ok {
		return CreateParams{}, fmt.Errorf("%w: is mainnet has type %T", ErrMalformedInputs, values[5])
	}

	params := CreateParams{
		ChainID:            chainID,
		InitialChainOwner:  owner.Hex(),
		Validators:         make([]string, 0, len(validators)),
		BatchPosterAddress: poster.Hex(),
		BatchPosterManager: manager.Hex(),
		IsMainnet:          isMainnet,
	}
	for _, v := range validators {
		params.Validators = append(params.Validators, v.Hex())
	}

	return params, nil
}

// EncodeCreate packs CREATE inputs the way the orchestration contract does.
func EncodeCreate(params CreateParams) ([]byte, error) {
	chainID := params.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	validators := make([]common.Address, 0, len(params.Validators))
	for _, v := range params.Validators {
		validators = append(validators, common.HexToAddress(v))
	}

	return ABI.Methods["create"].Inputs.Pack(
		chainID,
		common.HexToAddress(params.InitialChainOwner),
		validators,
		common.HexToAddress(params.BatchPosterAddress),
		common.HexToAddress(params.BatchPosterManager),
		params.IsMainnet,
	)
}

// DecodeRollupID resolves the target of a START, STOP or DELETE call. Empty inputs or an
// empty identifier fall back to the rollup owned by the calling service.
func DecodeRollupID(call JobCall) (rollup.ID, error) {
	fallback := rollup.IDFromService(call.ServiceID)
	if len(call.Inputs) == 0 {
		return fallback, nil
	}

	method, ok := ABI.Methods[call.Kind.String()]
	if !ok || call.Kind == KindCreate {
		return "", fmt.Errorf("%w: job kind %s carries no rollup id", ErrMalformedInputs, call.Kind)
	}

	values, err := method.Inputs.Unpack(call.Inputs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedInputs, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: expected 1 value, got %d", ErrMalformedInputs, len(values))
	}
	id, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: rollup id has type %T", ErrMalformedInputs, values[0])
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return fallback, nil
	}

	return rollup.ID(id), nil
}

// EncodeRollupID packs a rollup identifier as START, STOP or DELETE inputs.
func EncodeRollupID(id rollup.ID) ([]byte, error) {
	return ABI.Methods["start"].Inputs.Pack(string(id))
}

// EncodeOutput packs the boolean job output reported with every result.
func EncodeOutput(success bool) []byte {
	out, err := ABI.Methods["create"].Outputs.Pack(success)
	if err != nil {
		panic(fmt.Errorf("failed to pack job output: %w", err))
	}
	return out
}
