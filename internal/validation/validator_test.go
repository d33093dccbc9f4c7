package validation

import (
	"errors"
	"math/big"
	"testing"

	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poster  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	manager = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	val1    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	val2    = common.HexToAddress("0x00000000000000000000000000000000000000e5")
)

func validParams(chainID int64, mainnet bool) jobs.CreateParams {
	return jobs.CreateParams{
		ChainID:            big.NewInt(chainID),
		InitialChainOwner:  owner.Hex(),
		Validators:         []string{val1.Hex(), val2.Hex()},
		BatchPosterAddress: poster.Hex(),
		BatchPosterManager: manager.Hex(),
		IsMainnet:          mainnet,
	}
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator(Policy{})

	cfg, err := v.Validate(validParams(1_000_000, true))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), cfg.ChainID)
	assert.True(t, cfg.IsMainnet)
	assert.Equal(t, owner, cfg.InitialChainOwner)
	assert.Equal(t, poster, cfg.BatchPosterAddress)
	assert.Equal(t, manager, cfg.BatchPosterManager)
	assert.Equal(t, []common.Address{val1, val2}, cfg.Validators)
	assert.True(t, cfg.CreatedAt.IsZero())

	cfg, err = v.Validate(validParams(999_999, false))
	require.NoError(t, err)
	assert.Equal(t, uint64(999_999), cfg.ChainID)
}

func TestValidateEmptyValidators(t *testing.T) {
	params := validParams(42, false)
	params.Validators = nil

	cfg, err := NewValidator(Policy{}).Validate(params)
	require.NoError(t, err)
	assert.Empty(t, cfg.Validators)
}

func TestValidateChainIDPartition(t *testing.T) {
	v := NewValidator(Policy{})

	tests := []struct {
		name    string
		chainID int64
		mainnet bool
	}{
		{name: "mainnet below floor", chainID: 999_999, mainnet: true},
		{name: "testnet at floor", chainID: 1_000_000, mainnet: false},
		{name: "testnet above floor", chainID: 5_000_000, mainnet: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(validParams(tt.chainID, tt.mainnet))
			require.ErrorIs(t, err, ErrChainIDOutOfRange)

			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "chain_id", verr.Field)
		})
	}
}

func TestValidateCustomFloor(t *testing.T) {
	v := NewValidator(Policy{MainnetChainIDFloor: 100})

	_, err := v.Validate(validParams(100, true))
	require.NoError(t, err)

	_, err = v.Validate(validParams(100, false))
	require.ErrorIs(t, err, ErrChainIDOutOfRange)
}

func TestValidateRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *jobs.CreateParams)
		field  string
		want   error
	}{
		{name: "nil chain id", mutate: func(p *jobs.CreateParams) { p.ChainID = nil }, field: "chain_id", want: ErrMissingField},
		{name: "zero chain id", mutate: func(p *jobs.CreateParams) { p.ChainID = big.NewInt(0) }, field: "chain_id", want: ErrMissingField},
		{name: "negative chain id", mutate: func(p *jobs.CreateParams) { p.ChainID = big.NewInt(-5) }, field: "chain_id", want: ErrMalformedField},
		{name: "overflowing chain id", mutate: func(p *jobs.CreateParams) {
			p.ChainID = new(big.Int).Lsh(big.NewInt(1), 70)
		}, field: "chain_id", want: ErrMalformedField},
		{name: "missing owner", mutate: func(p *jobs.CreateParams) { p.InitialChainOwner = "" }, field: "initial_chain_owner", want: ErrMissingField},
		{name: "zero owner", mutate: func(p *jobs.CreateParams) { p.InitialChainOwner = common.Address{}.Hex() }, field: "initial_chain_owner", want: ErrMissingField},
		{name: "malformed poster", mutate: func(p *jobs.CreateParams) { p.BatchPosterAddress = "0xnothex" }, field: "batch_poster_address", want: ErrMalformedField},
		{name: "missing manager", mutate: func(p *jobs.CreateParams) { p.BatchPosterManager = "" }, field: "batch_poster_manager", want: ErrMissingField},
		{name: "duplicate validator", mutate: func(p *jobs.CreateParams) {
			p.Validators = []string{val1.Hex(), val2.Hex(), val1.Hex()}
		}, field: "validators[2]", want: ErrMalformedField},
		{name: "zero validator", mutate: func(p *jobs.CreateParams) {
			p.Validators = []string{common.Address{}.Hex()}
		}, field: "validators[0]", want: ErrMalformedField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams(42, false)
			tt.mutate(&params)

			_, err := NewValidator(Policy{}).Validate(params)
			require.ErrorIs(t, err, tt.want)

			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
