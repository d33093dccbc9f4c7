package validation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMainnetChainIDFloor splits the chain id space: mainnet rollups at or above, testnet below.
const DefaultMainnetChainIDFloor uint64 = 1_000_000

var (
	ErrMissingField      = errors.New("missing field")
	ErrMalformedField    = errors.New("malformed field")
	ErrChainIDOutOfRange = errors.New("chain id out of range")
)

type (
	Policy struct {
		MainnetChainIDFloor uint64
	}

	// Error names the offending field of a rejected configuration.
	Error struct {
		Field  string
		Err    error
		Detail string
	}

	Validator struct {
		policy Policy
	}
)

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidator creates a validator. A zero floor falls back to DefaultMainnetChainIDFloor.
func NewValidator(policy Policy) *Validator {
	if policy.MainnetChainIDFloor == 0 {
		policy.MainnetChainIDFloor = DefaultMainnetChainIDFloor
	}
	return &Validator{policy: policy}
}

// Validate turns raw CREATE parameters into a normalized rollup configuration.
// CreatedAt is left zero; it is stamped when the rollup is registered.
func (v *Validator) Validate(params jobs.CreateParams) (rollup.Config, error) {
	chainID, err := v.chainID(params.ChainID, params.IsMainnet)
	if err != nil {
		return rollup.Config{}, err
	}

	owner, err := requiredAddress("initial_chain_owner", params.InitialChainOwner)
	if err != nil {
		return rollup.Config{}, err
	}
	poster, err := requiredAddress("batch_poster_address", params.BatchPosterAddress)
	if err != nil {
		return rollup.Config{}, err
	}
	manager, err := requiredAddress("batch_poster_manager", params.BatchPosterManager)
	if err != nil {
		return rollup.Config{}, err
	}

	validators, err := validatorSet(params.Validators)
	if err != nil {
		return rollup.Config{}, err
	}

	return rollup.Config{
		ChainID:            chainID,
		InitialChainOwner:  owner,
		Validators:         validators,
		BatchPosterAddress: poster,
		BatchPosterManager: manager,
		IsMainnet:          params.IsMainnet,
	}, nil
}

func (v *Validator) chainID(raw *big.Int, isMainnet bool) (uint64, error) {
	const field = "chain_id"

	if raw == nil || raw.Sign() == 0 {
		return 0, &Error{Field: field, Err: ErrMissingField}
	}
	if raw.Sign() < 0 || !raw.IsUint64() {
		return 0, &Error{Field: field, Err: ErrMalformedField, Detail: fmt.Sprintf("%s does not fit in 64 bits", raw)}
	}

	id := raw.Uint64()
	floor := v.policy.MainnetChainIDFloor
	if isMainnet && id < floor {
		return 0, &Error{Field: field, Err: ErrChainIDOutOfRange, Detail: fmt.Sprintf("mainnet chain id %d must be >= %d", id, floor)}
	}
	if !isMainnet && id >= floor {
		return 0, &Error{Field: field, Err: ErrChainIDOutOfRange, Detail: fmt.Sprintf("testnet chain id %d must be < %d", id, floor)}
	}

	return id, nil
}

func requiredAddress(field, raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, &Error{Field: field, Err: ErrMissingField}
	}

	addr, err := parseAddress(field, raw)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, &Error{Field: field, Err: ErrMissingField, Detail: "zero address"}
	}

	return addr, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, &Error{Field: field, Err: ErrMalformedField, Detail: fmt.Sprintf("%q is not a hex address", raw)}
	}
	return common.HexToAddress(raw), nil
}

// validatorSet keeps the caller's order and rejects duplicates rather than silently dropping them.
func validatorSet(raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	seen := make(map[common.Address]struct{}, len(raw))

	for i, r := range raw {
		field := fmt.Sprintf("validators[%d]", i)

		addr, err := parseAddress(field, r)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			return nil, &Error{Field: field, Err: ErrMalformedField, Detail: "zero address"}
		}
		if _, dup := seen[addr]; dup {
			return nil, &Error{Field: field, Err: ErrMalformedField, Detail: fmt.Sprintf("duplicate validator %s", addr.Hex())}
		}

		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	return out, nil
}
