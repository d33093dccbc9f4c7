package jobs

import (
	"errors"
	"math/big"
	"testing"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCreate(t *testing.T) {
	params := CreateParams{
		ChainID:            big.NewInt(1_000_001),
		InitialChainOwner:  common.HexToAddress("0x1111").Hex(),
		Validators:         []string{common.HexToAddress("0x2222").Hex(), common.HexToAddress("0x3333").Hex()},
		BatchPosterAddress: common.HexToAddress("0x4444").Hex(),
		BatchPosterManager: common.HexToAddress("0x5555").Hex(),
		IsMainnet:          true,
	}

	inputs, err := EncodeCreate(params)
	require.NoError(t, err)

	decoded, err := DecodeCreate(inputs)
	require.NoError(t, err)
	require.NotNil(t, decoded.ChainID)
	assert.Zero(t, params.ChainID.Cmp(decoded.ChainID))

	decoded.ChainID = params.ChainID
	assert.Equal(t, params, decoded)
}

func TestDecodeCreateRejectsGarbage(t *testing.T) {
	_, err := DecodeCreate([]byte{0x01, 0x02})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedInputs))
}

func TestDecodeRollupID(t *testing.T) {
	explicit, err := EncodeRollupID("rollup-custom")
	require.NoError(t, err)
	blank, err := EncodeRollupID("  ")
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    JobCall
		want    rollup.ID
		wantErr bool
	}{
		{name: "empty inputs derive from service", call: JobCall{ServiceID: 7, Kind: KindStart}, want: "rollup-7"},
		{name: "explicit id", call: JobCall{ServiceID: 7, Kind: KindStop, Inputs: explicit}, want: "rollup-custom"},
		{name: "blank id derives from service", call: JobCall{ServiceID: 9, Kind: KindDelete, Inputs: blank}, want: "rollup-9"},
		{name: "garbage", call: JobCall{ServiceID: 7, Kind: KindStart, Inputs: []byte{0xff}}, wantErr: true},
		{name: "create carries no id", call: JobCall{ServiceID: 7, Kind: KindCreate, Inputs: explicit}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRollupID(tt.call)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedInputs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultOutputs(t *testing.T) {
	call := JobCall{ServiceID: 3, Kind: KindStart, CallID: 11}

	ok := Succeeded(call, "rollup-3", 0)
	assert.True(t, ok.Success)
	assert.Equal(t, uint64(11), ok.CallID)
	require.Len(t, ok.Outputs, 32)
	assert.Equal(t, byte(1), ok.Outputs[31])

	failed := Failed(call, "rollup-3", errors.New("boom"))
	assert.False(t, failed.Success)
	assert.Equal(t, "boom", failed.Error)
	assert.Equal(t, byte(0), failed.Outputs[31])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "create", KindCreate.String())
	assert.Equal(t, "delete", KindDelete.String())
	assert.Equal(t, "unknown(9)", Kind(9).String())
	assert.False(t, Kind(9).Valid())
}
