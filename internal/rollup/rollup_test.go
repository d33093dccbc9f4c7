package rollup

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromService(t *testing.T) {
	id := IDFromService(42)

	assert.Equal(t, ID("rollup-42"), id)
	assert.Equal(t, "docker-rollup-42", id.ContainerName())
}

func TestConfigNetwork(t *testing.T) {
	assert.Equal(t, NetworkMainnet, Config{IsMainnet: true}.Network())
	assert.Equal(t, NetworkTestnet, Config{}.Network())
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusStarting, StatusActive, StatusStopping, StatusInactive, StatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("deleting").Valid())
}

func TestRecordCloneIsIndependent(t *testing.T) {
	original := Record{
		ID:     "rollup-1",
		Config: Config{Validators: []common.Address{common.HexToAddress("0x01")}},
		State:  State{Status: StatusActive, Container: &ContainerHandle{ID: "abc", Name: "docker-rollup-1"}},
	}

	clone := original.Clone()
	clone.Config.Validators[0] = common.HexToAddress("0x02")
	clone.State.Container.ID = "def"

	require.Len(t, original.Config.Validators, 1)
	assert.Equal(t, common.HexToAddress("0x01"), original.Config.Validators[0])
	assert.Equal(t, "abc", original.State.Container.ID)
}
