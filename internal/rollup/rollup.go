package rollup

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type (
	// ID identifies a rollup across the registry, the container runtime and job results.
	ID string

	Status string

	Config struct {
		ChainID            uint64           `json:"chain_id" yaml:"chain-id"`
		InitialChainOwner  common.Address   `json:"initial_chain_owner" yaml:"initial-chain-owner"`
		Validators         []common.Address `json:"validators" yaml:"validators"`
		BatchPosterAddress common.Address   `json:"batch_poster_address" yaml:"batch-poster-address"`
		BatchPosterManager common.Address   `json:"batch_poster_manager" yaml:"batch-poster-manager"`
		IsMainnet          bool             `json:"is_mainnet" yaml:"is-mainnet"`
		CreatedAt          time.Time        `json:"created_at" yaml:"created-at"`
	}

	ContainerHandle struct {
		ID   string `json:"id" yaml:"id"`
		Name string `json:"name" yaml:"name"`
	}

	State struct {
		Status    Status           `json:"status" yaml:"status"`
		Container *ContainerHandle `json:"container,omitempty" yaml:"container,omitempty"`
		LastError string           `json:"last_error,omitempty" yaml:"last-error,omitempty"`
	}

	// Record is a registry entry.
	Record struct {
		ID        ID        `json:"id" yaml:"id"`
		ServiceID uint64    `json:"service_id" yaml:"service-id"`
		Config    Config    `json:"config" yaml:"config"`
		State     State     `json:"state" yaml:"state"`
		UpdatedAt time.Time `json:"updated_at" yaml:"updated-at"`
	}
)

const (
	StatusCreated  Status = "created"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusStopping Status = "stopping"
	StatusInactive Status = "inactive"
	StatusFailed   Status = "failed"
)

const idPrefix = "rollup-"

// IDFromService derives the rollup identifier owned by an orchestration service.
func IDFromService(serviceID uint64) ID {
	return ID(fmt.Sprintf("%s%d", idPrefix, serviceID))
}

func (id ID) String() string {
	return string(id)
}

// ContainerName is the deterministic runtime name used to find a rollup's container again.
func (id ID) ContainerName() string {
	return "docker-" + string(id)
}

// Ref is what the container runtime should be asked about: the id when known, else the name.
func (h ContainerHandle) Ref() string {
	if h.ID != "" {
		return h.ID
	}
	return h.Name
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusStarting, StatusActive, StatusStopping, StatusInactive, StatusFailed:
		return true
	}
	return false
}

// Network returns the parent network kind of the rollup.
func (c Config) Network() Network {
	if c.IsMainnet {
		return NetworkMainnet
	}
	return NetworkTestnet
}

// Clone returns a copy that shares no slices or pointers with the receiver.
func (r Record) Clone() Record {
	out := r
	if r.Config.Validators != nil {
		out.Config.Validators = append([]common.Address(nil), r.Config.Validators...)
	}
	if r.State.Container != nil {
		handle := *r.State.Container
		out.State.Container = &handle
	}
	return out
}
