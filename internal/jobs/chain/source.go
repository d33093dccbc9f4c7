package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const jobCalledEvent = "JobCalled"

var ErrUnexpectedLog = errors.New("log is not a JobCalled event")

type (
	// LogClient is satisfied by *ethclient.Client over a websocket or IPC endpoint.
	LogClient interface {
		SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
		FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	}

	logKey struct {
		tx    common.Hash
		index uint
	}

	// Source turns JobCalled events of the orchestration contract into job calls.
	Source struct {
		client     LogClient
		contract   common.Address
		serviceIDs []uint64
		maxBackoff time.Duration
		logger     *slog.Logger

		// cursor is the block the next backfill starts from; backfill stays off until a start
		// block is given or the first event is forwarded.
		cursor   uint64
		backfill bool
		seen     map[logKey]uint64
	}
)

// NewSource watches contract for job calls addressed to serviceIDs, or to any service when
// serviceIDs is empty. Events from startBlock onwards are replayed first; a zero startBlock
// only follows new events.
func NewSource(client LogClient, contract common.Address, serviceIDs []uint64, startBlock uint64) *Source {
	return &Source{
		client:     client,
		contract:   contract,
		serviceIDs: serviceIDs,
		maxBackoff: 30 * time.Second,
		logger:     logger.Named("chain_source"),
		cursor:     startBlock,
		backfill:   startBlock > 0,
		seen:       make(map[logKey]uint64),
	}
}

// Stream forwards job calls to out until ctx is done. Dropped subscriptions are re-established
// with exponential backoff, and events emitted while disconnected are replayed from the last
// forwarded block. No event is forwarded twice.
func (s *Source) Stream(ctx context.Context, out chan<- jobs.JobCall) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := s.subscribe(ctx, out)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		s.logger.With("err", err.Error(), "retry_in", next.String()).Warn("job event subscription lost, resubscribing")
	})

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Source) subscribe(ctx context.Context, out chan<- jobs.JobCall) error {
	// subscribe before replaying so nothing mined in between is missed; duplicates are dropped
	logs := make(chan types.Log, 64)
	sub, err := s.client.SubscribeFilterLogs(ctx, s.query(), logs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to job events: %w", err)
	}
	defer sub.Unsubscribe()

	s.logger.With("contract", s.contract.Hex()).Info("subscribed to job events")

	if s.backfill {
		q := s.query()
		q.FromBlock = new(big.Int).SetUint64(s.cursor)
		past, err := s.client.FilterLogs(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to replay job events from block %d: %w", s.cursor, err)
		}

		s.logger.With("from_block", s.cursor, "events", len(past)).Info("replaying job events")
		for _, l := range past {
			if !s.forward(ctx, l, out) {
				return nil
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			// logs delivered before the drop are still valid
			for {
				select {
				case l := <-logs:
					if !s.forward(ctx, l, out) {
						return nil
					}
				default:
					return err
				}
			}
		case l := <-logs:
			if !s.forward(ctx, l, out) {
				return nil
			}
		}
	}
}

// forward reports false once ctx is done.
func (s *Source) forward(ctx context.Context, l types.Log, out chan<- jobs.JobCall) bool {
	if l.Removed {
		s.logger.With("tx", l.TxHash.Hex()).Warn("ignoring job event removed by reorg")
		return true
	}

	key := logKey{tx: l.TxHash, index: l.Index}
	if _, dup := s.seen[key]; dup {
		return true
	}

	call, err := DecodeJobCalled(l)
	if err != nil {
		s.logger.With("tx", l.TxHash.Hex(), "err", err.Error()).Warn("skipping undecodable job event")
		return true
	}

	select {
	case out <- call:
	case <-ctx.Done():
		return false
	}

	s.seen[key] = l.BlockNumber
	s.advance(l.BlockNumber)

	return true
}

// advance moves the replay cursor to block. Only events at or past the cursor can be
// replayed again, so older dedup entries are dropped.
func (s *Source) advance(block uint64) {
	s.backfill = true
	if block <= s.cursor {
		return
	}
	s.cursor = block
	for key, seenAt := range s.seen {
		if seenAt < block {
			delete(s.seen, key)
		}
	}
}

func (s *Source) query() ethereum.FilterQuery {
	topics := [][]common.Hash{{jobs.ABI.Events[jobCalledEvent].ID}}
	if len(s.serviceIDs) > 0 {
		services := make([]common.Hash, 0, len(s.serviceIDs))
		for _, id := range s.serviceIDs {
			services = append(services, common.BigToHash(new(big.Int).SetUint64(id)))
		}
		topics = append(topics, services)
	}

	return ethereum.FilterQuery{
		Addresses: []common.Address{s.contract},
		Topics:    topics,
	}
}

// DecodeJobCalled extracts the job call carried by a JobCalled log.
func DecodeJobCalled(l types.Log) (jobs.JobCall, error) {
	event := jobs.ABI.Events[jobCalledEvent]
	if len(l.Topics) != 3 || l.Topics[0] != event.ID {
		return jobs.JobCall{}, ErrUnexpectedLog
	}

	serviceID := new(big.Int).SetBytes(l.Topics[1].Bytes())
	kind := new(big.Int).SetBytes(l.Topics[2].Bytes())
	if !serviceID.IsUint64() || !kind.IsUint64() || kind.Uint64() > 255 {
		return jobs.JobCall{}, fmt.Errorf("%w: indexed values out of range", ErrUnexpectedLog)
	}

	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return jobs.JobCall{}, fmt.Errorf("failed to unpack job event: %w", err)
	}
	if len(values) != 2 {
		return jobs.JobCall{}, fmt.Errorf("%w: expected 2 values, got %d", ErrUnexpectedLog, len(values))
	}
	callID, ok := values[0].(uint64)
	if !ok {
		return jobs.JobCall{}, fmt.Errorf("%w: call id has type %T", ErrUnexpectedLog, values[0])
	}
	inputs, ok := values[1].([]byte)
	if !ok {
		return jobs.JobCall{}, fmt.Errorf("%w: inputs have type %T", ErrUnexpectedLog, values[1])
	}

	return jobs.JobCall{
		ServiceID: serviceID.Uint64(),
		Kind:      jobs.Kind(kind.Uint64()),
		CallID:    callID,
		Inputs:    inputs,
	}, nil
}
