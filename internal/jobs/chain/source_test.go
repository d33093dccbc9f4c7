package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x00000000000000000000000000000000000c0de0")

func jobLog(t *testing.T, serviceID uint64, kind jobs.Kind, callID uint64, inputs []byte) types.Log {
	t.Helper()

	ev := jobs.ABI.Events[jobCalledEvent]
	data, err := ev.Inputs.NonIndexed().Pack(callID, inputs)
	require.NoError(t, err)

	return types.Log{
		Address:     contract,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(callID)),
		BlockNumber: callID,
		Data:        data,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(new(big.Int).SetUint64(serviceID)),
			common.BigToHash(big.NewInt(int64(kind))),
		},
	}
}

func TestDecodeJobCalled(t *testing.T) {
	call, err := DecodeJobCalled(jobLog(t, 7, jobs.KindStop, 99, []byte{0xaa}))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), call.ServiceID)
	assert.Equal(t, jobs.KindStop, call.Kind)
	assert.Equal(t, uint64(99), call.CallID)
	assert.Equal(t, []byte{0xaa}, []byte(call.Inputs))
}

func TestDecodeJobCalledRejectsOtherLogs(t *testing.T) {
	l := jobLog(t, 7, jobs.KindStop, 99, nil)
	l.Topics[0] = common.HexToHash("0x1234")

	_, err := DecodeJobCalled(l)
	require.ErrorIs(t, err, ErrUnexpectedLog)

	_, err = DecodeJobCalled(types.Log{})
	require.ErrorIs(t, err, ErrUnexpectedLog)
}

type fakeSubscriber struct {
	mu      sync.Mutex
	queries []ethereum.FilterQuery
	filters []ethereum.FilterQuery
	batches [][]types.Log
	history []types.Log
	fail    error
}

func (f *fakeSubscriber) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filters = append(f.filters, q)
	var logs []types.Log
	for _, l := range f.history {
		if q.FromBlock == nil || l.BlockNumber >= q.FromBlock.Uint64() {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func (f *fakeSubscriber) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if len(f.batches) == 0 {
		return nil, errors.New("no more batches")
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	drop := f.fail

	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, l := range batch {
			select {
			case ch <- l:
			case <-quit:
				return nil
			}
		}
		if drop != nil {
			return drop
		}
		<-quit
		return nil
	}), nil
}

func TestStreamForwardsAndResubscribes(t *testing.T) {
	sub := &fakeSubscriber{
		batches: [][]types.Log{
			{jobLog(t, 1, jobs.KindCreate, 1, nil)},
			{jobLog(t, 1, jobs.KindStart, 2, nil)},
		},
		fail: errors.New("connection reset"),
	}
	src := NewSource(sub, contract, []uint64{1}, 0)
	src.maxBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan jobs.JobCall)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Stream(ctx, out) }()

	first := <-out
	second := <-out
	assert.Equal(t, uint64(1), first.CallID)
	assert.Equal(t, uint64(2), second.CallID)

	cancel()
	require.NoError(t, <-errCh)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.GreaterOrEqual(t, len(sub.queries), 2)
	q := sub.queries[0]
	assert.Equal(t, []common.Address{contract}, q.Addresses)
	require.Len(t, q.Topics, 2)
	assert.Equal(t, jobs.ABI.Events[jobCalledEvent].ID, q.Topics[0][0])
	assert.Equal(t, common.BigToHash(big.NewInt(1)), q.Topics[1][0])
}

func TestStreamSkipsRemovedAndUndecodableLogs(t *testing.T) {
	removed := jobLog(t, 1, jobs.KindStop, 1, nil)
	removed.Removed = true
	garbage := jobLog(t, 1, jobs.KindStop, 2, nil)
	garbage.Data = []byte{0x01}

	sub := &fakeSubscriber{batches: [][]types.Log{{removed, garbage, jobLog(t, 1, jobs.KindStop, 3, nil)}}}
	src := NewSource(sub, contract, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan jobs.JobCall)
	go func() { _ = src.Stream(ctx, out) }()

	select {
	case call := <-out:
		assert.Equal(t, uint64(3), call.CallID)
	case <-time.After(time.Second):
		t.Fatal("valid job event was not forwarded")
	}
}

func receiveCalls(t *testing.T, out <-chan jobs.JobCall, n int) []uint64 {
	t.Helper()

	ids := make([]uint64, 0, n)
	for range n {
		select {
		case call := <-out:
			ids = append(ids, call.CallID)
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d job calls", len(ids), n)
		}
	}

	select {
	case call := <-out:
		t.Fatalf("unexpected job call %d", call.CallID)
	case <-time.After(50 * time.Millisecond):
	}

	return ids
}

func TestStreamReplaysFromStartBlock(t *testing.T) {
	sub := &fakeSubscriber{
		history: []types.Log{
			jobLog(t, 1, jobs.KindCreate, 9, nil),
			jobLog(t, 1, jobs.KindCreate, 10, nil),
			jobLog(t, 1, jobs.KindStart, 12, nil),
		},
		// the live subscription repeats the newest replayed event
		batches: [][]types.Log{{jobLog(t, 1, jobs.KindStart, 12, nil), jobLog(t, 1, jobs.KindStop, 13, nil)}},
	}
	src := NewSource(sub, contract, nil, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan jobs.JobCall)
	go func() { _ = src.Stream(ctx, out) }()

	assert.Equal(t, []uint64{10, 12, 13}, receiveCalls(t, out, 3))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.filters, 1)
	assert.Equal(t, uint64(10), sub.filters[0].FromBlock.Uint64())
}

func TestStreamReplaysEventsMissedWhileDisconnected(t *testing.T) {
	sub := &fakeSubscriber{
		batches: [][]types.Log{
			{jobLog(t, 1, jobs.KindCreate, 5, nil)},
			{jobLog(t, 1, jobs.KindStop, 7, nil)},
		},
		// block 6 was mined between the drop and the resubscribe
		history: []types.Log{
			jobLog(t, 1, jobs.KindCreate, 5, nil),
			jobLog(t, 1, jobs.KindStart, 6, nil),
		},
		fail: errors.New("connection reset"),
	}
	src := NewSource(sub, contract, nil, 0)
	src.maxBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan jobs.JobCall)
	go func() { _ = src.Stream(ctx, out) }()

	assert.Equal(t, []uint64{5, 6, 7}, receiveCalls(t, out, 3))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.filters, 1, "no replay before the first event")
	assert.Equal(t, uint64(5), sub.filters[0].FromBlock.Uint64())
}
