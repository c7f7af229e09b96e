package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/internal/chain"
	"github.com/gateway-fm/cyclebot/internal/chain/chaintest"
)

func newTestSequencer(t *testing.T, fake *chaintest.Fake, maxGasPrice *big.Int) *Sequencer {
	t.Helper()
	w, err := FromHex(testKey)
	require.NoError(t, err)
	return NewSequencer(SequencerConfig{
		Wallet:      w,
		Provider:    fake,
		ChainID:     big.NewInt(10143),
		MaxGasPrice: maxGasPrice,
	})
}

func TestSequencer_SendIncrementsNonce(t *testing.T) {
	fake := chaintest.New()
	s := newTestSequencer(t, fake, nil)
	fake.Nonces[s.Address()] = 5
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	for i := 0; i < 3; i++ {
		r, err := s.Send(context.Background(), Request{To: &to, Value: big.NewInt(1), Gas: 21000})
		require.NoError(t, err)
		assert.True(t, r.Succeeded())
	}

	txs := fake.Txs()
	require.Len(t, txs, 3)
	for i, tx := range txs {
		assert.Equal(t, uint64(5+i), tx.Nonce())
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(10143)), tx)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), from)
	}
	assert.Equal(t, uint64(8), s.PeekNonce())
}

func TestSequencer_RevertIsNotAnError(t *testing.T) {
	fake := chaintest.New()
	fake.Revert = func(*types.Transaction) bool { return true }
	s := newTestSequencer(t, fake, nil)
	to := common.HexToAddress("0x1")

	r, err := s.Send(context.Background(), Request{To: &to, Gas: 50000})
	require.NoError(t, err)
	assert.False(t, r.Succeeded())
}

func TestSequencer_RejectionResyncs(t *testing.T) {
	fake := chaintest.New()
	s := newTestSequencer(t, fake, nil)
	to := common.HexToAddress("0x1")

	fake.SubmitFunc = func(*types.Transaction) error { return errors.New("nonce too low") }
	_, err := s.Send(context.Background(), Request{To: &to, Gas: 21000})
	require.Error(t, err)
	assert.True(t, chain.IsSubmissionError(err))

	// The chain moved on in the meantime; the next send picks it up.
	fake.SubmitFunc = nil
	fake.Nonces[s.Address()] = 11
	_, err = s.Send(context.Background(), Request{To: &to, Gas: 21000})
	require.NoError(t, err)

	txs := fake.Txs()
	require.Len(t, txs, 1)
	assert.Equal(t, uint64(11), txs[0].Nonce())
}

func TestSequencer_GasPriceGuard(t *testing.T) {
	fake := chaintest.New()
	fake.GasPrice = big.NewInt(200_000_000_000)
	s := newTestSequencer(t, fake, big.NewInt(100_000_000_000))
	to := common.HexToAddress("0x1")

	_, err := s.Send(context.Background(), Request{To: &to, Gas: 21000})
	require.Error(t, err)
	assert.True(t, chain.IsSubmissionError(err))
	assert.ErrorIs(t, err, ErrGasPriceTooHigh)
	assert.Empty(t, fake.Txs())

	fake.GasPrice = big.NewInt(50_000_000_000)
	_, err = s.Send(context.Background(), Request{To: &to, Gas: 21000})
	assert.NoError(t, err)
}

func TestSequencer_Legacy(t *testing.T) {
	fake := chaintest.New()
	w, err := FromHex(testKey)
	require.NoError(t, err)
	s := NewSequencer(SequencerConfig{Wallet: w, Provider: fake, ChainID: big.NewInt(31337), Legacy: true})

	_, err = s.Send(context.Background(), Request{Data: []byte{0x60}, Gas: 100000})
	require.NoError(t, err)
	txs := fake.Txs()
	require.Len(t, txs, 1)
	assert.Equal(t, uint8(types.LegacyTxType), txs[0].Type())
	assert.Nil(t, txs[0].To())
}

func TestSequencer_SerializesConcurrentSends(t *testing.T) {
	fake := chaintest.New()
	s := newTestSequencer(t, fake, nil)
	to := common.HexToAddress("0x1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Send(context.Background(), Request{To: &to, Gas: 21000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, tx := range fake.Txs() {
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, 10)
}
