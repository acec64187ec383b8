package mempool

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// memFinder/memUTXOs back Add with an in-memory stand-in for the chain and
// the UTXO index, letting tests construct spendable "prior outputs" without
// a real Blockchain.
type memFinder map[cryptoid.Digest]*block.Tx

func (f memFinder) FindTx(txid cryptoid.Digest) (*block.Tx, bool) {
	tx, ok := f[txid]
	return tx, ok
}

type utxoEntry struct {
	address cryptoid.Digest
	amount  uint64
}

// memUTXOs maps a txid to every co-output still live under it, mirroring
// how a transfer with a change output shares one txid between the
// recipient's entry and the sender's change entry.
type memUTXOs map[cryptoid.Digest][]utxoEntry

func (m memUTXOs) Candidates(txid cryptoid.Digest) (addresses []cryptoid.Digest, amounts []uint64) {
	for _, e := range m[txid] {
		addresses = append(addresses, e.address)
		amounts = append(amounts, e.amount)
	}
	return addresses, amounts
}

func uniquePriorTxID(i int) cryptoid.Digest {
	var d cryptoid.Digest
	binary.BigEndian.PutUint64(d[:8], uint64(i)+1) // +1 avoids the zero digest
	return d
}

func mustKeyPair(t *testing.T) *cryptoid.KeyPair {
	t.Helper()
	kp, err := cryptoid.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

// registerPrior creates a synthetic "prior output" of amount owned by owner,
// spendable via the returned txid, and registers it in finder/utxos.
func registerPrior(finder memFinder, utxos memUTXOs, priorTxID cryptoid.Digest, owner *cryptoid.KeyPair, amount uint64) {
	finder[priorTxID] = &block.Tx{
		TxID:    priorTxID,
		Outputs: []block.Output{{Amount: amount, Address: owner.Address}},
	}
	utxos[priorTxID] = append(utxos[priorTxID], utxoEntry{address: owner.Address, amount: amount})
}

func spendTx(owner *cryptoid.KeyPair, priorTxID cryptoid.Digest, to cryptoid.Digest, spendAmount uint64) *block.Tx {
	sig := owner.Sign(priorTxID)
	return block.NewTx(
		[]block.Input{{TxID: priorTxID, Signature: sig}},
		[]block.Output{{Amount: spendAmount, Address: to}},
	)
}

func TestAddAdmitsValidTx(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	priorID := uniquePriorTxID(0)
	registerPrior(finder, utxos, priorID, owner, 1000)

	tx := spendTx(owner, priorID, to, 900)

	mp := New()
	require.NoError(t, mp.Add(tx, finder, utxos))

	assert.True(t, mp.Has(tx.TxID))
	assert.Equal(t, tx.Size(), mp.Size())
}

func TestAddRejectsUnknownInput(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	tx := spendTx(owner, cryptoid.Digest{9, 9}, to, 1)

	mp := New()
	err := mp.Add(tx, memFinder{}, memUTXOs{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddRejectsForgedSignature(t *testing.T) {
	owner := mustKeyPair(t)
	stranger := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	priorID := uniquePriorTxID(0)
	registerPrior(finder, utxos, priorID, owner, 1000)

	forged := block.NewTx(
		[]block.Input{{TxID: priorID, Signature: stranger.Sign(priorID)}},
		[]block.Output{{Amount: 900, Address: to}},
	)

	mp := New()
	err := mp.Add(forged, finder, utxos)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddRejectsOutputsExceedingInputs(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	priorID := uniquePriorTxID(0)
	registerPrior(finder, utxos, priorID, owner, 100)

	tx := spendTx(owner, priorID, to, 200)

	mp := New()
	err := mp.Add(tx, finder, utxos)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// TestAddAdmitsSpendOfSharedTxIDCoOutput covers the case a single arbitrary
// Lookup pair used to get wrong roughly half the time: a prior transaction
// with two outputs under one txid (a recipient output and a sender's
// change output, as any transfer produces) — verify must test the
// spending signature against every co-output sharing that txid, not just
// whichever one a map iteration happened to return first.
func TestAddAdmitsSpendOfSharedTxIDCoOutput(t *testing.T) {
	recipient := mustKeyPair(t)
	sender := mustKeyPair(t)
	to := mustKeyPair(t).Address

	priorTxID := uniquePriorTxID(0)
	finder := memFinder{
		priorTxID: &block.Tx{
			TxID: priorTxID,
			Outputs: []block.Output{
				{Amount: 1_000_000, Address: recipient.Address},
				{Amount: 3_999_990, Address: sender.Address},
			},
		},
	}
	utxos := memUTXOs{
		priorTxID: {
			{address: recipient.Address, amount: 1_000_000},
			{address: sender.Address, amount: 3_999_990},
		},
	}

	// Recipient spends its output from that shared txid.
	spendByRecipient := block.NewTx(
		[]block.Input{{TxID: priorTxID, Signature: recipient.Sign(priorTxID)}},
		[]block.Output{{Amount: 900_000, Address: to}},
	)
	mp := New()
	assert.NoError(t, mp.Add(spendByRecipient, finder, utxos))

	// Sender spends its change output from the same shared txid.
	spendBySender := block.NewTx(
		[]block.Input{{TxID: priorTxID, Signature: sender.Sign(priorTxID)}},
		[]block.Output{{Amount: 1_000_000, Address: to}},
	)
	mp2 := New()
	assert.NoError(t, mp2.Add(spendBySender, finder, utxos))
}

// TestEvictionMakesRoomForHigherFee exercises S3: filling the pool near
// capacity with low fee_per_byte transactions, then submitting one with a
// much higher fee_per_byte, evicts just enough of the cheapest entries.
func TestEvictionMakesRoomForHigherFee(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	mp := New()

	const cheapFee = 1
	const txSize = block.TxOverhead + block.InputSize + block.OutputSize // 168
	n := MaxMempoolSize / txSize                                        // fills just under capacity

	for i := 0; i < n; i++ {
		priorID := uniquePriorTxID(i)
		registerPrior(finder, utxos, priorID, owner, 1000+cheapFee)
		tx := spendTx(owner, priorID, to, 1000)
		require.NoError(t, mp.Add(tx, finder, utxos))
	}
	require.LessOrEqual(t, mp.Size(), MaxMempoolSize)
	sizeBefore := mp.Size()
	lenBefore := mp.Len()

	expensivePrior := uniquePriorTxID(n)
	registerPrior(finder, utxos, expensivePrior, owner, 1000+10_000)
	expensive := spendTx(owner, expensivePrior, to, 1000)

	require.NoError(t, mp.Add(expensive, finder, utxos))

	assert.True(t, mp.Has(expensive.TxID))
	assert.LessOrEqual(t, mp.Size(), MaxMempoolSize, "pool must stay within MAX_MEMPOOL_SIZE after eviction")
	assert.Less(t, mp.Len(), lenBefore+1, "at least one cheap entry must have been evicted")
	assert.Less(t, mp.Size(), sizeBefore+txSize, "evicted size must offset the new entry")
}

func TestAddRejectsWhenNoEvictionCanMakeRoom(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	mp := New()

	const txSize = block.TxOverhead + block.InputSize + block.OutputSize
	n := MaxMempoolSize / txSize

	// Fill with entries all at a high, identical fee_per_byte.
	for i := 0; i < n; i++ {
		priorID := uniquePriorTxID(i)
		registerPrior(finder, utxos, priorID, owner, 1000+500)
		tx := spendTx(owner, priorID, to, 1000)
		require.NoError(t, mp.Add(tx, finder, utxos))
	}

	// A cheaper newcomer can never justify evicting these.
	cheapPrior := uniquePriorTxID(n)
	registerPrior(finder, utxos, cheapPrior, owner, 1000+1)
	cheap := spendTx(owner, cheapPrior, to, 1000)

	err := mp.Add(cheap, finder, utxos)
	assert.Error(t, err)
}

// TestDrainBestForBlockDescendingOrder exercises property §8.6: drain
// yields transactions in non-increasing fee_per_byte order.
func TestDrainBestForBlockDescendingOrder(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	mp := New()

	fees := []uint64{5, 50, 500, 1, 25}
	for i, fee := range fees {
		priorID := uniquePriorTxID(i)
		registerPrior(finder, utxos, priorID, owner, 1000+fee)
		tx := spendTx(owner, priorID, to, 1000)
		require.NoError(t, mp.Add(tx, finder, utxos))
	}

	txs, totalFees := mp.DrainBestForBlock()
	require.Len(t, txs, len(fees))

	var prevFeePerByte uint64 = ^uint64(0)
	var wantFees uint64
	for _, f := range fees {
		wantFees += f
	}
	assert.Equal(t, wantFees, totalFees)

	for _, tx := range txs {
		fpb := tx.FeePerByte(finder)
		assert.LessOrEqual(t, fpb, prevFeePerByte)
		prevFeePerByte = fpb
	}

	assert.Equal(t, 0, mp.Len(), "drained transactions are removed from the pool")
}

// TestDrainBestForBlockRespectsCap exercises S4: draining selects only
// transactions that fit under the block-size cap minus the coinbase
// reservation.
func TestDrainBestForBlockRespectsCap(t *testing.T) {
	owner := mustKeyPair(t)
	to := mustKeyPair(t).Address

	finder := memFinder{}
	utxos := memUTXOs{}
	mp := New()

	const txSize = block.TxOverhead + block.InputSize + block.OutputSize
	n := MaxMempoolSize / txSize // enough to also overflow the block cap

	for i := 0; i < n; i++ {
		priorID := uniquePriorTxID(i)
		registerPrior(finder, utxos, priorID, owner, 1000+uint64(i+1))
		tx := spendTx(owner, priorID, to, 1000)
		require.NoError(t, mp.Add(tx, finder, utxos))
	}

	txs, _ := mp.DrainBestForBlock()
	assert.Less(t, len(txs), n, "not every pooled tx fits under the block cap")

	total := 0
	for _, tx := range txs {
		total += tx.Size()
	}
	assert.Less(t, total+block.CoinbaseReservation, block.MaxBlockSize)
}
