package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// memFinder is a trivial TxFinder backed by a map, enough to exercise
// Tx.Fee/FeePerByte without pulling in the chain package.
type memFinder map[cryptoid.Digest]*Tx

func (f memFinder) FindTx(txid cryptoid.Digest) (*Tx, bool) {
	tx, ok := f[txid]
	return tx, ok
}

func mustKeyPair(t *testing.T) *cryptoid.KeyPair {
	t.Helper()
	kp, err := cryptoid.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestComputeTxIDDeterministic(t *testing.T) {
	kp := mustKeyPair(t)
	sig := kp.Sign(cryptoid.Digest{1})
	inputs := []Input{{TxID: cryptoid.Digest{1}, Signature: sig}}
	outputs := []Output{{Amount: 100, Address: kp.Address}}

	id1 := ComputeTxID(inputs, outputs)
	id2 := ComputeTxID(inputs, outputs)
	assert.Equal(t, id1, id2)

	outputs2 := []Output{{Amount: 101, Address: kp.Address}}
	id3 := ComputeTxID(inputs, outputs2)
	assert.NotEqual(t, id1, id3, "changing an output must change the txid")
}

func TestTxSize(t *testing.T) {
	tx := &Tx{
		Inputs:  make([]Input, 2),
		Outputs: make([]Output, 3),
	}
	assert.Equal(t, TxOverhead+2*InputSize+3*OutputSize, tx.Size())
}

func TestIsCoinbase(t *testing.T) {
	coinbase := NewTx(
		[]Input{{TxID: cryptoid.ZeroDigest}},
		[]Output{{Amount: BlockReward}},
	)
	assert.True(t, coinbase.IsCoinbase())

	kp := mustKeyPair(t)
	normal := NewTx(
		[]Input{{TxID: cryptoid.Digest{1}, Signature: kp.Sign(cryptoid.Digest{1})}},
		[]Output{{Amount: 1}},
	)
	assert.False(t, normal.IsCoinbase())
}

func TestFeeResolvesInputFromPriorOutput(t *testing.T) {
	owner := mustKeyPair(t)
	priorTx := NewTx(
		[]Input{{TxID: cryptoid.ZeroDigest, Signature: mustKeyPair(t).Sign(cryptoid.ZeroDigest)}},
		[]Output{{Amount: 1000, Address: owner.Address}},
	)

	spendSig := owner.Sign(priorTx.TxID)
	spender := NewTx(
		[]Input{{TxID: priorTx.TxID, Signature: spendSig}},
		[]Output{{Amount: 900}},
	)

	finder := memFinder{priorTx.TxID: priorTx}
	assert.Equal(t, uint64(100), spender.Fee(finder))
}

func TestFeeUnresolvedInputContributesZero(t *testing.T) {
	owner := mustKeyPair(t)
	stranger := mustKeyPair(t)

	priorTx := NewTx(
		[]Input{{TxID: cryptoid.ZeroDigest}},
		[]Output{{Amount: 1000, Address: owner.Address}},
	)

	// Signed by a key that doesn't own the referenced output: no output
	// address verifies this signature, so it contributes 0 per spec §9.
	badSig := stranger.Sign(priorTx.TxID)
	spender := NewTx(
		[]Input{{TxID: priorTx.TxID, Signature: badSig}},
		[]Output{{Amount: 1}},
	)

	finder := memFinder{priorTx.TxID: priorTx}
	assert.Equal(t, uint64(0), spender.Fee(finder))
}

func TestFeePerByteScaling(t *testing.T) {
	owner := mustKeyPair(t)
	priorTx := NewTx(
		[]Input{{TxID: cryptoid.ZeroDigest}},
		[]Output{{Amount: 1000, Address: owner.Address}},
	)
	spender := NewTx(
		[]Input{{TxID: priorTx.TxID, Signature: owner.Sign(priorTx.TxID)}},
		[]Output{{Amount: 900}},
	)
	finder := memFinder{priorTx.TxID: priorTx}

	fee := spender.Fee(finder)
	want := (fee * 65536) / uint64(spender.Size())
	assert.Equal(t, want, spender.FeePerByte(finder))
}

func TestBlockSizeIsHeaderPlusTransactions(t *testing.T) {
	coinbase := NewTx([]Input{{TxID: cryptoid.ZeroDigest}}, []Output{{Amount: BlockReward}})
	b := &Block{Transactions: []*Tx{coinbase}}
	assert.Equal(t, HeaderSize+coinbase.Size(), b.Size())
}

func TestBlockS1GenesisThenRewardBlockSize(t *testing.T) {
	// S1: a reward-only block should be 92 + 32 + 96 + 40 = 260 bytes.
	coinbase := NewTx([]Input{{TxID: cryptoid.ZeroDigest}}, []Output{{Amount: BlockReward}})
	b := &Block{Transactions: []*Tx{coinbase}}
	assert.Equal(t, 260, b.Size())
}

func TestPowPreimageOrderSensitive(t *testing.T) {
	prev := cryptoid.Digest{1, 2, 3}
	h1 := PowPreimage(1, prev, 42)
	h2 := PowPreimage(2, prev, 42)
	assert.NotEqual(t, h1, h2)
}

func TestMeetsTarget(t *testing.T) {
	b := &Block{Target: ^uint64(0)}
	b.Hash = b.ComputeHash()
	assert.True(t, b.MeetsTarget())

	b2 := &Block{Target: 0, Hash: cryptoid.Digest{0xFF}}
	assert.False(t, b2.MeetsTarget())
}

func TestBlockValidateRejectsOversize(t *testing.T) {
	coinbase := NewTx([]Input{{TxID: cryptoid.ZeroDigest}}, []Output{{Amount: BlockReward}})
	b := &Block{Target: ^uint64(0), Transactions: []*Tx{coinbase}}
	b.Hash = b.ComputeHash()

	// Pad with a transaction whose declared size alone exceeds the cap.
	huge := &Tx{Inputs: make([]Input, MaxBlockSize)}
	b.Transactions = append(b.Transactions, huge)

	err := b.Validate()
	assert.Error(t, err)
}

func TestBlockValidateRequiresCoinbaseFirst(t *testing.T) {
	kp := mustKeyPair(t)
	normal := NewTx(
		[]Input{{TxID: cryptoid.Digest{1}, Signature: kp.Sign(cryptoid.Digest{1})}},
		[]Output{{Amount: 1}},
	)
	b := &Block{Target: ^uint64(0), Transactions: []*Tx{normal}}
	b.Hash = b.ComputeHash()

	err := b.Validate()
	assert.Error(t, err)
}

func TestTxValidateDetectsTamperedTxID(t *testing.T) {
	coinbase := NewTx([]Input{{TxID: cryptoid.ZeroDigest}}, []Output{{Amount: BlockReward}})
	coinbase.TxID[0] ^= 0xFF
	assert.Error(t, coinbase.Validate())
}
