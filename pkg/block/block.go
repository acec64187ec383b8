// Package block defines the ledger's wire types: the fixed-size Input and
// Output value objects, the Tx that identifies and prices itself, and the
// Block that wraps a proof-of-work header around an ordered list of Tx.
package block

import (
	"fmt"

	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// Fixed on-wire sizes, part of the external contract.
const (
	OutputSize    = 40
	InputSize     = 96
	TxOverhead    = 32
	HeaderSize    = 92
	MaxBlockSize  = 100_000
	BlockReward   = 5_000_000
	// CoinbaseReservation is the slack block assembly reserves for the
	// coinbase transaction (32 txid overhead + 96 input + 40 output = 168,
	// rounded up by the spec to 228 bytes of headroom).
	CoinbaseReservation = 228
)

// Output pays amount to address. Immutable once created.
type Output struct {
	Amount  uint64
	Address cryptoid.Digest
}

// Input references a previously produced Output by the txid of the
// transaction that created it, authorized by a signature over that txid.
// Immutable once created.
type Input struct {
	TxID      cryptoid.Digest
	Signature cryptoid.Signature
}

// Tx is a transaction: a self-identifying bundle of inputs and outputs.
type Tx struct {
	TxID    cryptoid.Digest
	Inputs  []Input
	Outputs []Output
}

// Size is the on-wire size in bytes: 32 + 96·|inputs| + 40·|outputs|.
func (tx *Tx) Size() int {
	return TxOverhead + InputSize*len(tx.Inputs) + OutputSize*len(tx.Outputs)
}

// ComputeTxID hashes the inputs then the outputs, in order, into a txid.
// It is a pure function of the transaction's components and must be
// identical across runs for identical inputs/outputs.
func ComputeTxID(inputs []Input, outputs []Output) cryptoid.Digest {
	h := cryptoid.NewHasher()
	for _, in := range inputs {
		h.WriteDigest(in.TxID)
		h.WriteSignature(in.Signature)
	}
	for _, out := range outputs {
		h.WriteU64(out.Amount)
		h.WriteDigest(out.Address)
	}
	return h.Sum()
}

// NewTx assembles a Tx and stamps its txid.
func NewTx(inputs []Input, outputs []Output) *Tx {
	tx := &Tx{Inputs: inputs, Outputs: outputs}
	tx.TxID = ComputeTxID(inputs, outputs)
	return tx
}

// IsCoinbase reports whether tx is a coinbase: exactly one input whose txid
// is the zero digest.
func (tx *Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].TxID == cryptoid.ZeroDigest
}

// TxFinder resolves a txid to the transaction that produced it, scanning
// whatever backing store implements it (a Blockchain, typically). It keeps
// fee resolution out of the chain package's dependency graph.
type TxFinder interface {
	FindTx(txid cryptoid.Digest) (*Tx, bool)
}

// Fee resolves, for each input, the amount of the output it spends — found
// by locating a prior transaction with a matching txid and a matching
// output whose address verifies the input's signature over that txid — and
// returns the difference between total resolved input value and total
// output value. An input matching no candidate output contributes 0,
// per the source's interpretation (spec.md §9).
func (tx *Tx) Fee(finder TxFinder) uint64 {
	var totalIn uint64
	for _, in := range tx.Inputs {
		prior, ok := finder.FindTx(in.TxID)
		if !ok {
			continue
		}
		for _, out := range prior.Outputs {
			if cryptoid.Verify(out.Address, in.Signature, in.TxID) {
				totalIn += out.Amount
				break
			}
		}
	}
	var totalOut uint64
	for _, out := range tx.Outputs {
		totalOut += out.Amount
	}
	if totalOut > totalIn {
		return 0
	}
	return totalIn - totalOut
}

// FeePerByte computes fee·2¹⁶/size as a fixed-point scaled ordering key.
// Corrected per spec.md §9's directive: the source's `fee << 16 / size`
// suffers an operator-precedence bug (`fee << (16/size)`); this uses the
// intended `(fee * 65536) / size`.
func (tx *Tx) FeePerByte(finder TxFinder) uint64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	return (tx.Fee(finder) * 65536) / uint64(size)
}

// Validate checks structural invariants that don't require chain context.
func (tx *Tx) Validate() error {
	if len(tx.Outputs) == 0 {
		return fmt.Errorf("block: tx %s has no outputs", tx.TxID)
	}
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("block: tx %s has no inputs", tx.TxID)
	}
	if got := ComputeTxID(tx.Inputs, tx.Outputs); got != tx.TxID {
		return fmt.Errorf("block: tx txid mismatch: stored %s, computed %s", tx.TxID, got)
	}
	return nil
}

// Block is an ordered container of transactions under a proof-of-work
// header. transactions[0] is always the coinbase.
type Block struct {
	Index        uint32
	Hash         cryptoid.Digest
	PreviousHash cryptoid.Digest
	Time         uint64
	Target       uint64
	Nonce        uint64
	Transactions []*Tx
}

// Size is the total on-wire size: the fixed header plus every tx's size.
func (b *Block) Size() int {
	size := HeaderSize
	for _, tx := range b.Transactions {
		size += tx.Size()
	}
	return size
}

// PowPreimage hashes the fields that make up the proof-of-work preimage:
// index, previous_hash, and nonce. Deliberately excludes time, target, and
// a transaction commitment — see spec.md §9; this is a preserved
// simplification of the core, not an oversight.
func PowPreimage(index uint32, previousHash cryptoid.Digest, nonce uint64) cryptoid.Digest {
	h := cryptoid.NewHasher()
	h.WriteU32(index)
	h.WriteDigest(previousHash)
	h.WriteU64(nonce)
	return h.Sum()
}

// ComputeHash recomputes the block's hash from its PoW preimage fields.
func (b *Block) ComputeHash() cryptoid.Digest {
	return PowPreimage(b.Index, b.PreviousHash, b.Nonce)
}

// MeetsTarget reports whether the block's hash satisfies its target:
// leading_u64(hash) ≤ target.
func (b *Block) MeetsTarget() bool {
	return cryptoid.LeadingU64(b.Hash) <= b.Target
}

// Validate checks the invariants a block must hold on its own (size cap,
// PoW validity, coinbase-first, internal tx structure). Linkage to the
// previous block (index/hash chaining) is the Blockchain's responsibility.
func (b *Block) Validate() error {
	if b.Size() > MaxBlockSize {
		return fmt.Errorf("block: size %d exceeds MAX_BLOCK_SIZE %d", b.Size(), MaxBlockSize)
	}
	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return fmt.Errorf("block: transactions[0] must be a coinbase")
	}
	if !b.MeetsTarget() {
		return fmt.Errorf("block: hash %s does not meet target %d", b.Hash, b.Target)
	}
	for i, tx := range b.Transactions[1:] {
		if tx.IsCoinbase() {
			return fmt.Errorf("block: tx %d is an unexpected second coinbase", i+1)
		}
	}
	return nil
}
