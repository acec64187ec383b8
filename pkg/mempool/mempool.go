// Package mempool holds unconfirmed transactions in a size-bounded,
// fee-priority pool, with an eviction policy for admission under pressure
// and a greedy drain for block assembly.
package mempool

import (
	"bytes"
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// MaxMempoolSize bounds the total byte size of pooled transactions.
const MaxMempoolSize = 150_000

// ErrInvalidInput is returned when a submitted transaction references a
// txid the caller's UTXO source doesn't recognize as spendable, or whose
// referenced amount can't cover its outputs. The source this pool is
// modeled on drops such transactions silently; this implementation
// surfaces the rejection instead, per the improvement the design calls for.
var ErrInvalidInput = errors.New("mempool: invalid input")

// UTXOSource resolves a txid to every (address, amount) pair still unspent
// under it, letting verify check signature ownership and value
// conservation without the mempool depending on utxo.UtxoIndex's concrete
// type. A txid can carry more than one live output — any transfer with a
// change output shares a txid between the recipient's entry and the
// sender's change entry — so a single arbitrary pair isn't enough; verify
// must test the input's signature against the full candidate set, the way
// block.Tx.Fee already does against a prior transaction's outputs.
type UTXOSource interface {
	Candidates(txid cryptoid.Digest) (addresses []cryptoid.Digest, amounts []uint64)
}

// entry is a pooled transaction with its fee metrics cached at admission
// time — fee_per_byte is never recomputed from the chain on subsequent
// pool operations, since input amounts are immutable once referenced.
type entry struct {
	tx         *block.Tx
	fee        uint64
	feePerByte uint64
	size       int
	index      int // position in the heap, maintained by heap.Interface
}

// feeHeap orders entries ascending by fee_per_byte, with txid bytes as a
// deterministic tie-break. It backs both the eviction walk (lowest first)
// and, reversed, the descending drain order.
type feeHeap []*entry

func (h feeHeap) Len() int { return len(h) }

func (h feeHeap) Less(i, j int) bool {
	if h[i].feePerByte != h[j].feePerByte {
		return h[i].feePerByte < h[j].feePerByte
	}
	return bytes.Compare(h[i].tx.TxID[:], h[j].tx.TxID[:]) < 0
}

func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *feeHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *feeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Mempool is a bounded, fee-ordered pool of unconfirmed transactions.
type Mempool struct {
	mu     sync.Mutex
	byTxID map[cryptoid.Digest]*entry
	heap   feeHeap
	size   int
}

// New returns an empty mempool.
func New() *Mempool {
	mp := &Mempool{byTxID: make(map[cryptoid.Digest]*entry)}
	heap.Init(&mp.heap)
	return mp
}

// Size returns the current total size, in bytes, of pooled transactions.
func (mp *Mempool) Size() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.size
}

// Len returns the number of pooled transactions.
func (mp *Mempool) Len() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.byTxID)
}

// Has reports whether txid is currently pooled.
func (mp *Mempool) Has(txid cryptoid.Digest) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	_, ok := mp.byTxID[txid]
	return ok
}

// Add validates tx against utxos, computes and caches its fee metrics using
// finder to resolve input amounts, and admits it — evicting lower-fee
// entries if the pool is full and tx's fee_per_byte justifies it.
func (mp *Mempool) Add(tx *block.Tx, finder block.TxFinder, utxos UTXOSource) error {
	if err := verify(tx, utxos); err != nil {
		return err
	}

	size := tx.Size()
	fee := tx.Fee(finder)
	var feePerByte uint64
	if size > 0 {
		feePerByte = (fee * 65536) / uint64(size)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.byTxID[tx.TxID]; exists {
		return fmt.Errorf("mempool: tx %s already in pool", tx.TxID)
	}

	if mp.size+size >= MaxMempoolSize {
		evict, ok := mp.planEvictionLocked(feePerByte, size)
		if !ok {
			return fmt.Errorf("mempool: full, tx %s fee_per_byte %d cannot make room", tx.TxID, feePerByte)
		}
		for _, e := range evict {
			mp.removeLocked(e.tx.TxID)
		}
	}

	e := &entry{tx: tx, fee: fee, feePerByte: feePerByte, size: size}
	mp.byTxID[tx.TxID] = e
	heap.Push(&mp.heap, e)
	mp.size += size
	return nil
}

// verify admits tx iff every input's referenced txid resolves to a
// spendable output, among possibly several sharing that txid, whose
// address verifies the input's signature over that txid, and the
// transaction's outputs don't exceed its resolved inputs.
func verify(tx *block.Tx, utxos UTXOSource) error {
	var totalIn uint64
	for _, in := range tx.Inputs {
		addresses, amounts := utxos.Candidates(in.TxID)
		if len(addresses) == 0 {
			return fmt.Errorf("%w: input references unknown txid %s", ErrInvalidInput, in.TxID)
		}
		matched := false
		for i, address := range addresses {
			if cryptoid.Verify(address, in.Signature, in.TxID) {
				totalIn += amounts[i]
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: signature invalid for input %s", ErrInvalidInput, in.TxID)
		}
	}

	var totalOut uint64
	for _, out := range tx.Outputs {
		totalOut += out.Amount
	}
	if totalOut > totalIn {
		return fmt.Errorf("%w: outputs %d exceed resolved inputs %d", ErrInvalidInput, totalOut, totalIn)
	}
	return nil
}

// planEvictionLocked walks the pool ascending by fee_per_byte, accumulating
// size until the "makeable room" covers the incoming transaction. If the
// next unaccumulated entry's fee_per_byte is still at or above the
// incoming fee_per_byte, eviction isn't justified and the tx is rejected.
func (mp *Mempool) planEvictionLocked(feePerByte uint64, size int) ([]*entry, bool) {
	sorted := mp.sortedAscendingLocked()
	room := 0
	for i, e := range sorted {
		room += e.size
		if room >= size {
			if i+1 < len(sorted) && feePerByte <= sorted[i+1].feePerByte {
				return nil, false
			}
			return sorted[:i+1], true
		}
	}
	return nil, false
}

func (mp *Mempool) removeLocked(txid cryptoid.Digest) {
	e, ok := mp.byTxID[txid]
	if !ok {
		return
	}
	delete(mp.byTxID, txid)
	mp.size -= e.size
	heap.Remove(&mp.heap, e.index)
}

func (mp *Mempool) sortedAscendingLocked() []*entry {
	out := make([]*entry, len(mp.heap))
	copy(out, mp.heap)
	sort.Sort(feeHeap(out))
	return out
}

func (mp *Mempool) sortedDescendingLocked() []*entry {
	asc := mp.sortedAscendingLocked()
	for i, j := 0, len(asc)-1; i < j; i, j = i+1, j-1 {
		asc[i], asc[j] = asc[j], asc[i]
	}
	return asc
}

// DrainBestForBlock greedily selects transactions highest fee_per_byte
// first, skipping (not stopping at) any entry that would push the running
// total plus the coinbase reservation over MaxBlockSize, so a single large
// transaction doesn't strand smaller, lower-fee ones still able to fit —
// matching the original's calc_valid_tx_pool_and_fees, which pushes past a
// non-fitting entry rather than breaking. Selected entries are removed
// from the pool. Returns the selected transactions, in descending
// fee_per_byte order, and their summed fee.
func (mp *Mempool) DrainBestForBlock() ([]*block.Tx, uint64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	sorted := mp.sortedDescendingLocked()
	var txs []*block.Tx
	var fees uint64
	accumulated := 0
	for _, e := range sorted {
		if accumulated+e.size+block.CoinbaseReservation >= block.MaxBlockSize {
			continue
		}
		txs = append(txs, e.tx)
		fees += e.fee
		accumulated += e.size
		mp.removeLocked(e.tx.TxID)
	}
	return txs, fees
}
