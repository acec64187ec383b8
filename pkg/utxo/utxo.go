// Package utxo maintains UtxoIndex, the incrementally-derived map of
// spendable outputs per address. It is entirely rebuildable from the chain:
// known_height and the observed-address set are caches, never a source of
// truth.
package utxo

import (
	"sync"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/chain"
	"github.com/gochain/utxoledger/pkg/cryptoid"
	"github.com/gochain/utxoledger/pkg/parallel"
)

// Entry is a single unspent output: an amount and the txid that produced it.
type Entry struct {
	Amount uint64
	TxID   cryptoid.Digest
}

// UtxoIndex maps address -> unspent (amount, txid) entries, plus the
// derived bookkeeping needed to rescan incrementally.
type UtxoIndex struct {
	mu sync.Mutex

	entries     map[cryptoid.Digest][]Entry
	observed    map[cryptoid.Digest]struct{}
	knownHeight int64 // -1 means nothing has been scanned yet, including genesis
}

// New returns an empty index, ready to rescan from genesis.
func New() *UtxoIndex {
	return &UtxoIndex{
		entries:     make(map[cryptoid.Digest][]Entry),
		observed:    make(map[cryptoid.Digest]struct{}),
		knownHeight: -1,
	}
}

// KnownHeight returns the last chain height this index has scanned through.
func (ui *UtxoIndex) KnownHeight() int64 {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.knownHeight
}

// Balance sums the unspent amounts currently on record for address.
func (ui *UtxoIndex) Balance(address cryptoid.Digest) uint64 {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	var total uint64
	for _, e := range ui.entries[address] {
		total += e.Amount
	}
	return total
}

// UTXOs returns a copy of address's unspent entries, in the order recorded.
func (ui *UtxoIndex) UTXOs(address cryptoid.Digest) []Entry {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	out := make([]Entry, len(ui.entries[address]))
	copy(out, ui.entries[address])
	return out
}

// Candidates returns every (address, amount) pair recorded for txid, across
// all addresses that hold an entry with that txid. A single txid can carry
// multiple live outputs — any transfer with a change output shares its
// txid between the recipient's entry and the sender's change entry — so
// the mempool must test a spending signature against the whole set rather
// than an arbitrary one, the same way block.Tx.Fee resolves input
// ownership against every one of a prior transaction's outputs.
func (ui *UtxoIndex) Candidates(txid cryptoid.Digest) (addresses []cryptoid.Digest, amounts []uint64) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	for addr, entries := range ui.entries {
		for _, e := range entries {
			if e.TxID == txid {
				addresses = append(addresses, addr)
				amounts = append(amounts, e.Amount)
			}
		}
	}
	return addresses, amounts
}

// Rescan walks every block above known_height and brings the index up to
// the chain's current tip, per spec.md §4.4:
//
//  1. Additions pass, sequential across blocks (to preserve the
//     already-present dedup check): every output not already recorded for
//     its address is appended; every newly seen address joins the
//     observed set.
//  2. Removals pass, parallel across the observed-address axis: for every
//     input in the scanned range, each worker checks whether its assigned
//     address's key verifies the input's signature over the input's txid;
//     on a match, the entry with that txid is removed from that address.
//  3. known_height advances to the chain's height.
func (ui *UtxoIndex) Rescan(c *chain.Blockchain) {
	ui.mu.Lock()
	blocks := c.BlocksAbove(ui.knownHeight)
	ui.mu.Unlock()

	if len(blocks) == 0 {
		return
	}

	ui.additionsPass(blocks)
	ui.removalsPass(blocks)

	ui.mu.Lock()
	ui.knownHeight = int64(c.Height())
	ui.mu.Unlock()
}

func (ui *UtxoIndex) additionsPass(blocks []*block.Block) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	for _, b := range blocks {
		for _, tx := range b.Transactions {
			for _, out := range tx.Outputs {
				if _, seen := ui.observed[out.Address]; !seen {
					ui.observed[out.Address] = struct{}{}
				}
				if !ui.hasEntryLocked(out.Address, out.Amount, tx.TxID) {
					ui.entries[out.Address] = append(ui.entries[out.Address], Entry{Amount: out.Amount, TxID: tx.TxID})
				}
			}
		}
	}
}

func (ui *UtxoIndex) hasEntryLocked(address cryptoid.Digest, amount uint64, txid cryptoid.Digest) bool {
	for _, e := range ui.entries[address] {
		if e.Amount == amount && e.TxID == txid {
			return true
		}
	}
	return false
}

func (ui *UtxoIndex) removalsPass(blocks []*block.Block) {
	var inputs []block.Input
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			inputs = append(inputs, tx.Inputs...)
		}
	}
	if len(inputs) == 0 {
		return
	}

	ui.mu.Lock()
	addrs := make([]cryptoid.Digest, 0, len(ui.observed))
	for a := range ui.observed {
		addrs = append(addrs, a)
	}
	ui.mu.Unlock()

	parallel.ForEachAddress(addrs, parallel.Workers(), func(address cryptoid.Digest) {
		for _, in := range inputs {
			if cryptoid.Verify(address, in.Signature, in.TxID) {
				ui.removeEntry(address, in.TxID)
			}
		}
	})
}

// removeEntry drops the entry matching txid from address's list. Mutation
// is protected by the index's single mutex, held only for this update, per
// spec.md §5's shared-resource policy.
func (ui *UtxoIndex) removeEntry(address cryptoid.Digest, txid cryptoid.Digest) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	entries := ui.entries[address]
	for i, e := range entries {
		if e.TxID == txid {
			ui.entries[address] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}
