// Package chain holds the append-only sequence of blocks. The only check
// on an appended block is that its index and previous_hash extend the tip;
// its contents (PoW, size, coinbase) are not re-validated, and there is no
// reorg and no persistence — all explicit non-goals of this ledger core.
package chain

import (
	"fmt"
	"sync"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// Blockchain is a pure append container of blocks, starting from a caller
// supplied genesis.
type Blockchain struct {
	mu     sync.RWMutex
	blocks []*block.Block

	// txIndex is a derived cache mapping txid -> the transaction, built
	// incrementally as blocks are appended, so FindTx (used by Tx.Fee)
	// doesn't re-walk the whole chain.
	txIndex map[cryptoid.Digest]*block.Tx
}

// New creates a Blockchain seeded with a genesis block. The genesis block's
// previous_hash is the zero digest and its hash is caller-provided — it is
// not produced by proof-of-work (spec.md §9's bootstrapping exception).
func New(genesis *block.Block) *Blockchain {
	c := &Blockchain{
		blocks:  make([]*block.Block, 0, 1),
		txIndex: make(map[cryptoid.Digest]*block.Tx),
	}
	c.appendUnlocked(genesis)
	return c
}

// AddBlock appends b to the chain. No reorg, no fork choice, no deletion.
// It returns an error if b's index or previous_hash does not extend the
// current tip; b's contents are not validated.
func (c *Blockchain) AddBlock(b *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	if b.Index != tip.Index+1 {
		return fmt.Errorf("chain: block index %d does not extend tip index %d", b.Index, tip.Index)
	}
	if b.PreviousHash != tip.Hash {
		return fmt.Errorf("chain: block previous_hash %s does not match tip hash %s", b.PreviousHash, tip.Hash)
	}
	c.appendUnlocked(b)
	return nil
}

func (c *Blockchain) appendUnlocked(b *block.Block) {
	c.blocks = append(c.blocks, b)
	for _, tx := range b.Transactions {
		c.txIndex[tx.TxID] = tx
	}
}

// Height returns the index of the last block.
func (c *Blockchain) Height() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Index
}

// TipHash returns the hash of the last block.
func (c *Blockchain) TipHash() cryptoid.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Hash
}

// Tip returns the last block appended.
func (c *Blockchain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// BlocksAbove returns the blocks with index strictly greater than height,
// in ascending index order — the range UtxoIndex.rescan walks. height is
// int64 so a fresh index (whose watermark predates genesis) can pass -1 and
// still observe block 0.
func (c *Blockchain) BlocksAbove(height int64) []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*block.Block, 0)
	for _, b := range c.blocks {
		if int64(b.Index) > height {
			out = append(out, b)
		}
	}
	return out
}

// FindTx implements block.TxFinder by looking up the derived txid index.
func (c *Blockchain) FindTx(txid cryptoid.Digest) (*block.Tx, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txIndex[txid]
	return tx, ok
}

// String returns a summary of the chain for logging.
func (c *Blockchain) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tip := c.blocks[len(c.blocks)-1]
	return fmt.Sprintf("Blockchain{Height: %d, Tip: %s, Blocks: %d}", tip.Index, tip.Hash, len(c.blocks))
}
