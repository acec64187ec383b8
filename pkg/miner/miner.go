// Package miner performs proof-of-work search and candidate block assembly:
// racing workers for a qualifying nonce, draining the mempool's best
// transactions, and minting the coinbase that pays the miner its reward.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/cryptoid"
	"github.com/gochain/utxoledger/pkg/mempool"
	"github.com/gochain/utxoledger/pkg/parallel"
)

// Miner mines candidate blocks, paying the block reward and collected fees
// to a fixed address.
type Miner struct {
	Address cryptoid.Digest
	Workers int
}

// New returns a miner paying reward to address, sized to the machine's CPU
// count by default.
func New(address cryptoid.Digest) *Miner {
	return &Miner{Address: address, Workers: parallel.Workers()}
}

// MineCandidate finds a qualifying (hash, nonce) pair for the given header
// fields, drains the mempool's best fee-paying transactions, prepends a
// coinbase covering BLOCK_REWARD plus collected fees, and assembles the
// resulting block. ctx cancellation aborts the nonce search; the chain
// checks only the result's index/previous_hash linkage (no re-validation
// of its contents at tip).
func (m *Miner) MineCandidate(ctx context.Context, index uint32, prevHash cryptoid.Digest, target uint64, pool *mempool.Mempool) (*block.Block, error) {
	hash, nonce, err := m.searchNonce(ctx, index, prevHash, target)
	if err != nil {
		return nil, err
	}

	txs, fees := pool.DrainBestForBlock()

	coinbase, err := m.coinbase(fees)
	if err != nil {
		return nil, err
	}

	transactions := make([]*block.Tx, 0, len(txs)+1)
	transactions = append(transactions, coinbase)
	transactions = append(transactions, txs...)

	return &block.Block{
		Index:        index,
		Hash:         hash,
		PreviousHash: prevHash,
		Time:         uint64(time.Now().Unix()),
		Target:       target,
		Nonce:        nonce,
		Transactions: transactions,
	}, nil
}

// searchNonce races m.Workers goroutines, each repeatedly sampling a random
// nonce and checking it against target. The first worker to find a
// qualifying nonce cancels the rest. The winning hash is recomputed from
// the winning nonce after the race settles, rather than threaded out of
// the racing closure, to keep the race free of a shared result variable.
func (m *Miner) searchNonce(ctx context.Context, index uint32, prevHash cryptoid.Digest, target uint64) (cryptoid.Digest, uint64, error) {
	workers := m.Workers
	if workers <= 0 {
		workers = parallel.Workers()
	}

	nonce, ok := parallel.RaceNonce(ctx, workers, func(raceCtx context.Context, workerID int) (uint64, bool) {
		candidate, err := cryptoid.RandomNonce()
		if err != nil {
			return 0, false
		}
		hash := block.PowPreimage(index, prevHash, candidate)
		return candidate, cryptoid.LeadingU64(hash) <= target
	})
	if !ok {
		return cryptoid.Digest{}, 0, fmt.Errorf("miner: nonce search cancelled: %w", ctx.Err())
	}
	return block.PowPreimage(index, prevHash, nonce), nonce, nil
}

// coinbase builds the block's first transaction: one synthetic input
// (zero txid, random signature — it exists only to make coinbase txids
// unique per block, nothing ever verifies it) and one output paying the
// miner BLOCK_REWARD plus fees.
func (m *Miner) coinbase(fees uint64) (*block.Tx, error) {
	sig, err := cryptoid.RandomSignature()
	if err != nil {
		return nil, fmt.Errorf("miner: coinbase signature: %w", err)
	}
	inputs := []block.Input{{TxID: cryptoid.ZeroDigest, Signature: sig}}
	outputs := []block.Output{{Amount: block.BlockReward + fees, Address: m.Address}}
	return block.NewTx(inputs, outputs), nil
}
