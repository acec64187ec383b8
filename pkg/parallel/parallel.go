// Package parallel holds the two concurrency hotspots the ledger core
// calls out explicitly: racing workers for a proof-of-work nonce, and
// fanning a per-address verification pass out across workers during a
// UTXO rescan. It is a deliberately small replacement for the teacher's
// generic WorkItem processor — this core only ever needs these two shapes.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"github.com/gochain/utxoledger/pkg/cryptoid"
)

// Workers returns a worker count sized to the machine, mirroring the
// teacher's runtime.NumCPU()-based default.
func Workers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// RaceNonce runs n workers concurrently, each repeatedly calling attempt
// with its own worker id; the first worker whose attempt returns ok=true
// wins and every other worker is cancelled. attempt must
// be safe to call concurrently with distinct ids from distinct workers.
func RaceNonce(ctx context.Context, workers int, attempt func(ctx context.Context, workerID int) (result uint64, ok bool)) (uint64, bool) {
	if workers <= 0 {
		workers = 1
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once    sync.Once
		winner  uint64
		won     bool
		wg      sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-raceCtx.Done():
					return
				default:
				}
				result, ok := attempt(raceCtx, id)
				if ok {
					once.Do(func() {
						winner = result
						won = true
						cancel()
					})
					return
				}
			}
		}(w)
	}

	wg.Wait()
	return winner, won
}

// ForEachAddress calls fn once per address in addrs, fanned out across a
// bounded worker pool. fn is responsible for its own synchronization when
// mutating shared state (the UTXO rescan holds a single mutex around the
// mutation, per spec.md §4.4/§5).
func ForEachAddress(addrs []cryptoid.Digest, workers int, fn func(address cryptoid.Digest)) {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan cryptoid.Digest, len(addrs))
	for _, a := range addrs {
		jobs <- a
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				fn(addr)
			}
		}()
	}
	wg.Wait()
}
