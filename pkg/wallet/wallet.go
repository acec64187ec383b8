// Package wallet holds a single signing identity and builds the
// transactions that spend its unspent outputs.
package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/cryptoid"
	"github.com/gochain/utxoledger/pkg/utxo"
)

// ErrInsufficientBalance is returned when the supplied UTXOs can't cover
// the requested amounts plus fee, or when amounts and addresses disagree
// in length.
var ErrInsufficientBalance = errors.New("wallet: insufficient balance")

// Wallet is a single Ed25519 signing identity. Its address doubles as its
// verifying key.
type Wallet struct {
	mu  sync.RWMutex
	key *cryptoid.KeyPair
}

// New generates a fresh wallet with a new keypair.
func New() (*Wallet, error) {
	kp, err := cryptoid.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return &Wallet{key: kp}, nil
}

// FromKeyPair wraps an already-generated keypair, used when restoring a
// wallet from pkg/walletstore.
func FromKeyPair(kp *cryptoid.KeyPair) *Wallet {
	return &Wallet{key: kp}
}

// KeyPair returns the wallet's signing identity, for persistence.
func (w *Wallet) KeyPair() *cryptoid.KeyPair {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key
}

// Address returns the wallet's address.
func (w *Wallet) Address() cryptoid.Digest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key.Address
}

// Balance sums the wallet's unspent outputs as recorded by index.
func (w *Wallet) Balance(index *utxo.UtxoIndex) uint64 {
	return index.Balance(w.Address())
}

// SendAmounts builds a signed transaction sending the i-th amount to the
// i-th address, per spec: consume utxos in the given order until their sum
// covers amounts+fee, sign each consumed UTXO's txid with the wallet's
// key, emit the requested outputs, and append a change output paying any
// surplus back to the wallet.
func (w *Wallet) SendAmounts(amounts []uint64, fee uint64, addresses []cryptoid.Digest, utxos []utxo.Entry) (*block.Tx, error) {
	if len(amounts) != len(addresses) {
		return nil, fmt.Errorf("%w: %d amounts for %d addresses", ErrInsufficientBalance, len(amounts), len(addresses))
	}

	var needed uint64
	for _, a := range amounts {
		needed += a
	}
	needed += fee

	w.mu.RLock()
	key := w.key
	w.mu.RUnlock()

	var sum uint64
	k := 0
	for _, u := range utxos {
		if sum >= needed {
			break
		}
		sum += u.Amount
		k++
	}
	if sum < needed {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, sum, needed)
	}

	inputs := make([]block.Input, k)
	for i := 0; i < k; i++ {
		inputs[i] = block.Input{TxID: utxos[i].TxID, Signature: key.Sign(utxos[i].TxID)}
	}

	outputs := make([]block.Output, 0, len(amounts)+1)
	for i, amount := range amounts {
		outputs = append(outputs, block.Output{Amount: amount, Address: addresses[i]})
	}
	if sum > needed {
		outputs = append(outputs, block.Output{Amount: sum - needed, Address: key.Address})
	}

	return block.NewTx(inputs, outputs), nil
}

// SendAmount is the single-recipient specialization of SendAmounts. The
// source computes this case's change as sum-amount, omitting the fee — a
// bug the design notes call out. This unifies on SendAmounts's correct
// sum-amount-fee formula rather than preserving it.
func (w *Wallet) SendAmount(amount, fee uint64, address cryptoid.Digest, utxos []utxo.Entry) (*block.Tx, error) {
	return w.SendAmounts([]uint64{amount}, fee, []cryptoid.Digest{address}, utxos)
}
