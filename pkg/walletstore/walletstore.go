// Package walletstore persists wallet keypairs to an embedded badger
// database, encrypted under a passphrase. Wallet persistence is the one
// piece of ambient state this core does not treat as a non-goal — chain
// and mempool state stay in memory, but a wallet's private key must
// survive a restart.
package walletstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"

	"github.com/gochain/utxoledger/pkg/cryptoid"
	"github.com/gochain/utxoledger/pkg/wallet"
)

const (
	saltSize       = 32
	kdfIterations  = 100_000
	walletKeyEntry = "wallet:default"
)

// Store is a badger-backed, passphrase-encrypted keystore holding one
// wallet identity per address.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("walletstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save encrypts w's private key under passphrase and writes it keyed by
// the wallet's address.
func (s *Store) Save(w *wallet.Wallet, passphrase string) error {
	kp := w.KeyPair()
	plaintext := kp.PrivateKeyBytes()

	ciphertext, err := encrypt(plaintext, passphrase)
	if err != nil {
		return fmt.Errorf("walletstore: encrypt: %w", err)
	}

	key := entryKey(kp.Address)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, ciphertext)
	})
}

// Load decrypts and returns the wallet stored at address.
func (s *Store) Load(address cryptoid.Digest, passphrase string) (*wallet.Wallet, error) {
	var ciphertext []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(address))
		if err != nil {
			return err
		}
		ciphertext, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, fmt.Errorf("walletstore: no wallet stored for %s", address)
		}
		return nil, fmt.Errorf("walletstore: read: %w", err)
	}

	plaintext, err := decrypt(ciphertext, passphrase)
	if err != nil {
		return nil, fmt.Errorf("walletstore: decrypt: %w", err)
	}

	kp, err := cryptoid.KeyPairFromPrivateKeyBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("walletstore: restore key: %w", err)
	}
	return wallet.FromKeyPair(kp), nil
}

func entryKey(address cryptoid.Digest) []byte {
	return []byte(fmt.Sprintf("%s:%s", walletKeyEntry, address))
}

// encrypt wraps data in AES-GCM under a key derived from passphrase and a
// fresh per-call salt. Wire format: salt || nonce || ciphertext.
func encrypt(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize+12 {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+12]
	ciphertext := data[saltSize+12:]

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// deriveKey stretches passphrase+salt through kdfIterations rounds of
// HMAC-SHA256, the same shape of KDF the teacher's wallet package uses for
// its encrypted storage envelope.
func deriveKey(passphrase string, salt []byte) []byte {
	passBytes := []byte(passphrase)
	combined := append(append([]byte{}, passBytes...), salt...)
	sum := sha256.Sum256(combined)
	key := sum[:]

	for i := 0; i < kdfIterations; i++ {
		h := hmac.New(sha256.New, key)
		h.Write(passBytes)
		h.Write(salt)
		h.Write([]byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)})
		key = h.Sum(nil)
	}
	return key
}
