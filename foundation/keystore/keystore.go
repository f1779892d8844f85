// Package keystore reads a folder of .ecdsa key files and provides lookup of
// the private keys by file name. The faucet treasury key and the keys used by
// the tooling are stored this way.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Extension is the file extension for key files.
const Extension = ".ecdsa"

// KeyStore maintains a map of key names to private keys.
type KeyStore struct {
	keys map[string]*ecdsa.PrivateKey
}

// New constructs a KeyStore with the keys found under the root folder.
func New(root string) (*KeyStore, error) {
	ks := KeyStore{
		keys: make(map[string]*ecdsa.PrivateKey),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != Extension {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		ks.keys[strings.TrimSuffix(path.Base(fileName), Extension)] = privateKey

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ks, nil
}

// Lookup returns the private key for the specified name.
func (ks *KeyStore) Lookup(name string) (*ecdsa.PrivateKey, error) {
	privateKey, exists := ks.keys[strings.TrimSuffix(name, Extension)]
	if !exists {
		return nil, fmt.Errorf("key %q not found", name)
	}
	return privateKey, nil
}

// Accounts returns a copy of the map of names to account addresses.
func (ks *KeyStore) Accounts() map[string]string {
	accounts := make(map[string]string, len(ks.keys))
	for name, privateKey := range ks.keys {
		accounts[name] = Address(privateKey)
	}
	return accounts
}

// Address returns the account address for the private key.
func Address(privateKey *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
}

// ParseHex converts a hex encoded private key, with or without a 0x prefix.
func ParseHex(hexKey string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return privateKey, nil
}
