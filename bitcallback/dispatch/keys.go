package dispatch

import (
	"encoding/pem"
	"io/ioutil"

	"github.com/btcsuite/btcd/btcec"
	"github.com/go-errors/errors"
)

// pemBlockType labels the PEM block written by GenerateKey/SaveKey. The key
// material is the raw 32-byte secp256k1 scalar, not an ASN.1 SEC1
// structure — there is no interop requirement with other ECDSA tooling,
// only with this package's own LoadKey.
const pemBlockType = "BITCALLBACK SECP256K1 PRIVATE KEY"

// GenerateKey creates a fresh secp256k1 signing key.
func GenerateKey() (*btcec.PrivateKey, error) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return key, nil
}

// SaveKey PEM-encodes key and writes it to path with owner-only
// permissions.
func SaveKey(path string, key *btcec.PrivateKey) error {
	block := &pem.Block{
		Type:  pemBlockType,
		Bytes: key.Serialize(),
	}
	return ioutil.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// LoadKey reads and decodes the PEM-encoded signing key at path.
func LoadKey(path string) (*btcec.PrivateKey, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errInvalidKeyFile
	}

	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), block.Bytes)
	return key, nil
}

// LoadPublicKey reads the same PEM file and returns only the public half,
// for use by a callback verifier that doesn't hold the signing key.
func LoadPublicKey(path string) (*btcec.PublicKey, error) {
	key, err := LoadKey(path)
	if err != nil {
		return nil, err
	}
	return key.PubKey(), nil
}

var errInvalidKeyFile = errors.New("dispatch: invalid signing key PEM file")
