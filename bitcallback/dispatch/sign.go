package dispatch

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec"
)

// iso8601NoMicros is the timestamp layout used in the signature's
// serialization and in the outbound callback JSON: ISO-8601, no fractional
// seconds.
const iso8601NoMicros = "2006-01-02T15:04:05Z07:00"

// FormatTimestamp renders t per iso8601NoMicros.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(iso8601NoMicros)
}

// SignPayload is the identifying-field subset of a callback that gets
// signed: id, creation time, txid, the subscription's address, and the
// signed amount.
type SignPayload struct {
	ID      string
	Created time.Time
	Txid    string
	Address string
	Amount  int64
}

// serialize builds the fixed-lexical, delimiter-free byte string that gets
// hashed and signed:
//
//	utf8(str(id) ∥ created_iso8601_no_microsec ∥ hex(txid) ∥ base58(addr) ∥ str(amount))
func (p SignPayload) serialize() []byte {
	s := p.ID + FormatTimestamp(p.Created) + p.Txid + p.Address + strconv.FormatInt(p.Amount, 10)
	return []byte(s)
}

// Sign computes an ECDSA/secp256k1/SHA-256 signature over payload's
// serialization and returns it URL-safe base64 encoded.
func Sign(key *btcec.PrivateKey, payload SignPayload) (string, error) {
	hash := sha256.Sum256(payload.serialize())

	sig, err := key.Sign(hash[:])
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(sig.Serialize()), nil
}

// Verify recomputes payload's serialization and checks signature (URL-safe
// base64 encoded DER) against pubKey. A malformed or non-matching signature
// returns false, never an error — the caller only needs a bool.
func Verify(pubKey *btcec.PublicKey, payload SignPayload, signature string) bool {
	raw, err := base64.URLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	sig, err := btcec.ParseDERSignature(raw, btcec.S256())
	if err != nil {
		return false
	}

	hash := sha256.Sum256(payload.serialize())
	return sig.Verify(hash[:], pubKey)
}
