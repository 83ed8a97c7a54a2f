package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddressAcceptsMainnetP2PKHAndP2SH(t *testing.T) {
	assert.NoError(t, ValidateAddress("1BoatSLRHtKNngkdXEeobR76b53LETtpyT"))
	assert.NoError(t, ValidateAddress("3P14159f73E4gFr7JterCCQh9QjiTjiZrG"))
}

func TestValidateAddressAcceptsTestnetP2PKH(t *testing.T) {
	assert.NoError(t, ValidateAddress("mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"))
}

func TestValidateAddressRejectsMalformedString(t *testing.T) {
	assert.Error(t, ValidateAddress("not-an-address-at-all"))
}

func TestValidateAddressRejectsOutOfLengthRange(t *testing.T) {
	assert.Error(t, ValidateAddress("short"))
}

func TestValidateAddressRejectsBech32SegwitAddress(t *testing.T) {
	// Bech32 P2WPKH is outside the two accepted families.
	assert.Error(t, ValidateAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"))
}
