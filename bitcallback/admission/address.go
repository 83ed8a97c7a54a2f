package admission

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"

	"github.com/go-errors/errors"
)

// ErrInvalidAddress is returned by ValidateAddress when the string is not
// one of the four accepted address families: mainnet P2PKH, mainnet P2SH,
// testnet P2PKH, or testnet P2SH.
var ErrInvalidAddress = errors.New("admission: invalid bitcoin address")

// validationParams are tried in order until one decodes addr. Both chains
// are always accepted regardless of which bitcoind the service is
// connected to: a subscription's address family is independent of the
// Chain Monitor's own network.
var validationParams = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
}

// ValidateAddress checks addr is Base58Check-valid and one of mainnet
// P2PKH, mainnet P2SH, testnet P2PKH, or testnet P2SH. Length (26-35
// chars) is checked by hand first; the version byte set {0, 5, 111, 196}
// falls out of btcutil's own decode rather than being re-checked by hand.
func ValidateAddress(addr string) error {
	if len(addr) < 26 || len(addr) > 35 {
		return ErrInvalidAddress
	}

	for _, params := range validationParams {
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			continue
		}
		switch decoded.(type) {
		case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
			return nil
		}
	}

	return ErrInvalidAddress
}
