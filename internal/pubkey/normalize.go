// Package pubkey canonicalizes the three pubkey encodings the wallet
// accepts for P2PK locking (NUT-11) into one compressed SEC1 form.
package pubkey

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const npubHRP = "npub"

// Normalize accepts an "npub1..." bech32 address, a 64-char x-only hex
// key, or a 66-char already-prefixed compressed key, and returns a
// 66-hex-character compressed SEC1 public key. No cryptographic
// validation of the curve point is performed; the mint rejects invalid
// points downstream.
func Normalize(input string) (string, error) {
	switch {
	case len(input) >= 4 && input[:4] == npubHRP:
		return normalizeNpub(input)
	case len(input) == 64:
		return "02" + input, nil
	case len(input) == 66:
		return input, nil
	default:
		return "", fmt.Errorf("pubkey: unrecognized form (length %d)", len(input))
	}
}

func normalizeNpub(input string) (string, error) {
	hrp, data, err := bech32.Decode(input)
	if err != nil {
		return "", fmt.Errorf("pubkey: invalid bech32 encoding: %w", err)
	}
	if hrp != npubHRP {
		return "", fmt.Errorf("pubkey: unexpected bech32 prefix %q, want %q", hrp, npubHRP)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("pubkey: invalid bech32 payload: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("pubkey: npub payload must be 32 bytes, got %d", len(raw))
	}

	return "02" + hex.EncodeToString(raw), nil
}
