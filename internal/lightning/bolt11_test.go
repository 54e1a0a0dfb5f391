package lightning

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// buildInvoice assembles a minimal synthetic bolt11 data part (timestamp +
// payment-hash tag + description tag) and bech32-encodes it, so the test
// is self-contained rather than depending on a captured real invoice.
func buildInvoice(t *testing.T, hrp string, ts int64, paymentHash [32]byte, description string) string {
	t.Helper()

	var groups []byte
	for shift := 30; shift >= 0; shift -= 5 {
		groups = append(groups, byte((ts>>uint(shift))&0x1f))
	}

	hashGroups, err := bech32.ConvertBits(paymentHash[:], 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	groups = append(groups, tagPaymentHash, byte(len(hashGroups)>>5), byte(len(hashGroups)&0x1f))
	groups = append(groups, hashGroups...)

	descGroups, err := bech32.ConvertBits([]byte(description), 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	groups = append(groups, tagDescription, byte(len(descGroups)>>5), byte(len(descGroups)&0x1f))
	groups = append(groups, descGroups...)

	encoded, err := bech32.Encode(hrp, groups)
	if err != nil {
		t.Fatal(err)
	}
	return encoded
}

func TestDecode(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}

	invoice := buildInvoice(t, "lnbc100n", 1700000000, hash, "coffee")

	decoded, err := Decode(invoice)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Network != "bc" {
		t.Errorf("Network = %q, want bc", decoded.Network)
	}
	wantMsat := uint64(100) * 100
	if decoded.AmountMsat != wantMsat {
		t.Errorf("AmountMsat = %d, want %d", decoded.AmountMsat, wantMsat)
	}
	if decoded.PaymentHash != hex.EncodeToString(hash[:]) {
		t.Errorf("PaymentHash = %q, want %q", decoded.PaymentHash, hex.EncodeToString(hash[:]))
	}
	if decoded.Description != "coffee" {
		t.Errorf("Description = %q, want coffee", decoded.Description)
	}
}

func TestDecodeRejectsNonInvoice(t *testing.T) {
	encoded, err := bech32.Encode("npub", []byte{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(encoded); err == nil {
		t.Error("expected error decoding a non-invoice bech32 string")
	}
}
