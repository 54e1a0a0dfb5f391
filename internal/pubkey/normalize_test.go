package pubkey

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

func xOnlyHex() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return hex.EncodeToString(b)
}

func encodeNpub(t *testing.T, xOnly string) string {
	t.Helper()
	raw, err := hex.DecodeString(xOnly)
	if err != nil {
		t.Fatal(err)
	}
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := bech32.Encode(npubHRP, data)
	if err != nil {
		t.Fatal(err)
	}
	return encoded
}

func TestNormalize(t *testing.T) {
	x := xOnlyHex()
	npub := encodeNpub(t, x)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"x-only hex", x, "02" + x, false},
		{"already 02-prefixed", "02" + x, "02" + x, false},
		{"already 03-prefixed", "03" + x, "03" + x, false},
		{"npub", npub, "02" + x, false},
		{"empty", "", "", true},
		{"8 chars", "deadbeef", "", true},
		{"65 chars", strings.Repeat("a", 65), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
