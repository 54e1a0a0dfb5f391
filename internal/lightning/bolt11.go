// Package lightning decodes just enough of a BOLT11 invoice for the
// wallet to know what it is being asked to pay: amount, payment hash,
// description, expiry. It is a thin collaborator, not a full BOLT11
// implementation; signature recovery and routing-hint tagged fields are
// out of scope.
package lightning

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

type Bolt11 struct {
	Network     string
	AmountMsat  uint64
	PaymentHash string
	Description string
	Timestamp   time.Time
	Expiry      time.Duration
}

var multiplierToMsat = map[byte]func(amount uint64) uint64{
	'm': func(a uint64) uint64 { return a * 100_000_000 }, // milli-btc -> msat
	'u': func(a uint64) uint64 { return a * 100_000 },     // micro-btc -> msat
	'n': func(a uint64) uint64 { return a * 100 },         // nano-btc -> msat
	'p': func(a uint64) uint64 { return a / 10 },          // pico-btc -> msat
}

const (
	tagPaymentHash  = 1
	tagDescription  = 13
	tagExpiry       = 6
	defaultExpirySec = 3600
)

// Decode parses a lowercase bolt11 invoice string ("lnbc...", "lntb...",
// "lnbcrt...").
func Decode(invoice string) (*Bolt11, error) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))

	hrp, data, err := bech32.DecodeNoLimit(invoice)
	if err != nil {
		return nil, fmt.Errorf("lightning: invalid bech32 invoice: %w", err)
	}
	if !strings.HasPrefix(hrp, "ln") {
		return nil, fmt.Errorf("lightning: not a bolt11 invoice (hrp %q)", hrp)
	}

	network, amountMsat, err := parseHRP(hrp)
	if err != nil {
		return nil, err
	}

	if len(data) < 7 {
		return nil, fmt.Errorf("lightning: invoice data too short")
	}
	// First 35 bits (7 groups of 5 bits) are the unix timestamp.
	var ts int64
	for _, g := range data[:7] {
		ts = ts<<5 | int64(g)
	}

	fields, err := parseTaggedFields(data[7:])
	if err != nil {
		return nil, err
	}

	inv := &Bolt11{
		Network:    network,
		AmountMsat: amountMsat,
		Timestamp:  time.Unix(ts, 0).UTC(),
		Expiry:     defaultExpirySec * time.Second,
	}
	if h, ok := fields[tagPaymentHash]; ok {
		if b, err := bech32.ConvertBits(h, 5, 8, false); err == nil {
			inv.PaymentHash = hex.EncodeToString(b)
		}
	}
	if d, ok := fields[tagDescription]; ok {
		if b, err := bech32.ConvertBits(d, 5, 8, false); err == nil {
			inv.Description = string(b)
		}
	}
	if e, ok := fields[tagExpiry]; ok {
		inv.Expiry = time.Duration(bitsToUint(e)) * time.Second
	}

	return inv, nil
}

func parseHRP(hrp string) (network string, amountMsat uint64, err error) {
	rest := strings.TrimPrefix(hrp, "ln")
	for _, prefix := range []string{"bcrt", "bc", "tb", "sb"} {
		if strings.HasPrefix(rest, prefix) {
			network = prefix
			rest = strings.TrimPrefix(rest, prefix)
			break
		}
	}
	if network == "" {
		return "", 0, fmt.Errorf("lightning: unrecognized invoice network in hrp %q", hrp)
	}
	if rest == "" {
		return network, 0, nil
	}

	idx := len(rest)
	for i, r := range rest {
		if r < '0' || r > '9' {
			idx = i
			break
		}
	}
	digits, multiplier := rest[:idx], rest[idx:]
	if digits == "" {
		return network, 0, nil
	}
	amount, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("lightning: invalid amount in hrp %q: %w", hrp, err)
	}
	if multiplier == "" {
		return network, amount * 100_000_000_000, nil // whole BTC -> msat
	}
	fn, ok := multiplierToMsat[multiplier[0]]
	if !ok {
		return "", 0, fmt.Errorf("lightning: unknown amount multiplier %q", multiplier)
	}
	return network, fn(amount), nil
}

// parseTaggedFields walks the 5-bit-group tagged-field stream described
// in BOLT11: 1 group type, 2 groups (10 bits) length, length*5 bits data.
func parseTaggedFields(groups []byte) (map[int][]byte, error) {
	fields := make(map[int][]byte)
	i := 0
	for i+3 <= len(groups) {
		tag := int(groups[i])
		dataLen := int(groups[i+1])<<5 | int(groups[i+2])
		i += 3
		if i+dataLen > len(groups) {
			return nil, fmt.Errorf("lightning: truncated tagged field (tag %d)", tag)
		}
		fieldGroups := groups[i : i+dataLen]
		i += dataLen

		if _, exists := fields[tag]; exists {
			continue
		}
		fields[tag] = fieldGroups
	}
	return fields, nil
}

func bitsToUint(groups []byte) uint64 {
	var v uint64
	for _, g := range groups {
		v = v<<5 | uint64(g)
	}
	return v
}
