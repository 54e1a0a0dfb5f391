package mintclient

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// tokenV3 mirrors the Cashu TokenV3 JSON envelope (cashuA<base64url(json)>).
// TokenV4's CBOR envelope (cashuB<base64url(cbor)>) needs a CBOR codec this
// pack carries no dependency for; DecodeToken reports that limitation
// explicitly rather than guessing at a hand-rolled CBOR reader.
type tokenV3 struct {
	Token []tokenV3Entry `json:"token"`
	Unit  string         `json:"unit,omitempty"`
	Memo  string         `json:"memo,omitempty"`
}

type tokenV3Entry struct {
	Mint   string  `json:"mint"`
	Proofs []Proof `json:"proofs"`
}

const (
	tokenV3Prefix = "cashuA"
	tokenV4Prefix = "cashuB"
)

func decodeTokenV3(s string) (*DecodedToken, error) {
	raw := strings.TrimPrefix(s, tokenV3Prefix)
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		// some encoders pad; fall back to standard encoding
		if data2, err2 := base64.URLEncoding.DecodeString(raw); err2 == nil {
			data = data2
		} else {
			return nil, fmt.Errorf("mintclient: invalid TokenV3 base64: %w", err)
		}
	}

	var t tokenV3
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("mintclient: invalid TokenV3 json: %w", err)
	}
	if len(t.Token) == 0 {
		return nil, fmt.Errorf("mintclient: TokenV3 has no token entries")
	}

	var proofs []Proof
	for _, entry := range t.Token {
		proofs = append(proofs, entry.Proofs...)
	}

	return &DecodedToken{
		Mint:   t.Token[0].Mint,
		Unit:   t.Unit,
		Memo:   t.Memo,
		Proofs: proofs,
	}, nil
}

func encodeTokenV3(proofs []Proof, mintURL, unit, memo string) (string, error) {
	t := tokenV3{
		Token: []tokenV3Entry{{Mint: mintURL, Proofs: proofs}},
		Unit:  unit,
		Memo:  memo,
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return tokenV3Prefix + base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(s string) (*DecodedToken, error) {
	switch {
	case strings.HasPrefix(s, tokenV3Prefix):
		return decodeTokenV3(s)
	case strings.HasPrefix(s, tokenV4Prefix):
		return nil, fmt.Errorf("mintclient: TokenV4 (CBOR) decoding is not available in this build")
	default:
		return nil, fmt.Errorf("mintclient: unrecognized token prefix")
	}
}
