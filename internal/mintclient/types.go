package mintclient

// Wire types mirror the Cashu NUT wire format, grounded on the same
// shapes gonuts' cashu package uses (BlindedMessage/BlindedSignature,
// mint/melt quote state enums).

type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	B_     string `json:"B_"`
	ID     string `json:"id,omitempty"`
}

type BlindedSignature struct {
	Amount uint64 `json:"amount"`
	C_     string `json:"C_"`
	ID     string `json:"id"`
}

// Proof mirrors the data-model Proof, but in the mint's wire shape
// (unprefixed fields, no wallet scoping, no status).
type Proof struct {
	Amount  uint64  `json:"amount"`
	ID      string  `json:"id"`
	Secret  string  `json:"secret"`
	C       string  `json:"C"`
	DLEQ    *string `json:"dleq,omitempty"`
	Witness *string `json:"witness,omitempty"`
}

type MintQuoteState string

const (
	MintQuoteUnpaid MintQuoteState = "UNPAID"
	MintQuotePaid   MintQuoteState = "PAID"
	MintQuoteIssued MintQuoteState = "ISSUED"
)

type MeltQuoteState string

const (
	MeltQuoteUnpaid  MeltQuoteState = "UNPAID"
	MeltQuotePending MeltQuoteState = "PENDING"
	MeltQuotePaid    MeltQuoteState = "PAID"
)

type ProofState string

const (
	ProofStateUnspent ProofState = "UNSPENT"
	ProofStatePending ProofState = "PENDING"
	ProofStateSpent   ProofState = "SPENT"
)

type MintQuote struct {
	Quote   string         `json:"quote"`
	Request string         `json:"request"`
	Amount  uint64         `json:"amount"`
	State   MintQuoteState `json:"state"`
	Expiry  int64          `json:"expiry"`
}

type MeltQuote struct {
	Quote           string         `json:"quote"`
	Amount          uint64         `json:"amount"`
	FeeReserve      uint64         `json:"fee_reserve"`
	State           MeltQuoteState `json:"state"`
	Expiry          int64          `json:"expiry"`
	PaymentPreimage string         `json:"payment_preimage,omitempty"`
}

// OutputConfig encodes the NUT-11 P2PK locking request for a swap's
// "send" side; the "keep" side is never locked.
type OutputConfig struct {
	Send *P2PKOption `json:"send,omitempty"`
}

type P2PKOption struct {
	Type    string        `json:"type"`
	Options P2PKPubkeyOpt `json:"options"`
}

type P2PKPubkeyOpt struct {
	Pubkey string `json:"pubkey"`
}

// SwapResult is the mint's response to a swap. An input whose secret
// appears in neither bucket was consumed by the swap; an input the mint
// returned unchanged appears in Keep or Send with its original secret.
type SwapResult struct {
	Keep []Proof
	Send []Proof
}

// DecodedToken is the result of decoding a serialized Cashu TokenV3
// (TokenV4 decoding returns an error); the engine only needs the
// embedded proofs and mint URL.
type DecodedToken struct {
	Mint   string
	Unit   string
	Memo   string
	Proofs []Proof
}
