package dto

type CreateWalletRequest struct {
	Name  *string `json:"name,omitempty"`
	Token *string `json:"token,omitempty"`
}

type DepositRequest struct {
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
}

type SendRequest struct {
	Amount       int64   `json:"amount"`
	Unit         string  `json:"unit"`
	Memo         *string `json:"memo,omitempty"`
	LockToPubkey *string `json:"lock_to_pubkey,omitempty"`
	CashuRequest *string `json:"cashu_request,omitempty"`
}

type CheckRequest struct {
	Token string `json:"token"`
}

type DecodeRequest struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

const (
	DecodeTypeTokenV3     = "CASHU_TOKEN_V3"
	DecodeTypeTokenV4     = "CASHU_TOKEN_V4"
	DecodeTypeBolt11      = "BOLT11_REQUEST"
	DecodeTypeCashuReqest = "CASHU_REQUEST"
)

type PayRequest struct {
	Bolt11Request    *string `json:"bolt11_request,omitempty"`
	LightningAddress *string `json:"lightning_address,omitempty"`
	Amount           int64   `json:"amount"`
	Unit             string  `json:"unit"`
}

type ReceiveRequest struct {
	Token string `json:"token"`
}
