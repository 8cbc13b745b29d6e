package solana

import "encoding/json"

const (
	LamportsPerSOL = 1_000_000_000

	// TokenProgramID is the SPL Token program.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	DefaultSignatureLimit = 10
	MaxSignatureLimit     = 1000
)

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature          string          `json:"signature"`
	Slot               uint64          `json:"slot"`
	Err                json.RawMessage `json:"err"`
	Memo               *string         `json:"memo"`
	BlockTime          *int64          `json:"blockTime"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
}

// Failed reports whether the transaction behind the signature errored.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Transaction is the getTransaction result; inner payloads stay raw.
type Transaction struct {
	Slot        uint64          `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Version     json.RawMessage `json:"version,omitempty"`
	Meta        json.RawMessage `json:"meta"`
	Transaction json.RawMessage `json:"transaction"`
}

// TokenAccount is one jsonParsed entry of getTokenAccountsByOwner.
type TokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Lamports uint64 `json:"lamports"`
		Owner    string `json:"owner"`
		Data     struct {
			Program string `json:"program"`
			Parsed  struct {
				Info struct {
					Mint        string `json:"mint"`
					Owner       string `json:"owner"`
					TokenAmount struct {
						Amount         string   `json:"amount"`
						Decimals       int      `json:"decimals"`
						UIAmount       *float64 `json:"uiAmount"`
						UIAmountString string   `json:"uiAmountString"`
					} `json:"tokenAmount"`
				} `json:"info"`
				Type string `json:"type"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

type contextual[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *T `json:"value"`
}
