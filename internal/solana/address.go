package solana

import (
	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	minAddressLen = 32
	maxAddressLen = 44
	pubkeyLen     = 32
)

// ValidateAddress 校验 base58 编码的 32 字节公钥
func ValidateAddress(address string) bool {
	if len(address) < minAddressLen || len(address) > maxAddressLen {
		return false
	}
	// base58.Decode returns an empty slice on invalid characters
	return len(base58.Decode(address)) == pubkeyLen
}
