package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"11111111111111111111111111111111",
		TokenProgramID,
		"So11111111111111111111111111111111111111112",
		"SysvarRent111111111111111111111111111111111",
	}
	for _, addr := range valid {
		assert.True(t, ValidateAddress(addr), addr)
	}

	invalid := []string{
		"",
		"short",
		"0x742d35Cc6634C0532925a3b844Bc454e4438f44e",       // EVM hex, '0' not in alphabet
		"OIl1111111111111111111111111111111",               // ambiguous characters
		"So11111111111111111111111111111111111111112Extra", // > 44 chars
		"1111111111111111111111111111111111111111",         // decodes to 40 bytes
	}
	for _, addr := range invalid {
		assert.False(t, ValidateAddress(addr), addr)
	}
}
