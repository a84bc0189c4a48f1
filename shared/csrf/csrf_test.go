package csrf

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token1, err := GenerateToken()
	require.NoError(t, err)
	token2, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, token1, token2)
	assert.Len(t, token1, TokenLength*2)

	raw, err := hex.DecodeString(token1)
	require.NoError(t, err)
	assert.Len(t, raw, TokenLength)
}

func TestValidateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	altered := []byte(token)
	if altered[0] == 'a' {
		altered[0] = 'b'
	} else {
		altered[0] = 'a'
	}

	tests := []struct {
		name         string
		cookieToken  string
		requestToken string
		want         bool
	}{
		{"matching tokens", token, token, true},
		{"same length altered", token, string(altered), false},
		{"shorter token", token, token[:10], false},
		{"longer token", token, token + "00", false},
		{"very long token", token, strings.Repeat("f", 4096), false},
		{"empty cookie", "", token, false},
		{"empty request", token, "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateToken(tt.cookieToken, tt.requestToken))
		})
	}
}
