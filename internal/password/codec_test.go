package password

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCodecHashVerify(t *testing.T) {
	c := NewCodec(bcrypt.MinCost)

	hash, algo, err := c.Hash("Aa1!aaaa")
	require.NoError(t, err)
	require.Equal(t, "bcrypt:4", algo)
	require.True(t, c.Verify("Aa1!aaaa", hash))
	require.False(t, c.Verify("Aa1!aaab", hash))
}

func TestCodecRejectsEmptySecret(t *testing.T) {
	_, _, err := NewCodec(bcrypt.MinCost).Hash("")
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestCodecVerifyMalformedHash(t *testing.T) {
	c := NewCodec(bcrypt.MinCost)
	require.False(t, c.Verify("secret", ""))
	require.False(t, c.Verify("secret", "not-a-bcrypt-hash"))
}

func TestNewCodecFallsBackToDefaultCost(t *testing.T) {
	require.Equal(t, DefaultCost, NewCodec(0).Cost)
	require.Equal(t, DefaultCost, NewCodec(99).Cost)
}

func TestGenerateRandomSecret(t *testing.T) {
	a, err := GenerateRandomSecret()
	require.NoError(t, err)
	b, err := GenerateRandomSecret()
	require.NoError(t, err)
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}

func TestValidateStrength(t *testing.T) {
	cases := []struct {
		pw   string
		want error
	}{
		{"Aa1!aaaa", nil},
		{"Aa1!", ErrTooShort},
		{"aa1!aaaa", ErrNoUpper},
		{"AA1!AAAA", ErrNoLower},
		{"Aa!!aaaa", ErrNoDigit},
		{"Aa1aaaaa", ErrNoSpecial},
		{"Aa1 aaaa", nil},
		{"Aa1!" + strings.Repeat("a", 68), nil},
		{"Aa1!" + strings.Repeat("a", 69), ErrTooLong},
		{"Aa1!" + strings.Repeat("é", 35), ErrTooLong},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%.12s/%d", tc.pw, len(tc.pw)), func(t *testing.T) {
			err := ValidateStrength(tc.pw)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
