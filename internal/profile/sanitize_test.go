package profile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "Ama", SanitizeName("  <b>Ama</b> "))
	require.Equal(t, "O'Brien", SanitizeName("O'Brien"))
	require.Equal(t, "", SanitizeName("<script>alert(1)</script>"))
	require.Len(t, []rune(SanitizeName(strings.Repeat("é", 150))), maxNameLength)
}

func TestNormalizeLanguage(t *testing.T) {
	require.Equal(t, "en", NormalizeLanguage("EN"))
	require.Equal(t, "fr", NormalizeLanguage(""))
	require.Equal(t, "fr", NormalizeLanguage("de"))
}
