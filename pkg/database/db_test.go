package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"untouched", Config{DSN: "postgres://u@h/db"}, "postgres://u@h/db"},
		{
			"url",
			Config{DSN: "postgres://u@h/db?sslmode=disable", TimeZone: "Africa/Accra", ClientEncoding: "UTF8"},
			"postgres://u@h/db?client_encoding=UTF8&sslmode=disable&timezone=Africa%2FAccra",
		},
		{
			"key value",
			Config{DSN: "host=h dbname=db ", TimeZone: "O'Brien"},
			`host=h dbname=db timezone='O\'Brien'`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sessionDSN(tc.cfg)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSessionDSNRejectsBadURL(t *testing.T) {
	_, err := sessionDSN(Config{DSN: "postgres://u@h:bad/db", TimeZone: "UTC"})
	require.Error(t, err)
}
