package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bhavikpatel576/timely/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), ID: 1234}
	token := EncodeCursor(in)
	require.NotEmpty(t, token)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, in.Timestamp.Equal(out.Timestamp))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)

	for _, token := range []string{"%%%", rawToken("no-separator"), rawToken("2026-03-01T00:00:00Z|abc")} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, domain.ErrValidation, token)
	}
	require.Empty(t, EncodeCursor(nil))
}

func rawToken(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
