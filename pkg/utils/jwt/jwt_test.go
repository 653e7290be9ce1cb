package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("secret", time.Hour)

	token, err := m.GenerateToken(7, "ana@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewManager("secret", time.Hour)
	other := NewManager("other-secret", time.Hour)

	token, err := other.GenerateToken(7, "ana@example.com")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	expired := NewManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err = expired.GenerateToken(7, "ana@example.com")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}
