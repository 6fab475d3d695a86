package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenAndParseToken(t *testing.T) {
	claims := BuildClaims(time.Now().Add(time.Hour), "u-1", true)
	tok, err := GenToken(claims, "secret")
	require.NoError(t, err)

	got, err := ParseToken(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.True(t, got.IsOperator())

	_, err = ParseToken(tok, "other")
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	tok, err := GenToken(BuildClaims(time.Now().Add(-time.Minute), "u-1", false), "secret")
	require.NoError(t, err)
	_, err = ParseToken(tok, "secret")
	assert.Error(t, err)
}

func TestBlackListWithoutRedis(t *testing.T) {
	assert.False(t, IsInBlackList(context.Background(), "anything"))
}
