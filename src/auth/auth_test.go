package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken(t *testing.T) {
	token := GenerateToken()

	hashed, err := HashToken(token)
	require.Nil(t, err)
	assert.Equal(t, Argon2id, hashed.Algorithm)
	assert.Equal(t, "t=1,m=40960,p=1,l=64", hashed.AlgoConfig)

	parsed, err := ParseHashedToken(hashed.String())
	require.Nil(t, err)
	assert.Equal(t, hashed, parsed)

	ok, err := CheckToken(token, parsed)
	require.Nil(t, err)
	assert.True(t, ok)

	ok, err = CheckToken(token+"x", parsed)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestHashTokenTooShort(t *testing.T) {
	_, err := HashToken("hunter2")
	assert.ErrorIs(t, err, ErrTokenTooShort)
}

func TestParseHashedToken(t *testing.T) {
	_, err := ParseHashedToken("argon2id$t=1")
	assert.NotNil(t, err)

	_, err = CheckToken("x", HashedToken{Algorithm: "md5", AlgoConfig: "", Salt: "", Hash: ""})
	assert.ErrorContains(t, err, "unrecognized token hash algorithm")
}

func TestParseArgon2idConfig(t *testing.T) {
	cfg, err := ParseArgon2idConfig("t=3,m=65536,p=4,l=32")
	require.Nil(t, err)
	assert.Equal(t, Argon2idConfig{Time: 3, Memory: 65536, Threads: 4, KeyLength: 32}, cfg)
	assert.Equal(t, "t=3,m=65536,p=4,l=32", cfg.String())

	_, err = ParseArgon2idConfig("t=3,m=65536,p=4")
	assert.NotNil(t, err)
	_, err = ParseArgon2idConfig("t=3,m=lots,p=4,l=32")
	assert.NotNil(t, err)
	_, err = ParseArgon2idConfig("t=3,m=1,p=300,l=32")
	assert.NotNil(t, err)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc123")
	require.Nil(t, err)
	assert.Equal(t, "abc123", token)

	token, err = BearerToken("bearer   abc123 ")
	require.Nil(t, err)
	assert.Equal(t, "abc123", token)

	for _, bad := range []string{"", "Bearer", "Bearer  ", "Basic dXNlcjpwYXNz", "abc123"} {
		_, err := BearerToken(bad)
		assert.ErrorIs(t, err, ErrNoBearerToken, bad)
	}
}
