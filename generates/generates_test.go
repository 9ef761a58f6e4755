package generates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessGenerate(t *testing.T) {
	data := Basic{ApplicationID: "app", UserID: "user", CreateAt: time.Now()}

	access, refresh := NewAccessGenerate().Token(data, true)
	require.GreaterOrEqual(t, len(access), MinLength)
	require.GreaterOrEqual(t, len(refresh), MinLength)
	require.NotEqual(t, access, refresh)

	access2, refresh2 := NewAccessGenerate().Token(data, false)
	require.NotEqual(t, access, access2)
	require.Empty(t, refresh2)
}

func TestAuthorizeGenerateUnique(t *testing.T) {
	data := Basic{ApplicationID: "app", UserID: "user", CreateAt: time.Unix(1700000000, 0)}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewAuthorizeGenerate().Token(data)
		require.GreaterOrEqual(t, len(code), MinLength)
		require.False(t, seen[code])
		seen[code] = true
	}
}

func TestSecretHash(t *testing.T) {
	secret, err := ClientSecret()
	require.NoError(t, err)

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	require.Regexp(t, `^scrypt\$[A-Za-z0-9_-]{43}\$[0-9a-f]{64}$`, hash)

	require.True(t, CompareSecret(hash, secret))
	require.False(t, CompareSecret(hash, secret+"x"))
	require.False(t, CompareSecret("plain", secret))

	other, err := HashSecret(secret)
	require.NoError(t, err)
	require.NotEqual(t, hash, other)
}
