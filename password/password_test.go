package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndVerify(t *testing.T) {
	h, err := HashWith("correct horse 1", fastParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(h, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := Verify(h, "correct horse 1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(h, "correct horse 2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, err := HashWith("same-password-1", fastParams)
	require.NoError(t, err)
	b, err := HashWith("same-password-1", fastParams)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyBcryptLegacy(t *testing.T) {
	b, err := bcrypt.GenerateFromPassword([]byte("legacy-pass-9"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := Verify(string(b), "legacy-pass-9")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Verify(string(b), "nope-nope-9")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, NeedsRehash(string(b)))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := Verify("$argon2id$v=19$broken", "x")
	require.ErrorIs(t, err, ErrInvalidHash)

	_, err = Verify("plain", "x")
	require.ErrorIs(t, err, ErrUnsupportedAlg)

	ok, err := Verify("", "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		pw   string
		want error
	}{
		{"short1", ErrTooShort},
		{strings.Repeat("a1", 65), ErrTooLong},
		{"onlyletters", ErrTooSimple},
		{"12345678", ErrTooSimple},
		{"letters-and-1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.pw, func(t *testing.T) {
			err := Validate(tc.pw)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
