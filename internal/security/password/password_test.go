package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	phc, err := Hash(Fast, "Temp123!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(phc, "$argon2id$v=19$m=1024,t=1,p=1$"))
	require.True(t, Verify("Temp123!", phc))
	require.False(t, Verify("temp123!", phc))
}

func TestHash_SaltDiffers(t *testing.T) {
	a, err := Hash(Fast, "x")
	require.NoError(t, err)
	b, err := Hash(Fast, "x")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHash_Empty(t *testing.T) {
	_, err := Hash(Fast, "")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestVerify_Malformed(t *testing.T) {
	require.False(t, Verify("x", ""))
	require.False(t, Verify("x", "$bcrypt$abc"))
	require.False(t, Verify("x", "$argon2id$v=19$m=a,t=1,p=1$AAAA$BBBB"))
}

func TestPolicy(t *testing.T) {
	require.NoError(t, TempPolicy.Check("Temp123!"))
	require.Empty(t, TempPolicy.Violations("Temp123!"))

	require.Equal(t, []string{"too_short"}, TempPolicy.Violations("abc"))
	require.Equal(t, []string{"surrounding_space"}, TempPolicy.Violations(" Temp123!"))
	require.Equal(t, []string{"too_long"}, TempPolicy.Violations(strings.Repeat("a", 73)))

	strict := Policy{MinLength: 8, MinClasses: 3}
	require.ElementsMatch(t, []string{"too_short", "few_classes"}, strict.Violations("abc1"))
	require.EqualError(t, strict.Check("abcdefgh"), "password: few_classes")
}
