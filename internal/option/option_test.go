package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
)

func testSet() *Set {
	return NewSet(
		Spec{Name: "-nocase", Kind: Flag},
		Spec{Name: "-pattern", Kind: Value},
		Spec{Name: "-limit", Kind: Int},
	)
}

func TestParse(t *testing.T) {
	bag, rest, err := testSet().Parse([]string{"-nocase", "-pattern", "Box*", "-limit", "3", "target", "-nocase"})
	require.NoError(t, err)
	assert.True(t, bag.Has("-nocase"))
	assert.Equal(t, "Box*", bag.StringOr("-pattern", ""))
	n, ok := bag.Int("-limit")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"target", "-nocase"}, rest)
}

func TestEndOfOptions(t *testing.T) {
	bag, rest, err := testSet().Parse([]string{"-nocase", "--", "-pattern"})
	require.NoError(t, err)
	assert.True(t, bag.Has("-nocase"))
	assert.False(t, bag.Has("-pattern"))
	assert.Equal(t, []string{"-pattern"}, rest)

	_, rest, err = testSet().Parse([]string{"-", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-", "x"}, rest)
}

func TestParseErrors(t *testing.T) {
	_, _, err := testSet().Parse([]string{"-bogus"})
	require.ErrorIs(t, err, bridgeerr.ErrArgument)
	assert.EqualError(t, err, `bad option "-bogus": must be -limit, -nocase or -pattern`)

	_, _, err = testSet().Parse([]string{"-pattern"})
	assert.ErrorContains(t, err, "not specified")

	_, _, err = testSet().Parse([]string{"-limit", "many"})
	assert.ErrorContains(t, err, "expected integer")
}

func TestMergeAndSet(t *testing.T) {
	s := Merge([]*Set{testSet()}, Flags("-force")...)
	assert.Equal(t, []string{"-force", "-limit", "-nocase", "-pattern"}, s.Names())

	var b Bag
	b.Set("-force", "")
	assert.True(t, b.Has("-force"))
}
