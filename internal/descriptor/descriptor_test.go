package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemberKind(t *testing.T) {
	k, err := ParseMemberKind("Field|method")
	require.NoError(t, err)
	assert.Equal(t, KindField|KindMethod, k)
	assert.Equal(t, "Field|Method", k.String())

	k, err = ParseMemberKind("All")
	require.NoError(t, err)
	assert.Equal(t, KindAll, k)

	_, err = ParseMemberKind("Event")
	assert.Error(t, err)
}

func TestBindingMatches(t *testing.T) {
	assert.True(t, BindDefault.Matches(true, true))
	assert.True(t, BindDefault.Matches(false, true))
	assert.False(t, BindDefault.Matches(false, false))
	assert.False(t, (BindInstance | BindPublic).Matches(true, true))

	b, err := ParseBinding("Instance, NonPublic")
	require.NoError(t, err)
	assert.Equal(t, BindInstance|BindNonPublic, b)
}

func TestEnumParseAndFormat(t *testing.T) {
	perm := &Enum{Name: "Perm", Flags: true, Values: []EnumValue{
		{"None", 0}, {"Read", 1}, {"Write", 2}, {"Exec", 4},
	}}
	v, err := perm.Parse("Read|write")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	v, err = perm.Parse("Read Exec")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	v, err = perm.Parse("0x6")
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)
	assert.Equal(t, "Read|Write", perm.Format(3))
	assert.Equal(t, "None", perm.Format(0))
	assert.Equal(t, "Read|8", perm.Format(9))

	_, err = perm.Parse("Delete")
	assert.ErrorContains(t, err, "must be None, Read, Write, Exec")

	color := &Enum{Name: "Color", Values: []EnumValue{{"Red", 0}, {"Green", 1}}}
	_, err = color.Parse("Red|Green")
	assert.Error(t, err)
	assert.Equal(t, "7", color.Format(7))
}

func TestPropertyAccessors(t *testing.T) {
	store := map[string]any{}
	prop := &Member{
		Kind: KindProperty, Name: "Capacity", Type: TypeRef{Kind: ValueInt, Name: "int"},
		Get: func(any) (any, error) { return store["cap"], nil },
		Set: func(_ any, v any) error { store["cap"] = v; return nil },
	}
	acc := prop.Accessors()
	require.Len(t, acc, 2)
	assert.Empty(t, acc[0].Params)
	require.Len(t, acc[1].Params, 1)

	_, err := acc[1].Call(nil, []any{int64(4)})
	require.NoError(t, err)
	got, err := acc[0].Call(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
	assert.Equal(t, "Capacity int", prop.Signature())
}

func TestFinalizeNumbersGroups(t *testing.T) {
	typ := &Type{Namespace: "demo", Name: "Box", Members: []*Member{
		{Kind: KindMethod, Name: "Do"},
		{Kind: KindMethod, Name: "Len"},
		{Kind: KindMethod, Name: "Do"},
	}}
	typ.Finalize()
	assert.Equal(t, 0, typ.Members[0].Group)
	assert.Equal(t, 1, typ.Members[2].Group)
	assert.Equal(t, "demo.Box", typ.Members[1].DeclaringType)
}
