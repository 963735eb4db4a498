package invoke

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/overload"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() int     { return 42 }

func TestDefaultCodes(t *testing.T) {
	assert.Equal(t, 42, DefaultCodes.Code(codedErr{}))
	assert.Equal(t, int(codes.NotFound), DefaultCodes.Code(status.Error(codes.NotFound, "gone")))
	assert.Equal(t, int(syscall.ENOENT), DefaultCodes.Code(&wrapped{syscall.ENOENT}))
	assert.Equal(t, 1, DefaultCodes.Code(errors.New("plain")))
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }

func TestCallConvertsErrorOnce(t *testing.T) {
	iv := New(nil, nil)
	m := &overload.Match{Member: &descriptor.Member{
		Name: "Fail",
		Call: func(any, []any) (any, error) { return nil, errors.New("bad state") },
	}}
	_, err := iv.Call(context.Background(), nil, m)
	var fe *bridgeerr.ForeignInvocationError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Code)
	assert.Equal(t, "bad state", fe.Message)

	// A foreign error that crosses the boundary again keeps its identity.
	again := iv.convert("Outer", err)
	assert.Same(t, fe, again.(*bridgeerr.ForeignInvocationError))
}

func TestCallRecoversPanics(t *testing.T) {
	iv := New(CodeMapperFunc(func(error) int { return 7 }), nil)
	m := &overload.Match{Member: &descriptor.Member{
		Name: "Boom",
		Call: func(any, []any) (any, error) { panic("kaboom") },
	}}
	_, err := iv.Call(context.Background(), nil, m)
	var fe *bridgeerr.ForeignInvocationError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 7, fe.Code)
	assert.Contains(t, fe.Message, "kaboom")
}

func TestCallCollectsOutputs(t *testing.T) {
	iv := New(nil, nil)
	set := &descriptor.Ref{}
	unset := &descriptor.Ref{}
	m := &overload.Match{
		Member: &descriptor.Member{
			Name: "TryParse",
			Call: func(_ any, args []any) (any, error) {
				args[1].(*descriptor.Ref).Store(int64(99))
				return true, nil
			},
		},
		Args: []any{"99", set, unset},
		Refs: []overload.RefSlot{{Index: 1, Name: "result", Ref: set}, {Index: 2, Name: "unused", Ref: unset}},
	}
	out, err := iv.Call(context.Background(), nil, m)
	require.NoError(t, err)
	assert.Equal(t, true, out.Value)
	assert.Equal(t, []descriptor.Output{{Index: 1, Name: "result", Value: int64(99)}}, out.Outputs)
}

func TestCanceledContextStopsBeforeDispatch(t *testing.T) {
	iv := New(nil, nil)
	called := false
	m := &overload.Match{Member: &descriptor.Member{
		Name: "Work",
		Call: func(any, []any) (any, error) { called = true; return nil, nil },
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := iv.Call(ctx, nil, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestReadWrite(t *testing.T) {
	iv := New(nil, nil)
	store := map[string]any{}
	field := &descriptor.Member{
		Kind: descriptor.KindField,
		Name: "Size",
		Get:  func(any) (any, error) { return store["Size"], nil },
		Set:  func(_ any, v any) error { store["Size"] = v; return nil },
	}
	require.NoError(t, iv.Write(context.Background(), nil, field, 3))
	v, err := iv.Read(context.Background(), nil, field)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	ro := &descriptor.Member{Kind: descriptor.KindProperty, Name: "Len"}
	assert.ErrorIs(t, iv.Write(context.Background(), nil, ro, 1), bridgeerr.ErrArgument)
	_, err = iv.Read(context.Background(), nil, ro)
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestArgumentErrorsPassThrough(t *testing.T) {
	iv := New(nil, nil)
	_, err := iv.Late(context.Background(), "X", func() (any, []descriptor.Output, error) {
		return nil, nil, bridgeerr.NotFound("member", "X")
	})
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
	assert.NotErrorIs(t, err, bridgeerr.ErrForeign)
}
