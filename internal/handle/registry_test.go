package handle

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
)

type box struct {
	closed int
}

func (b *box) Close() error {
	b.closed++
	return nil
}

var boxType = &descriptor.Type{Namespace: "demo", Name: "Box"}

func TestCreateNamesAndIdentity(t *testing.T) {
	r := NewRegistry()
	b := &box{}

	e1, err := r.Create(b, boxType, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Box#1", e1.Name)
	assert.NotEqual(t, e1.ID.String(), "")

	e2, err := r.Create(b, boxType, CreateOptions{Flags: FlagAutoDispose | FlagTemporary | FlagNoDispose})
	require.NoError(t, err)
	assert.Equal(t, e1.Name, e2.Name, "same pointer reuses the handle")
	assert.Zero(t, e2.Flags&CreationFlags, "creation flags stay off existing handles")
	assert.True(t, e2.Flags&FlagNoDispose != 0)

	e3, err := r.Create(&box{}, boxType, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Box#2", e3.Name)

	found, ok := r.FindValue(b)
	require.True(t, ok)
	assert.Equal(t, "Box#1", found.Name)
	assert.Equal(t, 2, r.Len())
}

func TestCreateExplicitName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(&box{}, boxType, CreateOptions{Name: "mybox"})
	require.NoError(t, err)

	_, err = r.Create(&box{}, boxType, CreateOptions{Name: "mybox"})
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestValuesWithoutIdentityGetFreshHandles(t *testing.T) {
	r := NewRegistry()
	a, err := r.Create(42, nil, CreateOptions{})
	require.NoError(t, err)
	b, err := r.Create(42, nil, CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Name, b.Name)
	assert.Equal(t, "int#1", a.Name)
}

func TestDisposeLifecycle(t *testing.T) {
	r := NewRegistry()
	b := &box{}
	e, err := r.Create(b, boxType, CreateOptions{})
	require.NoError(t, err)

	n, err := r.AddRef(e.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Dispose(e.Name, DisposeOptions{Synchronous: true})
	require.ErrorIs(t, err, bridgeerr.ErrLifecycle)
	_, ok := r.Lookup(e.Name)
	assert.True(t, ok, "referenced handle stays registered")

	n, err = r.ReleaseRef(e.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	st, err := r.Dispose(e.Name, DisposeOptions{Synchronous: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{Removed: 1, Disposed: 1}, st)
	assert.Equal(t, 1, b.closed)

	_, err = r.Get(e.Name)
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)

	st, err = r.Dispose(e.Name, DisposeOptions{})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestDisposeForceAndNoDispose(t *testing.T) {
	r := NewRegistry()
	b := &box{}
	e, _ := r.Create(b, boxType, CreateOptions{Flags: FlagLocked})
	_, _ = r.AddRef(e.Name)

	st, err := r.Dispose(e.Name, DisposeOptions{Force: true, NoDispose: true, Synchronous: true})
	require.NoError(t, err)
	assert.Equal(t, Stats{Removed: 1}, st)
	assert.Equal(t, 0, b.closed)
}

func TestReleaseRefNeverNegative(t *testing.T) {
	r := NewRegistry()
	e, _ := r.Create(&box{}, boxType, CreateOptions{})
	_, err := r.ReleaseRef(e.Name)
	assert.ErrorIs(t, err, bridgeerr.ErrLifecycle)
	n, err := r.RefCount(e.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReleaseRefAutoDispose(t *testing.T) {
	var removed []string
	r := NewRegistry(WithOnRemove(func(e Entry) { removed = append(removed, e.Name) }))
	b := &box{}
	e, _ := r.Create(b, boxType, CreateOptions{Flags: FlagAutoDispose})
	_, _ = r.AddRef(e.Name)
	_, err := r.ReleaseRef(e.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, []string{e.Name}, removed)
}

func TestCleanup(t *testing.T) {
	r := NewRegistry()
	for range 3 {
		_, err := r.Create(&box{}, boxType, CreateOptions{})
		require.NoError(t, err)
	}
	_, _ = r.Create(&box{}, &descriptor.Type{Name: "Other"}, CreateOptions{})
	_, _ = r.AddRef("Box#2")

	res, err := r.Cleanup(CleanupOptions{Pattern: "box#*", NoCase: true, Synchronous: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 2, res.Disposed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], bridgeerr.ErrLifecycle)

	names, err := r.Names("", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Box#2", "Other#4"}, names)

	_, err = r.Cleanup(CleanupOptions{Pattern: "Box#*", StopOnError: true})
	assert.ErrorIs(t, err, bridgeerr.ErrLifecycle)

	res, err = r.Cleanup(CleanupOptions{Pattern: "Box#*", MinRefCount: 1, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	require.NoError(t, r.Wait())
}

func TestCleanupNoRemoveCountsOnly(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Create(&box{}, boxType, CreateOptions{})
	res, err := r.Cleanup(CleanupOptions{NoRemove: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, r.Len())
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("boom") }

func TestAsyncReleaseErrorsSurfaceInWait(t *testing.T) {
	r := NewRegistry()
	fc := &failingCloser{}
	e, _ := r.Create(fc, nil, CreateOptions{})
	_, err := r.Dispose(e.Name, DisposeOptions{})
	require.NoError(t, err)
	assert.ErrorContains(t, r.Wait(), "boom")
	assert.NoError(t, r.Wait(), "errors are reported once")

	b := &box{}
	e, _ = r.Create(b, boxType, CreateOptions{})
	_, err = r.Dispose(e.Name, DisposeOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Wait())
	assert.Equal(t, 1, b.closed)
}

func TestAliasFlagIsSticky(t *testing.T) {
	r := NewRegistry()
	e, _ := r.Create(&box{}, boxType, CreateOptions{})
	require.NoError(t, r.SetAlias(e.Name, e.Name))
	require.NoError(t, r.ClearFlags(e.Name, FlagAlias|FlagNoDispose))
	require.NoError(t, r.SetAlias(e.Name, ""))
	got, _ := r.Lookup(e.Name)
	assert.True(t, got.Flags&FlagAlias != 0)
	assert.Empty(t, got.AliasName)
}

func TestConcurrentRefCounting(t *testing.T) {
	r := NewRegistry()
	e, _ := r.Create(&box{}, boxType, CreateOptions{})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.AddRef(e.Name)
		}()
	}
	wg.Wait()
	n, _ := r.RefCount(e.Name)
	assert.Equal(t, 50, n)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, name string
		nocase, want  bool
	}{
		{"", "anything", false, true},
		{"Box#*", "Box#12", false, true},
		{"box#*", "Box#12", false, false},
		{"box#*", "Box#12", true, true},
		{"Box#?", "Box#12", false, false},
	}
	for _, tt := range tests {
		got, err := Match(tt.pattern, tt.name, tt.nocase)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.pattern, tt.name)
	}
	_, err := Match("[", "x", false)
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}
