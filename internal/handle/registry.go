// Package handle owns the live foreign values a script can refer to by name.
//
// A Registry maps opaque handle names to entries carrying the value, its
// type descriptor, lifecycle flags and a reference count. All bookkeeping is
// serialized by a single mutex; values are released outside of it.
package handle

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/logging"
)

// Flags describe how a handle is treated by the lifecycle operations.
type Flags uint16

const (
	// FlagAlias marks a handle with a forwarding command. Once set it stays
	// set for the life of the handle.
	FlagAlias Flags = 1 << iota
	// FlagNoDispose keeps the value alive when the handle is removed.
	FlagNoDispose
	// FlagAutoDispose removes the handle when its reference count drops to zero.
	FlagAutoDispose
	// FlagPackage marks handles created on behalf of a package or provider.
	FlagPackage
	// FlagLocked handles can only be removed with force.
	FlagLocked
	// FlagTemporary marks handles minted for a single loop iteration.
	FlagTemporary
)

// CreationFlags only apply to handles a call creates; they are never
// merged into an entry that already exists.
const CreationFlags = FlagAutoDispose | FlagTemporary

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagAlias, "alias"},
	{FlagNoDispose, "nodispose"},
	{FlagAutoDispose, "autodispose"},
	{FlagPackage, "package"},
	{FlagLocked, "locked"},
	{FlagTemporary, "temporary"},
}

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Entry is a registered handle. Values returned by the registry are
// snapshots; mutate through the Registry methods.
type Entry struct {
	Name      string
	ID        uuid.UUID
	Value     any
	Type      *descriptor.Type
	Flags     Flags
	RefCount  int
	AliasName string
	Created   time.Time
}

// TypeName is the full name of the entry's type, or the Go type when the
// value has no descriptor.
func (e Entry) TypeName() string {
	if e.Type != nil {
		return e.Type.FullName()
	}
	if e.Value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", e.Value)
}

type identityKey struct {
	typ reflect.Type
	ptr uintptr
}

// Registry is the handle table of one session.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	identity map[identityKey]string
	seq      uint64

	logger   *log.Logger
	onRemove func(Entry)

	// async collects background releases until the next Wait.
	asyncMu sync.Mutex
	async   *errgroup.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = logging.Component(l, "registry") }
}

// WithOnRemove installs a hook called after a handle leaves the registry.
// The hook runs without the registry lock held and may call back into it.
func WithOnRemove(fn func(Entry)) Option {
	return func(r *Registry) { r.onRemove = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]*Entry),
		identity: make(map[identityKey]string),
		logger:   logging.Component(nil, "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOptions controls Create.
type CreateOptions struct {
	// Name is an explicit handle name; empty generates "<Type>#<n>".
	Name  string
	Flags Flags
}

// Create registers v under a new handle. Pointer-like values that are
// already registered are not registered twice: the existing entry is
// returned with the requested flags, minus CreationFlags, merged in.
func (r *Registry) Create(v any, typ *descriptor.Type, opts CreateOptions) (Entry, error) {
	key, hasKey := identityOf(v)

	r.mu.Lock()
	defer r.mu.Unlock()

	if hasKey {
		if name, ok := r.identity[key]; ok && (opts.Name == "" || opts.Name == name) {
			e := r.entries[name]
			e.Flags |= opts.Flags &^ CreationFlags
			return *e, nil
		}
	}

	name := opts.Name
	if name == "" {
		r.seq++
		name = fmt.Sprintf("%s%s%d", baseName(v, typ), config.HandleSeparator, r.seq)
	} else if _, exists := r.entries[name]; exists {
		return Entry{}, bridgeerr.Argument("object named %q already exists", name)
	}

	e := &Entry{
		Name:    name,
		ID:      uuid.New(),
		Value:   v,
		Type:    typ,
		Flags:   opts.Flags,
		Created: time.Now(),
	}
	r.entries[name] = e
	if hasKey {
		r.identity[key] = name
	}
	r.logger.Debug("handle created", "name", name, "type", e.TypeName(), "flags", e.Flags)
	return *e, nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Get is Lookup returning a NotFoundError for absent handles.
func (r *Registry) Get(name string) (Entry, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return Entry{}, bridgeerr.NotFound("object", name)
	}
	return e, nil
}

// FindValue returns the entry already holding v, if v has identity.
func (r *Registry) FindValue(v any) (Entry, bool) {
	key, ok := identityOf(v)
	if !ok {
		return Entry{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.identity[key]
	if !ok {
		return Entry{}, false
	}
	return *r.entries[name], true
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Names returns the sorted names matching a glob pattern; an empty pattern
// matches everything.
func (r *Registry) Names(pattern string, nocase bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name := range r.entries {
		ok, err := Match(pattern, name, nocase)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SetFlags adds flags to a handle.
func (r *Registry) SetFlags(name string, flags Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return bridgeerr.NotFound("object", name)
	}
	e.Flags |= flags
	return nil
}

// ClearFlags removes flags from a handle. The alias flag is sticky and is
// never cleared.
func (r *Registry) ClearFlags(name string, flags Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return bridgeerr.NotFound("object", name)
	}
	e.Flags &^= flags &^ FlagAlias
	return nil
}

// SetAlias records the forwarding command of a handle. An empty command
// detaches the command but keeps the alias flag.
func (r *Registry) SetAlias(name, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return bridgeerr.NotFound("object", name)
	}
	e.AliasName = command
	if command != "" {
		e.Flags |= FlagAlias
	}
	return nil
}

// AddRef increments the reference count and returns the new value.
func (r *Registry) AddRef(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, bridgeerr.NotFound("object", name)
	}
	e.RefCount++
	return e.RefCount, nil
}

// ReleaseRef decrements the reference count and returns the new value. When
// the count of an auto-dispose handle reaches zero the handle is disposed.
func (r *Registry) ReleaseRef(name string) (int, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return 0, bridgeerr.NotFound("object", name)
	}
	if e.RefCount == 0 {
		r.mu.Unlock()
		return 0, &bridgeerr.LifecycleError{Handle: name, Msg: "reference count is already zero"}
	}
	e.RefCount--
	count := e.RefCount
	var removed *Entry
	if count == 0 && e.Flags&FlagAutoDispose != 0 {
		removed = r.removeLocked(name)
	}
	r.mu.Unlock()

	if removed != nil {
		r.finish(*removed, false, true)
	}
	return count, nil
}

// RefCount returns the reference count of a handle.
func (r *Registry) RefCount(name string) (int, error) {
	e, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	return e.RefCount, nil
}

// Stats counts the outcome of a removal.
type Stats struct {
	Removed  int
	Disposed int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Removed += other.Removed
	s.Disposed += other.Disposed
}

// DisposeOptions controls Dispose.
type DisposeOptions struct {
	// Force removes referenced or locked handles.
	Force bool
	// NoDispose removes the handle but leaves the value alone.
	NoDispose bool
	// Synchronous releases the value before returning. Otherwise release
	// happens on a background goroutine joined by Wait.
	Synchronous bool
}

// Dispose removes a handle and releases its value. An absent handle is not
// an error and reports zero counts.
func (r *Registry) Dispose(name string, opts DisposeOptions) (Stats, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return Stats{}, nil
	}
	if err := checkRemovable(e, opts.Force); err != nil {
		r.mu.Unlock()
		return Stats{}, err
	}
	removed := r.removeLocked(name)
	r.mu.Unlock()

	disposed := r.finish(*removed, opts.NoDispose, opts.Synchronous)
	st := Stats{Removed: 1}
	if disposed {
		st.Disposed = 1
	}
	return st, nil
}

// CleanupOptions controls Cleanup.
type CleanupOptions struct {
	// Pattern is a glob over handle names; empty matches all.
	Pattern string
	NoCase  bool
	// MinRefCount selects handles whose reference count is at least this.
	MinRefCount int
	// Force removes referenced and locked handles.
	Force bool
	// NoRemove only counts what would be removed.
	NoRemove    bool
	NoDispose   bool
	Synchronous bool
	// StopOnError aborts at the first handle that cannot be removed.
	StopOnError bool
}

// CleanupResult reports a Cleanup batch.
type CleanupResult struct {
	Stats
	Skipped int
	Errors  []error
}

// Cleanup removes every handle selected by opts, in sorted name order.
func (r *Registry) Cleanup(opts CleanupOptions) (CleanupResult, error) {
	names, err := r.Names(opts.Pattern, opts.NoCase)
	if err != nil {
		return CleanupResult{}, err
	}

	var res CleanupResult
	for _, name := range names {
		r.mu.Lock()
		e, ok := r.entries[name]
		if !ok || e.RefCount < opts.MinRefCount {
			r.mu.Unlock()
			continue
		}
		if err := checkRemovable(e, opts.Force); err != nil {
			r.mu.Unlock()
			if opts.StopOnError {
				return res, err
			}
			res.Skipped++
			res.Errors = append(res.Errors, err)
			continue
		}
		if opts.NoRemove {
			r.mu.Unlock()
			res.Removed++
			continue
		}
		removed := r.removeLocked(name)
		r.mu.Unlock()

		res.Removed++
		if r.finish(*removed, opts.NoDispose, opts.Synchronous) {
			res.Disposed++
		}
	}
	r.logger.Debug("cleanup", "pattern", opts.Pattern, "removed", res.Removed, "disposed", res.Disposed, "skipped", res.Skipped)
	return res, nil
}

// Wait blocks until values released in the background have been released
// and returns the first release error since the previous Wait.
func (r *Registry) Wait() error {
	r.asyncMu.Lock()
	g := r.async
	r.async = nil
	r.asyncMu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

func checkRemovable(e *Entry, force bool) error {
	if force {
		return nil
	}
	if e.RefCount > 0 {
		return &bridgeerr.LifecycleError{Handle: e.Name, RefCount: e.RefCount,
			Msg: fmt.Sprintf("still has %d reference(s)", e.RefCount)}
	}
	if e.Flags&FlagLocked != 0 {
		return &bridgeerr.LifecycleError{Handle: e.Name, Msg: "is locked"}
	}
	return nil
}

func (r *Registry) removeLocked(name string) *Entry {
	e := r.entries[name]
	delete(r.entries, name)
	if key, ok := identityOf(e.Value); ok && r.identity[key] == name {
		delete(r.identity, key)
	}
	return e
}

// finish releases the value of a removed entry and runs the removal hook.
// It reports whether the value is (or will be) released.
func (r *Registry) finish(e Entry, noDispose, synchronous bool) bool {
	if r.onRemove != nil {
		r.onRemove(e)
	}
	if noDispose || e.Flags&FlagNoDispose != 0 || !Disposable(e.Value) {
		r.logger.Debug("handle removed", "name", e.Name)
		return false
	}
	if synchronous {
		if err := Release(e.Value); err != nil {
			r.logger.Warn("release failed", "name", e.Name, "err", err)
		}
	} else {
		r.asyncMu.Lock()
		if r.async == nil {
			r.async = new(errgroup.Group)
		}
		r.async.Go(func() error {
			if err := Release(e.Value); err != nil {
				return fmt.Errorf("releasing %s: %w", e.Name, err)
			}
			return nil
		})
		r.asyncMu.Unlock()
	}
	r.logger.Debug("handle disposed", "name", e.Name, "synchronous", synchronous)
	return true
}

// identityOf returns a key for values whose identity survives copying.
// Funcs are left out: distinct closures may share a code pointer.
func identityOf(v any) (identityKey, bool) {
	if v == nil {
		return identityKey{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			return identityKey{}, false
		}
		return identityKey{typ: rv.Type(), ptr: rv.Pointer()}, true
	}
	return identityKey{}, false
}

func baseName(v any, typ *descriptor.Type) string {
	if typ != nil && typ.Name != "" {
		return typ.Name
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "object"
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.Kind().String()
}

// Match reports whether name matches a glob pattern. An empty pattern
// matches everything.
func Match(pattern, name string, nocase bool) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	if nocase {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false, bridgeerr.Argument("bad pattern %q: %v", pattern, err)
	}
	return ok, nil
}
