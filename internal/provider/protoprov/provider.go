// Package protoprov publishes protobuf messages and gRPC services as foreign
// types.
//
// Messages parsed from .proto files become types whose fields are the
// message fields and whose values are dynamic messages. Each service gets a
// client type (GreeterClient for service Greeter) with one method per unary
// RPC; calls go over a grpc.ClientConn.
package protoprov

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"

	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

// Provider holds the types of every loaded .proto file.
type Provider struct {
	logger *log.Logger

	mu     sync.RWMutex
	files  map[string]*desc.FileDescriptor
	types  []*descriptor.Type
	byName map[string]*descriptor.Type
	enums  map[string]*descriptor.Enum
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		files:  make(map[string]*desc.FileDescriptor),
		byName: make(map[string]*descriptor.Type),
		enums:  make(map[string]*descriptor.Enum),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	p.logger = logging.Component(p.logger, "protoprov")
	return p
}

func (p *Provider) Name() string { return "proto" }

func (p *Provider) Types() []*descriptor.Type {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.types)
}

// TypeOf recognizes dynamic messages and service clients.
func (p *Provider) TypeOf(v any) *descriptor.Type {
	var name string
	switch x := v.(type) {
	case *dynamic.Message:
		if x == nil {
			return nil
		}
		name = x.GetMessageDescriptor().GetFullyQualifiedName()
	case *Client:
		if x == nil {
			return nil
		}
		name = clientTypeName(x.service)
	default:
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byName[name]
}

// LoadFiles parses .proto files from disk and publishes their types.
func (p *Provider) LoadFiles(importPaths []string, files ...string) error {
	parser := protoparse.Parser{ImportPaths: importPaths}
	fds, err := parser.ParseFiles(files...)
	if err != nil {
		return fmt.Errorf("parse proto: %w", err)
	}
	p.register(fds)
	return nil
}

// LoadSource parses in-memory .proto sources keyed by file name.
func (p *Provider) LoadSource(sources map[string]string) error {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)
	parser := protoparse.Parser{Accessor: protoparse.FileContentsFromMap(sources)}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return fmt.Errorf("parse proto: %w", err)
	}
	p.register(fds)
	return nil
}

// Message returns the descriptor of a loaded message.
func (p *Provider) Message(fqn string) (*desc.MessageDescriptor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fd := range p.files {
		if md := fd.FindMessage(fqn); md != nil {
			return md, nil
		}
	}
	return nil, fmt.Errorf("message %q is not loaded", fqn)
}

// Service returns the descriptor of a loaded service.
func (p *Provider) Service(fqn string) (*desc.ServiceDescriptor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fd := range p.files {
		if sd := fd.FindService(fqn); sd != nil {
			return sd, nil
		}
	}
	return nil, fmt.Errorf("service %q is not loaded", fqn)
}

func (p *Provider) register(fds []*desc.FileDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fd := range fds {
		p.registerFile(fd)
	}
}

func (p *Provider) registerFile(fd *desc.FileDescriptor) {
	if _, ok := p.files[fd.GetName()]; ok {
		return
	}
	p.files[fd.GetName()] = fd
	for _, dep := range fd.GetDependencies() {
		p.registerFile(dep)
	}

	pkg := fd.GetPackage()
	for _, ed := range fd.GetEnumTypes() {
		p.addEnum(pkg, ed)
	}
	for _, md := range fd.GetMessageTypes() {
		p.addMessage(pkg, md)
	}
	for _, sd := range fd.GetServices() {
		p.addService(pkg, sd)
	}
	p.logger.Debug("proto file loaded", "file", fd.GetName(), "package", pkg,
		"messages", len(fd.GetMessageTypes()), "services", len(fd.GetServices()))
}

func (p *Provider) add(t *descriptor.Type) {
	t.Finalize()
	p.types = append(p.types, t)
	p.byName[t.FullName()] = t
}

func (p *Provider) addEnum(pkg string, ed *desc.EnumDescriptor) {
	enum := p.enumTable(ed)
	p.add(&descriptor.Type{
		Namespace: pkg,
		Name:      localName(pkg, ed.GetFullyQualifiedName()),
		Enum:      enum,
		Accepts: func(v any) bool {
			n, ok := v.(int32)
			return ok && ed.FindValueByNumber(n) != nil
		},
	})
}

// enumTable builds (once) the value table of a proto enum.
func (p *Provider) enumTable(ed *desc.EnumDescriptor) *descriptor.Enum {
	if e, ok := p.enums[ed.GetFullyQualifiedName()]; ok {
		return e
	}
	e := &descriptor.Enum{Name: ed.GetName()}
	for _, v := range ed.GetValues() {
		e.Values = append(e.Values, descriptor.EnumValue{Name: v.GetName(), Value: int64(v.GetNumber())})
	}
	p.enums[ed.GetFullyQualifiedName()] = e
	return e
}

func localName(pkg, fqn string) string {
	if pkg == "" {
		return fqn
	}
	return strings.TrimPrefix(fqn, pkg+".")
}

func clientTypeName(sd *desc.ServiceDescriptor) string {
	return sd.GetFullyQualifiedName() + "Client"
}
