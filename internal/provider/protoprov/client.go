package protoprov

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

// DefaultTimeout bounds each RPC made through a client.
const DefaultTimeout = 30 * time.Second

// Client is a live connection to one gRPC service.
type Client struct {
	conn    grpc.ClientConnInterface
	owned   io.Closer
	service *desc.ServiceDescriptor
	timeout time.Duration
	logger  *log.Logger
}

// Service is the fully-qualified service name.
func (c *Client) Service() string { return c.service.GetFullyQualifiedName() }

// Close closes the connection when the client dialed it itself.
func (c *Client) Close() error {
	if c.owned == nil {
		return nil
	}
	err := c.owned.Close()
	c.owned = nil
	return err
}

// Client wraps an existing connection. The caller keeps ownership of conn.
func (p *Provider) Client(conn grpc.ClientConnInterface, service string) (*Client, error) {
	sd, err := p.Service(service)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, service: sd, timeout: DefaultTimeout, logger: p.logger}, nil
}

// Dial opens a plaintext connection to target for service.
func (p *Provider) Dial(target, service string) (*Client, error) {
	sd, err := p.Service(service)
	if err != nil {
		return nil, err
	}
	return p.dial(target, sd)
}

func (p *Provider) dial(target string, sd *desc.ServiceDescriptor) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, owned: conn, service: sd, timeout: DefaultTimeout, logger: p.logger}, nil
}

func (c *Client) invoke(md *desc.MethodDescriptor, req *dynamic.Message) (*dynamic.Message, error) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	path := fmt.Sprintf("/%s/%s", c.service.GetFullyQualifiedName(), md.GetName())
	resp := dynamic.NewMessage(md.GetOutputType())
	err := c.conn.Invoke(ctx, path, req, resp)
	c.logger.Debug("rpc", "method", path, "code", status.Code(err))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// addService publishes the client type of a service. Streaming RPCs are
// not exposed.
func (p *Provider) addService(pkg string, sd *desc.ServiceDescriptor) {
	fqn := clientTypeName(sd)
	name := localName(pkg, fqn)
	accepts := func(v any) bool {
		c, ok := v.(*Client)
		return ok && c != nil && c.service.GetFullyQualifiedName() == sd.GetFullyQualifiedName()
	}
	t := &descriptor.Type{Namespace: pkg, Name: name, Accepts: accepts}
	self := descriptor.TypeRef{Kind: descriptor.ValueObject, Name: fqn, Accepts: accepts}

	t.Members = append(t.Members,
		&descriptor.Member{
			Kind: descriptor.KindConstructor, Name: name, Static: true, Result: &self,
			Params: []descriptor.Param{{Name: "target", Type: stringRef}},
			Call: func(_ any, args []any) (any, error) {
				return p.dial(args[0].(string), sd)
			},
		},
		&descriptor.Member{
			Kind: descriptor.KindProperty, Name: "Timeout",
			Type: descriptor.TypeRef{Kind: descriptor.ValueInt, Name: "milliseconds", Bits: 64},
			Get: func(target any) (any, error) {
				return target.(*Client).timeout.Milliseconds(), nil
			},
			Set: func(target any, v any) error {
				ms, _ := v.(int64)
				if ms < 0 {
					return fmt.Errorf("timeout must not be negative")
				}
				target.(*Client).timeout = time.Duration(ms) * time.Millisecond
				return nil
			},
		},
		&descriptor.Member{
			Kind: descriptor.KindMethod, Name: "Close",
			Call: func(target any, _ []any) (any, error) { return nil, target.(*Client).Close() },
		},
	)

	for _, md := range sd.GetMethods() {
		if md.IsClientStreaming() || md.IsServerStreaming() {
			continue
		}
		in := md.GetInputType().GetFullyQualifiedName()
		out := md.GetOutputType().GetFullyQualifiedName()
		result := descriptor.TypeRef{Kind: descriptor.ValueObject, Name: out, Accepts: isMessage(out)}
		t.Members = append(t.Members,
			&descriptor.Member{
				Kind: descriptor.KindMethod, Name: md.GetName(), Result: &result,
				Params: []descriptor.Param{{Name: "request", Type: descriptor.TypeRef{Kind: descriptor.ValueObject, Name: in, Accepts: isMessage(in)}}},
				Call: func(target any, args []any) (any, error) {
					req, err := asMessage(args[0])
					if err != nil {
						return nil, err
					}
					return target.(*Client).invoke(md, req)
				},
			},
			&descriptor.Member{
				Kind: descriptor.KindMethod, Name: md.GetName(), Result: &result,
				Params: []descriptor.Param{{Name: "json", Type: stringRef}},
				Call: func(target any, args []any) (any, error) {
					req := dynamic.NewMessage(md.GetInputType())
					if err := req.UnmarshalJSON([]byte(args[0].(string))); err != nil {
						return nil, fmt.Errorf("decode %s: %w", in, err)
					}
					return target.(*Client).invoke(md, req)
				},
			},
		)
	}
	p.add(t)
}
