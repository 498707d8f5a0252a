// Package client invokes the operations of a loaded document from Go with the
// same request shapes the generated TypeScript methods produce.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/koiosgen/internal/emitter/tsemitter"
	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// ErrUnknownOperation is returned by Call for a name no operation derives.
var ErrUnknownOperation = errors.New("unknown operation")

// Request carries the four arguments of a generated method, minus the
// abort signal which is the context here.
type Request struct {
	Params      map[string]any
	ExtraParams string
	Header      http.Header
}

// Prepared is a request ready for the transport.
type Prepared struct {
	Method genspec.HttpMethod
	URL    string
	Body   []byte // nil for GET
}

type Option func(*Client)

// WithEnvelope selects the discriminant of encoded results. Defaults to ok.
func WithEnvelope(e tsemitter.Envelope) Option {
	return func(c *Client) { c.envelope = e }
}

// WithQueryPresence selects when a parameter contributes a query fragment.
// Defaults to truthy.
func WithQueryPresence(p tsemitter.QueryPresence) Option {
	return func(c *Client) { c.presence = p }
}

// WithNameOverrides adds entries to the built-in name override table.
func WithNameOverrides(o []tsemitter.NameOverride) Option {
	return func(c *Client) { c.overrides = o }
}

// WithInterceptor replaces Normalize.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) { c.intercept = i }
}

// Client dispatches calls by generated method name.
type Client struct {
	transport Transport
	envelope  tsemitter.Envelope
	presence  tsemitter.QueryPresence
	overrides []tsemitter.NameOverride
	intercept Interceptor

	names []string
	ops   map[string]genspec.OperationRecord
}

// New binds ops to transport. Names are derived exactly as the emitter
// derives them, so a colliding pair fails here too; operations without a
// derivable name are not callable.
func New(transport Transport, ops []genspec.OperationRecord, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("client: nil transport")
	}
	c := &Client{
		transport: transport,
		envelope:  tsemitter.EnvelopeOK,
		presence:  tsemitter.PresenceTruthy,
		intercept: Normalize,
		ops:       make(map[string]genspec.OperationRecord, len(ops)),
	}
	for _, o := range opts {
		o(c)
	}
	switch c.envelope {
	case tsemitter.EnvelopeOK, tsemitter.EnvelopeSuccess:
	default:
		return nil, fmt.Errorf("client: unknown envelope %q", c.envelope)
	}
	switch c.presence {
	case tsemitter.PresenceTruthy, tsemitter.PresenceDefined:
	default:
		return nil, fmt.Errorf("client: unknown query presence %q", c.presence)
	}
	c.overrides = tsemitter.MergeNameOverrides(c.overrides)
	if err := tsemitter.CheckUnique(ops, c.overrides); err != nil {
		return nil, err
	}
	for _, op := range ops {
		name, err := tsemitter.DeriveName(op.Path, op.Method, c.overrides)
		if err != nil {
			continue
		}
		c.names = append(c.names, name)
		c.ops[name] = op
	}
	return c, nil
}

// Methods lists the callable names in document order.
func (c *Client) Methods() []string {
	return append([]string(nil), c.names...)
}

// Operation returns the operation bound to name.
func (c *Client) Operation(name string) (genspec.OperationRecord, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Prepare builds the URL and body of a call without sending it.
func (c *Client) Prepare(name string, req Request) (*Prepared, error) {
	op, ok := c.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	sig := tsemitter.BuildSignature(op)

	var url strings.Builder
	url.WriteString(op.Path)
	url.WriteByte('?')
	if op.Method == genspec.GET || sig.Source == tsemitter.SourceQuery {
		for _, p := range sig.Params {
			v, present := req.Params[p.Name]
			if !c.include(v, present) {
				continue
			}
			url.WriteString("&" + p.Name + "=" + jsString(v))
		}
	}
	url.WriteString(req.ExtraParams)

	out := &Prepared{Method: op.Method, URL: url.String()}
	if op.Method == genspec.GET {
		return out, nil
	}
	body, err := encodeBody(sig, req.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: encode body: %w", name, err)
	}
	out.Body = body
	return out, nil
}

func (c *Client) include(v any, present bool) bool {
	if c.presence == tsemitter.PresenceDefined {
		return present
	}
	return truthy(v)
}

// encodeBody writes the declared body properties in declaration order.
// Properties missing from params are left out, as JSON.stringify drops
// undefined members.
func encodeBody(sig tsemitter.Signature, params map[string]any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	if sig.Source == tsemitter.SourceBody {
		first := true
		for _, p := range sig.Params {
			v, ok := params[p.Name]
			if !ok {
				continue
			}
			k, _ := json.Marshal(p.Name)
			enc, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.Write(k)
			b.WriteByte(':')
			b.Write(enc)
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Call performs one request and normalises the outcome. Transport failures
// and non-2xx statuses are reported in the Result; the error return is for
// calls that could not be built.
func (c *Client) Call(ctx context.Context, name string, req Request) (Result, error) {
	p, err := c.Prepare(name, req)
	if err != nil {
		return Result{}, err
	}
	var (
		resp *Response
		terr error
	)
	if p.Method == genspec.GET {
		resp, terr = c.transport.Get(ctx, p.URL, req.Header)
	} else {
		resp, terr = c.transport.Post(ctx, p.URL, p.Body, req.Header)
	}
	res := c.intercept(resp, terr)
	res.Envelope = c.envelope
	return res, nil
}
