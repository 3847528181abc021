package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/localrivet/gomcp/server"

	"github.com/localrivet/mem0mcp/internal/errortypes"
)

// Descriptor describes one tool: its wire name, its argument schema, and how
// to run it.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}

	invoke func(ctx context.Context, args json.RawMessage) Result
	bind   func(srv server.Server, base func() context.Context) server.Server
}

// NewDescriptor builds a Descriptor whose arguments decode into A. The input
// schema is generated from A's field tags. Arguments that cannot be decoded
// produce a failed Result starting with failurePrefix.
func NewDescriptor[A any](name, description, failurePrefix string,
	handle func(ctx context.Context, args A) Result) *Descriptor {

	d := &Descriptor{
		Name:        name,
		Description: description,
		InputSchema: InputSchemaOf[A](),
	}
	d.invoke = func(ctx context.Context, raw json.RawMessage) Result {
		var args A
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return Failure(failurePrefix, errortypes.InvalidArgument(err, "malformed arguments").
					WithField("tool", name))
			}
		}
		return handle(ctx, args)
	}
	d.bind = func(srv server.Server, base func() context.Context) server.Server {
		// A map parameter keeps gomcp from validating against a schema of its
		// own, so missing or blank arguments reach Normalize and come back as
		// failed results rather than protocol errors.
		srv = srv.Tool(name, description, func(_ *server.Context, args map[string]interface{}) (interface{}, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return toolResult(Failure(failurePrefix, errortypes.InvalidArgument(err, "malformed arguments").
					WithField("tool", name))), nil
			}
			// gomcp runs every request under context.Background, so the
			// server-wide context is the only one that is ever cancelled.
			return toolResult(d.invoke(base(), raw)), nil
		})
		if tool, ok := srv.GetServer().GetTools()[name]; ok {
			tool.Schema = d.InputSchema
		}
		return srv
	}
	return d
}

// toolResult is the MCP tools/call result for res. gomcp passes a map with
// content and isError through unchanged.
func toolResult(res Result) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": res.Text},
		},
		"isError": res.IsError,
	}
}

// Invoke runs the tool with JSON-encoded arguments. Empty arguments decode
// to the zero value.
func (d *Descriptor) Invoke(ctx context.Context, args json.RawMessage) Result {
	return d.invoke(ctx, args)
}

// Registry maps tool names to descriptors, in registration order.
type Registry struct {
	order  []string
	byName map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds d. Names must be unique.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return errortypes.InternalError(errors.New("descriptor has no name"), "cannot register tool")
	}
	if _, exists := r.byName[d.Name]; exists {
		return errortypes.InternalError(fmt.Errorf("tool %q already registered", d.Name), "cannot register tool")
	}
	r.order = append(r.order, d.Name)
	r.byName[d.Name] = d
	return nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns the registered descriptors.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Lookup finds a descriptor by name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Invoke runs the named tool. An unknown name is an InvalidArgument error;
// everything else, including argument problems, is reported in the Result.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	d, ok := r.byName[name]
	if !ok {
		return Result{}, errortypes.InvalidArgument(fmt.Errorf("unknown tool %q", name), "cannot invoke tool")
	}
	return d.Invoke(ctx, args), nil
}

// Bind registers every tool on srv and advertises each descriptor's
// InputSchema. Handlers run with the context returned by base at call time.
// Call it before srv starts serving.
func (r *Registry) Bind(srv server.Server, base func() context.Context) server.Server {
	for _, d := range r.List() {
		srv = d.bind(srv, base)
	}
	return srv
}
