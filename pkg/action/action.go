// Package action implements C9: turning a plain (ctx, input) -> (output,
// error) function into a named, discoverable, callable object — the shape
// extensions/mcpserver exposes over MCP and actions/export's
// ExportTableToXLSX builds (a Def named "export_table_to_xlsx").
//
// Grounded on the teacher's pkg/query package, which wraps raw functions
// (Scan, Filter predicates) with a name and an Execute entrypoint so the
// query engine can enumerate and invoke them generically.
package action

import "context"

// Def describes one action before it is attached to a workspace: a name,
// human-readable description, and the function itself.
type Def struct {
	Name        string
	Description string
	Fn          func(ctx context.Context, input any) (any, error)
}

// Attached is a Def bound to a concrete owner (workspace, extension) and is
// directly callable.
type Attached struct {
	Def
	owner string
}

// Attach binds def to owner, producing a callable Attached action.
func Attach(owner string, def Def) *Attached {
	return &Attached{Def: def, owner: owner}
}

// Owner returns the key of the extension or workspace that registered this
// action.
func (a *Attached) Owner() string { return a.owner }

// Call invokes the underlying function.
func (a *Attached) Call(ctx context.Context, input any) (any, error) {
	return a.Fn(ctx, input)
}

// Registry holds every attached action for a workspace, keyed by name.
type Registry struct {
	byName map[string]*Attached
	order  []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Attached)}
}

// Register attaches def under owner and adds it to the registry. A
// duplicate name overwrites the previous registration but keeps its
// original position, matching the teacher's query-registry "last one wins"
// behavior.
func (r *Registry) Register(owner string, def Def) *Attached {
	a := Attach(owner, def)
	if _, exists := r.byName[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.byName[def.Name] = a
	return a
}

// Get looks up an attached action by name.
func (r *Registry) Get(name string) (*Attached, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// IterateActions returns every attached action's Def in registration order,
// without the owner wrapper.
func (r *Registry) IterateActions() []Def {
	out := make([]Def, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Def)
	}
	return out
}

// IterateAttachedActions returns every attached action in registration
// order.
func (r *Registry) IterateAttachedActions() []*Attached {
	out := make([]*Attached, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
