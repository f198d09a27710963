package resolver

import (
	"fmt"

	"github.com/tsawler/vellum/core"
)

// ObjectReader is the object source a resolver draws from.
type ObjectReader interface {
	GetObject(objNum int) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// DefaultMaxDepth bounds reference chains and container nesting.
const DefaultMaxDepth = 64

// ObjectResolver follows indirect references against an ObjectReader,
// optionally expanding whole container trees. It holds no state between
// calls; every resolution runs with its own cycle ledger, so a resolver may
// be shared freely.
type ObjectResolver struct {
	reader   ObjectReader
	maxDepth int
}

// Option configures the resolver.
type Option func(*ObjectResolver)

// WithMaxDepth overrides the depth bound.
func WithMaxDepth(depth int) Option {
	return func(r *ObjectResolver) {
		r.maxDepth = depth
	}
}

// NewResolver creates a resolver over the given reader.
func NewResolver(reader ObjectReader, opts ...Option) *ObjectResolver {
	r := &ObjectResolver{
		reader:   reader,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows obj when it is an indirect reference. Container contents
// are left untouched.
func (r *ObjectResolver) Resolve(obj core.Object) (core.Object, error) {
	return r.newWalk(false).object(obj, 0)
}

// ResolveDeep follows obj and every reference nested inside dictionaries,
// arrays, and stream dictionaries, returning a fully expanded copy.
func (r *ObjectResolver) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.newWalk(true).object(obj, 0)
}

// walk carries one resolution's state: the reference numbers on the active
// path, used to detect loops without blocking diamond-shaped sharing.
type walk struct {
	r    *ObjectResolver
	deep bool
	path map[int]bool
}

func (r *ObjectResolver) newWalk(deep bool) *walk {
	return &walk{
		r:    r,
		deep: deep,
		path: make(map[int]bool),
	}
}

func (w *walk) object(obj core.Object, depth int) (core.Object, error) {
	if depth >= w.r.maxDepth {
		return nil, fmt.Errorf("maximum recursion depth (%d) exceeded: %w", w.r.maxDepth, core.ErrCycle)
	}

	switch v := obj.(type) {
	case core.IndirectRef:
		return w.reference(v, depth)

	case core.Dict:
		if !w.deep {
			return v, nil
		}
		resolved := make(core.Dict, len(v))
		for key, value := range v {
			rv, err := w.object(value, depth+1)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve dict key %s: %w", key, err)
			}
			resolved[key] = rv
		}
		return resolved, nil

	case core.Array:
		if !w.deep {
			return v, nil
		}
		resolved := make(core.Array, len(v))
		for i, elem := range v {
			re, err := w.object(elem, depth+1)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve array element %d: %w", i, err)
			}
			resolved[i] = re
		}
		return resolved, nil

	case *core.Stream:
		if !w.deep {
			return v, nil
		}
		rd, err := w.object(v.Dict, depth+1)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve stream dict: %w", err)
		}
		return &core.Stream{
			Dict: rd.(core.Dict),
			Data: v.Data,
		}, nil

	default:
		return obj, nil
	}
}

// reference loads one indirect reference, marking it on the path for the
// duration of its expansion.
func (w *walk) reference(ref core.IndirectRef, depth int) (core.Object, error) {
	if w.path[ref.Number] {
		return nil, fmt.Errorf("object %d: %w", ref.Number, core.ErrCycle)
	}
	w.path[ref.Number] = true
	defer delete(w.path, ref.Number)

	resolved, err := w.r.reader.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reference %d %d R: %w", ref.Number, ref.Generation, err)
	}

	if w.deep {
		return w.object(resolved, depth+1)
	}
	return resolved, nil
}

// ResolveDict deeply resolves a dictionary's values.
func (r *ObjectResolver) ResolveDict(dict core.Dict) (core.Dict, error) {
	resolved, err := r.ResolveDeep(dict)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Dict), nil
}

// ResolveArray deeply resolves an array's elements.
func (r *ObjectResolver) ResolveArray(arr core.Array) (core.Array, error) {
	resolved, err := r.ResolveDeep(arr)
	if err != nil {
		return nil, err
	}
	return resolved.(core.Array), nil
}

// ResolveReference loads the referenced object without recursing into it.
func (r *ObjectResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return r.reader.ResolveReference(ref)
}

// ResolveReferenceDeep loads the referenced object and expands every nested
// reference.
func (r *ObjectResolver) ResolveReferenceDeep(ref core.IndirectRef) (core.Object, error) {
	return r.ResolveDeep(ref)
}

// GetObject loads an object by number.
func (r *ObjectResolver) GetObject(objNum int) (core.Object, error) {
	return r.reader.GetObject(objNum)
}

// GetObjectResolved loads an object by number and follows it one level.
func (r *ObjectResolver) GetObjectResolved(objNum int) (core.Object, error) {
	obj, err := r.reader.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	return r.Resolve(obj)
}

// GetObjectResolvedDeep loads an object by number and fully expands it.
func (r *ObjectResolver) GetObjectResolvedDeep(objNum int) (core.Object, error) {
	obj, err := r.reader.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	return r.ResolveDeep(obj)
}
