package pages

import (
	"fmt"

	"github.com/tsawler/vellum/core"
)

// ObjectResolver supplies indirect-reference resolution to the page tree.
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
	ResolveDeep(obj core.Object) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// maxTreeDepth bounds nesting so a malformed tree cannot recurse without end.
const maxTreeDepth = 64

// inherited carries the attributes a /Pages node passes down to its
// descendants. Values are resolved when absorbed, so a Page reads them
// without further lookups.
type inherited struct {
	resources core.Dict
	mediaBox  core.Array
	cropBox   core.Array
	rotate    core.Object
}

// absorb overlays the inheritable entries present on node, resolving each
// through the resolver. Entries on deeper nodes shadow shallower ones.
func (in inherited) absorb(node core.Dict, resolver ObjectResolver) (inherited, error) {
	if obj := node.Get("Resources"); obj != nil {
		resolved, err := resolver.Resolve(obj)
		if err != nil {
			return in, fmt.Errorf("failed to resolve /Resources: %w", err)
		}
		if dict, ok := resolved.(core.Dict); ok {
			in.resources = dict
		}
	}
	if obj := node.Get("MediaBox"); obj != nil {
		resolved, err := resolver.Resolve(obj)
		if err != nil {
			return in, fmt.Errorf("failed to resolve /MediaBox: %w", err)
		}
		if arr, ok := resolved.(core.Array); ok {
			in.mediaBox = arr
		}
	}
	if obj := node.Get("CropBox"); obj != nil {
		resolved, err := resolver.Resolve(obj)
		if err != nil {
			return in, fmt.Errorf("failed to resolve /CropBox: %w", err)
		}
		if arr, ok := resolved.(core.Array); ok {
			in.cropBox = arr
		}
	}
	if obj := node.Get("Rotate"); obj != nil {
		resolved, err := resolver.Resolve(obj)
		if err != nil {
			return in, fmt.Errorf("failed to resolve /Rotate: %w", err)
		}
		if rot, ok := resolved.(core.Int); ok {
			in.rotate = rot
		}
	}
	return in, nil
}

// PageTree walks a document's page tree and exposes its leaves in order.
type PageTree struct {
	root     core.Dict
	resolver ObjectResolver
	pages    []*Page
}

// NewPageTree creates a page tree rooted at the catalog's /Pages dictionary.
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{
		root:     root,
		resolver: resolver,
	}
}

// Count returns the number of pages. The declared /Count is preferred; when
// it is absent or not an integer the tree is walked instead.
func (t *PageTree) Count() (int, error) {
	if obj := t.root.Get("Count"); obj != nil {
		resolved, err := t.resolver.Resolve(obj)
		if err == nil {
			if count, ok := resolved.(core.Int); ok && count >= 0 {
				return int(count), nil
			}
		}
	}

	pages, err := t.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// GetPage returns the page at index, 0-based, in tree order.
func (t *PageTree) GetPage(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}
	return pages[index], nil
}

// Pages returns every leaf page in tree order. The walk runs once and is
// cached for later calls.
func (t *PageTree) Pages() ([]*Page, error) {
	if t.pages != nil {
		return t.pages, nil
	}

	collected := make([]*Page, 0)
	seen := make(map[int]bool)
	if err := t.walk(t.root, inherited{}, seen, 0, &collected); err != nil {
		return nil, fmt.Errorf("failed to traverse page tree: %w", err)
	}
	t.pages = collected
	return t.pages, nil
}

// walk descends one node, threading inherited attributes down and guarding
// against reference cycles among the kids.
func (t *PageTree) walk(node core.Dict, inh inherited, seen map[int]bool, depth int, out *[]*Page) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("page tree deeper than %d levels: %w", maxTreeDepth, core.ErrCycle)
	}

	inh, err := inh.absorb(node, t.resolver)
	if err != nil {
		return err
	}

	switch t.nodeKind(node) {
	case "Pages":
		kidsObj := node.Get("Kids")
		if kidsObj == nil {
			return fmt.Errorf("intermediate node missing /Kids entry")
		}
		kidsResolved, err := t.resolver.Resolve(kidsObj)
		if err != nil {
			return fmt.Errorf("failed to resolve /Kids: %w", err)
		}
		kids, ok := kidsResolved.(core.Array)
		if !ok {
			return fmt.Errorf("invalid /Kids type: %T", kidsResolved)
		}

		for i, kidObj := range kids {
			if ref, ok := kidObj.(core.IndirectRef); ok {
				if seen[ref.Number] {
					return fmt.Errorf("kid %d revisits object %d: %w", i, ref.Number, core.ErrCycle)
				}
				seen[ref.Number] = true
			}
			kidResolved, err := t.resolver.Resolve(kidObj)
			if err != nil {
				return fmt.Errorf("failed to resolve kid %d: %w", i, err)
			}
			kidDict, ok := kidResolved.(core.Dict)
			if !ok {
				return fmt.Errorf("invalid kid type: %T", kidResolved)
			}
			if err := t.walk(kidDict, inh, seen, depth+1, out); err != nil {
				return err
			}
		}
		return nil

	case "Page":
		*out = append(*out, &Page{dict: node, inh: inh, resolver: t.resolver})
		return nil

	default:
		return fmt.Errorf("unexpected page node type: %v", node.Get("Type"))
	}
}

// nodeKind classifies a node. An explicit /Type wins; a node without one is
// treated as intermediate when it carries /Kids and as a leaf otherwise.
func (t *PageTree) nodeKind(node core.Dict) string {
	if typ, ok := node.GetName("Type"); ok {
		return string(typ)
	}
	if node.Has("Kids") {
		return "Pages"
	}
	return "Page"
}

// Page is one leaf of the page tree with its inherited attributes already
// resolved.
type Page struct {
	dict     core.Dict
	inh      inherited
	resolver ObjectResolver
}

// Dict returns the page's own dictionary.
func (p *Page) Dict() core.Dict {
	return p.dict
}

// MediaBox returns [llx lly urx ury] from the page or its ancestors.
func (p *Page) MediaBox() ([]float64, error) {
	arr, err := p.boxArray("MediaBox", p.inh.mediaBox)
	if err != nil {
		return nil, err
	}
	return boxFloats("MediaBox", arr)
}

// CropBox returns the crop rectangle, falling back to the media box when no
// crop box is set anywhere on the path.
func (p *Page) CropBox() ([]float64, error) {
	arr, err := p.boxArray("CropBox", p.inh.cropBox)
	if err != nil {
		return p.MediaBox()
	}
	return boxFloats("CropBox", arr)
}

// boxArray reads a rectangle entry from the page dict, then from the
// inherited value.
func (p *Page) boxArray(name string, inh core.Array) (core.Array, error) {
	if obj := p.dict.Get(name); obj != nil {
		resolved, err := p.resolver.Resolve(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve /%s: %w", name, err)
		}
		if arr, ok := resolved.(core.Array); ok {
			return arr, nil
		}
		return nil, fmt.Errorf("invalid /%s type: %T", name, resolved)
	}
	if inh != nil {
		return inh, nil
	}
	return nil, fmt.Errorf("/%s not found", name)
}

// boxFloats converts a 4-element rectangle array to float64s.
func boxFloats(name string, arr core.Array) ([]float64, error) {
	if len(arr) != 4 {
		return nil, fmt.Errorf("invalid /%s length: %d", name, len(arr))
	}
	box := make([]float64, 4)
	for i, elem := range arr {
		switch v := elem.(type) {
		case core.Int:
			box[i] = float64(v)
		case core.Real:
			box[i] = float64(v)
		default:
			return nil, fmt.Errorf("invalid /%s element type: %T", name, elem)
		}
	}
	return box, nil
}

// Resources returns the resource dictionary from the page or its ancestors.
func (p *Page) Resources() (core.Dict, error) {
	if obj := p.dict.Get("Resources"); obj != nil {
		resolved, err := p.resolver.Resolve(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve /Resources: %w", err)
		}
		if dict, ok := resolved.(core.Dict); ok {
			return dict, nil
		}
		return nil, fmt.Errorf("invalid /Resources type: %T", resolved)
	}
	if p.inh.resources != nil {
		return p.inh.resources, nil
	}
	return nil, fmt.Errorf("/Resources not found")
}

// Contents returns the page's content streams in order. /Contents may be a
// single stream or an array of streams; a missing entry yields nil.
func (p *Page) Contents() ([]*core.Stream, error) {
	obj := p.dict.Get("Contents")
	if obj == nil {
		return nil, nil
	}
	resolved, err := p.resolver.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Contents: %w", err)
	}

	switch v := resolved.(type) {
	case *core.Stream:
		return []*core.Stream{v}, nil
	case core.Array:
		streams := make([]*core.Stream, 0, len(v))
		for i, elem := range v {
			part, err := p.resolver.Resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve contents[%d]: %w", i, err)
			}
			stream, ok := part.(*core.Stream)
			if !ok {
				return nil, fmt.Errorf("contents[%d] is %T, not a stream", i, part)
			}
			streams = append(streams, stream)
		}
		return streams, nil
	default:
		return nil, fmt.Errorf("invalid /Contents type: %T", resolved)
	}
}

// Rotate returns the page rotation normalized to 0, 90, 180, or 270.
func (p *Page) Rotate() int {
	var raw int
	if obj := p.dict.Get("Rotate"); obj != nil {
		if resolved, err := p.resolver.Resolve(obj); err == nil {
			if rot, ok := resolved.(core.Int); ok {
				raw = int(rot)
			}
		}
	} else if rot, ok := p.inh.rotate.(core.Int); ok {
		raw = int(rot)
	}

	normalized := raw % 360
	if normalized < 0 {
		normalized += 360
	}
	// Values that are not right-angle multiples fall back to 0.
	if normalized%90 != 0 {
		return 0
	}
	return normalized
}

// Width returns the media box width.
func (p *Page) Width() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[2] - box[0], nil
}

// Height returns the media box height.
func (p *Page) Height() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[3] - box[1], nil
}
