package reader

import "fmt"

// Warning records a non-fatal problem found while opening or reading a
// document. Object-level warnings carry the object number; document-level
// warnings use zero.
type Warning struct {
	ObjNum int
	Msg    string
}

func (w Warning) String() string {
	if w.ObjNum > 0 {
		return fmt.Sprintf("object %d: %s", w.ObjNum, w.Msg)
	}
	return w.Msg
}

// Warnings returns the problems tolerated so far, in the order found.
func (r *Reader) Warnings() []Warning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

func (r *Reader) warn(objNum int, msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, Warning{ObjNum: objNum, Msg: msg})
	r.mu.Unlock()
}
