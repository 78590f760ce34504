package feed

import "fmt"

// StructuralError reports a game document that lacks the structure needed to
// flatten it. It usually means the upstream schema changed.
type StructuralError struct {
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("malformed game document at %s: %s", e.Path, e.Reason)
}
