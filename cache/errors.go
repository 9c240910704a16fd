package cache

import "fmt"

// InvalidateError reports a partially failed invalidation.
// A failed Bump leaves in-flight loads able to write back; a failed Del
// leaves the old entry readable until it expires.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("cache: invalidate %q failed: bump: %v; del: %v", e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("cache: invalidate %q failed: bump: %v", e.Key, e.BumpErr)
	default:
		return fmt.Sprintf("cache: invalidate %q failed: del: %v", e.Key, e.DelErr)
	}
}

func (e *InvalidateError) Unwrap() []error {
	var out []error
	if e.BumpErr != nil {
		out = append(out, e.BumpErr)
	}
	if e.DelErr != nil {
		out = append(out, e.DelErr)
	}
	return out
}
