package upstream

import "fmt"

// AuthError is returned when the token endpoint refuses to issue a
// credential. It carries the upstream status and body so the caller can
// decide on a retry policy; the broker itself never retries.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}

// QueryError is returned for any non-2xx response from the resource
// collection, including a 401 that survived the single forced token refresh.
type QueryError struct {
	Status int
	Body   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("upstream query returned %d: %s", e.Status, e.Body)
}

// RunawayError is returned when pagination accumulates more records than the
// configured ceiling. It indicates a malformed continuation chain or a filter
// bug, not a transient condition, and is never retried automatically.
type RunawayError struct {
	Resource string
	Count    int
	Limit    int
}

func (e *RunawayError) Error() string {
	return fmt.Sprintf("pagination on %s exceeded %d records (limit %d), aborting", e.Resource, e.Count, e.Limit)
}
