package ingest

import "fmt"

// IngestError reports an aborted ingest pass along with the counts that
// completed before the failure, so callers can log progress accurately.
type IngestError struct {
	Scope  string
	Result Result
	Err    error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest of %s aborted after %d written, %d skipped: %v",
		e.Scope, e.Result.Written, e.Result.Skipped, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}
