package store

import "fmt"

// UploadRedirect is where clients restart the flow after missing state
const UploadRedirect = "/upload"

// MissingStateError reports that an operation needs session state that is not
// there, such as a current project or a video reference.
type MissingStateError struct {
	What string
}

func (e *MissingStateError) Error() string {
	return fmt.Sprintf("missing state: %s", e.What)
}

// Redirect is the entry point the client should restart from
func (e *MissingStateError) Redirect() string {
	return UploadRedirect
}
