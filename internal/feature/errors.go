package feature

import "fmt"

// Apply-edits failure codes.
const (
	CodeUnknown          = 1000
	CodeNotFound         = 1001
	CodeInvalidGeometry  = 1002
	CodeInvalidAttribute = 1003
	CodeTransport        = 1100
)

// ApplyError is the one failure kind the edit workflow distinguishes.
type ApplyError struct {
	Code    int    `json:"code" doc:"Failure code"`
	Name    string `json:"name" doc:"Failure name"`
	Message string `json:"message" doc:"Failure message"`
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply edits: %s (%d): %s", e.Name, e.Code, e.Message)
}

// NotFound builds the error for an edit naming an unknown object id.
func NotFound(id int64) *ApplyError {
	return &ApplyError{Code: CodeNotFound, Name: "not-found", Message: fmt.Sprintf("feature %d does not exist", id)}
}

// InvalidGeometry builds the error for a feature without a usable point.
func InvalidGeometry(msg string) *ApplyError {
	return &ApplyError{Code: CodeInvalidGeometry, Name: "invalid-geometry", Message: msg}
}

// InvalidAttribute builds the error for a rejected attribute value.
func InvalidAttribute(field, msg string) *ApplyError {
	return &ApplyError{Code: CodeInvalidAttribute, Name: "invalid-attribute", Message: field + ": " + msg}
}
