package config

import (
	"fmt"

	"github.com/edgecomet/themeproxy/internal/config/validate"
)

// SyntaxError is a config-time, fatal error (spec §7): a malformed or
// semantically invalid configuration element, tagged with the file and
// (when known) line it came from. It embeds the teacher's
// validate.ValidationError shape rather than redeclaring File/Line/Message,
// since that is exactly the file/line-tagged error spec §7 calls for.
type SyntaxError struct {
	validate.ValidationError
}

func newSyntaxError(file string, line int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{ValidationError: validate.ValidationError{
		File:    file,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}}
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}
