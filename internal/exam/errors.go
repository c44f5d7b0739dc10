package exam

import (
	"errors"
	"fmt"
)

// ErrNoPages is returned when a booklet has no readable pages
var ErrNoPages = errors.New("document has no pages")

// Error wraps a failure that aborts processing of one exam
type Error struct {
	Op   string `json:"operation"`
	Path string `json:"path"`
	Err  error  `json:"error"`
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("exam %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("exam %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
