package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every problem found while validating config or a request
// so the caller can report them all at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err == nil {
		return
	}
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) Addf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// Err returns nil when nothing was collected, so it can be returned directly.
func (c *ValidationError) Err() error {
	if !c.HasError() {
		return nil
	}
	return c
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(c.Errors...))
}
