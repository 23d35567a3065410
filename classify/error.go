package classify

import (
	"errors"
	"fmt"
)

// Error is a classified failure: the value every component returns instead of UI markup.
type Error struct {
	Category Category `json:"category"`
	Code     string   `json:"code,omitempty"` // machine-readable code from the remote side, if any
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

// New builds a classified error with a formatted message.
func New(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err and keeps it as the cause. A nil err returns nil.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{
		Category: Classify(err),
		Code:     codeOf(err),
		Message:  err.Error(),
		Err:      err,
	}
}

// WrapAs keeps err as the cause under a fixed category.
func WrapAs(category Category, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Code: codeOf(err), Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode lets a classified error be re-classified by its category.
func (e *Error) ErrorCode() string {
	return string(e.Category)
}

// Is matches another *Error of the same category, so errors.Is(err, &classify.Error{Category: X}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Message == "" || t.Message == e.Message)
}

// Action is the UI affordance for this error.
func (e *Error) Action() Action {
	return ActionFor(e.Category)
}

// CategoryOf returns the category of err, classifying it if needed. Nil yields "".
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	return Wrap(err).Category
}
