package indexer

import "fmt"

type ErrorKind int

const (
	KindUnreachable ErrorKind = iota
	KindInvalidAPIKey
	KindUnexpectedStatus
)

// Error classifies an indexer failure and carries a remediation hint that
// commands show to the user as-is.
type Error struct {
	Indexer string
	Kind    ErrorKind
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := ""
	switch e.Kind {
	case KindUnreachable:
		msg = fmt.Sprintf("could not connect to %v", e.Indexer)
	case KindInvalidAPIKey:
		msg = fmt.Sprintf("invalid %v API key", e.Indexer)
	default:
		msg = fmt.Sprintf("unexpected response from %v", e.Indexer)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%v: %v", msg, e.Err)
	}

	if e.Hint != "" {
		msg = fmt.Sprintf("%v (%v)", msg, e.Hint)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}
