package pool

import (
	"fmt"
	"strings"
)

// ConnectError reports a failed connection attempt for a key. The key stays
// absent from the pool, so the next Get retries.
type ConnectError struct {
	Key Key
	Err error
}

func (e *ConnectError) Error() string {
	if e.Key.Username != "" {
		return fmt.Sprintf("connect to %s as user %q: %v", e.Key.BrokerURL, e.Key.Username, e.Err)
	}
	return fmt.Sprintf("connect to %s: %v", e.Key.BrokerURL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CloseError reports a connection that failed to close during CloseAll.
type CloseError struct {
	Key Key
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %s: %v", e.Key, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// CloseErrors collects every CloseError of one CloseAll call.
type CloseErrors []*CloseError

func (errs CloseErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d connection(s) failed to close: %s", len(errs), strings.Join(msgs, "; "))
}

func (errs CloseErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
