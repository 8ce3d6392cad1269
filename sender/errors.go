package sender

import (
	"errors"
	"fmt"

	"github.com/zynerotech/sender/transport"
)

// ErrInvalidRequest is returned for requests missing a broker URL or a
// destination name.
var ErrInvalidRequest = errors.New("sender: invalid request")

// SendError reports a failure after the connection was obtained: opening the
// session, creating the producer or the send itself.
type SendError struct {
	Destination transport.Destination
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Destination, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
