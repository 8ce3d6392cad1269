package transport

import (
	"context"
	"io"
)

// Producer publishes messages to the destination it was created for. Send
// blocks until the broker accepted the message or the send failed.
type Producer interface {
	Send(ctx context.Context, msg Message) error
	io.Closer
}
