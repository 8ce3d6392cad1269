package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/pool"
	"github.com/zynerotech/sender/sender"
	"github.com/zynerotech/sender/tlsconfig"
	"github.com/zynerotech/sender/transport"
)

// Dispatcher sends one message.
type Dispatcher interface {
	Send(ctx context.Context, req sender.Request) (*sender.Result, error)
}

// Target is the broker every gateway request is sent to. Callers choose the
// destination and message only.
type Target struct {
	Endpoint transport.Endpoint
	TLS      tlsconfig.Config
	Kind     transport.DestinationKind
}

// SendRequest is the JSON body of POST /messages.
type SendRequest struct {
	Destination string        `json:"destination"`
	Kind        string        `json:"kind,omitempty"`
	Body        string        `json:"body"`
	Headers     []headers.Raw `json:"headers,omitempty"`
}

// Gateway accepts messages over HTTP and hands them to a Dispatcher.
type Gateway struct {
	dispatcher Dispatcher
	target     Target
}

func NewGateway(d Dispatcher, target Target) *Gateway {
	return &Gateway{dispatcher: d, target: target}
}

// Register mounts the gateway routes on r.
func (g *Gateway) Register(r fiber.Router) {
	r.Post("/messages", g.send)
}

func (g *Gateway) send(c *fiber.Ctx) error {
	var body SendRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(body.Body) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body is required")
	}

	kind := g.target.Kind
	if body.Kind != "" {
		k, err := transport.ParseDestinationKind(body.Kind)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		kind = k
	}

	res, err := g.dispatcher.Send(c.UserContext(), sender.Request{
		Endpoint:    g.target.Endpoint,
		TLS:         g.target.TLS,
		Destination: transport.Destination{Name: strings.TrimSpace(body.Destination), Kind: kind},
		Body:        body.Body,
		Headers:     body.Headers,
	})
	if err != nil {
		return fiber.NewError(statusOf(err), err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(res.Summary())
}

func statusOf(err error) int {
	var connErr *pool.ConnectError
	var sendErr *sender.SendError
	switch {
	case errors.Is(err, sender.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &connErr), errors.As(err, &sendErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
