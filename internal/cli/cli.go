// Package cli implements the broker-sender command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"

	"github.com/zynerotech/sender/app"
	"github.com/zynerotech/sender/certs"
	"github.com/zynerotech/sender/config"
	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/sender"
	"github.com/zynerotech/sender/server"
	"github.com/zynerotech/sender/transport"
)

// ErrUsage marks command line mistakes.
var ErrUsage = errors.New("usage")

const usage = `Usage:
  broker-sender send [flags]         send one message
  broker-sender serve [flags]        accept messages on POST /v1/messages
  broker-sender inspect-pem <path>   print the certificates of a PEM file

Run "broker-sender <command> --help" for flags.`

// CLI runs commands. Register, when set, is called after the built-in
// transports are registered and may add or replace dialers.
type CLI struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Register func(*transport.Registry)
}

// New returns a CLI writing to the process streams.
func New() *CLI {
	return &CLI{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.Stderr, usage)
		return fmt.Errorf("%w: missing command", ErrUsage)
	}

	switch args[0] {
	case "send":
		return c.send(ctx, args[1:])
	case "serve":
		return c.serve(ctx, args[1:])
	case "inspect-pem":
		return c.inspectPEM(args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(c.Stdout, usage)
		return nil
	default:
		fmt.Fprintln(c.Stderr, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

// sendFlags maps flag names to config keys.
var sendFlags = []struct {
	name, key, help string
	boolean         bool
}{
	{name: "url", key: "broker.url", help: "broker URL (tcp://, ssl://, amqp://, amqps://, kafka://)"},
	{name: "username", key: "broker.username", help: "broker user"},
	{name: "password", key: "broker.password", help: "broker password"},
	{name: "password-encoding", key: "broker.password_encoding", help: "stored password encoding: plain or base64"},
	{name: "tls", key: "broker.tls_enabled", help: "force TLS", boolean: true},
	{name: "trust-store", key: "tls.trust_store_path", help: "trust store (JKS, PKCS12 or PEM)"},
	{name: "trust-store-password", key: "tls.trust_store_password", help: "trust store password"},
	{name: "key-store", key: "tls.key_store_path", help: "client key store (JKS or PKCS12)"},
	{name: "key-store-password", key: "tls.key_store_password", help: "client key store password"},
	{name: "skip-validation", key: "tls.skip_validation", help: "accept any server certificate", boolean: true},
	{name: "destination", key: "destination.name", help: "queue or topic name"},
	{name: "kind", key: "destination.kind", help: "destination kind: queue or topic"},
	{name: "message", key: "message.body", help: "message body"},
	{name: "client-id", key: "client.id", help: "value of the sender header"},
	{name: "log-level", key: "logger.level", help: "log level"},
}

// newFlagSet returns a flag set carrying the broker and destination flags
// shared by send and serve, plus --config.
func (c *CLI) newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)

	configPath := fs.String("config", "", "config file (optional)")
	for _, f := range sendFlags {
		if f.boolean {
			fs.Bool(f.name, false, f.help)
			continue
		}
		fs.String(f.name, "", f.help)
	}
	return fs, configPath
}

func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return true, nil
}

// load reads cfg from the optional file, APP_ variables and explicitly set
// flags, in increasing priority.
func load(fs *pflag.FlagSet, configPath string, cfg *config.Sender, extra map[string]string) error {
	loader := config.NewLoader(configPath)
	if configPath == "" {
		loader.Optional()
	}
	for _, f := range sendFlags {
		if err := loader.BindFlag(f.key, fs.Lookup(f.name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.name, err)
		}
	}
	for name, key := range extra {
		if err := loader.BindFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return loader.Load(cfg)
}

func (c *CLI) build(cfg *config.Sender) (*app.App, error) {
	application, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if c.Register != nil {
		c.Register(application.Dialers)
	}
	return application, nil
}

func (c *CLI) send(ctx context.Context, args []string) error {
	fs, configPath := c.newFlagSet("send")
	messageFile := fs.String("message-file", "", "read the message body from a file")
	headersFile := fs.String("headers-file", "", `JSON array of {"name","value","type"} headers`)

	if ok, err := parse(fs, args); !ok {
		return err
	}

	if *messageFile != "" {
		body, err := os.ReadFile(*messageFile)
		if err != nil {
			return fmt.Errorf("read message file: %w", err)
		}
		if err := fs.Set("message", string(body)); err != nil {
			return err
		}
	}

	cfg := &config.Sender{RequireMessage: true}
	if err := load(fs, *configPath, cfg, nil); err != nil {
		return err
	}

	if *headersFile != "" {
		raws, err := readHeaders(*headersFile)
		if err != nil {
			return err
		}
		cfg.Message.Headers = append(cfg.Message.Headers, raws...)
	}

	application, err := c.build(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Dispatcher.Send(ctx, sender.Request{
		Endpoint:    cfg.Endpoint(),
		TLS:         cfg.TLSConfig(),
		Destination: cfg.DestinationValue(),
		Body:        cfg.Message.Body,
		Headers:     cfg.Message.Headers,
	})
	if err != nil {
		return err
	}
	return c.printResult(res)
}

// serve runs the HTTP gateway until ctx is done. Metrics and health, when
// enabled without their own port, are served on the gateway address.
func (c *CLI) serve(ctx context.Context, args []string) error {
	fs, configPath := c.newFlagSet("serve")
	fs.String("listen", "", "gateway listen address")

	if ok, err := parse(fs, args); !ok {
		return err
	}

	cfg := &config.Sender{Serving: true}
	if err := load(fs, *configPath, cfg, map[string]string{"listen": "server.address"}); err != nil {
		return err
	}

	application, err := c.build(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	srv := server.New(cfg.Server, application.Metrics.FiberMiddleware())
	server.NewGateway(application.Dispatcher, cfg.GatewayTarget()).Register(srv.App().Group("/v1"))
	if application.Healthcheck != nil && cfg.Healthcheck.Port == 0 {
		srv.Handle(fiber.MethodGet, cfg.Healthcheck.Path, application.Healthcheck)
	}
	if application.Metrics.Enabled() && cfg.Metrics.Port == 0 {
		srv.Handle(fiber.MethodGet, cfg.Metrics.Path, application.Metrics.Handler())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down HTTP gateway")
	return srv.Stop()
}

func readHeaders(path string) ([]headers.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read headers file: %w", err)
	}
	var raws []headers.Raw
	if err := sonic.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse headers file %s: %w", path, err)
	}
	return raws, nil
}

func (c *CLI) printResult(res *sender.Result) error {
	data, err := sonic.Marshal(res.Summary())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.Stdout, string(data))
	return err
}

func (c *CLI) inspectPEM(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: inspect-pem takes exactly one path", ErrUsage)
	}
	path := args[0]

	warnings, err := certs.Validate(path)
	if err != nil {
		return err
	}
	list, err := certs.LoadFromFile(path)
	if err != nil {
		return err
	}

	blocks := make([]string, 0, len(list))
	for _, cert := range list {
		blocks = append(blocks, certs.Summarize(cert))
	}
	fmt.Fprintln(c.Stdout, strings.Join(blocks, "\n\n"))

	for _, w := range warnings {
		fmt.Fprintln(c.Stderr, "warning:", w.String())
	}
	return nil
}
