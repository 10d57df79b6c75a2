package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"portrpc/client"
	"portrpc/codec"
	"portrpc/loadbalance"
	"portrpc/metrics"
	"portrpc/middleware"
	"portrpc/transport"
)

type callFlags struct {
	App       string
	Command   string
	Connect   string
	WebSocket string
	Codec     string
	Timeout   time.Duration
	Balancer  string
	Origin    string
	Retry     int
	Rate      float64
	Repeat    int
}

func newCallCmd(a *app) *cobra.Command {
	var f callFlags
	cmd := &cobra.Command{
		Use:   "call [flags] METHOD [JSON_ARG]",
		Short: "Call a method of a host",
		Long: `Call METHOD with JSON_ARG (null when omitted) as its only parameter and
print the result as JSON.

The host is the one registered for --app, a command started directly with
--command, a stream socket given by --connect (tcp:HOST:PORT or unix:PATH),
or a WebSocket URL given by --websocket.

Flags go before METHOD; everything after it is taken as is, so negative
numbers need no quoting.`,
		Example: `  portrpc call --app org.example.host example.Sqrt 2
  portrpc call --command "./example-host" --repeat 10 example.Sleep 100
  portrpc call --app org.example.host example.Sqrt -2`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg any
			if len(args) > 1 {
				if err := json.Unmarshal([]byte(args[1]), &arg); err != nil {
					return errors.Wrap(err, "parse JSON argument")
				}
			}

			c, release, err := a.newClient(&f)
			if err != nil {
				return err
			}
			defer release()
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runCalls(ctx, cmd, c, args[0], arg, f.Repeat)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&f.App, "app", "", "application `ID` whose registered host is started")
	cmd.Flags().StringVar(&f.Command, "command", "", "start `\"PATH ARGS...\"` as the host")
	cmd.Flags().StringVar(&f.Connect, "connect", "", "connect to a host listening on `NETWORK:ADDRESS`")
	cmd.Flags().StringVar(&f.WebSocket, "websocket", "", "connect to a host at WebSocket `URL`")
	cmd.Flags().StringVar(&f.Codec, "codec", "json", "wire format: json or msgpack")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "fail a call after this long (0: wait forever)")
	cmd.Flags().StringVar(&f.Balancer, "balancer", "roundrobin", "host selection: roundrobin, random or affinity")
	cmd.Flags().StringVar(&f.Origin, "origin", "", "extension id passed to the host (default: first allowed by the manifest)")
	cmd.Flags().IntVar(&f.Retry, "retry", 0, "retry calls lost with their channel up to `N` times")
	cmd.Flags().Float64Var(&f.Rate, "rate", 0, "at most this many calls per second (0: unlimited)")
	cmd.Flags().IntVar(&f.Repeat, "repeat", 1, "issue the call `N` times concurrently")
	return cmd
}

func (a *app) newClient(f *callFlags) (*client.Client, func(), error) {
	ct, err := codec.ParseType(f.Codec)
	if err != nil {
		return nil, nil, err
	}
	collector := metrics.NewCollector(a.registry)

	mws := []middleware.Middleware{
		middleware.Logging(a.logger.Named("call")),
		middleware.Metrics(collector),
	}
	if f.Rate > 0 {
		mws = append(mws, middleware.RateLimitWait(f.Rate, 1))
	}
	if f.Retry > 0 {
		mws = append(mws, middleware.Retry(f.Retry, 100*time.Millisecond, client.Retryable, a.logger))
	}
	if f.Timeout > 0 {
		mws = append(mws, middleware.Timeout(f.Timeout))
	}

	opts := []client.Option{
		client.WithDebug(a.flags.Debug),
		client.WithLogger(a.logger),
		client.WithCodec(ct),
		client.WithMetrics(collector),
		client.WithOrigin(f.Origin),
		client.WithMiddleware(mws...),
	}
	release := func() {}

	targets := 0
	for _, s := range []string{f.App, f.Command, f.Connect, f.WebSocket} {
		if s != "" {
			targets++
		}
	}
	if f.Command != "" && len(strings.Fields(f.Command)) == 0 {
		return nil, nil, errors.New("--command is blank")
	}
	if targets != 1 {
		return nil, nil, errors.New("exactly one of --app, --command, --connect and --websocket is required")
	}

	appID := f.App
	switch {
	case f.Command != "":
		fields := strings.Fields(f.Command)
		appID = filepath.Base(fields[0])
		opts = append(opts, client.WithDialer(&transport.CommandDialer{Path: fields[0], Args: fields[1:]}))
	case f.Connect != "":
		network, address, ok := strings.Cut(f.Connect, ":")
		if !ok {
			return nil, nil, errors.Errorf("--connect %q is not NETWORK:ADDRESS", f.Connect)
		}
		appID = f.Connect
		opts = append(opts, client.WithDialer(&transport.NetDialer{Network: network, Address: address, Timeout: 10 * time.Second}))
	case f.WebSocket != "":
		appID = f.WebSocket
		opts = append(opts, client.WithDialer(&transport.WebSocketDialer{URL: f.WebSocket, HandshakeTimeout: 10 * time.Second, PingInterval: 30 * time.Second}))
	default:
		reg, closeRegistry, err := a.openRegistry()
		if err != nil {
			return nil, nil, err
		}
		release = closeRegistry
		bal, err := loadbalance.New(f.Balancer, f.Origin)
		if err != nil {
			release()
			return nil, nil, err
		}
		opts = append(opts, client.WithRegistry(reg), client.WithBalancer(bal))
	}

	c, err := client.NewClient(appID, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

// runCalls issues the call repeat times at once and prints every result in
// order. It fails if any call failed.
func runCalls(ctx context.Context, cmd *cobra.Command, c *client.Client, method string, arg any, repeat int) error {
	if repeat < 1 {
		repeat = 1
	}
	calls := make([]*client.Call, repeat)
	for i := range calls {
		calls[i] = c.Go(ctx, method, arg)
	}

	var failed error
	out := cmd.OutOrStdout()
	for _, call := range calls {
		<-call.Done
		var result any
		if err := call.Decode(&result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			failed = err
			continue
		}
		text, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errors.Wrap(err, "format result")
		}
		fmt.Fprintln(out, string(text))
	}
	return failed
}
