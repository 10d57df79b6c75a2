// Command example-host is a native messaging host serving example.Sqrt and
// example.Sleep. Browsers start it with the manifest path and the caller's
// extension id as arguments; both are only logged.
package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"portrpc/host"
)

var ErrSqrtOfNegative = errors.New("square root of negative number")

type ExampleBackend struct{}

func (*ExampleBackend) Sqrt(x, result *float64) error {
	if *x < 0 {
		return ErrSqrtOfNegative
	}
	*result = math.Sqrt(*x)
	return nil
}

// Sleep waits t milliseconds and returns t.
func (*ExampleBackend) Sleep(t, result *int) error {
	*result = *t
	if *t > 0 {
		time.Sleep(time.Duration(*t) * time.Millisecond)
	}
	return nil
}

func run() error {
	// stdout carries frames; zap's production config logs to stderr
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("host started", zap.Strings("args", os.Args[1:]))
	return host.Serve("example", &ExampleBackend{}, host.WithLogger(logger))
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %s\n", os.Args[0], err)
		os.Exit(1)
	}
}
