package transport

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultGracePeriod is how long a host may take to exit after its stdin is
// closed before it is killed.
const DefaultGracePeriod = 2 * time.Second

// CommandDialer starts the peer as a child process and talks to it over its
// stdin and stdout, the way browsers run native messaging hosts.
type CommandDialer struct {
	Path         string
	Args         []string
	Dir          string
	Env          []string  // nil means the current environment
	Stderr       io.Writer // nil means os.Stderr
	MaxFrameSize uint32
	GracePeriod  time.Duration
}

func (d *CommandDialer) Dial(ctx context.Context) (Channel, error) {
	if d.Path == "" {
		return nil, errors.Wrap(ErrUnavailable, "no host command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(d.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", d.Path, err)
	}

	// The process outlives ctx, which only bounds connection setup
	cmd := exec.Command(path, d.Args...)
	cmd.Dir = d.Dir
	cmd.Env = d.Env
	cmd.Stderr = d.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "pipe host stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "pipe host stdout")
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, errors.Wrapf(err, "start host %s", path)
	}

	grace := d.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &commandChannel{
		Channel: NewStreamChannel(stdout, stdin, d.MaxFrameSize),
		cmd:     cmd,
		grace:   grace,
		exited:  make(chan struct{}),
	}, nil
}

type commandChannel struct {
	Channel
	cmd   *exec.Cmd
	grace time.Duration

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
	killOnce sync.Once
}

// Recv reports a non-zero exit status instead of a bare EOF once the host's
// stdout is drained.
func (c *commandChannel) Recv() ([]byte, error) {
	frame, err := c.Channel.Recv()
	if err == nil {
		return frame, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if waitErr := c.wait(); waitErr != nil {
			return nil, errors.Wrap(waitErr, "host exited")
		}
	} else {
		// Reaping must wait until reads are done, which is now
		go c.wait()
	}
	return nil, err
}

// Close closes stdin so a well-behaved host exits, and kills it after the
// grace period otherwise.
func (c *commandChannel) Close() error {
	err := c.Channel.Close()
	c.killOnce.Do(func() {
		go func() {
			timer := time.NewTimer(c.grace)
			defer timer.Stop()
			select {
			case <-c.exited:
			case <-timer.C:
				_ = c.cmd.Process.Kill()
			}
		}()
	})
	return err
}

func (c *commandChannel) wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
		close(c.exited)
	})
	return c.waitErr
}
