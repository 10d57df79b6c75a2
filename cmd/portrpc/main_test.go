package main

import (
	"bytes"
	"math"
	"net"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portrpc/host"
	"portrpc/transport"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHostsInstallListRemove(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "example-host")

	_, err := execute(t, "hosts", "install", "--manifest-dir", dir,
		"--name", "org.example.host", "--path", exe, "--allowed-extension", "portrpc@example.org")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "org.example.host.json"))

	out, err := execute(t, "hosts", "list", "--manifest-dir", dir, "org.example.host")
	require.NoError(t, err)
	assert.Contains(t, out, exe)
	assert.Contains(t, out, "portrpc@example.org")

	_, err = execute(t, "hosts", "remove", "--manifest-dir", dir, "org.example.host", exe)
	require.NoError(t, err)

	_, err = execute(t, "hosts", "list", "--manifest-dir", dir, "org.example.host")
	assert.Error(t, err)
}

func TestHostsInstallStdout(t *testing.T) {
	out, err := execute(t, "hosts", "install", "--stdout",
		"--name", "org.example.host", "--path", "/usr/bin/example-host", "--allowed-origin", "chrome-extension://abc/")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "org.example.host",
		"description": "",
		"path": "/usr/bin/example-host",
		"type": "stdio",
		"allowed_origins": ["chrome-extension://abc/"]
	}`, out)

	_, err = execute(t, "hosts", "install", "--stdout", "--name", "h", "--path", "/bin/h")
	assert.Error(t, err, "an allow list is required")
}

type backend struct{}

func (*backend) Sqrt(x, result *float64) error {
	if *x < 0 {
		return errors.New("square root of negative number")
	}
	*result = math.Sqrt(*x)
	return nil
}

// listenHost serves backend on a local tcp port.
func listenHost(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			h := host.New()
			if err := h.RegisterName("example", &backend{}); err != nil {
				return
			}
			go h.ServeChannel(transport.NewConnChannel(conn, 0))
		}
	}()
	return ln.Addr().String()
}

func TestCallConnect(t *testing.T) {
	addr := listenHost(t)

	out, err := execute(t, "call", "--connect", "tcp:"+addr, "example.Sqrt", "16")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	out, err = execute(t, "call", "--connect", "tcp:"+addr, "--repeat", "3", "example.Sqrt", "9")
	require.NoError(t, err)
	assert.Equal(t, "3\n3\n3\n", out)

	_, err = execute(t, "call", "--connect", "tcp:"+addr, "example.Sqrt", "-1")
	assert.EqualError(t, err, "square root of negative number")
}

func TestCallFlagsStopAtMethod(t *testing.T) {
	addr := listenHost(t)

	// --timeout after METHOD is an argument, not a flag
	_, err := execute(t, "call", "--connect", "tcp:"+addr, "example.Sqrt", "--timeout")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse JSON argument")
}

func TestCallFlagErrors(t *testing.T) {
	_, err := execute(t, "call", "example.Sqrt", "2")
	assert.Error(t, err, "a target is required")

	_, err = execute(t, "call", "--connect", "tcp:127.0.0.1:1", "--command", "cat", "m")
	assert.Error(t, err, "only one target")

	_, err = execute(t, "call", "--command", "cat", "m", "{not json")
	assert.Error(t, err)

	_, err = execute(t, "call", "--command", "cat", "--codec", "xml", "m")
	assert.Error(t, err)
}

func TestCallMissingHost(t *testing.T) {
	_, err := execute(t, "call", "--manifest-dir", t.TempDir(), "--app", "org.example.none", "m")
	assert.ErrorIs(t, err, transport.ErrUnavailable)
}
