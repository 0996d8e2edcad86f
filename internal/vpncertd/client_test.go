package vpncertd

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon answers one JSON line per connection using handle.
type fakeDaemon struct {
	path string
	ln   net.Listener

	mu       sync.Mutex
	requests []map[string]any
	handle   func(req map[string]any) string
}

func startFakeDaemon(t *testing.T, handle func(req map[string]any) string) *fakeDaemon {
	t.Helper()
	// Socket paths are length limited, so keep them out of the long test temp dir.
	dir, err := os.MkdirTemp("", "vcd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	d := &fakeDaemon{path: path, ln: ln, handle: handle}
	t.Cleanup(func() { ln.Close() })
	go d.serve()
	return d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			line, err := bufio.NewReader(conn).ReadBytes('\n')
			if err != nil {
				return
			}
			var req map[string]any
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			d.mu.Lock()
			d.requests = append(d.requests, req)
			d.mu.Unlock()
			reply := d.handle(req)
			if reply == "" {
				return
			}
			_, _ = io.WriteString(conn, reply+"\n")
		}(conn)
	}
}

func (d *fakeDaemon) last() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		return nil
	}
	return d.requests[len(d.requests)-1]
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func TestHealth(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string { return `{"ok":true}` })
	c := New(d.path, Options{}, quietLogger())

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "HEALTH", d.last()["op"])
}

func TestHealth_NoSocket(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"), Options{}, quietLogger())
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenKeyAndSign(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string {
		return `{"cert_pem":"CERT","key_pem_encrypted":"KEY","serial":"42","not_after":"2030-01-01T00:00:00Z"}`
	})
	c := New(d.path, Options{}, quietLogger())

	reply, err := c.GenKeyAndSign(context.Background(), IssueRequest{
		CN: "laptop-1", Profile: "client", KeyType: "rsa4096", Passphrase: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "CERT", reply.CertPEM)
	assert.Equal(t, "KEY", reply.KeyPEMEncrypted)
	assert.Equal(t, "42", reply.Serial)

	req := d.last()
	assert.Equal(t, "GENKEY_AND_SIGN", req["op"])
	assert.Equal(t, "laptop-1", req["cn"])
	assert.Equal(t, "client", req["profile"])
	assert.Equal(t, "rsa4096", req["key_type"])
	assert.Equal(t, "secret", req["passphrase"])
}

func TestDaemonErrorIsReturned(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string { return `{"err":"cn_exists_active"}` })
	c := New(d.path, Options{}, quietLogger())

	_, err := c.GenKeyAndSign(context.Background(), IssueRequest{CN: "dup"})
	require.Error(t, err)

	var de *DaemonError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "GENKEY_AND_SIGN", de.Op)
	assert.True(t, HasCode(err, "cn_exists_active"))
	assert.False(t, HasCode(err, "other"))
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestDaemonErrorsDoNotTripBreaker(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string { return `{"err":"nope"}` })
	c := New(d.path, Options{}, quietLogger())

	for i := 0; i < 10; i++ {
		err := c.Revoke(context.Background(), "1", "keyCompromise")
		require.True(t, HasCode(err, "nope"), "attempt %d: %v", i, err)
	}
}

func TestBreakerOpensAfterTransportFailures(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.sock"), Options{}, quietLogger())
	for i := 0; i < 5; i++ {
		_ = c.Health(context.Background())
	}
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestEmptyReply(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string { return " " })
	c := New(d.path, Options{}, quietLogger())

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")
}

func TestReadTimeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	d := startFakeDaemon(t, func(map[string]any) string {
		<-block
		return ""
	})
	c := New(d.path, Options{ReadTimeout: 50 * time.Millisecond}, quietLogger())

	err := c.Health(context.Background())
	require.Error(t, err)
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.True(t, ne.Timeout())
}

func TestContextCancelAbortsRead(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	d := startFakeDaemon(t, func(map[string]any) string {
		<-block
		return ""
	})
	c := New(d.path, Options{}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Health(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestListIssued(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string {
		return `{"issued":[{"serial":"7","cn":"a","profile":"client","not_after":"x"},{"serial":"9","cn":"a","profile":"client","not_after":"y","sha256":"ff"}]}`
	})
	c := New(d.path, Options{}, quietLogger())

	list, err := c.ListIssued(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "9", list[1].Serial)
	assert.Equal(t, "ff", list[1].SHA256)
}

func TestBuildBundle(t *testing.T) {
	zip := []byte("PK\x03\x04fake")
	d := startFakeDaemon(t, func(map[string]any) string {
		return `{"zip_b64":"` + base64.StdEncoding.EncodeToString(zip) + `"}`
	})
	c := New(d.path, Options{}, quietLogger())

	got, err := c.BuildBundle(context.Background(), BundleSpec{
		CN: "laptop-1", IncludeKey: true, RemoteHost: "vpn.example.org", RemotePort: 1194, Proto: "udp",
	})
	require.NoError(t, err)
	assert.Equal(t, zip, got)

	req := d.last()
	assert.Equal(t, "BUILD_BUNDLE", req["op"])
	bundle, ok := req["bundle"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "laptop-1", bundle["cn"])
	assert.Equal(t, true, bundle["include_key"])
	assert.Equal(t, float64(1194), bundle["remote_port"])
}

func TestBuildBundle_MissingZip(t *testing.T) {
	d := startFakeDaemon(t, func(map[string]any) string { return `{}` })
	c := New(d.path, Options{}, quietLogger())

	_, err := c.BuildBundle(context.Background(), BundleSpec{CN: "x"})
	assert.ErrorContains(t, err, "missing zip_b64")
}
