package imap

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cortado-imap/imapkit/lalog"
)

// newTestConnection wires a Connection directly to one end of a net.Pipe,
// skipping Dial/TLS/the greeting so tests can script the server side byte
// for byte.
func newTestConnection(t *testing.T, state ConnState) (*Connection, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	c := &Connection{
		cfg:     Config{}.WithDefaults(),
		logger:  &lalog.Logger{ComponentName: "imap.Connection.test"},
		metrics: NewMetrics(),
		id:      "test",
		netConn: clientSide,
		scanner: NewScanner(),
		wireLog: lalog.NewByteLogWriter(lalog.DiscardCloser, wireLogBufferBytes),
		sem:     semaphore.NewWeighted(1),
		state:   state,
	}
	t.Cleanup(func() { clientSide.Close(); serverSide.Close() })
	return c, serverSide
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecuteNoopRoundTrip(t *testing.T) {
	c, server := newTestConnection(t, StateAuthenticated)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		line, err := r.ReadString('\n')
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		tag := strings.Fields(line)[0]
		server.Write([]byte(tag + " OK NOOP completed\r\n"))
	}()

	tagged, _, err := c.Execute(withTimeout(t), EncodeNoop())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tagged.Status != StatusOK {
		t.Fatalf("unexpected status: %+v", tagged)
	}
	<-done
}

func TestRecentWireBytesCapturesTraffic(t *testing.T) {
	c, server := newTestConnection(t, StateAuthenticated)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		server.Write([]byte(tag + " OK NOOP completed\r\n"))
	}()

	if _, _, err := c.Execute(withTimeout(t), EncodeNoop()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	<-done

	recent := string(c.RecentWireBytes())
	if !strings.Contains(recent, "NOOP") || !strings.Contains(recent, "OK NOOP completed") {
		t.Fatalf("expected RecentWireBytes to contain both directions of traffic, got %q", recent)
	}
}

func TestExecuteRejectsWrongState(t *testing.T) {
	c, _ := newTestConnection(t, StateGreeted)
	_, _, err := c.Execute(withTimeout(t), EncodeSelect("INBOX"))
	if err == nil {
		t.Fatal("expected an error executing SELECT before authentication")
	}
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindBadState {
		t.Fatalf("expected KindBadState, got %v (%T)", err, err)
	}
}

func TestExecuteSynchronizingLiteral(t *testing.T) {
	c, server := newTestConnection(t, StateGreeted)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		// "A0001 LOGIN "bob" {20}\r\n"
		line, err := r.ReadString('\n')
		if err != nil {
			t.Errorf("server read command line: %v", err)
			return
		}
		if !strings.Contains(line, "{20}") {
			t.Errorf("expected a 20-octet literal announcement, got %q", line)
			return
		}
		tag := strings.Fields(line)[0]
		server.Write([]byte("+ OK\r\n"))
		payload := make([]byte, 20)
		if _, err := readFull(r, payload); err != nil {
			t.Errorf("server read literal payload: %v", err)
			return
		}
		if string(payload) != `p@ss"word\withquote0` {
			t.Errorf("unexpected literal payload: %q", payload)
		}
		// consume the trailing CRLF that terminates the command line
		if _, err := r.ReadString('\n'); err != nil {
			t.Errorf("server read trailer: %v", err)
			return
		}
		server.Write([]byte(tag + " OK LOGIN completed\r\n"))
	}()

	tagged, _, err := c.Execute(withTimeout(t), EncodeLogin("bob", `p@ss"word\withquote0`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tagged.Status != StatusOK {
		t.Fatalf("unexpected status: %+v", tagged)
	}
	<-done
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestExecuteSerializesCommands(t *testing.T) {
	c, server := newTestConnection(t, StateAuthenticated)
	var order []string
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		r := bufio.NewReader(server)
		for i := 0; i < 2; i++ {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			tag := strings.Fields(line)[0]
			order = append(order, tag)
			server.Write([]byte(tag + " OK NOOP completed\r\n"))
		}
	}()

	results := make(chan error, 2)
	go func() {
		_, _, err := c.Execute(withTimeout(t), EncodeNoop())
		results <- err
	}()
	go func() {
		_, _, err := c.Execute(withTimeout(t), EncodeNoop())
		results <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	<-serverDone
	if len(order) != 2 || order[0] == order[1] {
		t.Fatalf("expected two distinct tags executed one at a time, got %v", order)
	}
}

func TestExecuteCommandFailureSurfacesServerText(t *testing.T) {
	c, server := newTestConnection(t, StateAuthenticated)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		server.Write([]byte(tag + " NO mailbox does not exist\r\n"))
	}()

	_, _, err := c.Execute(withTimeout(t), EncodeSelect("Missing"))
	if err == nil {
		t.Fatal("expected an error for the NO response")
	}
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindCommandFailed || ierr.ServerText != "mailbox does not exist" {
		t.Fatalf("unexpected error: %#v", err)
	}
	<-done
}
