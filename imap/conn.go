package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cortado-imap/imapkit/lalog"
)

var crlf = []byte("\r\n")

// wireLogBufferBytes bounds how much of the raw wire stream each Connection
// keeps available for post-mortem inspection via RecentWireBytes.
const wireLogBufferBytes = 4096

// Connection is the Connection Actor: one TCP/TLS socket to an IMAP server,
// wrapped in the serial command discipline RFC 3501 section 5.1 requires.
// Exactly one command is ever in flight; Execute enforces this with a
// weighted semaphore rather than a bare mutex so a caller's context can
// cancel a queued command instead of blocking forever behind a slow one.
type Connection struct {
	cfg     Config
	logger  *lalog.Logger
	metrics *Metrics
	id      string

	netConn net.Conn
	scanner *Scanner
	wireLog *lalog.ByteLogWriter

	sem *semaphore.Weighted

	mu           sync.Mutex
	state        ConnState
	nextTag      uint64
	capabilities []string

	subMu       sync.Mutex
	subscribers []chan Untagged
}

// Dial opens the TCP connection, performs the implicit-TLS handshake when
// Config.TLSMode is TLSRequire, reads the server greeting, and returns a
// Connection positioned in StateGreeted (or StateAuthenticated, for a
// PREAUTH greeting).
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	cfg = cfg.WithDefaults()
	id := uuid.NewString()

	host := encodeHostname(cfg.Hostname)
	addr := net.JoinHostPort(host, strconv.Itoa(int(cfg.Port)))

	dialer := net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(ioErrorKind(err), err, "")
	}

	c := &Connection{
		cfg: cfg,
		logger: &lalog.Logger{
			ComponentName: "imap.Connection",
			ComponentID:   []lalog.LoggerIDField{{Key: "id", Value: id}},
		},
		metrics: NewMetrics(),
		id:      id,
		netConn: raw,
		scanner: NewScanner(),
		wireLog: lalog.NewByteLogWriter(lalog.DiscardCloser, wireLogBufferBytes),
		sem:     semaphore.NewWeighted(1),
		state:   StateDisconnected,
	}
	c.scanner.MaxLiteral = cfg.MaxLiteralOctets
	c.scanner.Overflow = cfg.LiteralOverflowPolicy

	if cfg.TLSMode == TLSRequire {
		if err := c.upgradeTLS(host); err != nil {
			raw.Close()
			return nil, err
		}
	}

	if err := c.readGreeting(ctx); err != nil {
		c.netConn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) upgradeTLS(serverName string) error {
	conf := &tls.Config{ServerName: serverName, InsecureSkipVerify: c.cfg.InsecureSkipVerify}
	tlsConn := tls.Client(c.netConn, conf)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return newError(KindTransport, err, "")
	}
	c.netConn = tlsConn
	// Any capability list learned before this handshake might have been
	// injected by an attacker sitting in front of the real server; a
	// STARTTLS stripping attack relies on exactly that trust.
	c.mu.Lock()
	c.capabilities = nil
	c.mu.Unlock()
	return nil
}

func (c *Connection) readGreeting(ctx context.Context) error {
	resp, err := c.readOneResponse(ctx)
	if err != nil {
		return err
	}
	u, ok := resp.(*Untagged)
	if !ok || u.Kind != UntaggedStatus {
		return newError(KindProtocol, fmt.Errorf("server did not send a greeting"), "")
	}
	data := u.Payload.(ResponseStatusData)
	switch data.Status {
	case StatusOK:
		c.state = StateGreeted
	case StatusPreAuth:
		c.state = StateAuthenticated
	case StatusBye:
		c.state = StateLoggingOut
		return newError(KindProtocol, fmt.Errorf("server rejected the connection"), data.Text)
	default:
		return newError(KindProtocol, fmt.Errorf("unexpected greeting status %s", data.Status), "")
	}
	if data.Code != nil && data.Code.Name == "CAPABILITY" {
		c.capabilities = data.Code.Capabilities
	}
	return nil
}

// readOneResponse blocks until a full response has been parsed out of the
// scanner's buffer, reading more bytes from the socket as needed. Malformed
// lines are logged and skipped rather than propagated, per ParseResponse's
// own resynchronization contract.
func (c *Connection) readOneResponse(ctx context.Context) (interface{}, error) {
	for {
		resp, err := ParseResponse(c.scanner)
		if err == nil {
			c.scanner.Reclaim()
			return resp, nil
		}
		if err != ErrIncomplete {
			if _, ok := err.(*ParseError); ok {
				c.metrics.incParseErrors()
				c.logTrace(LogWarn, "discarding malformed response: %v", err)
				continue
			}
			return nil, err
		}
		if err := c.fillBuffer(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *Connection) fillBuffer(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		c.netConn.SetReadDeadline(dl)
	} else if c.cfg.CommandTimeoutSec > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(time.Duration(c.cfg.CommandTimeoutSec) * time.Second))
	} else {
		c.netConn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 4096)
	n, err := c.netConn.Read(buf)
	if n > 0 {
		c.scanner.Feed(buf[:n])
		c.metrics.addBytesRead(n)
		c.logWire(false, buf[:n])
	}
	if err != nil {
		return newError(ioErrorKind(err), err, "")
	}
	return nil
}

// ioErrorKind classifies a socket error: an expired deadline is KindTimeout,
// anything else KindTransport.
func ioErrorKind(err error) ErrorKind {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

func (c *Connection) writeBytes(ctx context.Context, b []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		c.netConn.SetWriteDeadline(dl)
	} else {
		c.netConn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.netConn.Write(b); err != nil {
		return newError(ioErrorKind(err), err, "")
	}
	c.metrics.addBytesWritten(len(b))
	c.logWire(true, b)
	return nil
}

// logWire mirrors every byte read from or written to the socket into a
// bounded ring buffer (RecentWireBytes), and additionally emits a log line at
// LogTrace — the ring buffer stays populated regardless of LogLevel so a
// command failure can still be diagnosed after the fact even when trace
// logging was off while it happened.
func (c *Connection) logWire(outbound bool, b []byte) {
	c.wireLog.Write(b)
	if c.cfg.LogLevel < LogTrace {
		return
	}
	dir := "<-"
	if outbound {
		dir = "->"
	}
	c.logger.Info(c.id, nil, "%s %s", dir, lalog.ByteArrayLogString(b))
}

// RecentWireBytes returns the most recent bytes exchanged on this connection
// (both directions, interleaved in transfer order), rendered ASCII-safe for
// diagnostics attached to a bug report or support ticket.
func (c *Connection) RecentWireBytes() []byte {
	return c.wireLog.Retrieve(true)
}

func (c *Connection) logTrace(level LogLevel, template string, args ...interface{}) {
	if c.cfg.LogLevel < level {
		return
	}
	c.logger.Info(c.id, nil, template, args...)
}

func (c *Connection) allocTag() string {
	c.mu.Lock()
	c.nextTag++
	n := c.nextTag
	c.mu.Unlock()
	return fmt.Sprintf("A%04d", n)
}

// State reports the connection's current IMAP session state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities reports the most recently learned CAPABILITY list. It is
// cleared whenever a STARTTLS upgrade completes, since RFC 3501 section
// 6.2.1 requires the client to discard cached capabilities at that point.
func (c *Connection) Capabilities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.capabilities...)
}

func (c *Connection) handleUntagged(u *Untagged) {
	switch u.Kind {
	case UntaggedCapability:
		c.mu.Lock()
		c.capabilities = u.Payload.(ResponseCapability).Capabilities
		c.mu.Unlock()
	case UntaggedStatus:
		if u.Payload.(ResponseStatusData).Status == StatusBye {
			c.mu.Lock()
			c.state = StateLoggingOut
			c.mu.Unlock()
		}
	}
	c.publish(*u)
}

func (c *Connection) applyStateTransition(verb string, t *Tagged) {
	if t.Status != StatusOK {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch verb {
	case "LOGIN", "AUTHENTICATE":
		c.state = StateAuthenticated
	case "SELECT", "EXAMINE":
		c.state = StateSelected
	case "CLOSE":
		c.state = StateAuthenticated
	case "LOGOUT":
		c.state = StateLoggingOut
	}
}

// Execute runs one Request to completion: it enforces the command's state
// class, allocates a tag, writes the command (waiting for a continuation
// before each synchronizing literal), and collects untagged responses until
// the matching tagged response arrives.
func (c *Connection) Execute(ctx context.Context, req Request) (_ *Tagged, _ []Untagged, err error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, newError(KindTimeout, err, "")
	}
	defer c.sem.Release(1)
	defer func() {
		if ierr, ok := err.(*Error); ok && (ierr.Kind == KindTransport || ierr.Kind == KindTimeout || ierr.Kind == KindProtocol) {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
		}
	}()

	c.metrics.setInFlight(1)
	defer c.metrics.setInFlight(0)
	start := time.Now()
	defer func() { c.metrics.observeCommand(req.Verb, time.Since(start).Seconds()) }()

	if !req.Class.Allows(c.State()) {
		return nil, nil, &Error{Kind: KindBadState, Err: fmt.Errorf("%s not allowed in state %s", req.Verb, c.State())}
	}

	tag := c.allocTag()
	plan := req.build(tag)

	var collected []Untagged
	for _, seg := range plan.Segments {
		if err := c.writeBytes(ctx, seg.Prefix); err != nil {
			return nil, collected, err
		}
		if seg.Literal == nil {
			continue
		}
		// Segment.Prefix ends at the literal's "{N}" marker; the CRLF that
		// completes the line (and that the server waits for before issuing
		// its "+" continuation) belongs to this write, not to the Prefix.
		if err := c.writeBytes(ctx, crlf); err != nil {
			return nil, collected, err
		}
		if err := c.awaitContinuation(ctx, &collected, req.Collect); err != nil {
			return nil, collected, err
		}
		if err := c.writeBytes(ctx, seg.Literal); err != nil {
			return nil, collected, err
		}
	}

	for {
		resp, err := c.readOneResponse(ctx)
		if err != nil {
			return nil, collected, err
		}
		switch v := resp.(type) {
		case *Tagged:
			if v.Tag != tag {
				// A tagged response for a command this actor no longer
				// tracks (the server is misbehaving, or a previous command
				// timed out client-side while still in flight); ignore it
				// rather than wedging on a tag that will never arrive.
				continue
			}
			c.applyStateTransition(req.Verb, v)
			if v.Status != StatusOK && req.Verb != "LOGOUT" {
				kind := KindCommandFailed
				if v.Status == StatusBAD {
					kind = KindProtocol
				}
				return v, collected, &Error{Kind: kind, ServerText: v.Text, Err: fmt.Errorf("%s failed: %s", req.Verb, v.Status)}
			}
			return v, collected, nil
		case *Untagged:
			c.handleUntagged(v)
			if req.Collect == nil || req.Collect[v.Kind] {
				collected = append(collected, *v)
			}
		case *Continuation:
			// A continuation outside the literal-wait above; some servers
			// emit one unsolicited around a rejected AUTHENTICATE. Nothing
			// to send back here, so it is simply dropped.
		}
	}
}

// awaitContinuation reads responses until a Continuation arrives, collecting
// any Untagged responses seen along the way. A Tagged response arriving
// instead means the server rejected the command before the literal was
// due, and is surfaced as an error instead of hanging forever.
func (c *Connection) awaitContinuation(ctx context.Context, collected *[]Untagged, want map[UntaggedKind]bool) error {
	for {
		resp, err := c.readOneResponse(ctx)
		if err != nil {
			return err
		}
		switch v := resp.(type) {
		case *Continuation:
			return nil
		case *Untagged:
			c.handleUntagged(v)
			if want == nil || want[v.Kind] {
				*collected = append(*collected, *v)
			}
		case *Tagged:
			kind := KindCommandFailed
			if v.Status == StatusBAD {
				kind = KindProtocol
			}
			return &Error{Kind: kind, ServerText: v.Text, Err: fmt.Errorf("command rejected before literal was sent")}
		}
	}
}

// StartTLS executes the STARTTLS command and, on success, upgrades the
// underlying connection in place and replaces the Scanner so that no
// plaintext bytes the server may have sent after "+OK" leak into the
// encrypted session.
func (c *Connection) StartTLS(ctx context.Context) error {
	tagged, _, err := c.Execute(ctx, EncodeStartTLS())
	if err != nil {
		return err
	}
	_ = tagged
	if err := c.upgradeTLS(encodeHostname(c.cfg.Hostname)); err != nil {
		return err
	}
	c.scanner = NewScanner()
	c.scanner.MaxLiteral = c.cfg.MaxLiteralOctets
	c.scanner.Overflow = c.cfg.LiteralOverflowPolicy
	return nil
}

// Authenticate drives the credential exchange configured in Config: LOGIN
// sends the plaintext command through the normal Execute path; PLAIN and
// XOAUTH2 drive the SASL continuation loop directly, since their
// continuations carry base64 challenge data rather than literal-sync "+".
func (c *Connection) Authenticate(ctx context.Context) error {
	switch c.cfg.AuthMethod {
	case AuthLogin:
		return c.doLogin(ctx)
	case AuthPlain, AuthXOAuth2:
		return c.doSASL(ctx)
	default:
		return &Error{Kind: KindInvalidArgument, Err: fmt.Errorf("auth method %d has no credential exchange this client can drive", c.cfg.AuthMethod)}
	}
}

func (c *Connection) doLogin(ctx context.Context) error {
	tagged, _, err := c.Execute(ctx, EncodeLogin(c.cfg.Username, c.cfg.Password))
	if err != nil {
		if ierr, ok := err.(*Error); ok && ierr.Kind == KindCommandFailed {
			return &Error{Kind: KindAuth, ServerText: ierr.ServerText, Err: fmt.Errorf("LOGIN rejected")}
		}
		return err
	}
	_ = tagged
	return nil
}

// doSASL bypasses Execute because its continuation payloads are SASL
// challenges, not literal-sync handshakes, and the response it writes back
// is a raw base64 line rather than a Plan segment.
func (c *Connection) doSASL(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return newError(KindTimeout, err, "")
	}
	defer c.sem.Release(1)

	if !ClassNotAuthenticated.Allows(c.State()) {
		return &Error{Kind: KindBadState, Err: fmt.Errorf("AUTHENTICATE not allowed in state %s", c.State())}
	}

	client, mech, err := saslClientFor(c.cfg.AuthMethod, c.cfg)
	if err != nil {
		return err
	}
	if c.cfg.AuthMethod == AuthXOAuth2 {
		if exp, ok := inspectBearerToken(c.cfg.AccessToken); ok && time.Now().After(exp) {
			c.logTrace(LogWarn, "XOAUTH2 access token appears to have expired at %s", exp)
		}
	}

	tag := c.allocTag()
	plan := EncodeAuthenticate(mech).build(tag)
	for _, seg := range plan.Segments {
		if err := c.writeBytes(ctx, seg.Prefix); err != nil {
			return err
		}
	}

	_, initial, err := client.Start()
	if err != nil {
		return &Error{Kind: KindAuth, Err: err}
	}
	pending, havePending := initial, true

	for {
		resp, err := c.readOneResponse(ctx)
		if err != nil {
			return err
		}
		switch v := resp.(type) {
		case *Continuation:
			challenge, err := decodeSASLChallenge(v.Text)
			if err != nil {
				return err
			}
			var response []byte
			if havePending {
				response, havePending = pending, false
			} else {
				response, err = client.Next(challenge)
				if err != nil {
					return &Error{Kind: KindAuth, Err: err}
				}
			}
			if err := c.writeBytes(ctx, []byte(encodeSASLResponse(response)+"\r\n")); err != nil {
				return err
			}
		case *Untagged:
			c.handleUntagged(v)
		case *Tagged:
			if v.Tag != tag {
				continue
			}
			if v.Status != StatusOK {
				return &Error{Kind: KindAuth, ServerText: v.Text, Err: fmt.Errorf("AUTHENTICATE rejected")}
			}
			c.mu.Lock()
			c.state = StateAuthenticated
			c.mu.Unlock()
			return nil
		}
	}
}

// Idle sends IDLE and, once the server's continuation grants permission,
// starts streaming untagged responses to any Subscribe-ers in the
// background. The returned stop function sends DONE and blocks until the
// server's tagged completion for IDLE arrives.
func (c *Connection) Idle(ctx context.Context) (stop func(ctx context.Context) error, err error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, newError(KindTimeout, err, "")
	}
	if !ClassAuthenticated.Allows(c.State()) {
		c.sem.Release(1)
		return nil, &Error{Kind: KindBadState, Err: fmt.Errorf("IDLE not allowed in state %s", c.State())}
	}

	tag := c.allocTag()
	plan := EncodeIdle().build(tag)
	for _, seg := range plan.Segments {
		if err := c.writeBytes(ctx, seg.Prefix); err != nil {
			c.sem.Release(1)
			return nil, err
		}
	}
	var ignored []Untagged
	if err := c.awaitContinuation(ctx, &ignored, nil); err != nil {
		c.sem.Release(1)
		return nil, err
	}

	done := make(chan struct{})
	go c.idleDrain(tag, done)

	stop = func(ctx context.Context) error {
		defer c.sem.Release(1)
		if err := c.writeBytes(ctx, EncodeDone()); err != nil {
			return err
		}
		<-done
		return nil
	}
	return stop, nil
}

func (c *Connection) idleDrain(tag string, done chan struct{}) {
	defer close(done)
	for {
		resp, err := c.readOneResponse(context.Background())
		if err != nil {
			return
		}
		switch v := resp.(type) {
		case *Untagged:
			c.handleUntagged(v)
		case *Tagged:
			if v.Tag == tag {
				return
			}
		}
	}
}

// Subscribe returns a channel of untagged responses observed from this
// point on (principally useful during Idle) and a cancel function that
// unregisters and closes it.
func (c *Connection) Subscribe() (<-chan Untagged, func()) {
	ch := make(chan Untagged, 64)
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subMu.Unlock()
	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subscribers {
			if s == ch {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

func (c *Connection) publish(u Untagged) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- u:
		default:
			// A slow subscriber drops notifications rather than stalling
			// the connection's single reader goroutine.
		}
	}
}

// Logout sends LOGOUT, waits for the server's BYE and tagged OK, then closes
// the socket.
func (c *Connection) Logout(ctx context.Context) error {
	_, _, err := c.Execute(ctx, EncodeLogout())
	closeErr := c.netConn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Close closes the underlying socket without sending LOGOUT.
func (c *Connection) Close() error {
	return c.netConn.Close()
}

// Select runs SELECT against the given mailbox.
func (c *Connection) Select(ctx context.Context, mailbox string) (*Tagged, []Untagged, error) {
	return c.Execute(ctx, EncodeSelect(mailbox))
}

// Fetch runs FETCH (or UID FETCH) and maps every returned FETCH response.
func (c *Connection) Fetch(ctx context.Context, uid bool, set SeqSet, items []string) ([]MessageSummary, error) {
	_, untagged, err := c.Execute(ctx, EncodeFetch(uid, set, items))
	if err != nil {
		return nil, err
	}
	out := make([]MessageSummary, 0, len(untagged))
	for _, u := range untagged {
		if u.Kind != UntaggedFetch {
			continue
		}
		out = append(out, MapFetch(u.Payload.(ResponseFetch)))
	}
	return out, nil
}

// Search runs SEARCH (or UID SEARCH) and returns the matched numbers.
func (c *Connection) Search(ctx context.Context, uid bool, charset string, criteria SearchCriteria) ([]uint64, error) {
	_, untagged, err := c.Execute(ctx, EncodeSearch(uid, charset, criteria))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == UntaggedSearch {
			return u.Payload.(ResponseSearch).Numbers, nil
		}
	}
	return nil, nil
}

// List runs LIST and maps every returned mailbox.
func (c *Connection) List(ctx context.Context, reference, mailbox string) ([]Mailbox, error) {
	_, untagged, err := c.Execute(ctx, EncodeList(reference, mailbox))
	if err != nil {
		return nil, err
	}
	out := make([]Mailbox, 0, len(untagged))
	for _, u := range untagged {
		if u.Kind == UntaggedList {
			out = append(out, MapList(u.Payload.(ResponseList)))
		}
	}
	return out, nil
}
