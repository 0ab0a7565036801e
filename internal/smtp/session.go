package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// state is a Session's position in the CONNECT → EHLO/HELO →
// MAIL_FROM → RCPT_TO → QUIT dialogue.
type state int

const (
	stateConnect state = iota
	stateEHLO
	stateHELO
	stateMailFrom
	stateRCPTTo
	stateDone
)

func (s state) String() string {
	switch s {
	case stateConnect:
		return "CONNECT"
	case stateEHLO:
		return "EHLO"
	case stateHELO:
		return "HELO"
	case stateMailFrom:
		return "MAIL_FROM"
	case stateRCPTTo:
		return "RCPT_TO"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Dialer opens the TCP connection a Session speaks over. The default
// is net.Dialer; an optional SOCKS5 dialer lets a deployment route
// verification traffic through an egress proxy.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// NetDialer is the default plain-TCP Dialer.
type NetDialer struct {
	d net.Dialer
}

func (n *NetDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return n.d.DialContext(ctx, network, addr)
}

// Socks5Config names an optional egress proxy for the Session dialer.
type Socks5Config struct {
	Address  string
	Username string
	Password string
}

// NewSocks5Dialer wraps a SOCKS5 proxy as a Dialer. Unlike the
// teacher's fail-closed production gate, this is a pure opt-in
// transport: callers that don't configure one get NetDialer.
func NewSocks5Dialer(cfg Socks5Config) (Dialer, error) {
	var auth *proxy.Auth
	if cfg.Username != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}
	d, err := proxy.SOCKS5("tcp", cfg.Address, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("smtp: socks5 dialer: %w", err)
	}
	return socks5Dialer{d}, nil
}

type socks5Dialer struct {
	d proxy.Dialer
}

func (s socks5Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.d.Dial(network, addr)
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome is what a single Session dialogue produced: either a
// terminal Verdict (including "blocked") or a network-level failure
// the caller may treat as retryable against a different host.
type Outcome struct {
	Verdict Verdict
	Code    int // 0 when no reply was obtained for the terminal state
	Err     error
}

// Failed reports whether the session ended in a network/protocol
// error rather than a classified server reply.
func (o Outcome) Failed() bool { return o.Err != nil }

// TimeoutError names the state active when a per-step deadline fired.
type TimeoutError struct {
	State string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("smtp: timeout in state %s", e.State)
}

// Session drives one TCP conversation to one host. A Session never
// retries; it plays one dialogue to completion or failure and never
// sends DATA.
type Session struct {
	Dialer         Dialer
	Timeout        time.Duration // per-step I/O deadline, default 15s
	HeloName       string
	EnvelopeSender string
}

// NewSession returns a Session configured with the default 15s
// per-step timeout and a plain TCP dialer.
func NewSession(heloName, envelopeSender string) *Session {
	return &Session{
		Dialer:         &NetDialer{},
		Timeout:        15 * time.Second,
		HeloName:       heloName,
		EnvelopeSender: envelopeSender,
	}
}

// Run plays the verification dialogue against host:25 for recipient.
func (s *Session) Run(ctx context.Context, host, recipient string) Outcome {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := s.Dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, "25"))
	if err != nil {
		return Outcome{Err: fmt.Errorf("smtp: connect %s: %w", host, err)}
	}
	defer conn.Close()

	cur := stateConnect
	parser := NewReplyParser()

	reply, err := s.readReply(conn, parser, timeout, cur)
	if err != nil {
		return Outcome{Err: err}
	}

	if reply.Code != 220 {
		return Outcome{Verdict: Verdict{Status: StatusBlocked, Reason: fmt.Sprintf("unexpected greeting: %d %s", reply.Code, reply.Message)}, Code: reply.Code}
	}

	cur = stateEHLO
	if err := s.writeLine(conn, timeout, fmt.Sprintf("EHLO %s", s.HeloName)); err != nil {
		return Outcome{Err: err}
	}
	reply, err = s.readReply(conn, parser, timeout, cur)
	if err != nil {
		return Outcome{Err: err}
	}

	switch {
	case reply.Code == 250:
		cur = stateMailFrom
	case reply.Code == 500 || reply.Code == 502:
		cur = stateHELO
		if err := s.writeLine(conn, timeout, fmt.Sprintf("HELO %s", s.HeloName)); err != nil {
			return Outcome{Err: err}
		}
		reply, err = s.readReply(conn, parser, timeout, cur)
		if err != nil {
			return Outcome{Err: err}
		}
		if reply.Code != 250 {
			// EHLO→HELO fallback exhausted: DONE with no QUIT, per the
			// state table's action column for this transition.
			return Outcome{Verdict: blockedVerdict(reply.Code), Code: reply.Code}
		}
		cur = stateMailFrom
	default:
		return Outcome{Verdict: blockedVerdict(reply.Code), Code: reply.Code}
	}

	if err := s.writeLine(conn, timeout, fmt.Sprintf("MAIL FROM:<%s>", s.EnvelopeSender)); err != nil {
		return Outcome{Err: err}
	}
	reply, err = s.readReply(conn, parser, timeout, cur)
	if err != nil {
		return Outcome{Err: err}
	}
	if reply.Code != 250 {
		return Outcome{Verdict: blockedVerdict(reply.Code), Code: reply.Code}
	}

	cur = stateRCPTTo
	if err := s.writeLine(conn, timeout, fmt.Sprintf("RCPT TO:<%s>", recipient)); err != nil {
		return Outcome{Err: err}
	}
	reply, err = s.readReply(conn, parser, timeout, cur)
	if err != nil {
		return Outcome{Err: err}
	}

	verdict := Classify(reply.Code, reply.Message)
	return s.terminate(conn, timeout, Outcome{Verdict: verdict, Code: reply.Code})
}

// terminate sends QUIT and returns the already-decided outcome; the
// QUIT reply is drained but never changes the verdict.
func (s *Session) terminate(conn net.Conn, timeout time.Duration, outcome Outcome) Outcome {
	_ = s.writeLine(conn, timeout, "QUIT")
	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, _ = conn.Read(buf)
	return outcome
}

func blockedVerdict(code int) Verdict {
	temp := code >= 400 && code < 500
	return Verdict{Status: StatusBlocked, IsTemporary: temp, Reason: fmt.Sprintf("blocked by server: %d", code)}
}

func (s *Session) writeLine(conn net.Conn, timeout time.Duration, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

func (s *Session) readReply(conn net.Conn, parser *ReplyParser, timeout time.Duration, cur state) (Reply, error) {
	buf := make([]byte, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Reply{}, err
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return Reply{}, &TimeoutError{State: cur.String()}
			}
			return Reply{}, fmt.Errorf("smtp: read in state %s: %w", cur, err)
		}
		complete, perr := parser.Feed(buf[:n])
		if perr != nil {
			return Reply{}, fmt.Errorf("smtp: %s: %w", cur, perr)
		}
		if complete {
			return parser.Reply()
		}
		if n == 0 {
			return Reply{}, errors.New("smtp: connection closed mid-reply")
		}
	}
}
