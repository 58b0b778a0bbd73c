package tradfri

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	piondtls "github.com/pion/dtls/v3"
	coapdtls "github.com/plgd-dev/go-coap/v3/dtls"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

// DefaultPort is the gateway's CoAPS port.
const DefaultPort = 5684

// defaultConnectTimeout bounds one handshake when DTLSConfig leaves it unset.
const defaultConnectTimeout = 10 * time.Second

// Method is a CoAP request method.
type Method uint8

// Supported request methods.
const (
	MethodGet Method = iota + 1
	MethodPut
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPut:
		return "PUT"
	default:
		return fmt.Sprintf("Method(%d)", m)
	}
}

// Request is one CoAP exchange.
type Request struct {
	Method  Method
	Path    string
	Payload []byte
}

// Response is the gateway's answer to a Request.
type Response struct {
	Code    codes.Code
	Payload []byte
}

// Success reports whether the response code is in class 2 (2.xx).
func (r Response) Success() bool {
	return r.Code>>5 == 2
}

// Session is one encrypted session to the gateway.
//
// Send returns ErrTimeout when ctx's deadline passes before a response,
// ErrSessionReset when the session is no longer usable, or the context
// error unchanged when ctx was cancelled by the caller. Send never retries.
type Session interface {
	Send(ctx context.Context, req Request) (Response, error)

	// Done is closed when the session has terminated.
	Done() <-chan struct{}

	Close() error
}

// Dialer opens sessions. Failures wrap ErrHandshake.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DTLSConfig holds the gateway address and credentials.
type DTLSConfig struct {
	// Address is host:port of the gateway.
	Address string

	// Identity and PSK are the credentials registered with the gateway.
	Identity string
	PSK      string

	// ConnectTimeout bounds the handshake and the gateway info check.
	// Default: 10 seconds.
	ConnectTimeout time.Duration
}

// DTLSDialer dials the gateway with go-coap over pion/dtls using the
// TLS_PSK_WITH_AES_128_CCM_8 cipher suite.
type DTLSDialer struct {
	cfg DTLSConfig
}

// Ensure DTLSDialer implements Dialer.
var _ Dialer = (*DTLSDialer)(nil)

// NewDTLSDialer creates a dialer for cfg.
func NewDTLSDialer(cfg DTLSConfig) *DTLSDialer {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &DTLSDialer{cfg: cfg}
}

// Dial performs the DTLS handshake and then reads the gateway info
// resource to prove the session carries requests.
func (d *DTLSDialer) Dial(ctx context.Context) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()

	type result struct {
		conn *client.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := coapdtls.Dial(d.cfg.Address, d.dtlsConfig())
		ch <- result{conn: conn, err: err}
	}()

	var conn *client.Conn
	select {
	case <-ctx.Done():
		// The handshake goroutine still owns the connection; close it
		// whenever it turns up.
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: dial %s: %w", ErrHandshake, d.cfg.Address, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrHandshake, d.cfg.Address, r.err)
		}
		conn = r.conn
	}

	sess := &coapSession{conn: conn}
	resp, err := sess.Send(ctx, Request{Method: MethodGet, Path: PathGatewayInfo})
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: gateway info: %w", ErrHandshake, err)
	}
	if !resp.Success() {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: gateway info returned %v", ErrHandshake, resp.Code)
	}

	return sess, nil
}

func (d *DTLSDialer) dtlsConfig() *piondtls.Config {
	psk := []byte(d.cfg.PSK)
	return &piondtls.Config{
		PSK: func([]byte) ([]byte, error) {
			return psk, nil
		},
		PSKIdentityHint: []byte(d.cfg.Identity),
		CipherSuites:    []piondtls.CipherSuiteID{piondtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
}

// coapSession adapts a go-coap client connection to Session.
type coapSession struct {
	conn *client.Conn
}

func (s *coapSession) Send(ctx context.Context, req Request) (Response, error) {
	var (
		msg *pool.Message
		err error
	)

	switch req.Method {
	case MethodGet:
		msg, err = s.conn.Get(ctx, req.Path)
	case MethodPut:
		msg, err = s.conn.Put(ctx, req.Path, message.AppJSON, bytes.NewReader(req.Payload))
	default:
		return Response{}, fmt.Errorf("tradfri: unsupported method %v", req.Method)
	}
	if err != nil {
		return Response{}, classifySendError(ctx, req, err)
	}

	body, err := msg.ReadBody()
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading %s body: %w", ErrSessionReset, req.Path, err)
	}
	return Response{Code: msg.Code(), Payload: body}, nil
}

func (s *coapSession) Done() <-chan struct{} {
	return s.conn.Done()
}

func (s *coapSession) Close() error {
	return s.conn.Close()
}

// classifySendError maps a transport error onto the session error taxonomy.
// Caller cancellation is passed through so it is never counted as a timeout.
func classifySendError(ctx context.Context, req Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v %s", ErrTimeout, req.Method, req.Path)
		}
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v %s", ErrTimeout, req.Method, req.Path)
	}
	return fmt.Errorf("%w: %v %s: %w", ErrSessionReset, req.Method, req.Path, err)
}
