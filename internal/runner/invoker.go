package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	readPath  = "/api/payments"
	readAll   = "/api/payments/all"
	writePath = "/api/payments/fetch-and-save"

	// Response bodies are drained up to this size so connections can be reused.
	maxDrainBytes = 1 << 20
)

var ErrInvokerPanic = errors.New("invoker panicked")

// Invoker performs one call of a stage's operation against the target.
// Implementations classify the result but never touch the aggregator.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Outcome
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) Outcome

func (f InvokerFunc) Invoke(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}

// HTTPInvoker calls the payment service over HTTP.
type HTTPInvoker struct {
	base   *url.URL
	Client *http.Client
}

// NewHTTPInvoker fails only when baseURL cannot be used at all, which is a
// harness fault rather than a call failure.
func NewHTTPInvoker(baseURL string) (*HTTPInvoker, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &HTTPInvoker{
		base: u,
		// Per-call budgets come from the request context, not Client.Timeout.
		Client: &http.Client{Transport: t},
	}, nil
}

// Hostname returns the target host without the port, for resolution checks.
func (h *HTTPInvoker) Hostname() string {
	return h.base.Hostname()
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) Outcome {
	out := Outcome{Stage: req.Stage, SentAt: time.Now()}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := h.newRequest(ctx, req)
	if err != nil {
		out.Elapsed = time.Since(out.SentAt)
		out.Class = Failed
		out.Err = err
		return out
	}

	resp, err := h.Client.Do(httpReq)
	if err == nil {
		out.Status = resp.StatusCode
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		resp.Body.Close()
	}
	out.Elapsed = time.Since(out.SentAt)
	out.Err = err
	out.Class = Classify(req, out.Status, err)
	return out
}

func (h *HTTPInvoker) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := *h.base
	switch req.Operation {
	case OpRead:
		if req.ReadAll {
			u.Path += readAll
		} else {
			u.Path += readPath
			if req.ReadLimit > 0 {
				q := u.Query()
				q.Set("limit", strconv.Itoa(req.ReadLimit))
				u.RawQuery = q.Encode()
			}
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	case OpWrite:
		u.Path += writePath
		return http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	}
	return nil, fmt.Errorf("unsupported operation %q", req.Operation)
}

// Classify maps a call result to completed or failed: any transport error
// fails, otherwise the status must be on the request's whitelist.
func Classify(req Request, status int, err error) Class {
	if err != nil {
		return Failed
	}
	if req.Accepts(status) {
		return Completed
	}
	return Failed
}

// FailureReason gives a short, groupable description of a failed outcome.
func FailureReason(out Outcome) string {
	err := out.Err
	if err == nil {
		if out.Status != 0 {
			return "HTTP " + strconv.Itoa(out.Status)
		}
		return "unknown"
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, ErrInvokerPanic):
		return "invoker panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns lookup failed"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "connection closed"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "transport error"
}
