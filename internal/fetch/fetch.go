// Package fetch retrieves remote configuration documents over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// DefaultUserAgent is sent on every upstream request. Subscription
// providers gate responses on it, so the exact string matters.
const DefaultUserAgent = "v2rayN/6.0"

// Kind classifies a fetch failure.
type Kind int

const (
	// KindInvalidURL: the URL cannot be fetched at all (bad syntax, non-http scheme).
	KindInvalidURL Kind = iota
	// KindForbidden: the target resolves to an address the policy rejects.
	KindForbidden
	// KindTransport: DNS, TLS, connection or redirect failure.
	KindTransport
	// KindTimeout: the request did not complete in time.
	KindTimeout
	// KindStatus: upstream answered with a non-2xx status.
	KindStatus
	// KindTooLarge: the body exceeded the configured size cap.
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindForbidden:
		return "forbidden_address"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// Error describes a failed fetch. URL keeps the full address; Error()
// prints only its host, since source URLs often carry tokens.
type Error struct {
	Kind   Kind
	URL    string
	Status int // upstream status for KindStatus
	Cause  error
}

func newError(kind Kind, rawURL string, cause error) *Error {
	// *url.Error repeats the full URL in its message.
	var ue *url.Error
	if errors.As(cause, &ue) {
		cause = ue.Err
	}
	return &Error{Kind: kind, URL: rawURL, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	host := Host(e.URL)
	if host == "" {
		host = "<invalid url>"
	}
	msg := fmt.Sprintf("fetch %s: %s", host, e.Kind)
	if e.Kind == KindStatus {
		msg += fmt.Sprintf(" %d", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errRedirectBadScheme = errors.New("redirect target scheme is not http/https")
	errForbiddenAddress  = errors.New("address is in a private or reserved range")
)

// Options tune the fetcher. Zero values pick the defaults.
type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default 5 MiB
	MaxRedirects int           // default 5
	UserAgent    string        // default DefaultUserAgent
	// AllowPrivateNetworks disables the loopback/private/link-local guard.
	AllowPrivateNetworks bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 5 * 1024 * 1024
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = 5
	}
	if strings.TrimSpace(o.UserAgent) == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Fetcher issues upstream GETs. It is safe for concurrent use and keeps
// no per-request state.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New builds a Fetcher with its own transport.
func New(opts Options) *Fetcher {
	opts = opts.withDefaults()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.AllowPrivateNetworks {
		// Checked at connect time so that DNS answers are covered too.
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if addr, err := netip.ParseAddr(host); err == nil && forbiddenAddr(addr) {
				return errForbiddenAddress
			}
			return nil
		}
		// A proxy would be dialed instead of the target and defeat the guard.
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}
	return &Fetcher{client: client, opts: opts}
}

// Validate checks that rawURL is something the fetcher is willing to request.
func (f *Fetcher) Validate(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return newError(KindInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newError(KindInvalidURL, rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return newError(KindInvalidURL, rawURL, errors.New("missing host"))
	}
	if !f.opts.AllowPrivateNetworks {
		if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
			return newError(KindForbidden, rawURL, errForbiddenAddress)
		}
		if addr, err := netip.ParseAddr(host); err == nil && forbiddenAddr(addr) {
			return newError(KindForbidden, rawURL, errForbiddenAddress)
		}
	}
	return nil
}

// Fetch GETs rawURL and returns the body. The response body is closed on
// every path. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.Validate(rawURL); err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(KindInvalidURL, rawURL, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, f.classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: KindStatus, URL: rawURL, Status: resp.StatusCode}
	}

	// Read one byte past the cap to detect overflow.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, f.classify(rawURL, err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, newError(KindTooLarge, rawURL, fmt.Errorf("body exceeds %d bytes", f.opts.MaxBytes))
	}
	return body, nil
}

func (f *Fetcher) classify(rawURL string, err error) error {
	switch {
	case errors.Is(err, errForbiddenAddress):
		return newError(KindForbidden, rawURL, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, rawURL, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(KindTimeout, rawURL, err)
	}
	return newError(KindTransport, rawURL, err)
}

// Host returns the host of rawURL, or "" when it has none. Use it
// wherever a source URL would otherwise be logged.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

func forbiddenAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
