package grafana

import (
	"crypto/tls"
	"net/http"
	"time"
)

// DefaultTimeout bounds every request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*clientOpt) error

type clientOpt struct {
	httpClient         *http.Client
	timeout            time.Duration
	insecureSkipVerify bool
	userAgent          string
}

// WithHTTPClient sets the raw http client. Timeout and TLS options are
// ignored when a client is supplied.
func WithHTTPClient(c *http.Client) Option {
	return func(opt *clientOpt) error {
		opt.httpClient = c
		return nil
	}
}

// WithTimeout sets the per-request timeout. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(opt *clientOpt) error {
		if d > 0 {
			opt.timeout = d
		}
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification, for local
// stacks fronted by self-signed certificates.
func WithInsecureSkipVerify(b bool) Option {
	return func(opt *clientOpt) error {
		opt.insecureSkipVerify = b
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(opt *clientOpt) error {
		opt.userAgent = ua
		return nil
	}
}

func (o *clientOpt) buildHTTPClient() *http.Client {
	if o.httpClient != nil {
		return o.httpClient
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if o.insecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   o.timeout,
		Transport: tr,
	}
}
