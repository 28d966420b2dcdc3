// Package http implements fetch.Transport on top of net/http.
package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/glorpus-work/fanfetch/pkg/auth"
	"github.com/glorpus-work/fanfetch/pkg/errors"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

// DefaultMaxRedirects is used when Settings.MaxRedirects is zero.
const DefaultMaxRedirects = 10

// DefaultUserAgent is sent when neither the request nor the settings name one.
const DefaultUserAgent = "fanfetch/1.0"

// AcceptEncoding lists the content codings the transport decodes.
const AcceptEncoding = "gzip, deflate, br, zstd"

const readChunkSize = 32 * 1024

// Settings configure a Transport.
type Settings struct {
	// Timeout bounds a whole exchange including the body. Zero means no limit.
	Timeout   time.Duration
	UserAgent string
	// RootCAs replaces the system roots when set.
	RootCAs *x509.CertPool
	// Credentials are the per-host credentials tried once when a challenge is
	// answered with fetch.PerformDefault.
	Credentials  *auth.Store
	MaxRedirects int
}

// Transport performs transfers for fetch operations.
type Transport struct {
	settings Settings
	jar      http.CookieJar
}

var _ fetch.Transport = (*Transport)(nil)

// NewTransport creates a new Transport.
func NewTransport(settings Settings) *Transport {
	if settings.MaxRedirects <= 0 {
		settings.MaxRedirects = DefaultMaxRedirects
	}
	if settings.UserAgent == "" {
		settings.UserAgent = DefaultUserAgent
	}
	// cookiejar.New only fails on a broken PublicSuffixList.
	jar, _ := cookiejar.New(nil)
	return &Transport{settings: settings, jar: jar}
}

// Transfer implements fetch.Transport.
func (t *Transport) Transfer(ctx context.Context, req *fetch.Request, opts fetch.Options, sink fetch.Sink) error {
	if req == nil || req.URL == nil {
		return fetch.ErrNilURL
	}

	rt := t.roundTripper(ctx, sink)
	defer rt.CloseIdleConnections()

	client := &http.Client{
		Transport: rt,
		Timeout:   t.settings.Timeout,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) > t.settings.MaxRedirects {
				return errors.Wrapf(errors.ErrTooManyRedirects, "stopped after %d redirects", t.settings.MaxRedirects)
			}
			return sink.Redirect(next, via)
		},
	}
	if opts.Has(fetch.OptionHandleCookies) {
		client.Jar = t.jar
	}

	hreq, err := t.newRequest(ctx, req, opts)
	if err != nil {
		return err
	}

	resp, err := t.do(ctx, client, hreq, sink)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return t.deliver(resp, sink)
}

func (t *Transport) newRequest(ctx context.Context, req *fetch.Request, opts fetch.Options) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", t.settings.UserAgent)
	}
	if hreq.Header.Get("Accept-Encoding") == "" {
		hreq.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	if !opts.Has(fetch.OptionUseCache) {
		hreq.Header.Del("If-None-Match")
		hreq.Header.Del("If-Modified-Since")
		hreq.Header.Set("Cache-Control", "no-cache")
	}
	return hreq, nil
}

// do sends hreq and answers 401 challenges until a response can be handed to
// the sink.
func (t *Transport) do(ctx context.Context, client *http.Client, hreq *http.Request, sink fetch.Sink) (*http.Response, error) {
	origin := hreq.URL
	failures := 0
	triedDefault := false
	for {
		resp, err := client.Do(hreq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrapf(err, "failed to fetch %s", hreq.URL.Redacted())
		}

		scheme := challengeScheme(resp)
		if resp.StatusCode != http.StatusUnauthorized || scheme == "" {
			return resp, nil
		}

		host := resp.Request.URL.Host
		disp := sink.Challenge(ctx, fetch.Challenge{
			Kind:             fetch.ChallengeHTTPAuth,
			Host:             host,
			Scheme:           scheme,
			PreviousFailures: failures,
		})

		var cred auth.Authenticator
		switch disp.Action {
		case fetch.CancelChallenge:
			resp.Body.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.ErrChallengeCancelled
		case fetch.UseCredential:
			cred = disp.Credential
		}
		if cred == nil && !triedDefault {
			triedDefault = true
			cred, _ = t.settings.Credentials.Lookup(host)
			if cred == nil && host == origin.Host {
				cred, _ = auth.FromURL(origin)
			}
		}
		if cred == nil {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, readChunkSize))
		resp.Body.Close()

		// resp.Request carries the headers left after redirect stripping.
		next := resp.Request.Clone(ctx)
		if err := cred.Apply(next); err != nil {
			return nil, errors.Wrap(err, "failed to apply credential")
		}
		hreq = next
		failures++
	}
}

func (t *Transport) deliver(resp *http.Response, sink fetch.Sink) error {
	body, decoded, err := decodeBody(resp)
	if err != nil {
		return err
	}
	if decoded {
		defer body.Close()
	}

	length := resp.ContentLength
	if decoded {
		length = -1
	}
	header := resp.Header.Clone()
	if decoded {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
	}
	if err := sink.Response(&fetch.Response{
		StatusCode:    resp.StatusCode,
		Header:        header,
		ContentLength: length,
		URL:           resp.Request.URL,
	}); err != nil {
		return err
	}

	buf := make([]byte, readChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := sink.Data(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errors.Wrap(rerr, "failed to read response body")
		}
	}
}

// roundTripper builds a transport whose certificate checks are routed through
// sink as server trust challenges.
func (t *Transport) roundTripper(ctx context.Context, sink fetch.Sink) *http.Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DisableCompression = true
	base.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Verification happens in VerifyConnection so failures can be challenged.
		InsecureSkipVerify: true, //nolint:gosec
		VerifyConnection: func(cs tls.ConnectionState) error {
			verr := t.verifyChain(cs)
			if verr == nil {
				return nil
			}
			disp := sink.Challenge(ctx, fetch.Challenge{
				Kind: fetch.ChallengeServerTrust,
				Host: cs.ServerName,
				Err:  verr,
			})
			if disp.Action == fetch.UseCredential {
				return nil
			}
			return verr
		},
	}
	return base
}

func (t *Transport) verifyChain(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return fmt.Errorf("tls: server presented no certificates")
	}
	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Roots:         t.settings.RootCAs,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}

// challengeScheme returns the first auth scheme named by WWW-Authenticate.
func challengeScheme(resp *http.Response) string {
	v := strings.TrimSpace(resp.Header.Get("Www-Authenticate"))
	if v == "" {
		return ""
	}
	scheme, _, _ := strings.Cut(v, " ")
	return strings.TrimSuffix(scheme, ",")
}
