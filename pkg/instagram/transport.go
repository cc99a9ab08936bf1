package instagram

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	tls2 "github.com/refraction-networking/utls"
)

// newTransport builds the HTTP transport for a client. With fingerprint set
// and no proxy, TLS handshakes present Chrome's ClientHello. A proxied
// transport always uses the standard TLS stack, because net/http hands the
// custom dialer the proxy address rather than the target's.
func newTransport(proxy *url.URL, fingerprint bool, headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout

	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
		return t
	}
	t.Proxy = nil

	if fingerprint {
		t.DialTLSContext = dialChromeTLS
		t.ForceAttemptHTTP2 = false
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return t
}

// dialChromeTLS opens a TLS connection with a Chrome fingerprint. ALPN is
// pinned to http/1.1 since the connection is driven by net/http's HTTP/1 client.
func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		rawConn.Close()
		return nil, err
	}

	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("chrome hello spec: %w", err)
	}
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *tls2.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *tls2.ApplicationSettingsExtension:
			e.SupportedProtocols = []string{"http/1.1"}
		case *tls2.ApplicationSettingsExtensionNew:
			e.SupportedProtocols = []string{"http/1.1"}
		}
	}

	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("apply chrome hello: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
