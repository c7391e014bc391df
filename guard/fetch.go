package guard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	oasis "github.com/nevindra/clawgate"
)

const defaultMaxRedirects = 3

var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
	"0.0.0.0/8",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("guard: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivateIP reports whether ip falls inside any blocked private, loopback,
// or link-local range. An IP that fails to parse is treated as private
// (fail closed).
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver is the subset of *net.Resolver SafeFetch/ValidateURL need;
// satisfied by net.DefaultResolver and mockable in tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ValidateURL parses rawURL, resolves its host, and rejects it if it is not
// http(s) or if any resolved address is private. A hostname resolving to
// multiple addresses is rejected if any one of them is private, since an
// attacker-controlled DNS response could otherwise rebind past a
// first-address-only check.
func ValidateURL(ctx context.Context, resolver Resolver, rawURL string) *oasis.Error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return oasis.NewInvalidArgument("could not parse URL", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return oasis.NewForbidden("only http/https URLs are allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return oasis.NewInvalidArgument("URL has no host", rawURL)
	}

	if literal := net.ParseIP(host); literal != nil {
		if IsPrivateIP(literal) {
			return oasis.NewForbidden("URL resolves to a private address", host)
		}
		return nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return oasis.NewForbidden("could not resolve host", host)
	}
	if len(addrs) == 0 {
		return oasis.NewForbidden("host resolved to no addresses", host)
	}
	for _, a := range addrs {
		if IsPrivateIP(a.IP) {
			return oasis.NewForbidden("URL resolves to a private address", fmt.Sprintf("%s -> %s", host, a.IP))
		}
	}
	return nil
}

// crossOriginHeaders are stripped from outbound requests whenever a
// redirect changes scheme, host, or port, so credentials destined for the
// original origin can never leak to a different one.
var crossOriginHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

func stripCrossOriginHeaders(req *http.Request, via []*http.Request) {
	if len(via) == 0 {
		return
	}
	original := via[0].URL
	if req.URL.Scheme == original.Scheme && req.URL.Host == original.Host {
		return
	}
	for _, h := range crossOriginHeaders {
		req.Header.Del(h)
	}
}

// SafeFetch performs an HTTP GET against rawURL, re-validating every
// redirect hop against the private-IP blocklist and stripping
// credential-bearing headers on cross-origin hops. maxRedirects <= 0 uses
// defaultMaxRedirects.
func SafeFetch(ctx context.Context, client *http.Client, resolver Resolver, rawURL string, maxRedirects int) (*http.Response, *oasis.Error) {
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	if client == nil {
		client = http.DefaultClient
	}

	if err := ValidateURL(ctx, resolver, rawURL); err != nil {
		return nil, err
	}

	seen := map[string]bool{rawURL: true}
	httpClient := &http.Client{
		Transport: client.Transport,
		Jar:       client.Jar,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			loc := req.URL.String()
			if seen[loc] {
				return fmt.Errorf("redirect loop detected at %s", loc)
			}
			seen[loc] = true
			if verr := ValidateURL(req.Context(), resolver, loc); verr != nil {
				return fmt.Errorf("redirect target failed validation: %s", verr.Message)
			}
			stripCrossOriginHeaders(req, via)
			return nil
		},
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if reqErr != nil {
		return nil, oasis.NewInvalidArgument("could not build request", reqErr.Error())
	}

	resp, doErr := httpClient.Do(req)
	if doErr != nil {
		return nil, oasis.NewConnectionFailed("fetch failed", doErr.Error())
	}
	return resp, nil
}
