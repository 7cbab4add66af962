// Package security decides which urls sleuth may fetch on behalf of the model.
package security

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// URLPolicy restricts the pages a scraper fetches. Urls come from model
// output, so local targets are refused unless allowed.
type URLPolicy struct {
	// AllowHTTP permits plain http urls. https is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback, private and link-local targets.
	AllowLocalNetworks bool
}

// DefaultScrapePolicy allows public http and https pages.
func DefaultScrapePolicy() URLPolicy {
	return URLPolicy{AllowHTTP: true}
}

type RejectedURLError struct {
	URL    string
	Reason string
}

func (e *RejectedURLError) Error() string {
	return fmt.Sprintf("refusing to fetch %s: %s", e.URL, e.Reason)
}

// Validate parses rawURL and checks it against the policy. Host names are
// not resolved, only ip literals and well-known local names are refused.
func (p URLPolicy) Validate(rawURL string) (*url.URL, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid url")
	}
	reject := func(format string, args ...interface{}) (*url.URL, error) {
		return nil, &RejectedURLError{URL: rawURL, Reason: fmt.Sprintf(format, args...)}
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return reject("http is not allowed")
		}
	default:
		return reject("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return reject("no host")
	}

	if !p.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return reject("local host name %q", host)
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return u, nil
	}
	if addr.Zone() != "" && !p.AllowLocalNetworks {
		return reject("zoned address %q", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return reject("address %q", host)
	}
	if !p.AllowLocalNetworks &&
		(addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		return reject("local network address %q", host)
	}

	return u, nil
}
