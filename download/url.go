package download

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeTarget is returned when a download URL points at a private,
// loopback or link-local address.
var ErrUnsafeTarget = errors.New("download: URL targets a private or loopback address")

// ErrUnsafeScheme is returned for schemes other than http, https and data.
var ErrUnsafeScheme = errors.New("download: only http, https and data schemes are allowed")

// ValidateURL checks the target before any fetch. Literal IPs are checked
// directly; hostnames are resolved so internal names cannot smuggle a
// private address past the guard. DNS failures pass: the fetch itself will
// surface them with a better error.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("download: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "data" {
		return nil
	}
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("download: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrUnsafeTarget
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrUnsafeTarget
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, cidr := range privateRanges {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

var privateRanges = func() []*net.IPNet {
	blocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"::1/128",
	}
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, cidr, err := net.ParseCIDR(b)
		if err == nil {
			nets = append(nets, cidr)
		}
	}
	return nets
}()

// DecodeDataURL extracts the payload of a data: URL locally; no network
// round trip is involved.
func DecodeDataURL(rawURL string) (data []byte, mime string, err error) {
	rest, ok := strings.CutPrefix(rawURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("download: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("download: malformed data URL")
	}
	mime = meta
	b64 := false
	if v, found := strings.CutSuffix(meta, ";base64"); found {
		mime = v
		b64 = true
	}
	if mime == "" {
		mime = "text/plain"
	}
	if b64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("download: decode data URL: %w", err)
		}
		return data, mime, nil
	}
	unescaped, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("download: decode data URL: %w", err)
	}
	return []byte(unescaped), mime, nil
}
