package types

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when a peer address cannot be parsed into a NodeUri.
var ErrInvalidAddress = errors.New("invalid peer address")

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// NodeUri is the canonical address of a peer. Two NodeUri values are equal
// when their canonical forms are equal, so it can be compared with == and
// used as a map key.
type NodeUri struct {
	canonical string
}

// ParseNodeUri parses and normalizes a raw peer address.
func ParseNodeUri(raw string) (NodeUri, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NodeUri{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return NodeUri{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return NodeUri{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidAddress, raw, u.Scheme)
	}
	if u.Opaque != "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return NodeUri{}, fmt.Errorf("%w: %q: only scheme, host, port and path are allowed", ErrInvalidAddress, raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return NodeUri{}, fmt.Errorf("%w: %q: missing host", ErrInvalidAddress, raw)
	}

	if strings.HasSuffix(u.Host, ":") {
		return NodeUri{}, fmt.Errorf("%w: %q: empty port", ErrInvalidAddress, raw)
	}
	port := ""
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return NodeUri{}, fmt.Errorf("%w: %q: port out of range", ErrInvalidAddress, raw)
		}
		if n != defaultPorts[scheme] {
			port = strconv.Itoa(n)
		}
	}

	hostport := host
	if strings.Contains(host, ":") {
		// IPv6 literal
		hostport = "[" + host + "]"
	}
	if port != "" {
		hostport = net.JoinHostPort(host, port)
	}

	return NodeUri{canonical: scheme + "://" + hostport + strings.TrimRight(u.EscapedPath(), "/")}, nil
}

// MustParseNodeUri is like ParseNodeUri but panics on error.
func MustParseNodeUri(raw string) NodeUri {
	uri, err := ParseNodeUri(raw)
	if err != nil {
		panic(err)
	}
	return uri
}

func (n NodeUri) String() string {
	return n.canonical
}

// Resolve appends path to the peer address.
func (n NodeUri) Resolve(path string) string {
	return n.canonical + "/" + strings.TrimLeft(path, "/")
}
