package protocol

import (
	"fmt"
	"net/url"
)

// ChannelPath is the only websocket endpoint the backend serves.
const ChannelPath = "/ws"

// EndpointURL derives the channel URL from the dashboard origin. The
// scheme is upgraded to wss when the origin is secure and ws otherwise;
// the host is kept and the path is always ChannelPath.
func EndpointURL(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("origin %q: unsupported scheme %q", origin, u.Scheme)
	}

	endpoint := url.URL{Scheme: u.Scheme, Host: u.Host, Path: ChannelPath}
	return endpoint.String(), nil
}
