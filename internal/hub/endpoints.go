package hub

import (
	"fmt"
	"net/url"
	"strings"
)

// endpoints holds the HTTP and WebSocket base URLs for one hub.
type endpoints struct {
	http string
	ws   string
}

// resolve turns the configured hub address into base URLs. A bare
// host:port means plain http/ws. An explicit https:// scheme switches
// the duplex endpoint to wss.
func resolve(host string) (endpoints, error) {
	host = strings.TrimSpace(host)

	if !strings.Contains(host, "://") {
		host = strings.TrimRight(host, "/")
		if host == "" {
			return endpoints{}, fmt.Errorf("empty hub host")
		}

		return endpoints{http: "http://" + host, ws: "ws://" + host}, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return endpoints{}, fmt.Errorf("parsing hub host %q: %w", host, err)
	}

	if u.Host == "" {
		return endpoints{}, fmt.Errorf("hub host %q has no host part", host)
	}

	rest := u.Host + strings.TrimRight(u.Path, "/")

	switch u.Scheme {
	case "http":
		return endpoints{http: "http://" + rest, ws: "ws://" + rest}, nil
	case "https":
		return endpoints{http: "https://" + rest, ws: "wss://" + rest}, nil
	default:
		return endpoints{}, fmt.Errorf("unsupported hub scheme %q", u.Scheme)
	}
}

// AuthorizeURL builds the browser-facing authorize URL. Query values are
// percent-encoded, which covers ':' and '/' in both parameters.
func AuthorizeURL(host, clientID, redirectURI string) (string, error) {
	eps, err := resolve(host)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"client_id":    {clientID},
		"redirect_uri": {redirectURI},
	}

	return eps.http + "/auth/authorize?" + params.Encode(), nil
}
