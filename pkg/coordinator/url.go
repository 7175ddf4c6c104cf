package coordinator

import (
	"net"
	"net/url"
	"strconv"

	"github.com/waftester/intelcore/pkg/defaults"
)

// WebURL builds the base URL for a web service on target:port. The scheme
// is https for 443 and 8443, http otherwise; the port is omitted when it
// is the scheme's default.
func WebURL(target string, port int) string {
	scheme, def := "http", defaults.PortHTTP
	if port == defaults.PortHTTPS || port == defaults.PortHTTPSAlt {
		scheme, def = "https", defaults.PortHTTPS
	}

	host := target
	if port != def {
		host = net.JoinHostPort(target, strconv.Itoa(port))
	} else if ip := net.ParseIP(target); ip != nil && ip.To4() == nil {
		host = "[" + target + "]"
	}
	u := url.URL{Scheme: scheme, Host: host}
	return u.String()
}
