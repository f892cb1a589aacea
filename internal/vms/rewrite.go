package vms

import (
	"net"
	"net/url"
)

// URLRewriteFunc rewrites a provider-facing URL into a client-facing one.
// Deployments where the VMS lives behind a docker network or NAT configure
// a rewrite so browser-visible URLs point at a reachable host.
type URLRewriteFunc func(rawURL string) string

// IdentityRewrite returns URLs unchanged
func IdentityRewrite(rawURL string) string {
	return rawURL
}

// HostRewrite replaces loopback hostnames with the given public host,
// keeping scheme, port and path. Non-loopback hosts pass through.
func HostRewrite(publicHost string) URLRewriteFunc {
	if publicHost == "" {
		return IdentityRewrite
	}

	return func(rawURL string) string {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return rawURL
		}

		hostname := u.Hostname()
		if hostname != "localhost" && hostname != "127.0.0.1" {
			return rawURL
		}

		if port := u.Port(); port != "" {
			u.Host = net.JoinHostPort(publicHost, port)
		} else {
			u.Host = publicHost
		}
		return u.String()
	}
}
