package ldap

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Default ports for the two LDAP URL schemes.
const (
	DefaultLDAPPort  = 389
	DefaultLDAPSPort = 636
)

// ServerInfoToURL converts ServerInfo to an LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return scheme + "://" + net.JoinHostPort(server.Host, strconv.Itoa(server.Port))
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL into ServerInfo. A missing
// port defaults to the scheme's standard port; any DN path is ignored.
func ParseLDAPURL(raw string) (*ServerInfo, error) {
	if raw == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	server := &ServerInfo{Host: u.Hostname()}
	switch u.Scheme {
	case "ldaps":
		server.UseTLS = true
		server.Port = DefaultLDAPSPort
	case "ldap":
		server.Port = DefaultLDAPPort
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	if server.Host == "" {
		return nil, fmt.Errorf("server host cannot be empty")
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
		server.Port = port
	}

	return server, nil
}
