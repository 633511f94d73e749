package ldap

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ldapConn is the subset of *ldap.Conn the client uses.
type ldapConn interface {
	Bind(username, password string) error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, server *ServerInfo, cfg *ConnectionConfig) (ldapConn, error)

// client implements the Client interface over a single lazily opened
// connection. Servers are tried in configuration order.
type client struct {
	config  *ConnectionConfig
	servers []*ServerInfo
	dial    dialFunc

	mu     sync.Mutex
	conn   ldapConn
	server *ServerInfo
}

// NewClient creates a directory client. No connection is made until the
// first operation or an explicit Connect.
func NewClient(ctx context.Context, config *ConnectionConfig) (Client, error) {
	return newClient(ctx, config, dialServer)
}

func newClient(ctx context.Context, config *ConnectionConfig, dial dialFunc) (*client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.LDAPURLs) == 0 {
		return nil, fmt.Errorf("at least one LDAP URL is required")
	}

	servers := make([]*ServerInfo, 0, len(config.LDAPURLs))
	for _, u := range config.LDAPURLs {
		server, err := ParseLDAPURL(u)
		if err != nil {
			return nil, fmt.Errorf("invalid LDAP URL %q: %w", u, err)
		}
		servers = append(servers, server)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Creating new LDAP client", map[string]any{
		"ldap_urls_count": len(servers),
		"auth_method":     config.GetAuthMethod().String(),
		"start_tls":       config.StartTLS,
	})

	return &client{
		config:  config,
		servers: servers,
		dial:    dial,
	}, nil
}

// dialServer opens a connection to one server, upgrading with StartTLS when
// configured for plain ldap:// URLs.
func dialServer(ctx context.Context, server *ServerInfo, cfg *ConnectionConfig) (ldapConn, error) {
	url := ServerInfoToURL(server)
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		c   *ldap.Conn
		err error
	)
	if server.UseTLS {
		c, err = ldap.DialURL(url, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(cfg.TLSConfig))
	} else {
		c, err = ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err == nil && cfg.StartTLS {
			if err = c.StartTLS(cfg.TLSConfig); err != nil {
				c.Close()
			}
		}
	}
	if err != nil {
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s", url), true, err)
	}

	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return c, nil
}

// Connect opens and authenticates a connection if none is open yet.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connectLocked(ctx)
	return err
}

func (c *client) connectLocked(ctx context.Context) (ldapConn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		for _, server := range c.servers {
			fields := map[string]any{
				"server":  ServerInfoToURL(server),
				"attempt": attempt + 1,
			}
			LogConnectionEvent(ctx, "connection_attempt", fields)

			conn, err := c.dial(ctx, server, c.config)
			if err == nil {
				err = c.authenticate(ctx, conn, server)
				if err != nil {
					_ = conn.Close()
				}
			}
			if err != nil {
				lastErr = err
				fields["error"] = err.Error()
				LogConnectionEvent(ctx, "connection_failed", fields)
				if !IsRetryableError(err) {
					return nil, WrapError("bind", err)
				}
				continue
			}

			LogConnectionEvent(ctx, "connection_established", fields)
			c.conn, c.server = conn, server
			return conn, nil
		}

		if attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	return nil, NewConnectionError("no directory server reachable", false, lastErr)
}

// authenticate binds a fresh connection using the configured method.
func (c *client) authenticate(ctx context.Context, conn ldapConn, server *ServerInfo) error {
	method := c.config.GetAuthMethod()
	fields := map[string]any{
		"auth_method": method.String(),
		"username":    c.config.Username,
	}

	return LogOperation(ctx, Subsystem, "authentication", fields, func() error {
		switch method {
		case AuthMethodAnonymous:
			return nil
		case AuthMethodSimpleBind:
			return conn.Bind(c.config.Username, c.config.Password)
		case AuthMethodKerberos:
			return performKerberosAuth(ctx, conn, c.config, server)
		case AuthMethodExternal:
			// the TLS client certificate already authenticated us
			return conn.Bind("", "")
		default:
			return fmt.Errorf("unsupported authentication method: %s", method.String())
		}
	})
}

// Close closes the open connection, if any.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.server = nil, nil
	LogConnectionEvent(context.Background(), "connection_closed", nil)
	return err
}

// Search performs an LDAP search, reconnecting once per retry when the
// connection was lost.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	}

	var result *ldap.SearchResult
	err := LogOperation(ctx, Subsystem, "search", fields, func() error {
		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			int(req.Scope),
			int(req.DerefAliases),
			req.SizeLimit,
			int(req.TimeLimit.Seconds()),
			false,
			req.Filter,
			req.Attributes,
			nil,
		)

		return c.withRetry(ctx, func() error {
			c.mu.Lock()
			defer c.mu.Unlock()

			conn, err := c.connectLocked(ctx)
			if err != nil {
				return err
			}
			result, err = conn.Search(ldapReq)
			if err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
				_ = conn.Close()
				c.conn, c.server = nil, nil
			}
			// a size limit hit still carries the entries found so far
			if err != nil && ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil {
				return nil
			}
			return err
		})
	})
	if err != nil {
		LogLDAPError(ctx, Subsystem, "search", err, fields)
		return nil, WrapError("search", err)
	}

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
		HasMore: req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit,
	}, nil
}

// Ping reads the root DSE to check connectivity.
func (c *client) Ping(ctx context.Context) error {
	_, err := c.Search(ctx, &SearchRequest{
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"defaultNamingContext"},
		SizeLimit:  1,
		TimeLimit:  5 * time.Second,
	})
	return err
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			tflog.SubsystemDebug(ctx, Subsystem, "Retrying operation", map[string]any{
				"attempt":    attempt,
				"max_retry":  c.config.MaxRetries,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	return NewConnectionError("operation failed after retries", false, lastErr)
}
