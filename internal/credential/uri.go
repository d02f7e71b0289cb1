package credential

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/peternagy/tablemoins/internal/types"
)

// schemeTypes maps URI schemes to backend types.
var schemeTypes = map[string]types.BackendType{
	"postgres":   types.BackendPostgreSQL,
	"postgresql": types.BackendPostgreSQL,
	"mysql":      types.BackendMySQL,
	"redis":      types.BackendRedis,
	"rediss":     types.BackendRedis,
}

// ParseURI builds a profile from a connection URI such as
// postgres://user:pw@host:5432/db?sslmode=require or rediss://host/2.
// The password is returned separately and left out of the profile.
func ParseURI(uri string) (types.ConnectionProfile, string, error) {
	var p types.ConnectionProfile

	parsed, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return p, "", fmt.Errorf("invalid connection URI: %w", err)
	}
	backend, ok := schemeTypes[strings.ToLower(parsed.Scheme)]
	if !ok {
		return p, "", fmt.Errorf("unsupported URI scheme %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return p, "", fmt.Errorf("connection URI has no host")
	}

	p.Type = backend
	p.Host = parsed.Hostname()
	p.Port = backend.DefaultPort()
	if ps := parsed.Port(); ps != "" {
		port, err := strconv.Atoi(ps)
		if err != nil || port <= 0 || port > 65535 {
			return p, "", fmt.Errorf("invalid port %q", ps)
		}
		p.Port = port
	}
	p.Database = strings.TrimPrefix(parsed.Path, "/")
	p.Name = p.Host
	if p.Database != "" {
		p.Name += "/" + p.Database
	}

	var password string
	if parsed.User != nil {
		p.Username = parsed.User.Username()
		password, _ = parsed.User.Password()
	}

	q := parsed.Query()
	switch {
	case strings.EqualFold(parsed.Scheme, "rediss"):
		p.SSL = types.SSLConfig{Enabled: true, RejectUnauthorized: true}
	case q.Get("sslmode") != "" && q.Get("sslmode") != "disable":
		mode := q.Get("sslmode")
		p.SSL = types.SSLConfig{Enabled: true, Mode: mode, RejectUnauthorized: mode == "verify-ca" || mode == "verify-full"}
	case q.Get("tls") == "true" || q.Get("tls") == "skip-verify":
		p.SSL = types.SSLConfig{Enabled: true, RejectUnauthorized: q.Get("tls") == "true"}
	}

	return p, password, nil
}

// BuildURI renders a profile as a connection URI. Userinfo is encoded with
// url.UserPassword so spaces and reserved characters survive.
func BuildURI(p types.ConnectionProfile, password string) string {
	var b strings.Builder

	scheme := string(p.Type)
	if p.Type == types.BackendRedis && p.SSL.Enabled {
		scheme = "rediss"
	}
	b.WriteString(scheme)
	b.WriteString("://")

	if p.Username != "" || password != "" {
		if password != "" {
			b.WriteString(url.UserPassword(p.Username, password).String())
		} else {
			b.WriteString(url.User(p.Username).String())
		}
		b.WriteByte('@')
	}

	port := p.Port
	if port == 0 {
		port = p.Type.DefaultPort()
	}
	b.WriteString(net.JoinHostPort(p.Host, strconv.Itoa(port)))

	if p.Database != "" {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p.Database))
	}

	if p.SSL.Enabled {
		switch p.Type {
		case types.BackendPostgreSQL:
			mode := p.SSL.Mode
			if mode == "" {
				mode = "require"
			}
			b.WriteString("?sslmode=" + mode)
		case types.BackendMySQL:
			if p.SSL.RejectUnauthorized {
				b.WriteString("?tls=true")
			} else {
				b.WriteString("?tls=skip-verify")
			}
		}
	}
	return b.String()
}

// ExtractPasswordFromURI removes the password from uri and returns it.
// Unparseable URIs are returned unchanged.
func ExtractPasswordFromURI(uri string) (cleanURI, password string) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.User == nil {
		return uri, ""
	}
	password, ok := parsed.User.Password()
	if !ok || password == "" {
		return uri, ""
	}
	parsed.User = url.User(parsed.User.Username())
	return parsed.String(), password
}

// RedactURI replaces the password in uri with "xxxxx" for display.
func RedactURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return parsed.Redacted()
}
