package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const defaultPostgresPort = 5432

// ApplyURL overwrites the connection fields with the parts of a
// postgres:// or postgresql:// URL. Query parameters other than sslmode
// are passed through to the DSN unchanged.
func (c *DatabaseConfig) ApplyURL(raw string) error {
	if raw == "" {
		return errors.New("database URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("invalid database URL scheme %q (expected postgres or postgresql)", u.Scheme)
	}

	port := defaultPostgresPort
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid port in database URL: %w", err)
		}
	}

	query := u.Query()
	sslMode := query.Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	query.Del("sslmode")

	c.Host = u.Hostname()
	c.Port = port
	c.User, c.Password = "", ""
	if u.User != nil {
		c.User = u.User.Username()
		c.Password, _ = u.User.Password()
	}
	c.Database = strings.TrimPrefix(u.Path, "/")
	c.SSLMode = sslMode

	c.params = make(map[string]string, len(query))
	for key := range query {
		c.params[key] = query.Get(key)
	}
	return nil
}

// DSN returns the libpq keyword/value connection string. When URL is set
// and parses, it wins over the individual fields.
func (c *DatabaseConfig) DSN() string {
	src := c
	if c.URL != "" {
		fromURL := *c
		if err := fromURL.ApplyURL(c.URL); err == nil {
			src = &fromURL
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		src.Host, src.Port, src.User, src.Password, src.Database, src.SSLMode)

	keys := make([]string, 0, len(src.params))
	for key := range src.params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, src.params[key])
	}
	return b.String()
}
