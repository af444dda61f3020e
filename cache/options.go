package cache

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultHost is the postgres host used when none is configured.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the postgres port used when none is configured.
	DefaultPort = 5432
	// DefaultDatabaseName is the database used when none is configured.
	DefaultDatabaseName = "salt_cache"
	// DefaultTableName is the table used when none is configured.
	DefaultTableName = "salt_cache"
)

// Options is the resolved connection descriptor for the postgres backends.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Table    string
}

// ResolveOptions resolves host-supplied configuration into an Options
// descriptor, falling back to the documented defaults for absent fields.
// The deprecated "passwd" key is accepted as a fallback for "password",
// and the deprecated "database" key as a fallback for "dbname". Pure
// function: opts is never modified.
func ResolveOptions(opts map[string]any) Options {
	return Options{
		Host:     optString(opts, "host", DefaultHost),
		User:     optString(opts, "user", ""),
		Password: optString(opts, "password", optString(opts, "passwd", "")),
		DBName:   optString(opts, "dbname", optString(opts, "database", DefaultDatabaseName)),
		Table:    optString(opts, "table_name", DefaultTableName),
		Port:     optInt(opts, "port", DefaultPort),
	}
}

func optString(opts map[string]any, name, fallback string) string {
	if v, ok := opts[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func optInt(opts map[string]any, name string, fallback int) int {
	v, ok := opts[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return fallback
}

// dsn renders the descriptor as a postgres connection URL. User and
// password are omitted when unset so the driver falls back to its own
// defaults (pgpass, peer auth).
func (o Options) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", o.Host, o.Port),
		Path:   "/" + o.DBName,
	}
	if o.User != "" {
		if o.Password != "" {
			u.User = url.UserPassword(o.User, o.Password)
		} else {
			u.User = url.User(o.User)
		}
	}
	return u.String()
}
