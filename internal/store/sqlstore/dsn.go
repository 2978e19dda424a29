package sqlstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kartoza/kartoza-nl2sql/internal/postgres"
)

// Endpoint holds the discrete connection settings from which a DSN is built
type Endpoint struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Service names a pg_service.conf entry (postgres only)
	Service string
	// Path is the database file for sqlite; ":memory:" for an in-memory db
	Path    string
	SSLMode string
}

// BuildDSN assembles the driver-specific DSN for e
func BuildDSN(e Endpoint) (string, error) {
	switch strings.ToLower(e.Driver) {
	case "mysql", "":
		if e.Host == "" {
			return "", fmt.Errorf("mysql: host is required")
		}
		port := e.Port
		if port == 0 {
			port = 3306
		}
		return MySQLDSN(e.Host, port, e.User, e.Password, e.Database), nil

	case "postgres", "postgresql", "pg":
		if e.Service != "" {
			svc, err := postgres.Resolve(e.Service)
			if err != nil {
				return "", err
			}
			return svc.ConnString(), nil
		}
		if e.Host == "" {
			return "", fmt.Errorf("postgres: host or service is required")
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   e.Host,
			Path:   "/" + e.Database,
		}
		if e.Port != 0 {
			u.Host = e.Host + ":" + strconv.Itoa(e.Port)
		}
		if e.User != "" {
			u.User = url.UserPassword(e.User, e.Password)
			if e.Password == "" {
				u.User = url.User(e.User)
			}
		}
		sslMode := e.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
		return u.String(), nil

	case "sqlite", "sqlite3":
		if e.Path == "" {
			return "", fmt.Errorf("sqlite: path is required")
		}
		return e.Path, nil

	default:
		return "", fmt.Errorf("unsupported SQL driver %q", e.Driver)
	}
}
