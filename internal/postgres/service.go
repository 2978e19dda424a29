// Package postgres resolves libpq service definitions from pg_service.conf
// into keyword/value connection strings.
package postgres

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgservicefile"
)

var (
	ErrNoServiceFile  = errors.New("no pg_service.conf found")
	ErrUnknownService = errors.New("unknown service")
)

// keyword order used when rendering a connection string; any other
// parameters follow in lexical order
var leadingKeys = []string{"host", "port", "dbname", "user", "password", "sslmode"}

// Service is one [section] of a service file
type Service struct {
	Name   string
	Params map[string]string
}

// Get returns the value of a connection parameter, or "" when unset
func (s Service) Get(key string) string {
	return s.Params[key]
}

// ConnString renders the service as a libpq keyword/value string.
// sslmode defaults to disable.
func (s Service) ConnString() string {
	params := make(map[string]string, len(s.Params)+1)
	for k, v := range s.Params {
		if v != "" {
			params[k] = v
		}
	}
	if _, ok := params["sslmode"]; !ok {
		params["sslmode"] = "disable"
	}

	var rest []string
	for k := range params {
		if !slices.Contains(leadingKeys, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)

	var b strings.Builder
	for _, k := range append(slices.Clone(leadingKeys), rest...) {
		v, ok := params[k]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quote(v))
	}
	return b.String()
}

// Parse reads service definitions in file order. Parameter names are
// lowercased.
func Parse(r io.Reader) ([]Service, error) {
	sf, err := pgservicefile.ParseServicefile(r)
	if err != nil {
		return nil, err
	}
	services := make([]Service, 0, len(sf.Services))
	for _, svc := range sf.Services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			return nil, errors.New("empty service name")
		}
		params := make(map[string]string, len(svc.Settings))
		for k, v := range svc.Settings {
			params[strings.ToLower(k)] = v
		}
		services = append(services, Service{Name: name, Params: params})
	}
	return services, nil
}

// Find returns the service called name
func Find(services []Service, name string) (Service, error) {
	for _, s := range services {
		if s.Name == name {
			return s, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
}

// ServiceFile locates the service file the way libpq does: PGSERVICEFILE,
// then the per-user file, then the system-wide locations.
func ServiceFile() (string, error) {
	var candidates []string
	if p := os.Getenv("PGSERVICEFILE"); p != "" {
		candidates = append(candidates, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pg_service.conf"))
	}
	if dir := os.Getenv("PGSYSCONFDIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "pg_service.conf"))
	}
	candidates = append(candidates,
		"/etc/postgresql-common/pg_service.conf",
		"/etc/pg_service.conf",
	)

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNoServiceFile
}

// Resolve loads the service file and returns the named service
func Resolve(name string) (Service, error) {
	path, err := ServiceFile()
	if err != nil {
		return Service{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Service{}, err
	}
	defer f.Close()

	services, err := Parse(f)
	if err != nil {
		return Service{}, fmt.Errorf("%s: %w", path, err)
	}
	return Find(services, name)
}

// Exists reports whether a service file can be found
func Exists() bool {
	_, err := ServiceFile()
	return err == nil
}

func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
