// Package config loads the server's flat KEY=VALUE configuration file.
// Parsing the file is explicitly an external collaborator to the
// command-and-durability core (the core only ever sees the resulting
// struct), but a complete repository needs a concrete loader, so this
// package provides one using go-ini/ini.
package config

import (
	"fmt"
	"strings"

	"github.com/go-ini/ini"
)

// DefaultFile is the config path used when none is given on the command
// line.
const DefaultFile = "bdb.conf"

// Config is the full set of fields the core consumes.
type Config struct {
	ListenLocal   bool
	ListenNetwork bool
	InetAddr      string
	SockAddr      string
	DBFile        string
	WALFile       string
}

// defaults mirrors the original implementation's Default impl.
func defaults() Config {
	return Config{
		ListenLocal:   true,
		ListenNetwork: true,
		InetAddr:      "127.0.0.1:1234",
		SockAddr:      "bdb.sock",
		DBFile:        "bdb.db",
		WALFile:       "bdb.wal",
	}
}

// Load reads path as a flat KEY=VALUE file (blank lines and #-prefixed
// comments ignored) and overlays recognized keys onto the defaults. A
// missing file is not an error: Load silently returns the defaults, just
// as the original hand-rolled parser did by treating a failed read as an
// empty config body.
func Load(path string) (Config, error) {
	cfg := defaults()

	// ini.Load never sees section headers in this file format, so every
	// key lands in the implicit DEFAULT section — which is exactly what a
	// flat KEY=VALUE file is.
	iniFile, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowBooleanKeys: true}, path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	section := iniFile.Section("")

	if key := section.Key("DB_FILE"); key.String() != "" {
		cfg.DBFile = key.String()
	}
	if key := section.Key("WAL_FILE"); key.String() != "" {
		cfg.WALFile = key.String()
	}
	if key := section.Key("LISTEN_LOCAL"); key.String() != "" {
		cfg.ListenLocal = parseBool(key.String())
	}
	if key := section.Key("LISTEN_NETWORK"); key.String() != "" {
		cfg.ListenNetwork = parseBool(key.String())
	}
	if key := section.Key("INET_ADDRESS"); key.String() != "" {
		cfg.InetAddr = key.String()
	}
	if key := section.Key("UNIX_SOCKET"); key.String() != "" {
		cfg.SockAddr = key.String()
	}

	if !cfg.ListenLocal && !cfg.ListenNetwork {
		return Config{}, fmt.Errorf("config: must listen on at least one channel: local or network")
	}

	return cfg, nil
}

// parseBool mirrors the original's `val.to_lowercase().parse().unwrap_or(false)`:
// an unrecognized value is simply false, never an error.
func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
