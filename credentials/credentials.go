// Package credentials loads the shared secrets front doors use to
// authenticate inbound activities.
//
// A credentials file holds one bearer token per channel plus an optional
// default:
//
//	[default]
//	token = "shared-secret"
//
//	[http]
//	token = "http-only-secret"
//
// The file must be owner read-only (0400).
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file has overly permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// DefaultSection names the fallback token section.
const DefaultSection = "default"

// Credentials maps a channel name to its token.
type Credentials struct {
	tokens map[string]string
}

// StandardPaths returns the credential file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "workkit", "credentials.toml"))
	}
	return paths
}

// Load loads credentials from the first available standard location.
// A missing file is not an error: the returned Credentials is nil and
// lookups fall back to the environment.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions unless the file mode is 0400.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var sections map[string]struct {
		Token string `toml:"token"`
	}
	if _, err := toml.DecodeFile(path, &sections); err != nil {
		return nil, err
	}

	creds := &Credentials{tokens: make(map[string]string, len(sections))}
	for name, section := range sections {
		if section.Token != "" {
			creds.tokens[strings.ToLower(name)] = section.Token
		}
	}
	return creds, nil
}

// New builds credentials from a channel → token map. Useful for tests and
// for tokens supplied on the command line.
func New(tokens map[string]string) *Credentials {
	creds := &Credentials{tokens: make(map[string]string, len(tokens))}
	for name, token := range tokens {
		if token != "" {
			creds.tokens[strings.ToLower(name)] = token
		}
	}
	return creds
}

// Token returns the token for a channel.
// Priority: [channel] section > [default] section > WORKKIT_<CHANNEL>_TOKEN >
// WORKKIT_TOKEN. An empty result means the channel is unauthenticated.
func (c *Credentials) Token(channel string) string {
	channel = strings.ToLower(channel)
	if c != nil {
		if token := c.tokens[channel]; token != "" {
			return token
		}
		if token := c.tokens[DefaultSection]; token != "" {
			return token
		}
	}

	if token := os.Getenv(envVarForChannel(channel)); token != "" {
		return token
	}
	return os.Getenv("WORKKIT_TOKEN")
}

// envVarForChannel returns the environment variable name for a channel.
func envVarForChannel(channel string) string {
	return "WORKKIT_" + strings.ToUpper(strings.ReplaceAll(channel, "-", "_")) + "_TOKEN"
}
