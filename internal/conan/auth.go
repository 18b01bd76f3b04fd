// Reef is a Conan package repository service.
// Copyright (C) 2025 Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package conan

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AuthConfig holds admin-endpoint authentication configuration.
type AuthConfig struct {
	// Realm for WWW-Authenticate header
	Realm string

	// HtpasswdPath is the path to htpasswd file for credential validation
	HtpasswdPath string
}

// Authenticator validates HTTP basic auth against an htpasswd file.
type Authenticator struct {
	config      AuthConfig
	credentials map[string]string // username -> hashed password
}

// NewAuthenticator creates an authenticator from the given configuration.
func NewAuthenticator(config AuthConfig) (*Authenticator, error) {
	auth := &Authenticator{
		config:      config,
		credentials: make(map[string]string),
	}

	if config.HtpasswdPath != "" {
		if err := auth.loadHtpasswd(config.HtpasswdPath); err != nil {
			return nil, fmt.Errorf("failed to load htpasswd: %w", err)
		}
	}

	return auth, nil
}

// loadHtpasswd loads credentials from an htpasswd file.
// Supports bcrypt-hashed passwords (starting with $2y$, $2a$, or $2b$).
func (a *Authenticator) loadHtpasswd(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open htpasswd file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid htpasswd format at line %d", lineNum)
		}

		username := parts[0]
		hashedPassword := parts[1]

		if !strings.HasPrefix(hashedPassword, "$2a$") &&
			!strings.HasPrefix(hashedPassword, "$2b$") &&
			!strings.HasPrefix(hashedPassword, "$2y$") {
			return fmt.Errorf("unsupported password hash at line %d (only bcrypt is supported)", lineNum)
		}

		a.credentials[username] = hashedPassword
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read htpasswd file: %w", err)
	}

	return nil
}

// Middleware wraps a handler with basic-auth validation.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			a.unauthorized(w)
			return
		}

		hashed, exists := a.credentials[username]
		if !exists {
			a.unauthorized(w)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
			a.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) unauthorized(w http.ResponseWriter) {
	realm := a.config.Realm
	if realm == "" {
		realm = "reef"
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
	http.Error(w, "authentication required", http.StatusUnauthorized)
}
