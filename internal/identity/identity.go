// Package identity produces the opaque client identifier used to attribute
// edit locks. There is no ambient global: consumers receive a Provider at
// construction.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Provider yields a stable identifier for the current principal.
type Provider interface {
	ID() string
}

// Static is a fixed identifier, used server-side to act on behalf of the
// client named in a request.
type Static string

func (s Static) ID() string { return string(s) }

const idFileName = "client_id"

// File persists a per-install UUID under the data directory. The identifier
// is created on first use and reused for the lifetime of the install.
type File struct {
	id string
}

// NewFile loads the client identifier from dataDir, minting and persisting
// a new one if none exists yet.
func NewFile(dataDir string) (*File, error) {
	path := filepath.Join(dataDir, idFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return &File{id: id}, nil
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading client id: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("persisting client id: %w", err)
	}
	return &File{id: id}, nil
}

func (f *File) ID() string { return f.id }
