package semq

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/semq/transport"
)

// validateQueue rejects requests without a usable queue name or with a metastore path
// which does not exist, before any queue is started.
func (s *Service) validateQueue(metastorePath, name string) error {
	if strings.TrimSpace(name) == "" {
		return transport.NewInvalidOption("invalid queue name; cannot be empty")
	}

	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return transport.NewInvalidOption("invalid queue name; '%s' must not be a path", name)
	}
	return s.validateMetastorePath(metastorePath)
}

func (s *Service) validateMetastorePath(metastorePath string) error {
	path := s.queues.MetastorePath(metastorePath)
	fi, err := os.Stat(path)
	if err != nil {
		return transport.NewInvalidOption("invalid metastore path; '%s' does not exist", filepath.Clean(path))
	}
	if !fi.IsDir() {
		return transport.NewInvalidOption("invalid metastore path; '%s' is not a directory", filepath.Clean(path))
	}
	return nil
}

// waitInterval converts the wait in seconds into the interval between attempts. Anything less
// than a second means do not wait.
func waitInterval(seconds int) time.Duration {
	if seconds < 1 {
		return metastore.NoWait
	}
	return time.Duration(seconds) * time.Second
}
