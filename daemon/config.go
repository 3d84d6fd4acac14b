package daemon

import (
	"crypto/tls"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/semq"
	"github.com/kapetan-io/semq/internal"
	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/tackle/set"
)

const DefaultListenAddress = "localhost:2319"

type Config struct {
	// See ServiceConfig for a list of possible options
	semq.ServiceConfig
	// TLS is the TLS config used for public server and clients
	TLS *duh.TLSConfig
	// ListenAddress is the address:port that semq will listen on for public HTTP requests
	ListenAddress string
	// InMemoryListener when true the daemon does not listen on a network address, clients
	// connect through an in memory pipe instead. Useful for testing.
	InMemoryListener bool
	// Version is the version of semq reported by the health endpoint
	Version string
}

func (c *Config) ClientTLS() *tls.Config {
	if c.TLS != nil {
		return c.TLS.ClientTLS
	}
	return nil
}

func (c *Config) ServerTLS() *tls.Config {
	if c.TLS != nil {
		return c.TLS.ServerTLS
	}
	return nil
}

func (c *Config) SetDefaults() {
	set.Default(&c.Log, slog.Default())
	set.Default(&c.ListenAddress, DefaultListenAddress)
	set.Default(&c.MetastorePath, DefaultMetastorePath())
	set.Default(&c.PartitionMaxSize, metastore.DefaultPartitionMaxSize)
	set.Default(&c.TrashDirName, metastore.DefaultTrashDirName)
	set.Default(&c.MaxRequestsPerQueue, internal.DefaultMaxRequestsPerQueue)
	set.Default(&c.ServiceConfig.Version, c.Version)
}

// DefaultMetastorePath returns `$HOME/.semq/metastore`, or `./.semq/metastore` if
// the home directory cannot be determined.
func DefaultMetastorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".semq", "metastore")
	}
	return filepath.Join(home, ".semq", "metastore")
}
