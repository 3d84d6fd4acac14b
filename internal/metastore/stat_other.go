//go:build !linux

package metastore

import (
	"os"
	"time"
)

func changeTime(_ string, fi os.FileInfo) time.Time {
	return fi.ModTime().UTC()
}
