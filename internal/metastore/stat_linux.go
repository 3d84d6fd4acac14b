package metastore

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// changeTime returns the inode change time of the file, which is the closest thing
// linux offers to a creation time.
func changeTime(path string, fi os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fi.ModTime()
	}
	return time.Unix(st.Ctim.Unix()).UTC()
}
