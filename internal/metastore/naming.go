package metastore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// SegmentExt is the extension every partition file carries
	SegmentExt = ".json"
	// RequestPrefix marks the request file that tracks reads of a partition file
	RequestPrefix = "req-"
	// DeletePrefix marks a partition or request file that has been soft deleted
	DeletePrefix = "del-"

	// maxNameAttempts bounds how far createSegment will walk forward looking
	// for an unused name.
	maxNameAttempts = 1_000
	filePerm        = 0o644
	dirPerm         = 0o755
)

// SegmentName returns the partition file name for the provided time. The name is the unix
// time in seconds with microsecond precision, such that names compare lexicographically in
// the order they were created. e.g. '1712345678.000123.json'
func SegmentName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d.%06d%s", t.Unix(), t.Nanosecond()/int(time.Microsecond), SegmentExt)
}

// parseSegmentName returns the time encoded in a partition file name. Names with fewer
// than six fractional digits are accepted, as older writers did not pad the fraction.
func parseSegmentName(name string) (time.Time, bool) {
	name = strings.TrimSuffix(filepath.Base(name), SegmentExt)
	sec, frac, _ := strings.Cut(name, ".")

	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	var us int64
	if frac != "" {
		us, err = strconv.ParseInt(frac+strings.Repeat("0", 6-len(frac)), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(s, us*int64(time.Microsecond)).UTC(), true
}

// createSegment creates a new empty partition file in dir and returns its path. The name is
// derived from 'now' but always sorts after 'youngest' (the current youngest segment name,
// if any). If the name is taken, the name is advanced one microsecond at a time until an
// unused name is found, so two segments never share a name.
func createSegment(dir string, now time.Time, youngest string) (string, error) {
	ts := now.UTC().Truncate(time.Microsecond)
	if t, ok := parseSegmentName(youngest); ok && !ts.After(t) {
		ts = t.Add(time.Microsecond)
	}

	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(dir, SegmentName(ts))
		fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
		if err == nil {
			return path, fd.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		ts = ts.Add(time.Microsecond)
	}
	return "", fmt.Errorf("no unused partition file name found after %d attempts in '%s'",
		maxNameAttempts, dir)
}

// requestName returns the request file path paired with the partition file path
func requestName(partitionPath string) string {
	return filepath.Join(filepath.Dir(partitionPath), RequestPrefix+filepath.Base(partitionPath))
}
