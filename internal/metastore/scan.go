package metastore

import (
	"os"
	"strings"
)

// segments is the result of scanning a queue directory for active partition files
type segments struct {
	// Names of all active partition files in ascending (oldest first) order
	Names []string
}

func (s segments) Len() int {
	return len(s.Names)
}

// Oldest is the partition file consumers read from
func (s segments) Oldest() string {
	if len(s.Names) == 0 {
		return ""
	}
	return s.Names[0]
}

// Youngest is the partition file producers write to
func (s segments) Youngest() string {
	if len(s.Names) == 0 {
		return ""
	}
	return s.Names[len(s.Names)-1]
}

// isSegment reports whether the file name is an active partition file. This is the only
// place that knows how request files and soft deleted files are told apart from segments.
func isSegment(name string) bool {
	if strings.HasPrefix(name, RequestPrefix) || strings.HasPrefix(name, DeletePrefix) {
		return false
	}
	return strings.HasSuffix(name, SegmentExt)
}

// scanSegments lists the active partition files in dir. os.ReadDir returns entries sorted
// by name which, given how segments are named, is also the order they were created.
func scanSegments(dir string) (segments, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return segments{}, err
	}

	var s segments
	for _, e := range entries {
		if e.IsDir() || !isSegment(e.Name()) {
			continue
		}
		s.Names = append(s.Names, e.Name())
	}
	return s, nil
}
