package metastore

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
)

// countLines returns the number of lines in the file at path. A trailing line without a
// newline is counted. A file that does not exist has zero lines.
func countLines(path string) (int, error) {
	fd, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer func() { _ = fd.Close() }()

	buf := make([]byte, 32*1024)
	var count int
	var last byte = '\n'
	for {
		n, err := fd.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// touch creates the file at path if it does not exist
func touch(path string) error {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	return fd.Close()
}

// appendLine writes b followed by a newline to the end of the file at path
func appendLine(path string, b []byte) error {
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return err
	}

	line := make([]byte, 0, len(b)+1)
	line = append(line, b...)
	line = append(line, '\n')
	if _, err := fd.Write(line); err != nil {
		_ = fd.Close()
		return err
	}
	return fd.Close()
}

// eachLine calls fn for every line in the file at path with the trailing newline removed.
// Iteration stops when fn returns false. Lines have no maximum length.
func eachLine(path string, fn func(i int, line []byte) bool) error {
	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = fd.Close() }()

	r := bufio.NewReader(fd)
	for i := 0; ; i++ {
		line, err := r.ReadBytes('\n')
		if len(line) != 0 {
			if !fn(i, bytes.TrimSuffix(line, []byte{'\n'})) {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// findLine returns the index of the first line equal to s
func findLine(path string, s string) (int, bool, error) {
	idx := -1
	err := eachLine(path, func(i int, line []byte) bool {
		if string(line) == s {
			idx = i
			return false
		}
		return true
	})
	return idx, idx != -1, err
}

// readLine returns a copy of the line at index
func readLine(path string, index int) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := eachLine(path, func(i int, line []byte) bool {
		if i == index {
			out = append([]byte(nil), line...)
			found = true
			return false
		}
		return true
	})
	return out, found, err
}
