package metastore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Trash soft deletes partition and request files. A deleted file is renamed with the
// DeletePrefix and either moved into the trash directory or left in place.
type Trash struct {
	// Root is the queue directory the deleted files come from
	Root string
	// Dir is the trash directory deleted files are moved into
	Dir string
	// InPlace renames deleted files within Root instead of moving them to Dir
	InPlace bool
	Log     *slog.Logger
}

// Validate returns ErrSoftDeleteMisconfigured if the trash has no way to soft delete
func (t Trash) Validate() error {
	if t.Root == "" {
		return &ErrSoftDeleteMisconfigured{Msg: "queue directory is empty"}
	}
	if !t.InPlace && t.Dir == "" {
		return &ErrSoftDeleteMisconfigured{Msg: "neither a trash directory nor in place delete was configured"}
	}
	return nil
}

// Delete soft deletes the file at path. Deleting a file that no longer exists is not an
// error, the file is considered already deleted.
func (t Trash) Delete(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.Log.Warn("soft delete target does not exist; already deleted?", "file", path)
			return nil
		}
		return err
	}

	dir := t.Dir
	if t.InPlace {
		dir = filepath.Dir(path)
	}

	dst := filepath.Join(dir, DeletePrefix+filepath.Base(path))
	err := os.Rename(path, dst)
	if errors.Is(err, fs.ErrNotExist) && !t.InPlace {
		// The trash directory was removed out from under us
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return err
		}
		err = os.Rename(path, dst)
	}
	if err != nil {
		return err
	}
	t.Log.LogAttrs(context.Background(), LevelDebugAll, "soft deleted", slog.String("file", path),
		slog.String("dest", dst))
	return nil
}

// Empty permanently removes everything that has been soft deleted
func (t Trash) Empty() error {
	if t.Dir != "" {
		if err := os.RemoveAll(t.Dir); err != nil {
			return err
		}
	}

	if !t.InPlace {
		return nil
	}

	entries, err := os.ReadDir(t.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), DeletePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(t.Root, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
