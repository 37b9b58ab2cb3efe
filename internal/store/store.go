// Package store keeps short messages on the local filesystem, one
// directory per three-digit identifier under a storage root:
//
//	<root>/<uid>/<unix-millis>.txt
//
// Each file holds the raw message text.  Two writes to the same
// identifier within one millisecond share a file name and the later one
// replaces the earlier.
package store

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	lserr "linesrv/internal/errors"
)

// ErrInvalidIdentifier is returned for identifiers that would escape the
// storage root.
var ErrInvalidIdentifier = lserr.New("invalid message identifier")

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Store is a directory-per-identifier message store.  It is safe for
// concurrent use; it holds no state besides its root.
type Store struct {
	root string

	// Now returns the time used to name message files.  Defaults to
	// time.Now.
	Now func() time.Time
}

// New returns a Store rooted at root.  The root itself is created
// lazily by the first EnsureDir.
func New(root string) *Store {
	return &Store{root: root, Now: time.Now}
}

// Root returns the storage root.
func (s *Store) Root() string { return s.root }

// Dir returns the directory holding messages for uid.
func (s *Store) Dir(uid string) string { return filepath.Join(s.root, uid) }

// EnsureDir creates the directory for uid if it does not exist yet.
// Calling it for an existing directory is not an error.
func (s *Store) EnsureDir(uid string) error {
	if err := checkUID(uid); err != nil {
		return lserr.WrapStorage("mkdir", uid, err)
	}
	dir := s.Dir(uid)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return lserr.WrapStorage("mkdir", dir, err)
	}
	return nil
}

// Write stores body as a new message for uid and returns the file path.
// The directory must already exist.  The content is written to a
// temporary file first and renamed into place, so readers never observe
// a partial message.
func (s *Store) Write(uid, body string) (string, error) {
	if err := checkUID(uid); err != nil {
		return "", lserr.WrapStorage("write", uid, err)
	}
	dir := s.Dir(uid)
	path := filepath.Join(dir, s.fileName())

	tmp, err := os.CreateTemp(dir, ".msg-*.tmp")
	if err != nil {
		return "", lserr.WrapStorage("write", dir, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return "", lserr.WrapStorage("write", tmp.Name(), err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return "", lserr.WrapStorage("chmod", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", lserr.WrapStorage("write", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", lserr.WrapStorage("rename", path, err)
	}
	return path, nil
}

func (s *Store) fileName() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return strconv.FormatInt(now().UnixMilli(), 10) + ".txt"
}

func checkUID(uid string) error {
	if uid == "" || uid == "." || uid == ".." || filepath.Base(uid) != uid {
		return ErrInvalidIdentifier
	}
	return nil
}
