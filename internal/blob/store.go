// Package blob keeps report photo bytes on an afero filesystem, one
// directory per report.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrTooLarge    = errors.New("photo too large")
	ErrEmpty       = errors.New("photo is empty")
	ErrInvalidName = errors.New("invalid blob name")
	ErrNoStore     = errors.New("no photo store configured")
)

var (
	safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	safeExt  = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

type Store struct {
	Fs       afero.Fs
	Root     string
	MaxBytes int64
}

// NewOS stores photos below root on the local disk.
func NewOS(root string, maxBytes int64) Store {
	return Store{Fs: afero.NewOsFs(), Root: root, MaxBytes: maxBytes}
}

// NewMem keeps photos in memory.
func NewMem() Store {
	return Store{Fs: afero.NewMemMapFs(), Root: "/photos"}
}

// Enabled reports whether the store has a filesystem behind it. Removal on a
// disabled store is a no-op.
func (s Store) Enabled() bool { return s.Fs != nil }

func (s Store) dir(reportID string) (string, error) {
	if !safeName.MatchString(reportID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, reportID)
	}
	return path.Join(s.Root, reportID), nil
}

func (s Store) file(reportID, filename string) (string, error) {
	dir, err := s.dir(reportID)
	if err != nil {
		return "", err
	}
	if !safeName.MatchString(filename) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return path.Join(dir, filename), nil
}

// Put writes data under a fresh name and returns that name. originalName
// only contributes its extension.
func (s Store) Put(reportID, originalName string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrNoStore
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	dir, err := s.dir(reportID)
	if err != nil {
		return "", err
	}
	if err := s.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(originalName))
	if !safeExt.MatchString(ext) {
		ext = ""
	}
	name := uuid.NewString() + ext
	if err := afero.WriteFile(s.Fs, path.Join(dir, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func (s Store) Open(reportID, filename string) (io.ReadCloser, error) {
	if !s.Enabled() {
		return nil, ErrNoStore
	}
	p, err := s.file(reportID, filename)
	if err != nil {
		return nil, err
	}
	return s.Fs.Open(p)
}

func (s Store) Read(reportID, filename string) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrNoStore
	}
	p, err := s.file(reportID, filename)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.Fs, p)
}

// Remove deletes the named files; already missing files are ignored.
func (s Store) Remove(reportID string, filenames ...string) error {
	if !s.Enabled() {
		return nil
	}
	var errs []error
	for _, name := range filenames {
		p, err := s.file(reportID, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Fs.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prune deletes every file of the report that is not listed in keep.
func (s Store) Prune(reportID string, keep []string) error {
	if !s.Enabled() {
		return nil
	}
	dir, err := s.dir(reportID)
	if err != nil {
		return err
	}
	entries, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	var stale []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := kept[e.Name()]; !ok {
			stale = append(stale, e.Name())
		}
	}
	return s.Remove(reportID, stale...)
}

// RemoveReport deletes the report directory and everything in it.
func (s Store) RemoveReport(reportID string) error {
	if !s.Enabled() {
		return nil
	}
	dir, err := s.dir(reportID)
	if err != nil {
		return err
	}
	return s.Fs.RemoveAll(dir)
}

// List returns the stored names of a report.
func (s Store) List(reportID string) ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	dir, err := s.dir(reportID)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
