// Package snapshot creates and restores named, component-scoped
// backups of filesystem state taken before risky operations.
package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"
)

// Snapshot is a restorable, component-scoped backup. Later snapshots
// of the same component supersede earlier ones; nothing is deleted
// automatically.
type Snapshot struct {
	ID          string    `json:"id"`
	Component   string    `json:"component"`
	CreatedAt   time.Time `json:"created_at"`
	StoragePath string    `json:"storage_path"`
	Files       int       `json:"files"`
}

type metadata struct {
	Version   string    `json:"version"`
	ID        string    `json:"id"`
	Component string    `json:"component"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
}

// Store manages snapshot archives under a backup directory.
type Store struct {
	dir   string
	root  string
	paths map[string][]string
}

// Option configures a Store.
type Option func(*Store)

// WithRoot prefixes all captured and restored paths. Tests use a
// temp directory root; production uses the real filesystem.
func WithRoot(root string) Option {
	return func(s *Store) { s.root = root }
}

// WithPaths sets the component-to-glob-pattern coverage map.
func WithPaths(paths map[string][]string) Option {
	return func(s *Store) { s.paths = paths }
}

// New creates a snapshot store writing archives under dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		paths: DefaultPaths(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPaths is the stock coverage map: the state each package
// ecosystem is likely to damage during a failed transaction.
func DefaultPaths() map[string][]string {
	return map[string][]string{
		"pacman":  {"/etc/pacman.conf", "/etc/pacman.d/**"},
		"flatpak": {"/var/lib/flatpak/overrides/**"},
		"rustup":  {"~/.rustup/settings.toml"},
		"npm":     {"~/.npmrc"},
		"pip":     {"~/.config/pip/**"},
	}
}

// Create captures current state for a component into a new archive.
// Safe when no prior snapshot exists; a component with no matching
// files still yields a valid (metadata-only) snapshot.
func (s *Store) Create(component string) (Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Snapshot{}, fmt.Errorf("create backup dir: %w", err)
	}

	id := ulid.Make().String()
	name := fmt.Sprintf("%s-%s.tar.gz", component, id)
	path := filepath.Join(s.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	gzw := gzip.NewWriter(file)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	files, err := s.expand(component)
	if err != nil {
		return Snapshot{}, err
	}

	count := 0
	for _, f := range files {
		if err := s.addFile(tw, f); err != nil {
			return Snapshot{}, fmt.Errorf("archiving %s: %w", f, err)
		}
		count++
	}

	snap := Snapshot{
		ID:          id,
		Component:   component,
		CreatedAt:   time.Now().UTC(),
		StoragePath: path,
		Files:       count,
	}

	meta := metadata{
		Version:   "1",
		ID:        snap.ID,
		Component: snap.Component,
		CreatedAt: snap.CreatedAt,
		Files:     snap.Files,
	}
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	if err := addBytes(tw, "metadata.json", metaJSON); err != nil {
		return Snapshot{}, fmt.Errorf("adding metadata: %w", err)
	}

	return snap, nil
}

// Restore reverses Create: a best-effort file-level restore of the
// archived paths. Restoring twice leaves the same state as once.
func (s *Store) Restore(snap Snapshot) error {
	file, err := os.Open(snap.StoragePath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		if header.Name == "metadata.json" {
			continue
		}

		target, err := s.restoreTarget(header.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("restore dir for %s: %w", target, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
		if err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("restore %s: %w", target, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
	}
	return nil
}

// List returns all snapshots for a component, newest first.
// An empty component lists everything.
func (s *Store) List(component string) ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		snap, err := s.readMeta(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue // unreadable archive, skip
		}
		if component != "" && snap.Component != component {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Prune removes all but the newest keep snapshots per component.
// Returns the snapshots that were deleted.
func (s *Store) Prune(component string, keep int) ([]Snapshot, error) {
	if keep < 1 {
		keep = 1
	}
	snaps, err := s.List(component)
	if err != nil {
		return nil, err
	}

	perComponent := make(map[string]int)
	var removed []Snapshot
	for _, snap := range snaps { // newest first
		perComponent[snap.Component]++
		if perComponent[snap.Component] <= keep {
			continue
		}
		if err := os.Remove(snap.StoragePath); err != nil {
			return removed, fmt.Errorf("prune %s: %w", snap.ID, err)
		}
		removed = append(removed, snap)
	}
	return removed, nil
}

// Latest returns the most recent snapshot for a component.
func (s *Store) Latest(component string) (Snapshot, bool, error) {
	snaps, err := s.List(component)
	if err != nil || len(snaps) == 0 {
		return Snapshot{}, false, err
	}
	return snaps[0], true, nil
}

// expand resolves the component's glob patterns to concrete files.
func (s *Store) expand(component string) ([]string, error) {
	var files []string
	for _, pattern := range s.paths[component] {
		pattern = s.resolve(pattern)
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// resolve expands ~ and applies the store root prefix.
func (s *Store) resolve(pattern string) string {
	if strings.HasPrefix(pattern, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			pattern = filepath.Join(home, pattern[2:])
		}
	}
	if s.root != "" {
		pattern = filepath.Join(s.root, pattern)
	}
	return pattern
}

// restoreTarget maps an archive entry name back to its absolute path.
func (s *Store) restoreTarget(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	if s.root != "" {
		return filepath.Join(s.root, clean), nil
	}
	return clean, nil
}

func (s *Store) addFile(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	name := path
	if s.root != "" {
		name = strings.TrimPrefix(name, s.root)
	}
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")

	header := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(tw, file)
	return err
}

func (s *Store) readMeta(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return Snapshot{}, err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Snapshot{}, err
		}
		if header.Name != "metadata.json" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return Snapshot{}, err
		}
		var meta metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return Snapshot{}, err
		}
		return Snapshot{
			ID:          meta.ID,
			Component:   meta.Component,
			CreatedAt:   meta.CreatedAt,
			StoragePath: path,
			Files:       meta.Files,
		}, nil
	}
	return Snapshot{}, fmt.Errorf("no metadata in %s", path)
}

func addBytes(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
