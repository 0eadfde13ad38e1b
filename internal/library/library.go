// Package library reads and writes the TOML game library that stands in for
// the host application's database.
package library

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Error variables for library errors
var (
	// ErrLibraryNotFound is returned when the library file does not exist
	ErrLibraryNotFound = errors.New("library file not found")
	// ErrInvalidEntryID is returned when an entry id is not a UUID
	ErrInvalidEntryID = errors.New("entry id is not a valid UUID")
	// ErrDuplicateEntryID is returned when two entries share an id
	ErrDuplicateEntryID = errors.New("duplicate entry id")
	// ErrEntryNotFound is returned when no entry matches a reference
	ErrEntryNotFound = errors.New("entry not found")
	// ErrAmbiguousEntry is returned when a name matches more than one entry
	ErrAmbiguousEntry = errors.New("entry name is ambiguous")
)

// Link is a named external link of an entry
type Link struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Entry is one game in the library
type Entry struct {
	// ID is a UUID, stable across renames
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	Version     string   `toml:"version,omitempty"`
	Tags        []string `toml:"tags,omitempty"`
	Platforms   []string `toml:"platforms,omitempty"`
	Description string   `toml:"description,omitempty"`
	// ReleaseDate is YYYY-MM-DD; YYYY-MM and YYYY are accepted as partial dates
	ReleaseDate string `toml:"release_date,omitempty"`
	Icon        string `toml:"icon,omitempty"`
	Cover       string `toml:"cover,omitempty"`
	Background  string `toml:"background,omitempty"`
	Links       []Link `toml:"link,omitempty"`
}

func (e Entry) String() string {
	return e.Name
}

// libraryFile matches the on-disk layout: an array of [[game]] tables
type libraryFile struct {
	Games []Entry `toml:"game"`
}

// Library is a loaded library document
type Library struct {
	path  string
	Games []Entry
	dirty bool
}

// New creates an empty library that will be saved at path
func New(path string) *Library {
	return &Library{path: path}
}

// Load reads the library at path. Entries without an id are given a new
// UUID and the library is marked dirty so the ids get persisted.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read library: %w", err)
	}

	var file libraryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse library %s: %w", path, err)
	}

	lib := &Library{path: path, Games: file.Games}
	seen := make(map[string]bool, len(lib.Games))
	for i := range lib.Games {
		e := &lib.Games[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
			lib.dirty = true
		} else {
			parsed, err := uuid.Parse(e.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: %q (%s)", ErrInvalidEntryID, e.ID, e.Name)
			}
			e.ID = parsed.String()
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntryID, e.ID)
		}
		seen[e.ID] = true
	}
	return lib, nil
}

// Path returns the file the library is saved to
func (l *Library) Path() string {
	return l.path
}

// Dirty reports whether Load changed the document in memory
func (l *Library) Dirty() bool {
	return l.dirty
}

// Save writes the whole document to a temp file and renames it into place
func (l *Library) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(libraryFile{Games: l.Games}); err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".library-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write library: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace library: %w", err)
	}

	l.dirty = false
	return nil
}

// Add appends an entry, assigning an id when it has none
func (l *Library) Add(e Entry) *Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	l.Games = append(l.Games, e)
	return &l.Games[len(l.Games)-1]
}

// Get returns the entry with id, or nil
func (l *Library) Get(id string) *Entry {
	for i := range l.Games {
		if l.Games[i].ID == id {
			return &l.Games[i]
		}
	}
	return nil
}

// Find resolves ref as an entry id first and a case-insensitive name second
func (l *Library) Find(ref string) (*Entry, error) {
	if e := l.Get(ref); e != nil {
		return e, nil
	}
	if parsed, err := uuid.Parse(ref); err == nil {
		if e := l.Get(parsed.String()); e != nil {
			return e, nil
		}
	}

	var match *Entry
	for i := range l.Games {
		if strings.EqualFold(l.Games[i].Name, ref) {
			if match != nil {
				return nil, fmt.Errorf("%w: %q", ErrAmbiguousEntry, ref)
			}
			match = &l.Games[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, ref)
	}
	return match, nil
}

// IDs returns the set of entry ids currently in the library
func (l *Library) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Games))
	for _, e := range l.Games {
		ids[e.ID] = struct{}{}
	}
	return ids
}

// Filter returns copies of the entries carrying every tag in tags
func (l *Library) Filter(tags ...string) []Entry {
	out := make([]Entry, 0, len(l.Games))
	for _, e := range l.Games {
		keep := true
		for _, tag := range tags {
			if !e.HasTag(tag) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// HasTag reports whether the entry carries tag
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the entry carries at least one of tags
func (e *Entry) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if e.HasTag(tag) {
			return true
		}
	}
	return false
}

// AddTag adds tag if missing and reports whether the entry changed
func (e *Entry) AddTag(tag string) bool {
	if e.HasTag(tag) {
		return false
	}
	e.Tags = append(e.Tags, tag)
	return true
}

// RemoveTag removes every occurrence of tag and reports whether the entry changed
func (e *Entry) RemoveTag(tag string) bool {
	var kept []string
	for _, t := range e.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	changed := len(kept) != len(e.Tags)
	e.Tags = kept
	return changed
}
