package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/obentoo/buildwatch/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLibrary = `
[[game]]
id = "8f14e45f-ceea-467f-a0e1-5a3b6b0b1d0e"
name = "Portal 2"
version = "1234567"
tags = ["Favourite"]
platforms = ["PC"]
description = "Puzzles"
release_date = "2011-04-18"
icon = "icon.png"
cover = "cover.png"
background = "bg.png"

  [[game.link]]
  name = "Steam"
  url = "https://store.steampowered.com/app/620/Portal_2/"

[[game]]
name = "No Id Yet"
tags = ["No download"]
`

func writeLibrary(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAssignsMissingIDs(t *testing.T) {
	lib, err := Load(writeLibrary(t, sampleLibrary))
	require.NoError(t, err)

	require.Len(t, lib.Games, 2)
	assert.Equal(t, "8f14e45f-ceea-467f-a0e1-5a3b6b0b1d0e", lib.Games[0].ID)
	assert.Equal(t, "https://store.steampowered.com/app/620/Portal_2/", lib.Games[0].Links[0].URL)

	_, err = uuid.Parse(lib.Games[1].ID)
	assert.NoError(t, err, "missing id should be replaced by a UUID")
	assert.True(t, lib.Dirty())
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeLibrary(t, sampleLibrary)
	lib, err := Load(path)
	require.NoError(t, err)

	lib.Games[0].Version = "999"
	require.NoError(t, lib.Save())
	assert.False(t, lib.Dirty())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, lib.Games, reloaded.Games)
	assert.False(t, reloaded.Dirty(), "ids were persisted")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, ErrLibraryNotFound)

	_, err = Load(writeLibrary(t, "[[game]]\nid = \"not-a-uuid\"\nname = \"x\"\n"))
	assert.ErrorIs(t, err, ErrInvalidEntryID)

	dup := "[[game]]\nid = \"8f14e45f-ceea-467f-a0e1-5a3b6b0b1d0e\"\n[[game]]\nid = \"8F14E45F-CEEA-467F-A0E1-5A3B6B0B1D0E\"\n"
	_, err = Load(writeLibrary(t, dup))
	assert.ErrorIs(t, err, ErrDuplicateEntryID)

	_, err = Load(writeLibrary(t, "[[game]\n"))
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	lib := New("unused")
	a := lib.Add(Entry{Name: "Portal"})
	lib.Add(Entry{Name: "Twin"})
	lib.Add(Entry{Name: "twin"})

	got, err := lib.Find("portal")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = lib.Find(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Portal", got.Name)

	_, err = lib.Find("Twin")
	assert.ErrorIs(t, err, ErrAmbiguousEntry)

	_, err = lib.Find("nothing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestIDsAndFilter(t *testing.T) {
	lib := New("unused")
	a := lib.Add(Entry{Name: "A", Tags: []string{"x", "y"}})
	b := lib.Add(Entry{Name: "B", Tags: []string{"x"}})
	aID, bID := a.ID, b.ID

	assert.Equal(t, map[string]struct{}{aID: {}, bID: {}}, lib.IDs())

	filtered := lib.Filter("x", "y")
	require.Len(t, filtered, 1)
	assert.Equal(t, "A", filtered[0].Name)
	assert.Len(t, lib.Filter(), 2)
}

func TestTags(t *testing.T) {
	e := &Entry{Tags: []string{"a"}}

	assert.True(t, e.AddTag("b"))
	assert.False(t, e.AddTag("b"))
	assert.True(t, e.HasAnyTag([]string{"z", "b"}))
	assert.False(t, e.HasAnyTag(nil))

	assert.True(t, e.RemoveTag("a"))
	assert.False(t, e.RemoveTag("a"))
	assert.Equal(t, []string{"b"}, e.Tags)
}

func TestRemoveTagLeavesCopiesAlone(t *testing.T) {
	original := Entry{Tags: []string{"a", "b", "c"}}
	copied := original

	copied.RemoveTag("a")
	assert.Equal(t, []string{"a", "b", "c"}, original.Tags)
	assert.Equal(t, []string{"b", "c"}, copied.Tags)
}

func TestAppID(t *testing.T) {
	tests := []struct {
		name  string
		links []Link
		want  remote.AppID
		err   error
	}{
		{"store url", []Link{{"Steam", "https://store.steampowered.com/app/620/Portal_2/"}}, 620, nil},
		{"no trailing slug", []Link{{"steam", "https://store.steampowered.com/app/730"}}, 730, nil},
		{"first steam link wins", []Link{{"Official", "https://x/app/1/"}, {"STEAM", "https://s/app/2/"}, {"steam", "https://s/app/3/"}}, 2, nil},
		{"no links", nil, 0, ErrNoStoreLink},
		{"no steam link", []Link{{"GOG", "https://gog.com/app/5/"}}, 0, ErrNoStoreLink},
		{"no app segment", []Link{{"Steam", "https://store.steampowered.com/sub/620/"}}, 0, ErrNoAppSegment},
		{"not numeric", []Link{{"Steam", "https://store.steampowered.com/app/abc/"}}, 0, ErrAppIDNotNumeric},
		{"empty id", []Link{{"Steam", "https://store.steampowered.com/app//"}}, 0, ErrAppIDNotNumeric},
		{"zero id", []Link{{"Steam", "https://store.steampowered.com/app/0/"}}, 0, ErrAppIDNotNumeric},
		{"too large", []Link{{"Steam", "https://store.steampowered.com/app/4294967296/"}}, 0, ErrAppIDNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Name: tt.name, Links: tt.links}
			got, err := e.AppID()
			assert.Equal(t, tt.want, got)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, ErrIdentifierUnresolvable)
		})
	}
}
