package library

import (
	"sort"
	"strings"
	"time"
)

// OfficialLinkName is the canonical name given to the first official* link
const OfficialLinkName = "Official"

// SortLinks orders every entry's links by name (case-insensitive), renames the first link whose
// name starts with "official" to Official and moves it to the front, and
// places the steam link right after it. It returns the number of entries
// whose links changed.
func (l *Library) SortLinks() int {
	changed := 0
	for i := range l.Games {
		if l.Games[i].sortLinks() {
			changed++
		}
	}
	return changed
}

func (e *Entry) sortLinks() bool {
	links := make([]Link, len(e.Links))
	copy(links, e.Links)
	sort.SliceStable(links, func(i, j int) bool {
		return strings.ToLower(links[i].Name) < strings.ToLower(links[j].Name)
	})

	official := -1
	for i, link := range links {
		if strings.HasPrefix(strings.ToLower(link.Name), "official") {
			official = i
			break
		}
	}
	if official >= 0 {
		links[official].Name = OfficialLinkName
		links = moveLink(links, official, 0)
	}

	for i, link := range links {
		if strings.ToLower(link.Name) == StoreLinkName {
			to := 0
			if official >= 0 {
				to = 1
			}
			links = moveLink(links, i, to)
			break
		}
	}

	if linksEqual(e.Links, links) {
		return false
	}
	e.Links = links
	return true
}

func moveLink(links []Link, from, to int) []Link {
	if from == to {
		return links
	}
	link := links[from]
	links = append(links[:from], links[from+1:]...)
	links = append(links[:to], append([]Link{link}, links[to:]...)...)
	return links
}

func linksEqual(a, b []Link) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MissingFields lists which descriptive fields the entry lacks
func (e *Entry) MissingFields() []string {
	var missing []string
	if len(e.Platforms) == 0 {
		missing = append(missing, "platforms")
	}
	if e.Icon == "" || e.Cover == "" || e.Background == "" {
		missing = append(missing, "media")
	}
	if len(e.Links) == 0 {
		missing = append(missing, "links")
	}
	if e.Description == "" {
		missing = append(missing, "description")
	}
	if !e.HasFullReleaseDate() {
		missing = append(missing, "release date")
	}
	return missing
}

// HasFullReleaseDate reports whether the release date has year, month and day
func (e *Entry) HasFullReleaseDate() bool {
	if e.ReleaseDate == "" {
		return false
	}
	t, err := time.Parse(time.DateOnly, e.ReleaseDate)
	return err == nil && t.Year() > 0
}

// FlagMissingFields tags every entry that lacks a descriptive field with tag
// and untags complete ones. It returns the number of entries changed.
func (l *Library) FlagMissingFields(tag string) int {
	changed := 0
	for i := range l.Games {
		e := &l.Games[i]
		var updated bool
		if len(e.MissingFields()) == 0 {
			updated = e.RemoveTag(tag)
		} else {
			updated = e.AddTag(tag)
		}
		if updated {
			changed++
		}
	}
	return changed
}
