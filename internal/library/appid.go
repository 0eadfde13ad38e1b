package library

import (
	"errors"
	"fmt"
	"strings"

	"github.com/obentoo/buildwatch/internal/remote"
)

// Error variables for remote identifier derivation. All of them wrap
// ErrIdentifierUnresolvable.
var (
	ErrIdentifierUnresolvable = errors.New("entry has no usable remote identifier")
	ErrNoStoreLink            = fmt.Errorf("%w: no steam link", ErrIdentifierUnresolvable)
	ErrNoAppSegment           = fmt.Errorf("%w: link has no /app/ segment", ErrIdentifierUnresolvable)
	ErrAppIDNotNumeric        = fmt.Errorf("%w: app id is not a number", ErrIdentifierUnresolvable)
)

// StoreLinkName is the link name that carries the store page URL
const StoreLinkName = "steam"

// StoreLink returns the first link named steam (case-insensitive), or nil
func (e *Entry) StoreLink() *Link {
	for i := range e.Links {
		if strings.EqualFold(e.Links[i].Name, StoreLinkName) {
			return &e.Links[i]
		}
	}
	return nil
}

// AppID derives the remote identifier from the store link URL, which looks
// like https://store.steampowered.com/app/620/Portal_2/. On failure it
// returns 0 and an error wrapping ErrIdentifierUnresolvable.
func (e *Entry) AppID() (remote.AppID, error) {
	link := e.StoreLink()
	if link == nil {
		return 0, fmt.Errorf("%s: %w", e.Name, ErrNoStoreLink)
	}

	_, rest, found := strings.Cut(link.URL, "/app/")
	if !found {
		return 0, fmt.Errorf("%s: %w: %s", e.Name, ErrNoAppSegment, link.URL)
	}
	segment, _, _ := strings.Cut(rest, "/")

	id, err := remote.ParseAppID(segment)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s: %w: %q", e.Name, ErrAppIDNotNumeric, segment)
	}
	return id, nil
}
