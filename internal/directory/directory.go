// Package directory maintains the identity -> profile mapping fed by batch
// lookups and identity-provider lifecycle events.
package directory

import (
	"log"
	"sync"

	"strand/api/internal/store"
	"strand/api/internal/webhook"
)

// Placeholder is the profile consumers see for an identity with no
// directory entry (not yet fetched, or deleted upstream). Lookups are
// total; callers never get an error for an unknown id.
func Placeholder(authorID string) store.Profile {
	return store.Profile{AuthorID: authorID, Username: "unknown"}
}

// ProfileFromEvent projects a lifecycle event into a stored profile.
func ProfileFromEvent(data webhook.EventData) store.Profile {
	return store.Profile{
		AuthorID:       data.ID,
		Username:       data.Username,
		FullName:       data.FullName(),
		ProfilePicture: data.ProfileImageURL,
	}
}

// Directory is an in-memory identity -> profile map. Entries are whole
// profiles, last write wins; there is no per-field merge.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]store.Profile
}

func New() *Directory {
	return &Directory{profiles: make(map[string]store.Profile)}
}

// MergeBatch upserts every profile keyed by its AuthorID. Merging the same
// batch twice leaves the directory unchanged.
func (d *Directory) MergeBatch(profiles []store.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, profile := range profiles {
		d.profiles[profile.AuthorID] = profile
	}
}

// ApplyIdentityEvent folds a lifecycle event into the directory. Updates
// and deletes for unknown ids are logged and ignored.
func (d *Directory) ApplyIdentityEvent(event webhook.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch event.Type {
	case webhook.EventUserCreated:
		d.profiles[event.Data.ID] = ProfileFromEvent(event.Data)
	case webhook.EventUserUpdated:
		if _, ok := d.profiles[event.Data.ID]; !ok {
			log.Printf("directory: update for unknown identity %s", event.Data.ID)
			return
		}
		d.profiles[event.Data.ID] = ProfileFromEvent(event.Data)
	case webhook.EventUserDeleted:
		if _, ok := d.profiles[event.Data.ID]; !ok {
			log.Printf("directory: delete for unknown identity %s", event.Data.ID)
			return
		}
		delete(d.profiles, event.Data.ID)
	default:
		log.Printf("directory: unhandled event type %s", event.Type)
	}
}

// Lookup returns the profile for an identity, or the placeholder when the
// directory has no entry.
func (d *Directory) Lookup(authorID string) store.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if profile, ok := d.profiles[authorID]; ok {
		return profile
	}
	return Placeholder(authorID)
}

// Contains reports whether an identity has a real entry.
func (d *Directory) Contains(authorID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.profiles[authorID]
	return ok
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.profiles)
}
