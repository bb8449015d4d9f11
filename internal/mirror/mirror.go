// Package mirror holds the client-side copy of posts and profiles: one
// state container shared across views, updated through reducer-style
// transitions, and reconciled with the server on navigation.
package mirror

import (
	"context"
	"sync"

	"strand/api/internal/directory"
	"strand/api/internal/store"
	"strand/api/internal/thread"
	"strand/api/internal/webhook"
)

// Store is the single source of truth for client state. Each transition
// runs to completion under the lock; there are no partial updates.
type Store struct {
	mu    sync.Mutex
	posts []store.Post
	users *directory.Directory
}

func NewStore() *Store {
	return &Store{posts: []store.Post{}, users: directory.New()}
}

// SetPosts replaces the whole collection, as after a fetch.
func (s *Store) SetPosts(posts []store.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = make([]store.Post, len(posts))
	copy(s.posts, posts)
}

// AddPost appends a post or reply.
func (s *Store) AddPost(post store.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)
}

// UpdatePost replaces the post with a matching id; unknown ids are
// ignored.
func (s *Store) UpdatePost(post store.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == post.ID {
			s.posts[i] = post
			return
		}
	}
}

// RemovePosts drops every post whose id is listed.
func (s *Store) RemovePosts(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.posts[:0]
	for _, post := range s.posts {
		if !drop[post.ID] {
			kept = append(kept, post)
		}
	}
	s.posts = kept
}

// Posts returns a copy of the flat collection.
func (s *Store) Posts() []store.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Post returns the post with the given id.
func (s *Store) Post(id string) (store.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, post := range s.posts {
		if post.ID == id {
			return post, true
		}
	}
	return store.Post{}, false
}

// Feed returns root posts by recency, the home view ordering.
func (s *Store) Feed() []store.Post {
	return thread.Roots(s.Posts())
}

// Thread materializes the reply tree below a root; false when the id is
// unknown, which the view renders as a not-found state.
func (s *Store) Thread(rootID string) (*thread.Node, bool) {
	return thread.BuildTree(s.Posts(), rootID)
}

// ReplyCount is the transitive reply count shown on a post row.
func (s *Store) ReplyCount(postID string) int {
	return thread.CountDescendants(s.Posts(), postID)
}

// MergeUsers folds batch-fetched profiles into the directory.
func (s *Store) MergeUsers(profiles []store.Profile) {
	s.users.MergeBatch(profiles)
}

// ApplyIdentityEvent forwards a lifecycle event to the directory.
func (s *Store) ApplyIdentityEvent(event webhook.Event) {
	s.users.ApplyIdentityEvent(event)
}

// User resolves an author to a display profile, falling back to the
// directory placeholder for unknown ids.
func (s *Store) User(authorID string) store.Profile {
	return s.users.Lookup(authorID)
}

// Hydrate loads server state: all posts, then the profiles of their
// distinct authors. On fetch failure the mirror is left empty rather than
// stale, and the error is returned for the caller to report.
func (s *Store) Hydrate(ctx context.Context, client *Client) error {
	posts, err := client.FetchPosts(ctx)
	if err != nil {
		s.SetPosts([]store.Post{})
		return err
	}
	s.SetPosts(posts)

	authorIDs := []string{}
	seen := map[string]bool{}
	for _, post := range posts {
		if post.AuthorID == "" || post.AuthorID == store.GuestAuthorID || seen[post.AuthorID] {
			continue
		}
		seen[post.AuthorID] = true
		authorIDs = append(authorIDs, post.AuthorID)
	}
	if len(authorIDs) == 0 {
		return nil
	}

	profiles, err := client.BatchProfiles(ctx, authorIDs)
	if err != nil {
		// Posts render with placeholder authors until the next fetch.
		return err
	}
	s.MergeUsers(profiles)
	return nil
}
