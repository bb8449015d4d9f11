package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"strand/api/internal/store"
	"strand/api/internal/thread"
)

var (
	// ErrNotFound mirrors the server's not-found outcome for local state.
	ErrNotFound = errors.New("post not found")
	// ErrNotAuthor rejects edit/delete of someone else's post.
	ErrNotAuthor = errors.New("not the post author")
)

// Mutator is the single mutation surface over client state. Two
// implementations back it: a guest session mutates the mirror directly and
// never persists, an authenticated session calls the API and applies the
// server-confirmed result.
type Mutator interface {
	CreatePost(ctx context.Context, content string, parentID *string) (store.Post, error)
	EditPost(ctx context.Context, postID, content string) (store.Post, error)
	ToggleLike(ctx context.Context, postID string) (store.Post, error)
	DeletePost(ctx context.Context, postID string) error
}

// NewMutator selects the strategy for the session's identity state.
func NewMutator(state *Store, client *Client, identity string) Mutator {
	if identity == "" || identity == store.GuestAuthorID {
		return &localMutator{state: state}
	}
	return &remoteMutator{state: state, client: client, identity: identity}
}

// localMutator applies guest mutations optimistically to the mirror only.
type localMutator struct {
	state *Store
}

func (m *localMutator) CreatePost(_ context.Context, content string, parentID *string) (store.Post, error) {
	post := store.Post{
		ID:        "local_" + uuid.NewString(),
		Content:   content,
		AuthorID:  store.GuestAuthorID,
		CreatedAt: time.Now().UTC(),
		Likes:     []string{},
	}
	if parentID != nil && *parentID != "" {
		parent, ok := m.state.Post(*parentID)
		if !ok {
			return store.Post{}, ErrNotFound
		}
		post.ParentID = &parent.ID
		post.ThreadID = parent.ThreadID
		if post.ThreadID == "" {
			post.ThreadID = parent.ID
		}
	} else {
		post.ThreadID = post.ID
	}
	m.state.AddPost(post)
	return post, nil
}

func (m *localMutator) EditPost(_ context.Context, postID, content string) (store.Post, error) {
	post, ok := m.state.Post(postID)
	if !ok {
		return store.Post{}, ErrNotFound
	}
	if post.AuthorID != store.GuestAuthorID {
		return store.Post{}, ErrNotAuthor
	}
	post.Content = content
	m.state.UpdatePost(post)
	return post, nil
}

func (m *localMutator) ToggleLike(_ context.Context, postID string) (store.Post, error) {
	post, ok := m.state.Post(postID)
	if !ok {
		return store.Post{}, ErrNotFound
	}
	post.Likes = toggle(post.Likes, store.GuestAuthorID)
	m.state.UpdatePost(post)
	return post, nil
}

func (m *localMutator) DeletePost(_ context.Context, postID string) error {
	post, ok := m.state.Post(postID)
	if !ok {
		return ErrNotFound
	}
	if post.AuthorID != store.GuestAuthorID {
		return ErrNotAuthor
	}
	ix := thread.NewIndex(m.state.Posts())
	m.state.RemovePosts(ix.SubtreeIDs(postID))
	return nil
}

// remoteMutator persists through the API, then folds the confirmed result
// into the mirror. Nothing is applied locally before the server answers.
type remoteMutator struct {
	state    *Store
	client   *Client
	identity string
}

func (m *remoteMutator) CreatePost(ctx context.Context, content string, parentID *string) (store.Post, error) {
	post, err := m.client.CreatePost(ctx, content, parentID, m.identity)
	if err != nil {
		return store.Post{}, err
	}
	m.state.AddPost(post)
	return post, nil
}

func (m *remoteMutator) EditPost(ctx context.Context, postID, content string) (store.Post, error) {
	if current, ok := m.state.Post(postID); ok && current.AuthorID != m.identity {
		return store.Post{}, ErrNotAuthor
	}
	post, err := m.client.EditPost(ctx, postID, content)
	if err != nil {
		return store.Post{}, err
	}
	m.state.UpdatePost(post)
	return post, nil
}

func (m *remoteMutator) ToggleLike(ctx context.Context, postID string) (store.Post, error) {
	post, err := m.client.ToggleLike(ctx, postID, m.identity)
	if err != nil {
		return store.Post{}, err
	}
	m.state.UpdatePost(post)
	return post, nil
}

func (m *remoteMutator) DeletePost(ctx context.Context, postID string) error {
	if current, ok := m.state.Post(postID); ok && current.AuthorID != m.identity {
		return ErrNotAuthor
	}
	if err := m.client.DeletePost(ctx, postID); err != nil {
		return err
	}
	ix := thread.NewIndex(m.state.Posts())
	m.state.RemovePosts(ix.SubtreeIDs(postID))
	return nil
}

// toggle flips membership in a likes set, preserving order and never
// duplicating an identity.
func toggle(likes []string, identity string) []string {
	out := make([]string, 0, len(likes)+1)
	removed := false
	for _, liker := range likes {
		if liker == identity {
			removed = true
			continue
		}
		out = append(out, liker)
	}
	if !removed {
		out = append(out, identity)
	}
	return out
}
