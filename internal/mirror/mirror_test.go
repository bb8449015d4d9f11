package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"strand/api/internal/store"
)

func ref(id string) *string { return &id }

func seedPosts() []store.Post {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []store.Post{
		{ID: "1", Content: "root", AuthorID: "u1", ThreadID: "1", CreatedAt: base, Likes: []string{}},
		{ID: "2", Content: "reply", AuthorID: store.GuestAuthorID, ParentID: ref("1"), ThreadID: "1", CreatedAt: base.Add(time.Minute), Likes: []string{}},
		{ID: "3", Content: "nested", AuthorID: store.GuestAuthorID, ParentID: ref("2"), ThreadID: "1", CreatedAt: base.Add(2 * time.Minute), Likes: []string{}},
		{ID: "4", Content: "newer root", AuthorID: "u2", ThreadID: "4", CreatedAt: base.Add(3 * time.Minute), Likes: []string{}},
	}
}

func newSeededStore() *Store {
	s := NewStore()
	s.SetPosts(seedPosts())
	return s
}

func TestSetPostsCopiesInput(t *testing.T) {
	posts := seedPosts()
	s := NewStore()
	s.SetPosts(posts)

	posts[0].Content = "mutated"
	if got, _ := s.Post("1"); got.Content != "root" {
		t.Error("mirror shares backing array with caller")
	}
}

func TestUpdatePostIgnoresUnknownID(t *testing.T) {
	s := newSeededStore()
	s.UpdatePost(store.Post{ID: "ghost", Content: "nope"})
	if len(s.Posts()) != 4 {
		t.Error("unknown-id update changed the collection")
	}
}

func TestFeedIsRootsByRecency(t *testing.T) {
	s := newSeededStore()
	feed := s.Feed()
	if len(feed) != 2 {
		t.Fatalf("feed has %d posts, want 2 roots", len(feed))
	}
	if feed[0].ID != "4" || feed[1].ID != "1" {
		t.Errorf("feed order = [%s %s], want newest first", feed[0].ID, feed[1].ID)
	}
}

func TestThreadView(t *testing.T) {
	s := newSeededStore()
	node, ok := s.Thread("1")
	if !ok {
		t.Fatal("thread 1 not found")
	}
	if len(node.Children) != 1 || node.Children[0].Post.ID != "2" {
		t.Fatalf("unexpected tree shape under root 1")
	}
	if _, ok := s.Thread("ghost"); ok {
		t.Error("unknown root must report not found")
	}
}

func TestReplyCount(t *testing.T) {
	s := newSeededStore()
	if got := s.ReplyCount("1"); got != 2 {
		t.Errorf("ReplyCount(1) = %d, want 2", got)
	}
	if got := s.ReplyCount("4"); got != 0 {
		t.Errorf("ReplyCount(4) = %d, want 0", got)
	}
}

func TestUserPlaceholderFallback(t *testing.T) {
	s := NewStore()
	s.MergeUsers([]store.Profile{{AuthorID: "u1", Username: "avery"}})

	if got := s.User("u1"); got.Username != "avery" {
		t.Errorf("known user = %+v", got)
	}
	if got := s.User("ghost"); got.Username != "unknown" {
		t.Errorf("placeholder = %+v, want username unknown", got)
	}
}

func TestNewMutatorSelection(t *testing.T) {
	s := NewStore()
	if _, ok := NewMutator(s, nil, "").(*localMutator); !ok {
		t.Error("empty identity must get the local strategy")
	}
	if _, ok := NewMutator(s, nil, store.GuestAuthorID).(*localMutator); !ok {
		t.Error("guest identity must get the local strategy")
	}
	if _, ok := NewMutator(s, nil, "u1").(*remoteMutator); !ok {
		t.Error("authenticated identity must get the remote strategy")
	}
}

func TestLocalCreateRootPost(t *testing.T) {
	s := NewStore()
	m := NewMutator(s, nil, "")

	post, err := m.CreatePost(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if !strings.HasPrefix(post.ID, "local_") {
		t.Errorf("id = %s, want local_ prefix", post.ID)
	}
	if post.AuthorID != store.GuestAuthorID {
		t.Errorf("author = %s, want guest", post.AuthorID)
	}
	if post.ThreadID != post.ID {
		t.Errorf("threadId = %s, want own id", post.ThreadID)
	}
	if _, ok := s.Post(post.ID); !ok {
		t.Error("post not added to mirror")
	}
}

func TestLocalCreateReplyResolvesThread(t *testing.T) {
	s := newSeededStore()
	m := NewMutator(s, nil, "")

	post, err := m.CreatePost(context.Background(), "deep", ref("3"))
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if post.ThreadID != "1" {
		t.Errorf("threadId = %s, want root id 1", post.ThreadID)
	}

	if _, err := m.CreatePost(context.Background(), "orphan", ref("ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown parent, got %v", err)
	}
}

func TestLocalEditEnforcesAuthorship(t *testing.T) {
	s := newSeededStore()
	m := NewMutator(s, nil, "")
	ctx := context.Background()

	post, err := m.EditPost(ctx, "2", "revised")
	if err != nil {
		t.Fatalf("editing own guest post failed: %v", err)
	}
	if post.Content != "revised" {
		t.Errorf("content = %s", post.Content)
	}

	if _, err := m.EditPost(ctx, "1", "hijack"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if _, err := m.EditPost(ctx, "ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalToggleLikeIsSelfInverse(t *testing.T) {
	s := newSeededStore()
	m := NewMutator(s, nil, "")
	ctx := context.Background()

	post, err := m.ToggleLike(ctx, "1")
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if len(post.Likes) != 1 || post.Likes[0] != store.GuestAuthorID {
		t.Fatalf("likes = %v, want [guest]", post.Likes)
	}

	post, err = m.ToggleLike(ctx, "1")
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if len(post.Likes) != 0 {
		t.Fatalf("likes after second toggle = %v, want empty", post.Likes)
	}
}

func TestLocalDeleteCascades(t *testing.T) {
	s := newSeededStore()
	m := NewMutator(s, nil, "")
	ctx := context.Background()

	// Deleting guest post 2 takes its reply 3 with it.
	if err := m.DeletePost(ctx, "2"); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, ok := s.Post("2"); ok {
		t.Error("post 2 survived delete")
	}
	if _, ok := s.Post("3"); ok {
		t.Error("descendant 3 survived cascade")
	}
	if _, ok := s.Post("1"); !ok {
		t.Error("unrelated root 1 was removed")
	}

	if err := m.DeletePost(ctx, "1"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor for someone else's post, got %v", err)
	}
}

// fakeAPI emulates the posts API surface the client speaks.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/posts/add", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content  string  `json:"content"`
			ParentID *string `json:"parentId"`
			UserID   string  `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		post := store.Post{
			ID:       "post_confirmed",
			Content:  body.Content,
			AuthorID: body.UserID,
			ParentID: body.ParentID,
			ThreadID: "post_confirmed",
			Likes:    []string{},
		}
		_ = json.NewEncoder(w).Encode(post)
	})
	mux.HandleFunc("/api/posts/edit", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PostID  string `json:"postId"`
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.PostID == "ghost" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "NOT_FOUND", "error": "Post not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(store.Post{ID: body.PostID, Content: body.Content, AuthorID: "u1", ThreadID: "1", Likes: []string{}})
	})
	mux.HandleFunc("/api/posts/like", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PostID string `json:"postId"`
			UserID string `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(store.Post{ID: body.PostID, AuthorID: "u1", ThreadID: "1", Likes: []string{body.UserID}})
	})
	mux.HandleFunc("/api/posts/delete", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Post and its replies deleted successfully"})
	})
	mux.HandleFunc("/api/posts/fetch", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(seedPosts())
	})
	mux.HandleFunc("/api/users/batch", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]store.Profile{
			{AuthorID: "u1", Username: "avery"},
			{AuthorID: "u2", Username: "blair"},
		})
	})
	return httptest.NewServer(mux)
}

func TestRemoteCreateAppliesConfirmedResult(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	s := NewStore()
	m := NewMutator(s, NewClient(server.URL), "u1")

	post, err := m.CreatePost(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if post.ID != "post_confirmed" {
		t.Errorf("id = %s, want the server-assigned id", post.ID)
	}
	if _, ok := s.Post("post_confirmed"); !ok {
		t.Error("confirmed post not folded into mirror")
	}
}

func TestRemoteEditChecksAuthorshipFirst(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	s := newSeededStore()
	m := NewMutator(s, NewClient(server.URL), "u1")
	ctx := context.Background()

	post, err := m.EditPost(ctx, "1", "revised")
	if err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}
	if post.Content != "revised" {
		t.Errorf("content = %s", post.Content)
	}
	if got, _ := s.Post("1"); got.Content != "revised" {
		t.Error("mirror not updated with confirmed edit")
	}

	// Post 4 belongs to u2; rejected before any network call.
	if _, err := m.EditPost(ctx, "4", "hijack"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
}

func TestRemoteEditSurfacesAPIError(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	m := NewMutator(NewStore(), NewClient(server.URL), "u1")
	_, err := m.EditPost(context.Background(), "ghost", "revised")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestRemoteToggleLikeUpdatesMirror(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	s := newSeededStore()
	m := NewMutator(s, NewClient(server.URL), "u1")

	post, err := m.ToggleLike(context.Background(), "1")
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if len(post.Likes) != 1 || post.Likes[0] != "u1" {
		t.Fatalf("likes = %v", post.Likes)
	}
	if got, _ := s.Post("1"); len(got.Likes) != 1 {
		t.Error("mirror not updated with confirmed like")
	}
}

func TestRemoteDeleteRemovesLocalSubtree(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	s := newSeededStore()
	m := NewMutator(s, NewClient(server.URL), "u1")

	if err := m.DeletePost(context.Background(), "1"); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	for _, id := range []string{"1", "2", "3"} {
		if _, ok := s.Post(id); ok {
			t.Errorf("post %s survived in the mirror", id)
		}
	}
	if _, ok := s.Post("4"); !ok {
		t.Error("unrelated root 4 was removed")
	}
}

func TestHydrate(t *testing.T) {
	server := fakeAPI(t)
	defer server.Close()

	s := NewStore()
	if err := s.Hydrate(context.Background(), NewClient(server.URL)); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if len(s.Posts()) != 4 {
		t.Errorf("mirror has %d posts, want 4", len(s.Posts()))
	}
	if got := s.User("u1"); got.Username != "avery" {
		t.Errorf("profile not merged: %+v", got)
	}
	// Guest-authored posts never trigger a profile lookup.
	if got := s.User(store.GuestAuthorID); got.Username != "unknown" {
		t.Errorf("guest resolved to %+v, want placeholder", got)
	}
}

func TestHydrateFetchFailureEmptiesMirror(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "SERVER_ERROR", "error": "Server error"})
	}))
	defer server.Close()

	s := NewStore()
	s.SetPosts(seedPosts())

	if err := s.Hydrate(context.Background(), NewClient(server.URL)); err == nil {
		t.Fatal("expected fetch failure to surface")
	}
	if len(s.Posts()) != 0 {
		t.Error("stale posts survived a failed hydrate")
	}
}
