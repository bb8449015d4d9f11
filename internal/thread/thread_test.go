package thread

import (
	"testing"
	"time"

	"strand/api/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func post(id string, parentID *string, threadID string, minute int) store.Post {
	return store.Post{
		ID:        id,
		Content:   "post " + id,
		AuthorID:  "user-1",
		ParentID:  parentID,
		ThreadID:  threadID,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
		Likes:     []string{},
	}
}

func ref(id string) *string { return &id }

// chain: 1 <- 2 <- 3, plus a second root 4 with one reply 5.
func fixture() []store.Post {
	return []store.Post{
		post("1", nil, "1", 0),
		post("2", ref("1"), "1", 1),
		post("3", ref("2"), "1", 2),
		post("4", nil, "4", 3),
		post("5", ref("4"), "4", 4),
	}
}

func TestResolveRootInvariant(t *testing.T) {
	posts := fixture()
	for _, p := range posts {
		root, ok := ResolveRoot(posts, p.ThreadID)
		if !ok {
			t.Fatalf("no root for post %s (threadId %s)", p.ID, p.ThreadID)
		}
		if root.ID != root.ThreadID {
			t.Errorf("root %s has threadId %s, want its own id", root.ID, root.ThreadID)
		}
	}
}

func TestResolveRootMissing(t *testing.T) {
	if _, ok := ResolveRoot(fixture(), "nope"); ok {
		t.Fatal("expected missing id to resolve to not-found")
	}
}

func TestDirectRepliesOrderAndShape(t *testing.T) {
	posts := fixture()
	replies := DirectReplies(posts, "1")
	if len(replies) != 1 || replies[0].ID != "2" {
		t.Fatalf("directReplies(1) = %v, want [2]", ids(replies))
	}

	leaf := DirectReplies(posts, "3")
	if leaf == nil {
		t.Fatal("replies of a leaf must be an empty slice, not nil")
	}
	if len(leaf) != 0 {
		t.Fatalf("expected no replies for leaf, got %v", ids(leaf))
	}
}

func TestDirectRepliesCreationOrder(t *testing.T) {
	posts := []store.Post{
		post("r", nil, "r", 0),
		post("late", ref("r"), "r", 9),
		post("early", ref("r"), "r", 1),
		post("mid", ref("r"), "r", 5),
	}
	replies := DirectReplies(posts, "r")
	got := ids(replies)
	want := []string{"early", "mid", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replies order = %v, want %v", got, want)
		}
	}
}

func TestCountDescendants(t *testing.T) {
	posts := fixture()
	if got := CountDescendants(posts, "1"); got != 2 {
		t.Errorf("countDescendants(1) = %d, want 2", got)
	}
	if got := CountDescendants(posts, "3"); got != 0 {
		t.Errorf("countDescendants(leaf) = %d, want 0", got)
	}
	if got := CountDescendants(posts, "4"); got != 1 {
		t.Errorf("countDescendants(4) = %d, want 1", got)
	}
}

func TestCountDescendantsRecurrence(t *testing.T) {
	posts := fixture()
	ix := NewIndex(posts)
	for _, p := range posts {
		sum := 0
		for _, child := range ix.DirectReplies(p.ID) {
			sum += 1 + ix.CountDescendants(child.ID)
		}
		if got := ix.CountDescendants(p.ID); got != sum {
			t.Errorf("count(%s) = %d, recurrence gives %d", p.ID, got, sum)
		}
	}
}

func TestBuildTree(t *testing.T) {
	node, ok := BuildTree(fixture(), "1")
	if !ok {
		t.Fatal("expected tree for root 1")
	}
	if node.Post.ID != "1" || len(node.Children) != 1 {
		t.Fatalf("unexpected root shape: id=%s children=%d", node.Post.ID, len(node.Children))
	}
	depth := 0
	for n := node; n != nil; {
		depth++
		if len(n.Children) == 0 {
			if n.Children == nil {
				t.Fatal("leaf Children must be non-nil")
			}
			n = nil
		} else {
			n = n.Children[0]
		}
	}
	if depth != 3 {
		t.Fatalf("tree depth = %d, want 3", depth)
	}
}

func TestBuildTreeMissingRoot(t *testing.T) {
	if _, ok := BuildTree(fixture(), "nope"); ok {
		t.Fatal("expected not-found for missing root")
	}
}

func TestTraversalTerminatesOnCycle(t *testing.T) {
	// Corrupt storage: a and b point at each other.
	posts := []store.Post{
		post("a", ref("b"), "a", 0),
		post("b", ref("a"), "a", 1),
	}
	if got := CountDescendants(posts, "a"); got != 1 {
		t.Errorf("cycle count = %d, want 1 (b only)", got)
	}
	node, ok := BuildTree(posts, "a")
	if !ok {
		t.Fatal("expected tree for a")
	}
	if len(node.Children) != 1 || len(node.Children[0].Children) != 0 {
		t.Error("cycle must be cut after the first revisit")
	}
}

func TestSubtreeIDs(t *testing.T) {
	ix := NewIndex(fixture())
	got := ix.SubtreeIDs("2")
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Fatalf("subtree(2) = %v, want [2 3]", got)
	}
	whole := ix.SubtreeIDs("1")
	if len(whole) != 3 {
		t.Fatalf("subtree(1) = %v, want all of thread 1", whole)
	}
}

func TestRootsSortedByRecency(t *testing.T) {
	roots := Roots(fixture())
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0].ID != "4" || roots[1].ID != "1" {
		t.Fatalf("feed order = %v, want newest first", ids(roots))
	}
}

func ids(posts []store.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
