// Package thread reconstructs reply trees from the flat posts collection.
//
// Posts reference their parent by id, so a thread is materialized by
// indexing the collection once and walking parent->children edges. All
// traversals carry a visited set: the storage layer does not guarantee the
// parent graph is acyclic, and a corrupt cycle must not hang a render.
package thread

import (
	"sort"

	"strand/api/internal/store"
)

// Node is a post with its direct replies attached, in creation order.
// Children is never nil.
type Node struct {
	Post     store.Post `json:"post"`
	Children []*Node    `json:"children"`
}

// Index is a one-shot snapshot of the collection: id lookups and a
// parentId -> children list, built once instead of re-scanning the flat
// slice at every recursion level.
type Index struct {
	byID     map[string]store.Post
	children map[string][]store.Post
}

func NewIndex(posts []store.Post) *Index {
	ix := &Index{
		byID:     make(map[string]store.Post, len(posts)),
		children: make(map[string][]store.Post),
	}
	for _, post := range posts {
		ix.byID[post.ID] = post
		if post.ParentID != nil {
			ix.children[*post.ParentID] = append(ix.children[*post.ParentID], post)
		}
	}
	for parentID := range ix.children {
		replies := ix.children[parentID]
		sort.SliceStable(replies, func(i, j int) bool {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		})
	}
	return ix
}

// Post returns the post with the given id.
func (ix *Index) Post(id string) (store.Post, bool) {
	post, ok := ix.byID[id]
	return post, ok
}

// DirectReplies returns the creation-ordered replies of a post. The result
// is an empty slice, not nil, when there are none.
func (ix *Index) DirectReplies(parentID string) []store.Post {
	replies := ix.children[parentID]
	if replies == nil {
		return []store.Post{}
	}
	return replies
}

// CountDescendants returns the number of posts transitively below id,
// excluding id itself.
func (ix *Index) CountDescendants(id string) int {
	count := 0
	visited := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, reply := range ix.children[current] {
			if visited[reply.ID] {
				continue
			}
			visited[reply.ID] = true
			count++
			stack = append(stack, reply.ID)
		}
	}
	return count
}

// BuildTree materializes the subtree rooted at rootID, depth-first, with
// replies in creation order at every level.
func (ix *Index) BuildTree(rootID string) (*Node, bool) {
	root, ok := ix.byID[rootID]
	if !ok {
		return nil, false
	}
	visited := map[string]bool{rootID: true}
	return ix.attach(root, visited), true
}

func (ix *Index) attach(post store.Post, visited map[string]bool) *Node {
	node := &Node{Post: post, Children: []*Node{}}
	for _, reply := range ix.children[post.ID] {
		if visited[reply.ID] {
			continue
		}
		visited[reply.ID] = true
		node.Children = append(node.Children, ix.attach(reply, visited))
	}
	return node
}

// SubtreeIDs lists id and every post transitively below it, parents before
// children. This is the deletion order used by the cascading delete.
func (ix *Index) SubtreeIDs(id string) []string {
	ids := []string{}
	visited := map[string]bool{}
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		ids = append(ids, current)
		replies := ix.children[current]
		for i := len(replies) - 1; i >= 0; i-- {
			stack = append(stack, replies[i].ID)
		}
	}
	return ids
}

// ResolveRoot finds the post with the given id in the flat collection.
// The root of a post's thread is ResolveRoot(posts, post.ThreadID).
func ResolveRoot(posts []store.Post, id string) (store.Post, bool) {
	for _, post := range posts {
		if post.ID == id {
			return post, true
		}
	}
	return store.Post{}, false
}

// DirectReplies is the one-shot form of Index.DirectReplies.
func DirectReplies(posts []store.Post, parentID string) []store.Post {
	return NewIndex(posts).DirectReplies(parentID)
}

// CountDescendants is the one-shot form of Index.CountDescendants.
func CountDescendants(posts []store.Post, id string) int {
	return NewIndex(posts).CountDescendants(id)
}

// BuildTree is the one-shot form of Index.BuildTree.
func BuildTree(posts []store.Post, rootID string) (*Node, bool) {
	return NewIndex(posts).BuildTree(rootID)
}

// Roots returns the top-level posts sorted by recency. This is the home
// feed ordering; replies inside a thread keep creation order instead.
func Roots(posts []store.Post) []store.Post {
	roots := []store.Post{}
	for _, post := range posts {
		if post.IsRoot() {
			roots = append(roots, post)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].CreatedAt.After(roots[j].CreatedAt)
	})
	return roots
}
