package store

import "time"

// GuestAuthorID is the sentinel identity recorded when a post is created
// without an authenticated user.
const GuestAuthorID = "guest"

// Post is one record in the flat posts collection. A root post has a nil
// ParentID and ThreadID equal to its own ID; a reply carries its parent's
// ThreadID, so every post in a thread shares the root's ID.
type Post struct {
	ID        string    `bson:"_id" json:"_id"`
	Content   string    `bson:"content" json:"content"`
	AuthorID  string    `bson:"authorId" json:"authorId"`
	ParentID  *string   `bson:"parentId" json:"parentId"`
	ThreadID  string    `bson:"threadId" json:"threadId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	Likes     []string  `bson:"likes" json:"likes"`
}

// IsRoot reports whether the post starts a thread.
func (p Post) IsRoot() bool {
	return p.ParentID == nil
}

// Profile is the display projection of an external identity. Fields other
// than AuthorID are last-write-wins from identity-provider events.
type Profile struct {
	AuthorID       string `bson:"authorId" json:"authorId"`
	Username       string `bson:"username" json:"username"`
	FullName       string `bson:"fullName" json:"fullName"`
	ProfilePicture string `bson:"profilePicture" json:"profilePicture"`
}
