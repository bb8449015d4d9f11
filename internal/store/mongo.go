package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a referenced post or profile does not exist.
var ErrNotFound = errors.New("not found")

type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
	users  *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client: client,
		posts:  db.Collection("posts"),
		users:  db.Collection("users"),
	}
}

// EnsureIndexes creates the lookup indexes the traversal and batch paths
// depend on. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentId", Value: 1}}},
		{Keys: bson.D{{Key: "threadId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}
	unique := options.Index().SetUnique(true)
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "authorId", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("create user index: %w", err)
	}
	return nil
}

func (s *MongoStore) FindPosts(ctx context.Context) ([]Post, error) {
	cursor, err := s.posts.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	return decodePosts(ctx, cursor)
}

func (s *MongoStore) FindPostByID(ctx context.Context, id string) (Post, error) {
	var post Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("find post %s: %w", id, err)
	}
	return post, nil
}

func (s *MongoStore) FindPostsByParent(ctx context.Context, parentID string) ([]Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.posts.Find(ctx, bson.M{"parentId": parentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find replies of %s: %w", parentID, err)
	}
	return decodePosts(ctx, cursor)
}

func (s *MongoStore) InsertPost(ctx context.Context, post Post) (Post, error) {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.Likes == nil {
		post.Likes = []string{}
	}
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (s *MongoStore) UpdatePostContent(ctx context.Context, id, content string) (Post, error) {
	return s.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{"content": content}})
}

// AddLike and RemoveLike use targeted element operations so that concurrent
// toggles by different identities never lose updates. $addToSet also keeps
// the likes array duplicate-free.

func (s *MongoStore) AddLike(ctx context.Context, id, userID string) (Post, error) {
	return s.findOneAndUpdate(ctx, id, bson.M{"$addToSet": bson.M{"likes": userID}})
}

func (s *MongoStore) RemoveLike(ctx context.Context, id, userID string) (Post, error) {
	return s.findOneAndUpdate(ctx, id, bson.M{"$pull": bson.M{"likes": userID}})
}

func (s *MongoStore) DeletePostByID(ctx context.Context, id string) (bool, error) {
	result, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete post %s: %w", id, err)
	}
	return result.DeletedCount > 0, nil
}

func (s *MongoStore) FindProfilesByIDs(ctx context.Context, authorIDs []string) ([]Profile, error) {
	cursor, err := s.users.Find(ctx, bson.M{"authorId": bson.M{"$in": authorIDs}})
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	defer cursor.Close(ctx)
	profiles := []Profile{}
	for cursor.Next(ctx) {
		var profile Profile
		if err := cursor.Decode(&profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, profile Profile) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.users.ReplaceOne(ctx, bson.M{"authorId": profile.AuthorID}, profile, opts)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", profile.AuthorID, err)
	}
	return nil
}

// ReplaceProfile overwrites an existing profile without upserting and
// reports whether a record matched.
func (s *MongoStore) ReplaceProfile(ctx context.Context, profile Profile) (bool, error) {
	result, err := s.users.ReplaceOne(ctx, bson.M{"authorId": profile.AuthorID}, profile)
	if err != nil {
		return false, fmt.Errorf("replace profile %s: %w", profile.AuthorID, err)
	}
	return result.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteProfileByAuthor(ctx context.Context, authorID string) (bool, error) {
	result, err := s.users.DeleteOne(ctx, bson.M{"authorId": authorID})
	if err != nil {
		return false, fmt.Errorf("delete profile %s: %w", authorID, err)
	}
	return result.DeletedCount > 0, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) findOneAndUpdate(ctx context.Context, id string, update bson.M) (Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post Post
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("update post %s: %w", id, err)
	}
	return post, nil
}

func decodePosts(ctx context.Context, cursor *mongo.Cursor) ([]Post, error) {
	defer cursor.Close(ctx)
	posts := []Post{}
	for cursor.Next(ctx) {
		var post Post
		if err := cursor.Decode(&post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
