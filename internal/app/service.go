package app

import (
	"context"
	"log"
	"net/http"
	"strings"

	"strand/api/internal/config"
	"strand/api/internal/directory"
	"strand/api/internal/store"
	"strand/api/internal/util"
	"strand/api/internal/webhook"
)

type dataStore interface {
	FindPosts(context.Context) ([]store.Post, error)
	FindPostByID(context.Context, string) (store.Post, error)
	FindPostsByParent(context.Context, string) ([]store.Post, error)
	InsertPost(context.Context, store.Post) (store.Post, error)
	UpdatePostContent(context.Context, string, string) (store.Post, error)
	AddLike(context.Context, string, string) (store.Post, error)
	RemoveLike(context.Context, string, string) (store.Post, error)
	DeletePostByID(context.Context, string) (bool, error)
	FindProfilesByIDs(context.Context, []string) ([]store.Profile, error)
	UpsertProfile(context.Context, store.Profile) error
	ReplaceProfile(context.Context, store.Profile) (bool, error)
	DeleteProfileByAuthor(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type profileCache interface {
	GetMany(context.Context, []string) (map[string]store.Profile, []string, error)
	Set(context.Context, store.Profile) error
	Delete(context.Context, string) error
	Ping(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	cache    profileCache
	verifier *webhook.Verifier
}

func New(cfg config.Config, dataStore *store.MongoStore) *Service {
	return newService(cfg, dataStore, nil)
}

func NewWithProfileCache(cfg config.Config, dataStore *store.MongoStore, cache *directory.Cache) *Service {
	return newService(cfg, dataStore, cache)
}

func newService(cfg config.Config, dataStore dataStore, cache profileCache) *Service {
	svc := &Service{cfg: cfg, store: dataStore, cache: cache}
	if strings.TrimSpace(cfg.WebhookSecret) != "" {
		verifier, err := webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
		if err != nil {
			log.Printf("WARNING: webhook secret invalid, webhook endpoint disabled: %v", err)
		} else {
			svc.verifier = verifier
		}
	}
	return svc
}

// ListPosts returns the full flat collection; thread structure is derived
// by consumers.
func (s *Service) ListPosts(ctx context.Context) ([]store.Post, error) {
	return s.store.FindPosts(ctx)
}

// CreatePost inserts a root post or a reply. A reply must reference an
// existing parent; its thread id resolves to the parent's root so every
// post in a thread carries the root's id.
func (s *Service) CreatePost(ctx context.Context, content string, parentID *string, userID string) (store.Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	post := store.Post{
		ID:       util.NewID("post"),
		Content:  content,
		AuthorID: userID,
		Likes:    []string{},
	}

	if parentID != nil && strings.TrimSpace(*parentID) != "" {
		parent, err := s.store.FindPostByID(ctx, strings.TrimSpace(*parentID))
		if err != nil {
			return store.Post{}, err
		}
		post.ParentID = &parent.ID
		post.ThreadID = parent.ThreadID
		if post.ThreadID == "" {
			post.ThreadID = parent.ID
		}
	} else {
		post.ThreadID = post.ID
	}

	return s.store.InsertPost(ctx, post)
}

// EditPost replaces a post's content.
func (s *Service) EditPost(ctx context.Context, postID, content string) (store.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	return s.store.UpdatePostContent(ctx, postID, content)
}

// ToggleLike flips the identity's membership in the post's likes set using
// the store's targeted element operations. Not retried on failure: a blind
// retry of a toggle flips the state back.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (store.Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	post, err := s.store.FindPostByID(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	for _, liker := range post.Likes {
		if liker == userID {
			return s.store.RemoveLike(ctx, postID, userID)
		}
	}
	return s.store.AddLike(ctx, postID, userID)
}

// DeleteSubtree removes a post and, recursively, every post whose parent
// pointer reaches it. The visited set caps traversal on corrupt cyclic
// input. Not transactional: a failure partway leaves the already deleted
// descendants gone.
func (s *Service) DeleteSubtree(ctx context.Context, postID string) (int, error) {
	if _, err := s.store.FindPostByID(ctx, postID); err != nil {
		return 0, err
	}

	deleted := 0
	visited := make(map[string]bool)
	var remove func(id string) error
	remove = func(id string) error {
		if visited[id] {
			return nil
		}
		visited[id] = true

		removed, err := s.store.DeletePostByID(ctx, id)
		if err != nil {
			return err
		}
		if removed {
			deleted++
		}

		replies, err := s.store.FindPostsByParent(ctx, id)
		if err != nil {
			return err
		}
		for _, reply := range replies {
			if err := remove(reply.ID); err != nil {
				return err
			}
		}
		return nil
	}

	if err := remove(postID); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// BatchProfiles resolves the distinct identities of a fetched post
// collection to display profiles. Identities with no profile are simply
// absent from the result; consumers fall back to the directory
// placeholder. The Redis cache, when configured, fronts the document
// store with write-through on misses.
func (s *Service) BatchProfiles(ctx context.Context, authorIDs []string) ([]store.Profile, error) {
	ids := dedupe(authorIDs)
	if len(ids) == 0 {
		return []store.Profile{}, nil
	}

	if s.cache == nil {
		profiles, err := s.store.FindProfilesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		return profiles, nil
	}

	hits, misses, err := s.cache.GetMany(ctx, ids)
	if err != nil {
		// Cache failure degrades to the store, it does not fail the request.
		log.Printf("profile cache read failed: %v", err)
		hits, misses = map[string]store.Profile{}, ids
	}

	profiles := make([]store.Profile, 0, len(ids))
	for _, id := range ids {
		if profile, ok := hits[id]; ok {
			profiles = append(profiles, profile)
		}
	}

	if len(misses) > 0 {
		fetched, err := s.store.FindProfilesByIDs(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, profile := range fetched {
			profiles = append(profiles, profile)
			if err := s.cache.Set(ctx, profile); err != nil {
				log.Printf("profile cache write failed: %v", err)
			}
		}
	}
	return profiles, nil
}

// WebhookEnabled reports whether a signing secret is configured.
func (s *Service) WebhookEnabled() bool {
	return s.verifier != nil
}

// VerifyWebhook authenticates a raw delivery against its headers.
func (s *Service) VerifyWebhook(headers http.Header, payload []byte) (webhook.Event, error) {
	return s.verifier.Verify(headers, payload)
}

// ApplyIdentityEvent folds a verified lifecycle event into the profile
// store and invalidates the cache entry. Updates and deletes for unknown
// identities are logged no-ops, mirroring the directory contract.
func (s *Service) ApplyIdentityEvent(ctx context.Context, event webhook.Event) error {
	switch event.Type {
	case webhook.EventUserCreated:
		profile := directory.ProfileFromEvent(event.Data)
		if err := s.store.UpsertProfile(ctx, profile); err != nil {
			return err
		}
		s.cacheSet(ctx, profile)
	case webhook.EventUserUpdated:
		profile := directory.ProfileFromEvent(event.Data)
		matched, err := s.store.ReplaceProfile(ctx, profile)
		if err != nil {
			return err
		}
		if !matched {
			log.Printf("identity event: update for unknown identity %s", event.Data.ID)
			return nil
		}
		s.cacheSet(ctx, profile)
	case webhook.EventUserDeleted:
		removed, err := s.store.DeleteProfileByAuthor(ctx, event.Data.ID)
		if err != nil {
			return err
		}
		if !removed {
			log.Printf("identity event: delete for unknown identity %s", event.Data.ID)
		}
		s.cacheDelete(ctx, event.Data.ID)
	default:
		log.Printf("identity event: unhandled type %s", event.Type)
	}
	return nil
}

func (s *Service) cacheSet(ctx context.Context, profile store.Profile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, profile); err != nil {
		log.Printf("profile cache write failed: %v", err)
	}
}

func (s *Service) cacheDelete(ctx context.Context, authorID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, authorID); err != nil {
		log.Printf("profile cache invalidation failed: %v", err)
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CachePing checks the profile cache; it reports healthy when no cache is
// configured.
func (s *Service) CachePing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
