package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"strand/api/internal/store"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// Client speaks the posts API. It is the remote half of the mirror: every
// confirmed mutation result it returns is fed back into local state.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) FetchPosts(ctx context.Context) ([]store.Post, error) {
	var posts []store.Post
	if err := c.do(ctx, http.MethodGet, "/api/posts/fetch", nil, &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []store.Post{}
	}
	return posts, nil
}

func (c *Client) CreatePost(ctx context.Context, content string, parentID *string, userID string) (store.Post, error) {
	body := map[string]any{"content": content, "userId": userID}
	if parentID != nil {
		body["parentId"] = *parentID
	}
	var post store.Post
	err := c.do(ctx, http.MethodPost, "/api/posts/add", body, &post)
	return post, err
}

func (c *Client) EditPost(ctx context.Context, postID, content string) (store.Post, error) {
	var post store.Post
	err := c.do(ctx, http.MethodPut, "/api/posts/edit", map[string]any{"postId": postID, "content": content}, &post)
	return post, err
}

func (c *Client) ToggleLike(ctx context.Context, postID, userID string) (store.Post, error) {
	var post store.Post
	err := c.do(ctx, http.MethodPut, "/api/posts/like", map[string]any{"postId": postID, "userId": userID}, &post)
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/posts/delete", map[string]any{"postId": postID}, nil)
}

func (c *Client) BatchProfiles(ctx context.Context, authorIDs []string) ([]store.Profile, error) {
	var profiles []store.Profile
	err := c.do(ctx, http.MethodPost, "/api/users/batch", map[string]any{"authorIds": authorIDs}, &profiles)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []store.Profile{}
	}
	return profiles, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Error}
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
