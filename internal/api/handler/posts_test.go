package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/fellows/internal/api/handler"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/posts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPosts struct {
	lastSearch string
}

var postCreated = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func (s *stubPosts) List(_ context.Context, search string) ([]*posts.Summary, error) {
	s.lastSearch = search
	all := []*posts.Summary{
		{ID: 2, Title: "Climate week", Description: "Recap", Tags: []string{"climate"}, Created: postCreated, Updated: postCreated},
		{ID: 1, Title: "Welcome", Description: "Hello", Tags: []string{}, Created: postCreated, Updated: postCreated},
	}
	out := []*posts.Summary{}
	for _, p := range all {
		if search == "" || strings.Contains(strings.ToLower(p.Title), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPosts) Get(_ context.Context, id int64) (*posts.Post, error) {
	if id != 1 {
		return nil, apierr.PostNotFound
	}
	return &posts.Post{ID: 1, Title: "Welcome", Content: "# Hi", Tags: []string{}, Created: postCreated, Updated: postCreated}, nil
}

func setupPosts(t *testing.T) (*stubPosts, http.Handler) {
	t.Helper()
	s := &stubPosts{}
	return s, newRouter(handler.NewPostHandler(s, nil, zap.NewNop()))
}

func TestPosts_ListIsPublic(t *testing.T) {
	_, r := setupPosts(t)

	w := do(t, r, call{method: http.MethodGet, path: "/api/posts"})

	require.Equal(t, http.StatusOK, w.Code)
	list := decodeArray(t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "Climate week", list[0]["title"])
	assert.EqualValues(t, 2, list[0]["id"])
	assert.NotContains(t, list[0], "content")
}

func TestPosts_Search(t *testing.T) {
	s, r := setupPosts(t)

	w := do(t, r, call{method: http.MethodGet, path: "/api/posts?search=climate"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeArray(t, w), 1)
	assert.Equal(t, "climate", s.lastSearch)
}

func TestPosts_Get(t *testing.T) {
	_, r := setupPosts(t)

	w := do(t, r, call{method: http.MethodGet, path: "/api/posts/1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeObject(t, w)
	assert.Equal(t, "# Hi", body["content"])
	assert.NotContains(t, body, "id")

	for _, path := range []string{"/api/posts/7", "/api/posts/x"} {
		w = do(t, r, call{method: http.MethodGet, path: path})
		require.Equal(t, http.StatusNotFound, w.Code, path)
		assert.EqualValues(t, apierr.PostNotFound.Code, decodeObject(t, w)["errorCode"])
	}
}
