package posts_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/posts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPostRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*posts.Post
	active map[int64]bool
	clock  time.Time
}

func newStubPostRepo() *stubPostRepo {
	return &stubPostRepo{
		posts:  map[int64]*posts.Post{},
		active: map[int64]bool{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *stubPostRepo) Create(_ context.Context, p *posts.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.clock = r.clock.Add(time.Minute)
	p.ID, p.Created, p.Updated = r.nextID, r.clock, r.clock
	cp := *p
	r.posts[p.ID] = &cp
	r.active[p.ID] = true
	return nil
}

func matches(p *posts.Post, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(p.Title), term) || strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(t, term) {
			return true
		}
	}
	return false
}

func (r *stubPostRepo) ListActive(_ context.Context, terms []string) ([]*posts.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*posts.Summary
next:
	for id, p := range r.posts {
		if !r.active[id] {
			continue
		}
		for _, term := range terms {
			if !matches(p, term) {
				continue next
			}
		}
		out = append(out, &posts.Summary{ID: p.ID, Title: p.Title, Description: p.Description, Tags: p.Tags, Created: p.Created, Updated: p.Updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out, nil
}

func (r *stubPostRepo) GetActive(_ context.Context, id int64) (*posts.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || !r.active[id] {
		return nil, posts.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func seed(t *testing.T, svc *posts.Service, title, desc string, tags ...string) *posts.Post {
	t.Helper()
	p, err := svc.Create(context.Background(), posts.NewPost{Title: title, Description: desc, Content: "# " + title, Tags: tags})
	require.NoError(t, err)
	return p
}

func TestCreate_NormalizesTags(t *testing.T) {
	svc := posts.NewService(newStubPostRepo(), zap.NewNop())
	p := seed(t, svc, "Water", "Clean water", "SDG6", " sdg6 ", "", "Health")
	assert.Equal(t, []string{"health", "sdg6"}, p.Tags)
}

func TestCreate_Validation(t *testing.T) {
	svc := posts.NewService(newStubPostRepo(), zap.NewNop())
	_, err := svc.Create(context.Background(), posts.NewPost{})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "title")
	assert.Contains(t, ve.Fields, "content")
}

func TestList_OrderAndSearch(t *testing.T) {
	repo := newStubPostRepo()
	svc := posts.NewService(repo, zap.NewNop())
	water := seed(t, svc, "Water project", "Wells in the valley", "sdg6")
	school := seed(t, svc, "School build", "Classrooms", "education")
	hidden := seed(t, svc, "Draft water", "unpublished")
	repo.active[hidden.ID] = false

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, school.ID, all[0].ID, "most recently updated first")
	assert.Equal(t, water.ID, all[1].ID)

	byTitle, err := svc.List(context.Background(), "WATER")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, water.ID, byTitle[0].ID)

	byTag, err := svc.List(context.Background(), "educ")
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, school.ID, byTag[0].ID)

	allTerms, err := svc.List(context.Background(), "water classrooms")
	require.NoError(t, err)
	assert.Empty(t, allTerms)
	assert.NotNil(t, allTerms)
}

func TestGet(t *testing.T) {
	repo := newStubPostRepo()
	svc := posts.NewService(repo, zap.NewNop())
	p := seed(t, svc, "Hello", "first", "news")

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Hello", got.Content)

	body, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"id"`)
	assert.Contains(t, string(body), `"tags":["news"]`)

	_, err = svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, apierr.PostNotFound)

	repo.active[p.ID] = false
	_, err = svc.Get(context.Background(), p.ID)
	assert.ErrorIs(t, err, apierr.PostNotFound)
}
