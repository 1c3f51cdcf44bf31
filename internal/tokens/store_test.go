package tokens_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ── Stub repo ─────────────────────────────────────────────────────────────

type stubTokenRepo struct {
	mu        sync.Mutex
	byKey     map[string]*tokens.Token
	byAccount map[int64]string
	owners    map[int64]*tokens.Owner
	touches   int
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{
		byKey:     make(map[string]*tokens.Token),
		byAccount: make(map[int64]string),
		owners:    make(map[int64]*tokens.Owner),
	}
}

func (r *stubTokenRepo) addOwner(id int64, email string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[id] = &tokens.Owner{Email: email, IsActive: active}
}

func (r *stubTokenRepo) GetOrCreate(_ context.Context, t *tokens.Token, expiredBefore time.Time) (*tokens.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.byAccount[t.AccountID]; ok {
		if !r.byKey[key].Created.Before(expiredBefore) {
			cp := *r.byKey[key]
			return &cp, nil
		}
		delete(r.byKey, key)
	}
	cp := *t
	r.byKey[t.Key] = &cp
	r.byAccount[t.AccountID] = t.Key
	out := cp
	return &out, nil
}

func (r *stubTokenRepo) GetByKey(_ context.Context, key string) (*tokens.Token, *tokens.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byKey[key]
	if !ok {
		return nil, nil, tokens.ErrNotFound
	}
	cp := *t
	o := *r.owners[t.AccountID]
	return &cp, &o, nil
}

func (r *stubTokenRepo) Touch(_ context.Context, key string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byKey[key]; ok {
		t.Refreshed = at
		r.touches++
	}
	return nil
}

func (r *stubTokenRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byKey[key]; ok {
		delete(r.byAccount, t.AccountID)
		delete(r.byKey, key)
	}
	return nil
}

func (r *stubTokenRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, t := range r.byKey {
		if t.Created.Before(cutoff) {
			delete(r.byAccount, t.AccountID)
			delete(r.byKey, key)
			n++
		}
	}
	return n, nil
}

func (r *stubTokenRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byKey[key]
	return ok
}

// ── Helpers ───────────────────────────────────────────────────────────────

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(repo *stubTokenRepo, cfg tokens.Config) (*tokens.Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := tokens.NewStore(repo, cfg, zap.NewNop())
	s.SetClock(clock.Now)
	return s, clock
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestIssueOrGet_FreshTokenHasEqualTimestamps(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{})

	tok, err := store.IssueOrGet(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, tok.Key, 40)
	assert.Equal(t, clock.Now(), tok.Created)
	assert.Equal(t, tok.Created, tok.Refreshed)
}

func TestIssueOrGet_Idempotent(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{})

	first, err := store.IssueOrGet(context.Background(), 1)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := store.IssueOrGet(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Created, second.Created)
}

func TestIssueOrGet_ReplacesExpiredToken(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{})
	ctx := context.Background()

	first, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	clock.Advance(15 * 24 * time.Hour)

	second, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, clock.Now(), second.Created)
	assert.False(t, repo.has(first.Key))

	p, err := store.Authenticate(ctx, second.Key)
	require.NoError(t, err, "a token handed out by IssueOrGet must authenticate")
	assert.Equal(t, int64(1), p.AccountID)
}

func TestIssueOrGet_KeepsTokenWithinLifespan(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{})
	ctx := context.Background()

	first, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	clock.Advance(14 * 24 * time.Hour)

	second, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
}

func TestAuthenticate_ValidRefreshes(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(7, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{})
	ctx := context.Background()

	tok, err := store.IssueOrGet(ctx, 7)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	p, err := store.Authenticate(ctx, tok.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.AccountID)
	assert.Equal(t, "a@example.com", p.Email)
	assert.Equal(t, clock.Now(), p.Token.Refreshed)
	assert.False(t, p.Token.Refreshed.Before(p.Token.Created))

	clock.Advance(10 * time.Minute)
	p, err = store.Authenticate(ctx, tok.Key)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), p.Token.Refreshed)
	assert.Equal(t, 2, repo.touches)
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	store, _ := newTestStore(newStubTokenRepo(), tokens.Config{})
	_, err := store.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, tokens.ErrInvalidToken)

	_, err = store.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, tokens.ErrInvalidToken)
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", false)
	store, _ := newTestStore(repo, tokens.Config{})

	tok, err := store.IssueOrGet(context.Background(), 1)
	require.NoError(t, err)

	_, err = store.Authenticate(context.Background(), tok.Key)
	assert.ErrorIs(t, err, tokens.ErrAccountInactive)
}

func TestAuthenticate_ExpiredIsDeleted(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{ExpiringLifespan: 14 * 24 * time.Hour})
	ctx := context.Background()

	tok, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)

	// Used every hour, still rejected once the absolute cap passes.
	for i := 0; i < 14*24; i++ {
		clock.Advance(time.Hour)
		_, err := store.Authenticate(ctx, tok.Key)
		require.NoError(t, err, "hour %d", i+1)
	}
	clock.Advance(time.Second)

	_, err = store.Authenticate(ctx, tok.Key)
	assert.ErrorIs(t, err, tokens.ErrTokenExpired)
	assert.False(t, repo.has(tok.Key), "expired token should be deleted")

	// A new login issues a new key.
	fresh, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Key, fresh.Key)
}

func TestAuthenticate_IdleInformationalByDefault(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{IdleLifespan: time.Hour})
	ctx := context.Background()

	tok, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	clock.Advance(3 * time.Hour)

	assert.True(t, tok.TimedOut(clock.Now(), time.Hour))
	_, err = store.Authenticate(ctx, tok.Key)
	assert.NoError(t, err)
}

func TestAuthenticate_IdleEnforced(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{IdleLifespan: time.Hour, EnforceIdle: true})
	ctx := context.Background()

	tok, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.Authenticate(ctx, tok.Key)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	_, err = store.Authenticate(ctx, tok.Key)
	assert.ErrorIs(t, err, tokens.ErrTokenIdle)
}

func TestPurgeExpired(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "a@example.com", true)
	repo.addOwner(2, "b@example.com", true)
	store, clock := newTestStore(repo, tokens.Config{ExpiringLifespan: 24 * time.Hour})
	ctx := context.Background()

	old, err := store.IssueOrGet(ctx, 1)
	require.NoError(t, err)
	clock.Advance(20 * time.Hour)
	young, err := store.IssueOrGet(ctx, 2)
	require.NoError(t, err)
	clock.Advance(5 * time.Hour)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, repo.has(old.Key))
	assert.True(t, repo.has(young.Key))
}

// ── Middleware ────────────────────────────────────────────────────────────

func setupMiddlewareRouter(store *tokens.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", tokens.RequireToken(store, zap.NewNop()), func(c *gin.Context) {
		p := tokens.PrincipalFromCtx(c)
		c.JSON(http.StatusOK, gin.H{"email": p.Email})
	})
	return r
}

func TestRequireToken(t *testing.T) {
	repo := newStubTokenRepo()
	repo.addOwner(1, "active@example.com", true)
	repo.addOwner(2, "pending@example.com", false)
	store, _ := newTestStore(repo, tokens.Config{})
	active, err := store.IssueOrGet(context.Background(), 1)
	require.NoError(t, err)
	pending, err := store.IssueOrGet(context.Background(), 2)
	require.NoError(t, err)

	router := setupMiddlewareRouter(store)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"token scheme", "Token " + active.Key, http.StatusOK},
		{"bearer scheme", "Bearer " + active.Key, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"unknown scheme", "Basic " + active.Key, http.StatusUnauthorized},
		{"unknown key", "Token deadbeef", http.StatusUnauthorized},
		{"inactive account", "Token " + pending.Key, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
