package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmerrifield20/fellows/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newStubPutter() *stubPutter {
	return &stubPutter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (p *stubPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := aws.ToString(in.Key)
	p.objects[key] = data
	p.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func pictureServer(t *testing.T, status int, contentType string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestS3Saver_SaveFromURL(t *testing.T) {
	body := []byte("\xff\xd8\xff\xe0fake-jpeg")
	srv := pictureServer(t, http.StatusOK, "image/jpeg", body)
	putter := newStubPutter()
	saver := media.NewS3Saver(putter, "fellows-media", srv.Client(), zap.NewNop())

	key, err := saver.SaveFromURL(context.Background(), 42, srv.URL+"/photo")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^profile-pics/42-[0-9a-f-]{36}\.jpg$`), key)
	assert.Equal(t, body, putter.objects[key])
	assert.Equal(t, "image/jpeg", putter.types[key])
}

func TestS3Saver_ContentTypeWithParams(t *testing.T) {
	srv := pictureServer(t, http.StatusOK, "image/png; charset=binary", []byte("png"))
	saver := media.NewS3Saver(newStubPutter(), "b", srv.Client(), zap.NewNop())

	key, err := saver.SaveFromURL(context.Background(), 1, srv.URL)
	require.NoError(t, err)
	assert.Regexp(t, `\.png$`, key)
}

func TestS3Saver_Failures(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := pictureServer(t, http.StatusNotFound, "text/plain", []byte("nope"))
		saver := media.NewS3Saver(newStubPutter(), "b", srv.Client(), zap.NewNop())
		_, err := saver.SaveFromURL(context.Background(), 1, srv.URL)
		assert.ErrorIs(t, err, media.ErrBadResponse)
	})

	t.Run("too large", func(t *testing.T) {
		srv := pictureServer(t, http.StatusOK, "image/jpeg", bytes.Repeat([]byte{'x'}, media.MaxPictureBytes+1))
		putter := newStubPutter()
		saver := media.NewS3Saver(putter, "b", srv.Client(), zap.NewNop())
		_, err := saver.SaveFromURL(context.Background(), 1, srv.URL)
		assert.ErrorIs(t, err, media.ErrTooLarge)
		assert.Empty(t, putter.objects)
	})

	t.Run("upload error", func(t *testing.T) {
		srv := pictureServer(t, http.StatusOK, "image/jpeg", []byte("x"))
		putter := newStubPutter()
		putter.err = errors.New("bucket gone")
		saver := media.NewS3Saver(putter, "b", srv.Client(), zap.NewNop())
		_, err := saver.SaveFromURL(context.Background(), 1, srv.URL)
		assert.Error(t, err)
	})
}

func TestDiscardSaver(t *testing.T) {
	ref, err := media.NewDiscardSaver(zap.NewNop()).SaveFromURL(context.Background(), 1, "https://example.com/a.jpg")
	require.NoError(t, err)
	assert.Empty(t, ref)
}
