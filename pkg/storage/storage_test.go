package storage

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestDetectImage(t *testing.T) {
	t.Parallel()

	ctype, ext, err := DetectImage(pngPixel)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ctype)
	assert.Equal(t, "png", ext)

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...)
	ctype, ext, err = DetectImage(jpeg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ctype)
	assert.Equal(t, "jpg", ext)

	_, _, err = DetectImage([]byte("just some text"))
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestDetectImage_RejectsSVG(t *testing.T) {
	t.Parallel()

	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"><script>fetch('/entries')</script></svg>`)
	_, _, err := DetectImage(svg)
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, _, err = DetectImage([]byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect width="1" height="1"/></svg>`))
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1760745600123)
	path := ObjectPath(42, ".PNG", now)
	assert.Regexp(t, regexp.MustCompile(`^42/1760745600123-[0-9a-f]{8}\.png$`), path)

	assert.NotEqual(t, path, ObjectPath(42, "png", now))
	assert.True(t, strings.HasSuffix(ObjectPath(1, "", now), ".bin"))
}

func TestFilesystemStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFilesystemStore(filepath.Join(dir, "images"), "http://localhost:3690/images/")
	require.NoError(t, err)

	err = store.Upload(ctx, "7/123-abc.png", pngPixel, "image/png")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "images", "7", "123-abc.png"))
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, "http://localhost:3690/images/7/123-abc.png", store.PublicURL("7/123-abc.png"))

	t.Run("paths can't escape the directory", func(tt *testing.T) {
		err := store.Upload(ctx, "../../escape.png", pngPixel, "image/png")
		require.NoError(tt, err)
		_, err = os.Stat(filepath.Join(dir, "escape.png"))
		assert.True(tt, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(dir, "images", "escape.png"))
		assert.NoError(tt, err)
	})

	t.Run("cancelled context", func(tt *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := store.Upload(cctx, "7/never.png", pngPixel, "image/png")
		assert.ErrorIs(tt, err, context.Canceled)
	})
}

func TestBucketStore_Upload(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Key":"entry-images/7/1.png"}`))
	}))
	defer srv.Close()

	store, err := NewBucketStore(BucketConfig{URL: srv.URL + "/", Bucket: "entry-images", APIKey: "secret"})
	require.NoError(t, err)

	err = store.Upload(context.Background(), "7/1.png", pngPixel, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/entry-images/7/1.png", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, pngPixel, gotBody)

	assert.Equal(t, srv.URL+"/storage/v1/object/public/entry-images/7/1.png", store.PublicURL("7/1.png"))
}

func TestBucketStore_UploadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"new row violates row-level security policy"}`))
	}))
	defer srv.Close()

	store, err := NewBucketStore(BucketConfig{URL: srv.URL, Bucket: "entry-images"})
	require.NoError(t, err)

	err = store.Upload(context.Background(), "7/1.png", pngPixel, "image/png")
	require.Error(t, err)

	var bucketErr *BucketError
	require.ErrorAs(t, err, &bucketErr)
	assert.Equal(t, http.StatusForbidden, bucketErr.StatusCode)
	assert.Equal(t, "new row violates row-level security policy", bucketErr.Message)
}

func TestNewBucketStore_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewBucketStore(BucketConfig{Bucket: "entry-images"})
	require.Error(t, err)
	_, err = NewBucketStore(BucketConfig{URL: "http://example.com"})
	require.Error(t, err)
}
