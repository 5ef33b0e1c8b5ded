package archivekit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCacheReusesTree(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	buildArchive(t, opts, TypeZip, []string{"/src/a.txt"}, "/in/a.zip")

	cache := NewTreeCache(4, time.Minute, opts)
	first, err := cache.Get(context.Background(), "/in/a.zip", "")
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), "/in/a.zip", "")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("/in/a.zip")
	assert.Equal(t, 0, cache.Len())
}

func TestTreeCacheConcurrentGets(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	buildArchive(t, opts, TypeTar, []string{"/src/a.txt"}, "/in/a.tar")

	cache := NewTreeCache(4, time.Minute, opts)
	var wg sync.WaitGroup
	roots := make([]*RootNode, 8)
	for i := range roots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root, err := cache.Get(context.Background(), "/in/a.tar", "")
			assert.NoError(t, err)
			roots[i] = root
		}(i)
	}
	wg.Wait()

	for _, r := range roots {
		require.NotNil(t, r)
		_, ok := r.Child("a.txt")
		assert.True(t, ok)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestTreeCacheMissingArchive(t *testing.T) {
	_, opts := memOptions()
	cache := NewTreeCache(0, time.Minute, opts)
	_, err := cache.Get(context.Background(), "/missing.zip", "")
	assert.True(t, IsErrorType(err, ErrFileNotFound))

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestTreeCacheKeepsPasswordsApart(t *testing.T) {
	_, opts, _ := encryptedZip(t, "secret")
	cache := NewTreeCache(4, time.Minute, opts)

	root, err := cache.Get(context.Background(), "/in/secret.zip", "secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", root.Password)

	_, err = cache.Get(context.Background(), "/in/secret.zip", "")
	assert.True(t, IsErrorType(err, ErrArchiveEncrypted))

	again, err := cache.Get(context.Background(), "/in/secret.zip", "secret")
	require.NoError(t, err)
	assert.Same(t, root, again)

	cache.Invalidate("/in/secret.zip")
	assert.Equal(t, 0, cache.Len())
}

func TestTreeCacheWaiterSurvivesOtherCallerCancel(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	buildArchive(t, opts, TypeTar, []string{"/src/a.txt"}, "/in/a.tar")

	cache := NewTreeCache(4, time.Minute, opts)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	cache.load = func(ctx context.Context, archivePath, password string) (*RootNode, error) {
		once.Do(func() { close(started) })
		<-release
		return LoadArchiveTree(ctx, archivePath, password, opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, "/in/a.tar", "")
		firstErr <- err
	}()
	<-started

	type outcome struct {
		root *RootNode
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		root, err := cache.Get(context.Background(), "/in/a.tar", "")
		second <- outcome{root, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	got := <-second
	require.NoError(t, got.err)
	_, ok := got.root.Child("a.txt")
	assert.True(t, ok)
}
