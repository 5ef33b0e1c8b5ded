package archivekit

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func memOptions() (afero.Fs, Options) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.Fs = fs
	return fs, opts
}

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0644))
}

func readFile(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return data
}

// buildArchive 用默认算法创建压缩包
func buildArchive(t *testing.T, opts Options, at ArchiveType, files []string, archivePath string) {
	t.Helper()
	alg, err := NewAlgorithm(at, ModeWrite, opts)
	require.NoError(t, err)
	require.NoError(t, alg.Compress(context.Background(), files, archivePath))
}

// countingFactory 记录算法的调用
type countingFactory struct {
	inner AlgorithmFactory

	mu          sync.Mutex
	compressed  []string
	decompressd int
}

func newCountingFactory() *countingFactory {
	return &countingFactory{inner: NewAlgorithmFactory()}
}

func (f *countingFactory) NewAlgorithm(t ArchiveType, mode AccessMode, opts Options) (Algorithm, error) {
	alg, err := f.inner.NewAlgorithm(t, mode, opts)
	if err != nil {
		return nil, err
	}
	return &countingAlgorithm{Algorithm: alg, factory: f}, nil
}

func (f *countingFactory) compressCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.compressed...)
}

func (f *countingFactory) decompressCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decompressd
}

type countingAlgorithm struct {
	Algorithm
	factory *countingFactory
}

func (a *countingAlgorithm) Compress(ctx context.Context, files []string, archivePath string) error {
	a.factory.mu.Lock()
	a.factory.compressed = append(a.factory.compressed, archivePath)
	a.factory.mu.Unlock()
	return a.Algorithm.Compress(ctx, files, archivePath)
}

func (a *countingAlgorithm) DecompressEntries(ctx context.Context, archivePath, destination, password string, entries []string, collectNames bool) ([]string, error) {
	a.factory.mu.Lock()
	a.factory.decompressd++
	a.factory.mu.Unlock()
	return a.Algorithm.DecompressEntries(ctx, archivePath, destination, password, entries, collectNames)
}

// countingPasswords 记录密码请求次数
type countingPasswords struct {
	password string
	calls    int
}

func (p *countingPasswords) RequestPassword(ctx context.Context, displayName string) (string, error) {
	p.calls++
	return p.password, nil
}

// fakeReader 按给定条目序列产生内容为空的条目
type fakeReader struct {
	entries []*ArchiveEntry
	index   int
}

func (r *fakeReader) Open(ctx context.Context, password string) error { return nil }

func (r *fakeReader) Next() (*ArchiveEntry, error) {
	if r.index >= len(r.entries) {
		return nil, io.EOF
	}
	e := r.entries[r.index]
	r.index++
	return e, nil
}

func (r *fakeReader) Read(p []byte) (int, error) { return 0, io.EOF }

func (r *fakeReader) Close() error { return nil }
