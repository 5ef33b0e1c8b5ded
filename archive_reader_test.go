package archivekit

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderLifecycle(t *testing.T) {
	for _, at := range []ArchiveType{TypeZip, TypeTar, TypeGZip} {
		t.Run(at.String(), func(t *testing.T) {
			fs, opts := memOptions()
			writeFile(t, fs, "/src/a.txt", []byte("hello"))
			archivePath := "/in/a.txt" + at.Extension()
			buildArchive(t, opts, at, []string{"/src/a.txt"}, archivePath)

			r, err := NewArchiveReader(at, archivePath, opts)
			require.NoError(t, err)

			_, err = r.Next()
			assert.True(t, IsErrorType(err, ErrInvalidArgument), "Next before Open")

			require.NoError(t, r.Open(context.Background(), ""))
			_, err = r.Read(make([]byte, 4))
			assert.True(t, IsErrorType(err, ErrInvalidArgument), "Read before Next")

			entry, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, "a.txt", entry.Key)
			if !at.IsSingleStream() {
				assert.Equal(t, uint64(5), entry.Size)
			}

			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))

			_, err = r.Next()
			assert.Equal(t, io.EOF, err)

			require.NoError(t, r.Close())
			require.NoError(t, r.Close())
			_, err = r.Next()
			assert.True(t, IsErrorType(err, ErrReaderDisposed))
		})
	}
}

func TestReaderDisposedOnCancel(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	writeFile(t, fs, "/src/b.txt", []byte("b"))
	buildArchive(t, opts, TypeZip, []string{"/src/a.txt", "/src/b.txt"}, "/in/ab.zip")

	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewArchiveReader(TypeZip, "/in/ab.zip", opts)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Open(ctx, ""))

	cancel()
	assert.Eventually(t, func() bool {
		_, err := r.Next()
		return IsErrorType(err, ErrReaderDisposed)
	}, time.Second, 5*time.Millisecond)
}

func TestZipReaderEncryptedNeedsPassword(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("classified"))
	encOpts := opts
	encOpts.Password = "pw"
	buildArchive(t, encOpts, TypeZip, []string{"/src/a.txt"}, "/in/a.zip")

	open := func(password string) error {
		r, err := NewArchiveReader(TypeZip, "/in/a.zip", opts)
		require.NoError(t, err)
		defer r.Close()
		return r.Open(context.Background(), password)
	}

	assert.True(t, IsErrorType(open(""), ErrArchiveEncrypted))
	assert.True(t, IsErrorType(open("nope"), ErrArchiveEncrypted))
	assert.NoError(t, open("pw"))
}

func TestCorruptedArchives(t *testing.T) {
	fs, opts := memOptions()
	junk := randomPayload(t, 64)
	junk[0] = 'x'

	for _, at := range []ArchiveType{TypeZip, TypeGZip, TypeLZip, TypeSevenZip} {
		path := "/in/junk" + at.Extension()
		writeFile(t, fs, path, junk)

		r, err := NewArchiveReader(at, path, opts)
		require.NoError(t, err)
		err = r.Open(context.Background(), "")
		assert.Error(t, err, at.String())
		r.Close()
	}
}

func TestUnsupportedReaderType(t *testing.T) {
	_, opts := memOptions()
	_, err := NewArchiveReader(TypeUnknown, "/x", opts)
	assert.True(t, IsErrorType(err, ErrUnsupportedType))
}

func TestEntryFilter(t *testing.T) {
	var all *entryFilter
	assert.True(t, all.match("anything"))

	f := newEntryFilter([]string{"docs/", "./top.txt"})
	assert.True(t, f.match("docs/a.txt"))
	assert.True(t, f.match("docs/sub/b.txt"))
	assert.True(t, f.match("top.txt"))
	assert.False(t, f.match("docsx/a.txt"))
	assert.False(t, f.match("other.txt"))

	assert.False(t, newEntryFilter([]string{}).match("a"))
}

func TestMaxEntrySizeEnforced(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/big.txt", make([]byte, 1024))
	buildArchive(t, opts, TypeTar, []string{"/src/big.txt"}, "/in/big.tar")

	opts.MaxEntrySize = 100
	alg, err := NewAlgorithm(TypeTar, ModeRead, opts)
	require.NoError(t, err)
	err = alg.Decompress(context.Background(), "/in/big.tar", "/dest", "")
	assert.True(t, IsErrorType(err, ErrFileTooLarge))
}

func TestTarDirectoryEntryHasNoSize(t *testing.T) {
	fs, opts := memOptions()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "odd/", Typeflag: tar.TypeReg, Mode: 0o644, Size: 3}))
	_, err := tw.Write([]byte("xyz"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "odd/a.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 2}))
	_, err = tw.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	writeFile(t, fs, "/in/odd.tar", buf.Bytes())

	r, err := NewArchiveReader(TypeTar, "/in/odd.tar", opts)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Open(context.Background(), ""))

	dir, err := r.Next()
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory)
	assert.Zero(t, dir.Size)

	file, err := r.Next()
	require.NoError(t, err)
	assert.False(t, file.IsDirectory)
	assert.Equal(t, uint64(2), file.Size)
}
