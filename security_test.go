package archivekit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathSafeJoin(t *testing.T) {
	got, err := PathSafeJoin("/dest", "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/dest", "a", "b.txt"), got)

	got, err = PathSafeJoin("/dest", `win\style.txt`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/dest", "win", "style.txt"), got)

	for _, bad := range []string{"../evil", "a/../../evil", "/etc/passwd", `..\evil`} {
		_, err := PathSafeJoin("/dest", bad)
		assert.True(t, IsErrorType(err, ErrPathTraversal), bad)
	}

	_, err = PathSafeJoin("/dest", "bad\x01name")
	assert.True(t, IsErrorType(err, ErrInvalidPath))

	_, err = PathSafeJoin("/dest", "")
	assert.True(t, IsErrorType(err, ErrInvalidPath))
}

func TestValidateFileSize(t *testing.T) {
	v := NewSecurityValidator()
	assert.NoError(t, v.ValidateFileSize(10, 0))
	assert.NoError(t, v.ValidateFileSize(10, 10))
	assert.True(t, IsErrorType(v.ValidateFileSize(11, 10), ErrFileTooLarge))
	assert.True(t, IsErrorType(v.ValidateFileSize(-1, 10), ErrInvalidArgument))
}

func TestExtractionRejectsTraversalEntries(t *testing.T) {
	fs, opts := memOptions()
	x := &extraction{
		fs:          fs,
		destination: "/dest",
		opts:        opts.withDefaults(),
		reporter:    newProgressReporter(opts, 0),
		validator:   NewSecurityValidator(),
		buffer:      make([]byte, 512),
	}
	_, err := x.extractAll(t.Context(), &fakeReader{entries: []*ArchiveEntry{{Key: "../escape.txt", Size: 1}}})
	assert.True(t, IsErrorType(err, ErrPathTraversal))
}

func TestFilenameSanitizer(t *testing.T) {
	s := NewFilenameSanitizer()
	assert.True(t, s.HasForbiddenCharacters("a?b"))
	assert.False(t, s.HasForbiddenCharacters("normal name.txt"))
	assert.Equal(t, "a_b_c", s.SanitizeFilename("a<b>c"))
	assert.Equal(t, "archive", s.SanitizeFilename(" .. "))
	assert.Len(t, s.SanitizeFilename(string(make([]rune, 300))+"x.zip"), 255)
}
