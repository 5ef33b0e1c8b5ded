package archivekit

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/archivekit.toml", []byte(`
buffer_size = 65536
compression_level = 9
overwrite = true
skip_system_files = true
text_encoding = "GBK"
`))

	opts, err := LoadOptions(fs, "/etc/archivekit.toml")
	require.NoError(t, err)
	assert.Equal(t, 65536, opts.BufferSize)
	assert.Equal(t, 9, opts.CompressionLevel)
	assert.True(t, opts.Overwrite)
	assert.True(t, opts.AutoRename)
	assert.True(t, opts.SkipSystemFiles)
	assert.Equal(t, "GBK", opts.TextEncoding)
	assert.Equal(t, DefaultProgressDelayRate, opts.ProgressDelayRate)
	assert.Equal(t, fs, opts.Fs)
}

func TestLoadOptionsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadOptions(fs, "/missing.toml")
	assert.Error(t, err)

	writeFile(t, fs, "/bad.toml", []byte("buffer_size = ["))
	_, err = LoadOptions(fs, "/bad.toml")
	assert.Error(t, err)

	writeFile(t, fs, "/level.toml", []byte("compression_level = 11"))
	_, err = LoadOptions(fs, "/level.toml")
	assert.True(t, IsErrorType(err, ErrInvalidArgument))

	writeFile(t, fs, "/enc.toml", []byte(`text_encoding = "KLINGON"`))
	_, err = LoadOptions(fs, "/enc.toml")
	assert.True(t, IsErrorType(err, ErrInvalidArgument))
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultBufferSize, opts.BufferSize)
	assert.NotNil(t, opts.Fs)
	assert.NotNil(t, opts.Consumer)
	assert.NoError(t, opts.Validate())
}
