package archivekit

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestResolveByExtension(t *testing.T) {
	tests := map[string]ArchiveType{
		"a.zip":         TypeZip,
		"A.ZIP":         TypeZip,
		"a.tar":         TypeTar,
		"a.tar.gz":      TypeTarGz,
		"a.tgz":         TypeTarGz,
		"a.tar.bz2":     TypeTarBz2,
		"a.tbz2":        TypeTarBz2,
		"a.tar.lz":      TypeTarLz,
		"a.gz":          TypeGZip,
		"a.bz2":         TypeBZip2,
		"a.lz":          TypeLZip,
		"a.rar":         TypeRar,
		"dir/a.7z":      TypeSevenZip,
		"a.txt":         TypeUnknown,
		"noext":         TypeUnknown,
		"a.part.tar.gz": TypeTarGz,
	}
	for name, want := range tests {
		assert.Equal(t, want, Resolve(name), name)
	}
}

func TestProbeByContentMagic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ArchiveType
	}{
		{"zip", []byte("PK\x03\x04rest"), TypeZip},
		{"empty zip", []byte("PK\x05\x06rest"), TypeZip},
		{"rar4", []byte("Rar!\x1A\x07\x00rest"), TypeRar},
		{"rar5", []byte("Rar!\x1A\x07\x01\x00rest"), TypeRar},
		{"7z", []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C, 0, 4}, TypeSevenZip},
		{"lzip", lzipCompress(t, []byte("x")), TypeLZip},
		{"text", []byte("just some text"), TypeUnknown},
		{"short", []byte("PK"), TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.data)
			assert.Equal(t, tt.want, ProbeByContent(r))
			pos, _ := r.Seek(0, 1)
			assert.Zero(t, pos)
		})
	}
}

func TestResolveFileFallsBackToProbe(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	buildArchive(t, opts, TypeTarBz2, []string{"/src/a.txt"}, "/in/a.tar.bz2")
	data := readFile(t, fs, "/in/a.tar.bz2")
	writeFile(t, fs, "/in/mystery", data)

	d := NewFormatDetector()
	assert.Equal(t, TypeTarBz2, d.ResolveFile(fs, "/in/mystery"))
	assert.Equal(t, TypeUnknown, d.ResolveFile(afero.NewMemMapFs(), "/in/mystery"))
}

func TestArchiveTypeHelpers(t *testing.T) {
	assert.Equal(t, ".tar.gz", TypeTarGz.Extension())
	assert.Equal(t, "", TypeUnknown.Extension())
	assert.Equal(t, TypeTarLz, ParseArchiveType("tar.lz"))
	assert.Equal(t, TypeUnknown, ParseArchiveType("cab"))
	assert.True(t, TypeLZip.IsSingleStream())
	assert.True(t, TypeSevenZip.IsReadOnly())
	assert.True(t, TypeTarBz2.IsTarFamily())
	assert.False(t, TypeGZip.IsTarFamily())
}
