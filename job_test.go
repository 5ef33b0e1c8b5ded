package archivekit

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/itchio/wharf/state"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptedZip 创建用AES加密的ZIP
func encryptedZip(t *testing.T, password string) (afero.Fs, Options, []byte) {
	t.Helper()
	fs, opts := memOptions()
	payload := randomPayload(t, 256)
	writeFile(t, fs, "/src/secret.txt", payload)

	encOpts := opts
	encOpts.Password = password
	buildArchive(t, encOpts, TypeZip, []string{"/src/secret.txt"}, "/in/secret.zip")
	return fs, opts, payload
}

func decompressInfo(path, password string) *DecompressionInfo {
	return &DecompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/dest"},
		Item:          ArchiveItem{Path: path, Password: password, DisplayName: "secret.zip"},
	}
}

func TestJobRequestsPasswordOnceAndRetries(t *testing.T) {
	fs, opts, payload := encryptedZip(t, "secret")
	factory := newCountingFactory()
	passwords := &countingPasswords{password: "secret"}

	job := NewJob(JobDeps{Options: opts, Factory: factory, Passwords: passwords})
	result := job.Decompress(context.Background(), []*DecompressionInfo{decompressInfo("/in/secret.zip", "")})

	assert.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
	assert.Equal(t, 1, passwords.calls)
	assert.Equal(t, 2, factory.decompressCalls())
	assert.Equal(t, payload, readFile(t, fs, "/dest/secret.txt"))
}

func TestJobWrongPasswordOnRetryIsTerminal(t *testing.T) {
	_, opts, _ := encryptedZip(t, "secret")
	factory := newCountingFactory()
	passwords := &countingPasswords{password: "wrong"}

	job := NewJob(JobDeps{Options: opts, Factory: factory, Passwords: passwords})
	result := job.Decompress(context.Background(), []*DecompressionInfo{decompressInfo("/in/secret.zip", "")})

	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, ErrArchiveEncrypted, result.ErrorType)
	assert.Contains(t, result.Message, "密码错误")
	assert.Equal(t, 1, passwords.calls)
	assert.Equal(t, 2, factory.decompressCalls())
}

func TestJobSuppliedWrongPasswordDoesNotPrompt(t *testing.T) {
	_, opts, _ := encryptedZip(t, "secret")
	factory := newCountingFactory()
	passwords := &countingPasswords{password: "secret"}

	job := NewJob(JobDeps{Options: opts, Factory: factory, Passwords: passwords})
	result := job.Decompress(context.Background(), []*DecompressionInfo{decompressInfo("/in/secret.zip", "wrong")})

	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, ErrArchiveEncrypted, result.ErrorType)
	assert.Equal(t, 0, passwords.calls)
	assert.Equal(t, 1, factory.decompressCalls())
}

func TestJobEncryptedWithoutProvider(t *testing.T) {
	_, opts, _ := encryptedZip(t, "secret")

	job := NewJob(JobDeps{Options: opts})
	result := job.Decompress(context.Background(), []*DecompressionInfo{decompressInfo("/in/secret.zip", "")})

	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, ErrArchiveEncrypted, result.ErrorType)
	assert.Contains(t, result.Message, "压缩包已加密")
}

func TestJobSplitsSingleStreamCompression(t *testing.T) {
	fs, opts := memOptions()
	files := []string{"/src/a.txt", "/src/b.txt", "/src/c.txt"}
	for _, f := range files {
		writeFile(t, fs, f, randomPayload(t, 64))
	}

	factory := newCountingFactory()
	job := NewJob(JobDeps{Options: opts, Factory: factory})
	info := &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeGZip,
		ArchiveName:   "bundle",
		SelectedFiles: files,
	}
	result := job.Compress(context.Background(), info)

	require.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
	assert.Equal(t, []string{"/out/bundle.gz", "/out/bundle_1.gz", "/out/bundle_2.gz"}, factory.compressCalls())
	assert.Equal(t, factory.compressCalls(), result.ArchiveNames)
	assert.Equal(t, files, info.SelectedFiles)
}

func TestJobContainerCompressionIsSingleCall(t *testing.T) {
	fs, opts := memOptions()
	files := []string{"/src/a.txt", "/src/b.txt", "/src/c.txt"}
	for _, f := range files {
		writeFile(t, fs, f, randomPayload(t, 64))
	}

	factory := newCountingFactory()
	job := NewJob(JobDeps{Options: opts, Factory: factory})
	result := job.Compress(context.Background(), &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeZip,
		ArchiveName:   "bundle",
		SelectedFiles: files,
	})

	require.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
	assert.Equal(t, []string{"/out/bundle.zip"}, factory.compressCalls())
}

func TestJobCancelDeletesPartialArchive(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/big.bin", randomPayload(t, 2<<20))

	var job *Job
	var once sync.Once
	opts.ProgressDelayRate = 1
	opts.OnProgress = func(Progress) {
		once.Do(job.Cancel)
	}
	job = NewJob(JobDeps{Options: opts})

	info := &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeZip,
		ArchiveName:   "big",
		SelectedFiles: []string{"/src/big.bin"},
	}
	result := job.Compress(context.Background(), info)

	assert.Equal(t, StatusInterrupt, result.Status)
	exists, err := afero.Exists(fs, "/out/big.zip")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, job.IsRunning())

	// 取消请求已被清除，任务可以再次执行
	result = job.Compress(context.Background(), info)
	assert.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
}

func TestJobCancelDuringDecompressionBatch(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/big.bin", randomPayload(t, 2<<20))
	writeFile(t, fs, "/src/small.txt", []byte("small"))
	buildArchive(t, opts, TypeZip, []string{"/src/big.bin"}, "/in/big.zip")
	buildArchive(t, opts, TypeZip, []string{"/src/small.txt"}, "/in/small.zip")

	var job *Job
	var once sync.Once
	opts.ProgressDelayRate = 1
	opts.OnProgress = func(Progress) {
		once.Do(job.Cancel)
	}
	factory := newCountingFactory()
	job = NewJob(JobDeps{Options: opts, Factory: factory})

	batch := func(out string) []*DecompressionInfo {
		return []*DecompressionInfo{
			{OperationInfo: OperationInfo{OutputLocation: out + "/big"}, Item: ArchiveItem{Path: "/in/big.zip", DisplayName: "big.zip"}},
			{OperationInfo: OperationInfo{OutputLocation: out + "/small"}, Item: ArchiveItem{Path: "/in/small.zip", DisplayName: "small.zip"}},
		}
	}

	result := job.Decompress(context.Background(), batch("/out"))
	assert.Equal(t, StatusInterrupt, result.Status)
	assert.Equal(t, 1, factory.decompressCalls())
	exists, err := afero.Exists(fs, "/out/small")
	require.NoError(t, err)
	assert.False(t, exists)

	result = job.Decompress(context.Background(), batch("/again"))
	assert.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
	assert.Equal(t, 3, factory.decompressCalls())
	assert.Equal(t, []byte("small"), readFile(t, fs, "/again/small/small.txt"))
}

func TestJobFailureNamesDerivedArchive(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/report.txt", []byte("r"))

	job := NewJob(JobDeps{Options: opts})
	result := job.Compress(context.Background(), &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeRar,
		SelectedFiles: []string{"/src/report.txt"},
	})

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, strings.HasPrefix(result.Message, "report.rar: "), result.Message)
}

func TestJobCancelledContextInterrupts(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("a"))
	writeFile(t, fs, "/src/b.txt", []byte("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewJob(JobDeps{Options: opts})
	result := job.Compress(ctx, &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeGZip,
		SelectedFiles: []string{"/src/a.txt", "/src/b.txt"},
	})

	assert.Equal(t, StatusInterrupt, result.Status)
	entries, _ := afero.ReadDir(fs, "/out")
	assert.Empty(t, entries)
}

func TestJobAggregatesPartialFailure(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", []byte("alpha"))
	buildArchive(t, opts, TypeZip, []string{"/src/a.txt"}, "/in/good.zip")
	writeFile(t, fs, "/in/bad.zip", randomPayload(t, 128))

	job := NewJob(JobDeps{Options: opts})
	result := job.Decompress(context.Background(), []*DecompressionInfo{
		{Item: ArchiveItem{Path: "/in/good.zip", DisplayName: "good.zip"}},
		{Item: ArchiveItem{Path: "/in/bad.zip", DisplayName: "bad.zip"}},
	})

	assert.Equal(t, StatusPartialFail, result.Status)
	assert.Contains(t, result.Message, "bad.zip: ")
	assert.NotContains(t, result.Message, "good.zip")
	assert.Equal(t, []byte("alpha"), readFile(t, fs, "/in/good/a.txt"))
}

func TestJobAllFailed(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/in/bad.zip", randomPayload(t, 128))

	job := NewJob(JobDeps{Options: opts})
	result := job.Decompress(context.Background(), []*DecompressionInfo{
		{Item: ArchiveItem{Path: "/in/bad.zip"}},
	})
	assert.Equal(t, StatusFail, result.Status)
	assert.NotEmpty(t, result.VerboseMessage)
}

func TestJobReportsProgress(t *testing.T) {
	fs, opts := memOptions()
	writeFile(t, fs, "/src/a.txt", randomPayload(t, 4096))

	var reported []float64
	opts.Consumer = &state.Consumer{
		OnProgress: func(alpha float64) { reported = append(reported, alpha) },
	}
	manager := NewPercentProgressManager()

	job := NewJob(JobDeps{Options: opts, Progress: manager})
	result := job.Compress(context.Background(), &CompressionInfo{
		OperationInfo: OperationInfo{OutputLocation: "/out"},
		ArchiveType:   TypeZip,
		SelectedFiles: []string{"/src/a.txt"},
	})

	require.Equal(t, StatusSuccess, result.Status, result.VerboseMessage)
	require.NotEmpty(t, reported)
	assert.Equal(t, 1.0, reported[len(reported)-1])
	assert.Equal(t, 0, manager.Count())
}
