// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transfer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/datfetch/internal/httputil"
	"github.com/pdiddy/datfetch/pkg/types"
)

// fileServer serves data for HEAD and GET, honouring Range unless
// ignoreRange is set. The first failHeads HEAD requests get a 500.
type fileServer struct {
	data        []byte
	failHeads   int
	ignoreRange bool
	omitLength  bool

	mu     sync.Mutex
	heads  int
	gets   int
	ranges []string
}

func (fs *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	var fail bool
	switch r.Method {
	case http.MethodHead:
		fs.heads++
		fail = fs.heads <= fs.failHeads
	case http.MethodGet:
		fs.gets++
		fs.ranges = append(fs.ranges, r.Header.Get("Range"))
	}
	fs.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if r.Method == http.MethodHead && fs.omitLength {
		w.WriteHeader(http.StatusOK)
		return
	}
	if fs.ignoreRange {
		r.Header.Del("Range")
	}
	http.ServeContent(w, r, "game.zip", time.Time{}, bytes.NewReader(fs.data))
}

func (fs *fileServer) counts() (heads, gets int, ranges []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.heads, fs.gets, append([]string(nil), fs.ranges...)
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

type recordingProgress struct {
	offsets  []int64
	totals   []int64
	advanced int64
	finished int
}

func (p *recordingProgress) Start(_ types.TransferTask, offset, total int64) {
	p.offsets = append(p.offsets, offset)
	p.totals = append(p.totals, total)
}
func (p *recordingProgress) Advance(n int64) { p.advanced += n }
func (p *recordingProgress) Finish(_ types.TransferTask) { p.finished++ }

func newEngine(cfg types.TransferConfig, p Progress) (*Engine, *bytes.Buffer) {
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	out := &bytes.Buffer{}
	client := &http.Client{Timeout: 5 * time.Second}
	return NewEngine(client, types.HTTPConfig{}, cfg, p, out), out
}

func serve(t *testing.T, fs *fileServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return srv
}

func task(srv *httptest.Server, dir, name string) types.TransferTask {
	return types.TransferTask{
		RemoteURL:   srv.URL + "/files/" + name + ".zip",
		LocalPath:   filepath.Join(dir, name+".zip"),
		DisplayName: name,
		Index:       1,
		Total:       1,
	}
}

func TestTasks(t *testing.T) {
	items := []types.RemoteItem{
		{IdentityKey: "Game A", DisplayFile: "Game A.zip", Href: "Game%20A.zip"},
		{IdentityKey: "Game B", DisplayFile: "Game B.zip", Href: "Game%20B.zip"},
	}
	tasks := Tasks("https://myrient.erista.me/files/No-Intro/Sys/", "/out", items)

	require.Len(t, tasks, 2)
	assert.Equal(t, "https://myrient.erista.me/files/No-Intro/Sys/Game%20A.zip", tasks[0].RemoteURL)
	assert.Equal(t, filepath.Join("/out", "Game A.zip"), tasks[0].LocalPath)
	assert.Equal(t, "Game A", tasks[0].DisplayName)
	assert.Equal(t, 1, tasks[0].Index)
	assert.Equal(t, 2, tasks[1].Index)
	assert.Equal(t, 2, tasks[1].Total)
}

func TestTransferOne_FreshDownload(t *testing.T) {
	data := payload(1000)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	p := &recordingProgress{}
	e, _ := newEngine(types.TransferConfig{}, p)

	tk := task(srv, dir, "Game A")
	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCompleted, out.Kind)
	assert.Equal(t, int64(1000), out.Bytes)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, _, ranges := fs.counts()
	assert.Equal(t, []string{""}, ranges, "fresh download sends no Range header")
	assert.Equal(t, []int64{0}, p.offsets)
	assert.Equal(t, []int64{1000}, p.totals)
	assert.Equal(t, int64(1000), p.advanced)
	assert.Equal(t, 1, p.finished)
}

func TestTransferOne_Idempotent(t *testing.T) {
	fs := &fileServer{data: payload(512)}
	srv := serve(t, fs)
	dir := t.TempDir()
	e, _ := newEngine(types.TransferConfig{}, nil)
	tk := task(srv, dir, "Game A")

	first, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeCompleted, first.Kind)

	second, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAlreadyPresent, second.Kind)
	assert.Zero(t, second.Bytes)

	heads, gets, _ := fs.counts()
	assert.Equal(t, 2, heads)
	assert.Equal(t, 1, gets, "second run must not issue a GET")
}

func TestTransferOne_Resume(t *testing.T) {
	data := payload(1000)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.WriteFile(tk.LocalPath, data[:300], 0o644))

	p := &recordingProgress{}
	e, _ := newEngine(types.TransferConfig{}, p)
	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(700), out.Bytes)

	_, _, ranges := fs.counts()
	assert.Equal(t, []string{"bytes=300-"}, ranges)
	assert.Equal(t, []int64{300}, p.offsets)
	assert.Equal(t, int64(700), p.advanced)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferOne_ServerIgnoresRange(t *testing.T) {
	data := payload(1000)
	fs := &fileServer{data: data, ignoreRange: true}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.WriteFile(tk.LocalPath, data[:400], 0o644))

	e, _ := newEngine(types.TransferConfig{}, nil)
	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(600), out.Bytes)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got, "prefix of a 200 reply must be skipped")
}

func TestTransferOne_Chunked(t *testing.T) {
	data := payload(35)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")

	e, _ := newEngine(types.TransferConfig{ChunkSize: 10}, nil)
	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(35), out.Bytes)

	_, _, ranges := fs.counts()
	assert.Equal(t, []string{"bytes=0-9", "bytes=10-19", "bytes=20-29", "bytes=30-"}, ranges)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferOne_ChunkedResume(t *testing.T) {
	data := payload(35)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.WriteFile(tk.LocalPath, data[:12], 0o644))

	e, _ := newEngine(types.TransferConfig{ChunkSize: 10}, nil)
	_, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)

	_, _, ranges := fs.counts()
	assert.Equal(t, []string{"bytes=12-21", "bytes=22-31", "bytes=32-"}, ranges)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferOne_LocalOversized(t *testing.T) {
	data := payload(100)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	local := payload(150)
	require.NoError(t, os.WriteFile(tk.LocalPath, local, 0o644))

	e, _ := newEngine(types.TransferConfig{}, nil)
	out, err := e.TransferOne(context.Background(), tk)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocalOversized)
	assert.True(t, httputil.IsPermanent(err))
	assert.Equal(t, types.OutcomeFailed, out.Kind)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, local, got, "oversized file must be left untouched")
}

func TestTransferOne_MissingContentLength(t *testing.T) {
	fs := &fileServer{data: payload(10), omitLength: true}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")

	e, _ := newEngine(types.TransferConfig{}, nil)
	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAlreadyPresent, out.Kind, "unknown size and no local file count as present")

	_, gets, _ := fs.counts()
	assert.Zero(t, gets)
}

func TestTransferOne_LocalPathIsDirectory(t *testing.T) {
	fs := &fileServer{data: payload(10)}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.Mkdir(tk.LocalPath, 0o755))

	e, _ := newEngine(types.TransferConfig{}, nil)
	_, err := e.TransferOne(context.Background(), tk)
	require.Error(t, err)
	assert.True(t, httputil.IsPermanent(err))
}

func TestTransferOne_RateLimited(t *testing.T) {
	data := payload(200 * 1024)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")

	e, _ := newEngine(types.TransferConfig{RateLimit: 1 << 30}, nil)
	require.NotNil(t, e.limiter)
	assert.Equal(t, maxBurst, e.limiter.Burst())

	out, err := e.TransferOne(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), out.Bytes)

	got, err := os.ReadFile(tk.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferAll_RetriesExactlyThreeTimes(t *testing.T) {
	bad := &fileServer{data: payload(10), failHeads: 100}
	good := &fileServer{data: payload(20)}
	badSrv := serve(t, bad)
	goodSrv := serve(t, good)
	dir := t.TempDir()

	t1 := task(badSrv, dir, "Game A")
	t2 := task(goodSrv, dir, "Game B")
	t1.Index, t1.Total = 1, 2
	t2.Index, t2.Total = 2, 2

	e, out := newEngine(types.TransferConfig{}, nil)
	sum := e.TransferAll(context.Background(), []types.TransferTask{t1, t2})

	heads, gets, _ := bad.counts()
	assert.Equal(t, DefaultMaxAttempts, heads)
	assert.Zero(t, gets)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, sum.Total())
	assert.True(t, sum.HasFailures())
	assert.Equal(t, int64(20), sum.Bytes)

	failed := sum.FailedOutcomes()
	require.Len(t, failed, 1)
	assert.Equal(t, "Game A", failed[0].Task.DisplayName)
	assert.Equal(t, DefaultMaxAttempts, failed[0].Attempts)
	assert.Contains(t, failed[0].Reason, "HTTP 500")
	assert.True(t, types.IsKind(failed[0].Err, types.KindTransferFailed))

	err := sum.Err()
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindTransferFailed))
	assert.False(t, types.IsFatal(err), "item failures do not end the run")
	assert.Contains(t, err.Error(), "1 of 2 items failed")

	text := out.String()
	assert.Contains(t, text, "Error with")
	assert.Contains(t, text, "1/2: Game A")
	assert.Contains(t, text, "Downloaded")
	assert.Contains(t, text, "2/2: Game B")
	assert.Contains(t, text, "Batch summary: 1 downloaded, 0 already present, 1 failed (total: 2)")
}

func TestTransferAll_SucceedsOnSecondAttempt(t *testing.T) {
	fs := &fileServer{data: payload(64), failHeads: 1}
	srv := serve(t, fs)
	dir := t.TempDir()

	e, _ := newEngine(types.TransferConfig{}, nil)
	sum := e.TransferAll(context.Background(), []types.TransferTask{task(srv, dir, "Game A")})

	require.Len(t, sum.Outcomes, 1)
	assert.Equal(t, types.OutcomeCompleted, sum.Outcomes[0].Kind)
	assert.Equal(t, 2, sum.Outcomes[0].Attempts)

	heads, _, _ := fs.counts()
	assert.Equal(t, 2, heads)
}

func TestTransferAll_PermanentFailureNotRetried(t *testing.T) {
	fs := &fileServer{data: payload(10)}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.WriteFile(tk.LocalPath, payload(20), 0o644))

	e, _ := newEngine(types.TransferConfig{}, nil)
	sum := e.TransferAll(context.Background(), []types.TransferTask{tk})

	require.Len(t, sum.Outcomes, 1)
	assert.Equal(t, types.OutcomeFailed, sum.Outcomes[0].Kind)
	assert.Equal(t, 1, sum.Outcomes[0].Attempts)

	heads, _, _ := fs.counts()
	assert.Equal(t, 1, heads)
}

func TestTransferAll_AlreadyPresentReported(t *testing.T) {
	data := payload(30)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	dir := t.TempDir()
	tk := task(srv, dir, "Game A")
	require.NoError(t, os.WriteFile(tk.LocalPath, data, 0o644))

	e, out := newEngine(types.TransferConfig{}, nil)
	sum := e.TransferAll(context.Background(), []types.TransferTask{tk})

	assert.Equal(t, 1, sum.AlreadyPresent)
	assert.False(t, sum.HasFailures())
	assert.NoError(t, sum.Err())
	assert.Contains(t, out.String(), "Already DLd")
}

func TestTransferAll_CancelledContext(t *testing.T) {
	fs := &fileServer{data: payload(10)}
	srv := serve(t, fs)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newEngine(types.TransferConfig{}, nil)
	sum := e.TransferAll(ctx, []types.TransferTask{task(srv, dir, "Game A")})
	assert.Zero(t, sum.Total())

	heads, _, _ := fs.counts()
	assert.Zero(t, heads)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(http.DefaultClient, types.HTTPConfig{}, types.TransferConfig{}, nil, nil)
	assert.Equal(t, DefaultMaxAttempts, e.cfg.MaxAttempts)
	assert.Equal(t, DefaultRetryBaseDelay, e.cfg.RetryBaseDelay)
	assert.Nil(t, e.limiter)
	assert.Equal(t, Discard, e.progress)
}

func TestContentRangeStart(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"bytes 300-999/1000", 300, true},
		{"bytes 0-9/35", 0, true},
		{"", 0, false},
		{"items 1-2/3", 0, false},
		{"bytes */1000", 0, false},
	}
	for _, tt := range tests {
		got, ok := contentRangeStart(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMeteredReader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &meteredReader{ctx: ctx, r: bytes.NewReader(payload(10)), progress: Discard}
	_, err := m.Read(make([]byte, 4))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTransferOne_RejectsPathOutsideOutputDir(t *testing.T) {
	fs := &fileServer{data: payload(10)}
	srv := serve(t, fs)
	root := t.TempDir()
	outDir := filepath.Join(root, "roms")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	items := []types.RemoteItem{
		{IdentityKey: "evil", DisplayFile: "../evil.zip", Href: "evil.zip"},
		{IdentityKey: "x", DisplayFile: "sub/x.zip", Href: "x.zip"},
		{IdentityKey: "..", DisplayFile: "..", Href: "up"},
	}
	tasks := Tasks(srv.URL+"/", outDir, items)

	e, _ := newEngine(types.TransferConfig{OutputDir: outDir}, nil)
	for _, tk := range tasks {
		out, err := e.TransferOne(context.Background(), tk)
		require.Error(t, err, tk.LocalPath)
		assert.ErrorIs(t, err, ErrOutsideOutputDir)
		assert.True(t, httputil.IsPermanent(err))
		assert.Equal(t, types.OutcomeFailed, out.Kind)
	}

	heads, gets, _ := fs.counts()
	assert.Zero(t, heads, "rejected before any request")
	assert.Zero(t, gets)
	assert.NoFileExists(t, filepath.Join(root, "evil.zip"))
}

func TestTransferOne_AcceptsFileInsideOutputDir(t *testing.T) {
	data := payload(50)
	fs := &fileServer{data: data}
	srv := serve(t, fs)
	outDir := t.TempDir()

	tasks := Tasks(srv.URL+"/", outDir+string(os.PathSeparator), []types.RemoteItem{
		{IdentityKey: "Game A", DisplayFile: "Game A.zip", Href: "Game%20A.zip"},
	})
	e, _ := newEngine(types.TransferConfig{OutputDir: outDir}, nil)
	out, err := e.TransferOne(context.Background(), tasks[0])
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCompleted, out.Kind)
	assert.FileExists(t, filepath.Join(outDir, "Game A.zip"))
}
