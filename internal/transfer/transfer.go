// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transfer downloads matched remote items into the output
// directory. Transfers resume from the size of an existing local file,
// may be split into sequential ranged requests, and are retried with
// exponential backoff. Local files are only ever created or appended to.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/datfetch/internal/ctxlog"
	"github.com/pdiddy/datfetch/internal/httputil"
	"github.com/pdiddy/datfetch/internal/term"
	"github.com/pdiddy/datfetch/pkg/types"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 100 * time.Millisecond

	// maxBurst bounds a single rate limiter reservation.
	maxBurst = 64 * 1024
)

// ErrLocalOversized is returned when the local file is already larger than
// the remote one. The file is left alone and the item is not retried.
var ErrLocalOversized = errors.New("local file larger than remote")

// ErrOutsideOutputDir is returned for a task whose local path is not a
// plain file directly inside the configured output directory.
var ErrOutsideOutputDir = errors.New("local path outside output directory")

// Progress receives transfer progress. Start is called once before the
// first byte with the resume offset and the remote size, Advance with the
// number of bytes written since the previous call, and Finish once the
// attempt ends.
type Progress interface {
	Start(task types.TransferTask, offset, total int64)
	Advance(n int64)
	Finish(task types.TransferTask)
}

type discard struct{}

func (discard) Start(types.TransferTask, int64, int64) {}
func (discard) Advance(int64) {}
func (discard) Finish(types.TransferTask) {}

// Discard ignores progress.
var Discard Progress = discard{}

// Engine runs transfers one at a time over a shared HTTP client.
type Engine struct {
	http     *http.Client
	httpCfg  types.HTTPConfig
	cfg      types.TransferConfig
	progress Progress
	limiter  *rate.Limiter
	out      io.Writer
}

// NewEngine returns an Engine. A nil progress discards progress; a nil out
// discards status lines.
func NewEngine(client *http.Client, httpCfg types.HTTPConfig, cfg types.TransferConfig, progress Progress, out io.Writer) *Engine {
	if progress == nil {
		progress = Discard
	}
	if out == nil {
		out = io.Discard
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}

	e := &Engine{
		http:     client,
		httpCfg:  httpCfg,
		cfg:      cfg,
		progress: progress,
		out:      out,
	}
	if cfg.RateLimit > 0 {
		burst := int(min(cfg.RateLimit, maxBurst))
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e
}

// Tasks builds one task per item. URLs are base+href and local paths use
// the scraped display filename inside outputDir. Display names that are not
// plain file names are caught by TransferOne when the engine's OutputDir
// is set.
func Tasks(base, outputDir string, items []types.RemoteItem) []types.TransferTask {
	tasks := make([]types.TransferTask, len(items))
	for i, it := range items {
		tasks[i] = types.TransferTask{
			RemoteURL:   base + it.Href,
			LocalPath:   filepath.Join(outputDir, it.DisplayFile),
			DisplayName: it.IdentityKey,
			Index:       i + 1,
			Total:       len(items),
		}
	}
	return tasks
}

// TransferOne makes a single attempt at task. A non-nil error means the
// attempt failed; errors wrapped with httputil.Permanent must not be
// retried.
func (e *Engine) TransferOne(ctx context.Context, task types.TransferTask) (types.TransferOutcome, error) {
	logger := ctxlog.FromContext(ctx).With("item", task.DisplayName)

	if err := e.checkLocalPath(task.LocalPath); err != nil {
		return types.Failed(task, err.Error()), err
	}

	remoteSize, err := e.probe(ctx, task.RemoteURL)
	if err != nil {
		return types.Failed(task, err.Error()), err
	}

	localSize, err := localSize(task.LocalPath)
	if err != nil {
		return types.Failed(task, err.Error()), err
	}

	logger.Debug("sizes probed", "remote", remoteSize, "local", localSize)

	switch {
	case localSize == remoteSize:
		return types.AlreadyPresent(task), nil
	case localSize > remoteSize:
		err := httputil.Permanent(fmt.Errorf("%w: %d > %d bytes", ErrLocalOversized, localSize, remoteSize))
		return types.Failed(task, err.Error()), err
	}

	n, err := e.fetch(ctx, task, localSize, remoteSize)
	if err != nil {
		return types.Failed(task, err.Error()), err
	}
	return types.Completed(task, n), nil
}

// Summary holds the outcomes of a batch.
type Summary struct {
	Outcomes       []types.TransferOutcome
	Completed      int
	AlreadyPresent int
	Failed         int
	Bytes          int64
}

// Total returns the number of tasks processed.
func (s Summary) Total() int {
	return s.Completed + s.AlreadyPresent + s.Failed
}

// HasFailures reports whether any task failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// FailedOutcomes returns the failed outcomes in task order.
func (s Summary) FailedOutcomes() []types.TransferOutcome {
	var out []types.TransferOutcome
	for _, o := range s.Outcomes {
		if o.Kind == types.OutcomeFailed {
			out = append(out, o)
		}
	}
	return out
}

// Err returns a non-fatal KindTransferFailed error when any task failed,
// and nil otherwise.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return types.Errorf(types.KindTransferFailed, "transfer", "%d of %d items failed", s.Failed, s.Total())
}

func (s *Summary) add(o types.TransferOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Bytes += o.Bytes
	switch o.Kind {
	case types.OutcomeCompleted:
		s.Completed++
	case types.OutcomeAlreadyPresent:
		s.AlreadyPresent++
	default:
		s.Failed++
	}
}

// TransferAll processes tasks in order, printing a status line per item.
// Each task gets up to MaxAttempts attempts; a task that exhausts them is
// recorded as failed and the batch continues. Cancelling ctx stops the
// batch before the next task.
func (e *Engine) TransferAll(ctx context.Context, tasks []types.TransferTask) Summary {
	logger := ctxlog.FromContext(ctx)
	var sum Summary

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}

		var outcome types.TransferOutcome
		attempts, err := httputil.Retry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(attempt int) error {
			o, err := e.TransferOne(ctx, task)
			if err != nil {
				logger.Warn("transfer attempt failed",
					"item", task.DisplayName, "attempt", attempt, "max", e.cfg.MaxAttempts, "err", err)
				return err
			}
			outcome = o
			return nil
		})
		if err != nil {
			outcome = types.Failed(task, err.Error())
			outcome.Err = &types.Error{Kind: types.KindTransferFailed, Op: task.DisplayName, Err: err}
		}
		outcome.Attempts = attempts

		sum.add(outcome)
		e.status(outcome)
	}

	fmt.Fprintf(e.out, "\nBatch summary: %d downloaded, %d already present, %d failed (total: %d)\n",
		sum.Completed, sum.AlreadyPresent, sum.Failed, sum.Total())
	return sum
}

func (e *Engine) status(o types.TransferOutcome) {
	counter := term.Counter(o.Task.Index, o.Task.Total)
	switch o.Kind {
	case types.OutcomeCompleted:
		fmt.Fprintln(e.out, term.Info.Render(fmt.Sprintf("%-11s %s: %s", "Downloaded", counter, o.Task.DisplayName)))
	case types.OutcomeAlreadyPresent:
		fmt.Fprintln(e.out, term.Info.Render(fmt.Sprintf("%-11s %s: %s", "Already DLd", counter, o.Task.DisplayName)))
	default:
		fmt.Fprintln(e.out, term.Problem.Render(fmt.Sprintf("%-11s %s: %s (%s)", "Error with", counter, o.Task.DisplayName, o.Reason)))
	}
}

// checkLocalPath confines writes to the output directory when one is
// configured. Violations are permanent.
func (e *Engine) checkLocalPath(path string) error {
	if e.cfg.OutputDir == "" {
		return nil
	}
	clean := filepath.Clean(path)
	if !types.IsPlainFileName(filepath.Base(clean)) || filepath.Dir(clean) != filepath.Clean(e.cfg.OutputDir) {
		return httputil.Permanent(fmt.Errorf("%w: %s", ErrOutsideOutputDir, path))
	}
	return nil
}

// probe returns the remote size from a HEAD request. A missing
// Content-Length counts as zero.
func (e *Engine) probe(ctx context.Context, url string) (int64, error) {
	req, err := httputil.NewRequest(ctx, http.MethodHead, url, e.httpCfg)
	if err != nil {
		return 0, err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", url, err)
	}
	defer httputil.DrainClose(resp)

	if !httputil.IsSuccess(resp.StatusCode) {
		return 0, fmt.Errorf("HEAD %s: HTTP %d", url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

func localSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking local file: %w", err)
	}
	if info.IsDir() {
		return 0, httputil.Permanent(fmt.Errorf("local path %s is a directory", path))
	}
	return info.Size(), nil
}

// fetch appends bytes [offset, remoteSize) to the local file and returns
// the number written. With a chunk size the range is requested in
// consecutive pieces; a short body is resumed from where it stopped.
func (e *Engine) fetch(ctx context.Context, task types.TransferTask, offset, remoteSize int64) (int64, error) {
	f, err := os.OpenFile(task.LocalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening local file: %w", err)
	}

	e.progress.Start(task, offset, remoteSize)
	defer e.progress.Finish(task)

	var written int64
	for offset < remoteSize {
		end := int64(-1)
		if e.cfg.ChunkSize > 0 && remoteSize-offset > e.cfg.ChunkSize {
			end = offset + e.cfg.ChunkSize - 1
		}

		n, err := e.fetchRange(ctx, task.RemoteURL, offset, end, f)
		written += n
		offset += n
		if err != nil {
			f.Close()
			return written, err
		}
		if n == 0 {
			f.Close()
			return written, fmt.Errorf("GET %s: empty response at offset %d", task.RemoteURL, offset)
		}
	}

	if err := f.Close(); err != nil {
		return written, fmt.Errorf("closing local file: %w", err)
	}
	return written, nil
}

// fetchRange requests bytes start..end (end < 0 means to the end of the
// file) and copies them to w. A server that ignores the Range header and
// answers 200 has its first start bytes skipped and the rest of the body
// copied, so the caller still receives exactly the missing tail.
func (e *Engine) fetchRange(ctx context.Context, url string, start, end int64, w io.Writer) (int64, error) {
	req, err := httputil.NewRequest(ctx, http.MethodGet, url, e.httpCfg)
	if err != nil {
		return 0, err
	}
	if start > 0 || end >= 0 {
		req.Header.Set("Range", rangeHeader(start, end))
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("requesting", "url", url, "range", req.Header.Get("Range"))

	resp, err := e.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	switch resp.StatusCode {
	case http.StatusPartialContent:
		got, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		if ok && got != start {
			return 0, fmt.Errorf("GET %s: server returned range starting at %d, want %d", url, got, start)
		}
	case http.StatusOK:
		if start > 0 {
			logger.Debug("range ignored by server, skipping prefix", "url", url, "skip", start)
			if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
				return 0, fmt.Errorf("GET %s: skipping %d bytes: %w", url, start, err)
			}
		}
	default:
		return 0, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}

	n, err := io.Copy(w, &meteredReader{ctx: ctx, r: body, limiter: e.limiter, progress: e.progress})
	if err != nil {
		return n, fmt.Errorf("GET %s: %w", url, err)
	}
	return n, nil
}

func rangeHeader(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// contentRangeStart parses the first byte position of a
// "bytes start-end/size" header.
func contentRangeStart(h string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(h), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// meteredReader reports every read to the progress sink and, when a
// limiter is set, waits for tokens before handing data on.
type meteredReader struct {
	ctx      context.Context
	r        io.Reader
	limiter  *rate.Limiter
	progress Progress
}

func (m *meteredReader) Read(p []byte) (int, error) {
	if err := m.ctx.Err(); err != nil {
		return 0, err
	}
	if m.limiter != nil && len(p) > m.limiter.Burst() {
		p = p[:m.limiter.Burst()]
	}

	n, err := m.r.Read(p)
	if n > 0 {
		if m.limiter != nil {
			if werr := m.limiter.WaitN(m.ctx, n); werr != nil {
				return n, werr
			}
		}
		m.progress.Advance(int64(n))
	}
	return n, err
}
