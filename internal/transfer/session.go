package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/diskspace"
	"github.com/transana/srbxfer/internal/events"
	"github.com/transana/srbxfer/internal/logging"
	"github.com/transana/srbxfer/internal/progress"
	"github.com/transana/srbxfer/internal/ratelimit"
	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/util/buffers"
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	Logger   *logging.Logger
	Progress []progress.Sink
	Errors   ErrorSink
	EventBus *events.EventBus // receives progress and error events when set
	TaskID   string           // tags events

	ChunkSize      int                    // default constants.DefaultChunkSize
	Limiter        *ratelimit.RateLimiter // nil means unlimited
	CheckDiskSpace bool

	// FS is the local filesystem. Default is the host filesystem.
	FS billy.Basic

	// Token is observed at chunk boundaries. When nil each run gets its own.
	Token *CancelToken

	// TimingOutput receives [TIMING] lines. Default os.Stderr.
	TimingOutput io.Writer
}

// Session runs transfers with a fixed set of collaborators. One Session may
// run many transfers, one at a time.
type Session struct {
	opts Options
	log  *logging.Logger
}

// NewSession creates a session, filling in defaults.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = constants.DefaultChunkSize
	}
	if opts.FS == nil {
		opts.FS = osfs.Default
	}
	if opts.TimingOutput == nil {
		opts.TimingOutput = os.Stderr
	}
	return &Session{opts: opts, log: opts.Logger}
}

// Token returns the session's shared cancel token, or nil when each run
// creates its own.
func (s *Session) Token() *CancelToken {
	return s.opts.Token
}

// run holds the state of one transfer.
type run struct {
	s     *Session
	req   *Request
	token *CancelToken
	log   *logging.Logger
	rep   *progress.Reporter
	timer *ChunkTimer
	res   *Result
	first error // returned to the caller
	start time.Time
}

// Run performs one upload or download. Cancellation is reported through
// Result.Cancelled, not as an error. When an error is returned the partial
// copy has already been removed (best effort) and the Result, if non-nil,
// describes how far the transfer got.
func (s *Session) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		s.report(err)
		return nil, err
	}

	token := s.opts.Token
	if token == nil {
		token = NewCancelToken()
	}
	log := s.log.Child(s.log.With().
		Str("file", req.FileName).
		Str("direction", req.Direction.String()).
		Str("store", remote.StoreName(req.Connection)))
	r := &run{
		s:     s,
		req:   &req,
		token: token,
		log:   log,
		timer: NewChunkTimer(s.opts.TimingOutput, req.Direction.String()+" "+req.FileName),
		res:   &Result{},
		start: time.Now(),
	}

	phase := StartTimer(s.opts.TimingOutput, req.Direction.String()+" "+req.FileName)
	if req.Direction == Upload {
		r.upload(ctx)
	} else {
		r.download(ctx)
	}
	r.res.Duration = time.Since(r.start)
	phase.StopWithThroughput(r.res.BytesTransferred)
	r.timer.Summary()

	if r.first != nil {
		r.log.Error().Err(r.first).
			Int64("bytes", r.res.BytesTransferred).
			Int("chunks", r.res.Chunks).
			Msg("transfer failed")
		return r.res, r.first
	}
	if r.res.Cancelled {
		r.log.Warn().
			Int64("bytes", r.res.BytesTransferred).
			Int("chunks", r.res.Chunks).
			Msg("transfer cancelled, partial copy removed")
		return r.res, nil
	}
	r.log.Info().
		Int64("bytes", r.res.BytesTransferred).
		Int("chunks", r.res.Chunks).
		Dur("duration", r.res.Duration).
		Msg("transfer complete")
	return r.res, nil
}

func (s *Session) chunkSize(req *Request) int {
	if req.ChunkSize > 0 {
		return req.ChunkSize
	}
	return s.opts.ChunkSize
}

// report delivers err to the error sink and the event bus.
func (s *Session) report(err error) {
	if err == nil {
		return
	}
	if s.opts.Errors != nil {
		s.opts.Errors(err)
	}
	if s.opts.EventBus != nil {
		op := ""
		var re *RemoteError
		var le *LocalError
		switch {
		case errors.As(err, &re):
			op = re.Op
		case errors.As(err, &le):
			op = le.Op
		}
		s.opts.EventBus.PublishError(s.opts.TaskID, op, CodeOf(err), err)
	}
}

// fail records err. Only the first error is returned from Run; every error
// goes to the sink.
func (r *run) fail(err error) {
	r.s.report(err)
	if r.first == nil {
		r.first = err
		return
	}
	r.log.Warn().Err(err).Msg("cleanup error")
}

// cancelled polls the token, folding in context cancellation.
func (r *run) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.token.Cancel()
	}
	return r.token.Cancelled()
}

func (r *run) markCancelled() {
	r.token.Cancel()
	r.res.Cancelled = true
	r.rep.MarkCancelled()
}

// interrupted reports whether a failed call was caused by cancellation
// rather than by the store or the disk.
func (r *run) interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, remote.ErrCancelled))
}

func (r *run) newReporter(total int64) {
	sinks := append([]progress.Sink(nil), r.s.opts.Progress...)
	if r.s.opts.EventBus != nil {
		sinks = append(sinks, progress.NewEventSink(r.s.opts.EventBus, r.s.opts.TaskID))
	}
	r.rep = progress.NewReporter(r.req.FileName, total, sinks...)
	r.rep.Begin()
}

func (r *run) finishReporter() {
	if r.rep != nil {
		r.rep.Finish(r.first)
	}
}

// cleanupContext survives cancellation of the transfer's own context so the
// partial copy can still be removed.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.CleanupTimeout)
}

func (r *run) upload(ctx context.Context) {
	req := r.req
	store := req.Connection
	path := req.LocalPath()
	fs := r.s.opts.FS

	f, err := fs.Open(path)
	if err != nil {
		r.fail(localErr("open", path, err))
		return
	}

	fileType := req.FileType
	if fileType == "" {
		fileType = constants.DefaultFileType
	}
	h, err := store.Create(ctx, req.Collection, req.FileName, req.FileSize,
		remote.CreateOptions{FileType: fileType, Resource: req.Resource})
	if err != nil {
		if r.interrupted(ctx, err) {
			r.newReporter(req.FileSize)
			r.markCancelled()
		} else {
			r.fail(remoteErr("create", err))
		}
		if cerr := f.Close(); cerr != nil {
			r.fail(localErr("close", path, cerr))
		}
		r.finishReporter()
		return
	}

	r.log.Debug().Int64("size", req.FileSize).Str("collection", req.Collection).Msg("upload started")
	r.newReporter(req.FileSize)
	r.copyUp(ctx, f, h, path)

	cctx, cancel := cleanupContext(ctx)
	defer cancel()

	if cerr := f.Close(); cerr != nil {
		r.fail(localErr("close", path, cerr))
	}
	abandoned := r.res.Cancelled || r.first != nil
	if ab, ok := store.(remote.Aborter); ok && abandoned {
		if aerr := ab.Abort(cctx, h); aerr != nil {
			r.fail(remoteErr("abort", aerr))
		}
	} else if cerr := store.Close(cctx, h); cerr != nil {
		r.fail(remoteErr("close", cerr))
	}
	if abandoned {
		if rerr := store.Remove(cctx, req.Collection, req.FileName); rerr != nil && !errors.Is(rerr, remote.ErrNotFound) {
			r.fail(remoteErr("remove", rerr))
		} else {
			r.log.Debug().Msg("partial remote object removed")
		}
	}
	r.finishReporter()
}

// copyUp reads exactly FileSize bytes from f and writes them to h.
func (r *run) copyUp(ctx context.Context, f io.Reader, h remote.Handle, path string) {
	req := r.req
	store := req.Connection
	chunk := r.s.chunkSize(req)
	buf := buffers.GetChunkBuffer(chunk)
	defer buffers.PutChunkBuffer(buf)

	for r.res.BytesTransferred < req.FileSize {
		if r.cancelled(ctx) {
			r.markCancelled()
			return
		}
		want := min(int64(chunk), req.FileSize-r.res.BytesTransferred)
		if err := r.s.opts.Limiter.WaitN(ctx, int(want)); err != nil {
			r.markCancelled()
			return
		}

		began := time.Now()
		n, err := io.ReadFull(f, (*buf)[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, r.res.BytesTransferred+int64(n), req.FileSize)
			}
			r.fail(localErr("read", path, err))
			return
		}

		w, err := store.Write(ctx, h, (*buf)[:n])
		if err != nil {
			if r.interrupted(ctx, err) {
				r.markCancelled()
			} else {
				r.fail(remoteErr("write", err))
			}
			return
		}
		if w != n {
			r.fail(&RemoteError{Op: "write", Code: remote.StatusIO, Err: io.ErrShortWrite})
			return
		}

		r.timer.Record(n, time.Since(began))
		r.res.BytesTransferred += int64(n)
		r.res.Chunks++
		r.rep.Update(r.res.BytesTransferred)

		if r.cancelled(ctx) {
			r.markCancelled()
			return
		}
	}
}

func (r *run) download(ctx context.Context) {
	req := r.req
	store := req.Connection
	path := req.LocalPath()
	fs := r.s.opts.FS

	total := req.FileSize
	if total == 0 {
		if sz, ok := store.(remote.Sizer); ok {
			n, err := sz.Size(ctx, req.Collection, req.FileName)
			if err != nil {
				if r.interrupted(ctx, err) {
					r.newReporter(0)
					r.markCancelled()
					r.finishReporter()
					return
				}
				r.fail(remoteErr("size", err))
				return
			}
			total = n
		}
	}

	if r.s.opts.CheckDiskSpace && total > 0 {
		dir := filepath.Dir(path)
		if err := diskspace.CheckAvailableSpace(dir, total, constants.DiskSpaceSafetyMargin); err != nil {
			r.fail(localErr("check space", dir, err))
			return
		}
	}

	h, err := store.Open(ctx, req.Collection, req.FileName)
	if err != nil {
		if r.interrupted(ctx, err) {
			r.newReporter(total)
			r.markCancelled()
			r.finishReporter()
			return
		}
		r.fail(remoteErr("open", err))
		return
	}

	cctx, cancel := cleanupContext(ctx)
	defer cancel()

	f, err := fs.Create(path)
	if err != nil {
		r.fail(localErr("create", path, err))
		if cerr := store.Close(cctx, h); cerr != nil {
			r.fail(remoteErr("close", cerr))
		}
		return
	}

	r.log.Debug().Int64("size", total).Str("collection", req.Collection).Msg("download started")
	r.newReporter(total)
	r.copyDown(ctx, h, f, path)

	if cerr := store.Close(cctx, h); cerr != nil {
		r.fail(remoteErr("close", cerr))
	}
	if cerr := f.Close(); cerr != nil {
		r.fail(localErr("close", path, cerr))
	}
	if r.res.Cancelled || r.first != nil {
		if rerr := fs.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			r.fail(localErr("remove", path, rerr))
		} else {
			r.log.Debug().Str("path", path).Msg("partial local file removed")
		}
	}
	r.finishReporter()
}

// copyDown reads chunks from h until the store reports the end of the object.
func (r *run) copyDown(ctx context.Context, h remote.Handle, f io.Writer, path string) {
	store := r.req.Connection
	chunk := r.s.chunkSize(r.req)
	buf := buffers.GetChunkBuffer(chunk)
	defer buffers.PutChunkBuffer(buf)

	for {
		if r.cancelled(ctx) {
			r.markCancelled()
			return
		}
		if err := r.s.opts.Limiter.WaitN(ctx, chunk); err != nil {
			r.markCancelled()
			return
		}

		began := time.Now()
		n, err := store.Read(ctx, h, *buf)
		if err != nil {
			if r.interrupted(ctx, err) {
				r.markCancelled()
			} else {
				r.fail(remoteErr("read", err))
			}
			return
		}
		if n == 0 {
			return
		}

		if _, err := f.Write((*buf)[:n]); err != nil {
			if diskspace.IsDiskFullError(err) {
				err = fmt.Errorf("disk full: %w", err)
			}
			r.fail(localErr("write", path, err))
			return
		}

		r.timer.Record(n, time.Since(began))
		r.res.BytesTransferred += int64(n)
		r.res.Chunks++
		r.rep.Update(r.res.BytesTransferred)

		if r.cancelled(ctx) {
			r.markCancelled()
			return
		}
	}
}
