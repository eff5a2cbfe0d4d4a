package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/history"
	"github.com/rainforce/smbclient/internal/localfs"
	"github.com/rainforce/smbclient/internal/logging"
	"github.com/rainforce/smbclient/internal/metrics"
	"github.com/rainforce/smbclient/internal/profile"
	"github.com/rainforce/smbclient/internal/remote"
)

// ErrClosed is the cause of outcomes for requests made after Shutdown.
var ErrClosed = errors.New("transfer coordinator is shut down")

// LocalStorage is the local side of a transfer.
type LocalStorage interface {
	IsDir(ref string) (bool, error)
	// CreateFile returns ok=false when folderRef is absent or not a directory.
	CreateFile(folderRef, name string) (fileRef string, ok bool, err error)
	OpenWriteStream(fileRef string) (io.WriteCloser, error)
	OpenReadStream(fileRef string) (io.ReadCloser, error)
	Remove(fileRef string) error
}

// Journal records terminal outcomes. *history.Store implements it.
type Journal interface {
	Add(ctx context.Context, r history.Record) (int64, error)
}

// Hooks let the caller observe a task's lifetime.
type Hooks struct {
	// Acquire runs once the request is admitted, before any I/O.
	Acquire func()
	// Release runs exactly once per admitted request, before Done closes.
	Release func()
	// OnSuccess runs after a successful copy and before the task is
	// removed from the registry.
	OnSuccess func(ctx context.Context, o Outcome)
}

// DownloadRequest copies one remote entry into a local folder.
type DownloadRequest struct {
	Profile      profile.Profile
	Entry        remote.Entry
	TargetFolder string
	Hooks        Hooks
}

// UploadRequest copies one local file to the root of the server URL.
type UploadRequest struct {
	Profile   profile.Profile
	LocalFile string
	Hooks     Hooks
}

// Options configures a Coordinator.
type Options struct {
	MaxConcurrent int
	EventBus      *events.EventBus
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
	Journal       Journal // may be nil
	// SpaceCheck, when set, is asked before a download of known size
	// creates its local file. An error fails the download with IOFailure.
	SpaceCheck    func(folderRef string, size int64) error
}

// Coordinator executes transfers. Many tasks may be admitted at once;
// at most MaxConcurrent hold a slot and move bytes.
type Coordinator struct {
	remote   remote.Service
	local    LocalStorage
	registry *Registry
	sem      *semaphore.Weighted
	logger   *logging.Logger
	metrics  *metrics.Metrics
	journal  Journal
	space    func(folderRef string, size int64) error

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator over the given remote service and
// local storage.
func NewCoordinator(svc remote.Service, local LocalStorage, opts Options) *Coordinator {
	slots := int64(opts.MaxConcurrent)
	if slots < constants.MinMaxConcurrent {
		slots = constants.DefaultMaxConcurrent
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		remote:   svc,
		local:    local,
		registry: NewRegistry(opts.EventBus),
		sem:      semaphore.NewWeighted(slots),
		logger:   logger.Component("transfer"),
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		space:    opts.SpaceCheck,
	}
}

// Registry returns the registry of in-flight tasks.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Download runs a download to completion and returns its outcome.
func (c *Coordinator) Download(ctx context.Context, req DownloadRequest) Outcome {
	task, rejected := c.StartDownload(ctx, req)
	if rejected != nil {
		return *rejected
	}
	<-task.Done()
	return task.Outcome()
}

// StartDownload admits a download and runs it in the background. When the
// request is rejected the outcome is returned immediately and task is nil.
func (c *Coordinator) StartDownload(ctx context.Context, req DownloadRequest) (*Task, *Outcome) {
	entryPath := remote.NormalizePath(req.Entry.Path)
	name := localfs.CleanName(path.Base(entryPath))
	task := newTask(Download, entryPath, name, remoteURL(req.Profile.ServerURL, entryPath), req.TargetFolder)
	if req.Entry.Size > 0 {
		task.setSize(req.Entry.Size)
	}
	return c.start(ctx, task, req.Hooks, c.downloadBody(req))
}

// Upload runs an upload to completion and returns its outcome.
func (c *Coordinator) Upload(ctx context.Context, req UploadRequest) Outcome {
	task, rejected := c.StartUpload(ctx, req)
	if rejected != nil {
		return *rejected
	}
	<-task.Done()
	return task.Outcome()
}

// StartUpload admits an upload and runs it in the background. The remote
// path is the local file's base name at the root of the server URL.
func (c *Coordinator) StartUpload(ctx context.Context, req UploadRequest) (*Task, *Outcome) {
	name := localfs.CleanName(baseName(req.LocalFile))
	task := newTask(Upload, name, name, req.LocalFile, remoteURL(req.Profile.ServerURL, name))
	return c.start(ctx, task, req.Hooks, c.uploadBody(req))
}

// Shutdown cancels every in-flight task and waits for all of them to
// deliver their outcomes. Later requests fail with ErrClosed.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.registry.CancelAll()
	c.wg.Wait()
}

type body func(ctx context.Context, task *Task) error

func (c *Coordinator) start(ctx context.Context, task *Task, hooks Hooks, run body) (*Task, *Outcome) {
	// The cancel func is in place before registration so CancelAll never
	// misses an admitted task.
	taskCtx, cancel := context.WithCancel(ctx)
	task.setCancel(cancel)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		o := c.reject(task, errkind.New(errkind.IOFailure, string(task.Direction), task.Path, ErrClosed))
		return nil, &o
	}
	if err := c.registry.Register(task); err != nil {
		c.mu.Unlock()
		cancel()
		o := c.reject(task, err)
		return nil, &o
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if hooks.Acquire != nil {
		hooks.Acquire()
	}

	go func() {
		defer c.wg.Done()
		defer cancel()
		c.execute(taskCtx, task, hooks, run)
	}()
	return task, nil
}

// reject produces the outcome of a request that was never admitted.
func (c *Coordinator) reject(task *Task, err *errkind.Error) Outcome {
	c.logger.Warn().
		Str("direction", string(task.Direction)).
		Str("path", task.Path).
		Str("kind", err.Kind.String()).
		Msg("Transfer rejected")
	o := task.finish(err)
	c.metrics.TransferFinished(string(task.Direction), err.Kind, 0, 0, false)
	c.record(o)
	return o
}

func (c *Coordinator) execute(ctx context.Context, task *Task, hooks Hooks, run body) {
	var err error
	started := false

	func() {
		// Panic recovery
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Str("task", task.ID).Interface("panic", r).Msg("Transfer panicked")
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		c.logger.Debug().Str("direction", string(task.Direction)).Str("path", task.Path).Msg("Waiting for slot")
		if err = c.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer c.sem.Release(1)

		started = true
		task.markActive()
		c.metrics.TransferStarted(string(task.Direction))
		c.registry.publish(events.EventTransferStarted, task, nil)
		c.logger.Debug().Str("direction", string(task.Direction)).Str("path", task.Path).Msg("Slot acquired")

		err = run(ctx, task)
	}()

	c.finish(ctx, task, hooks, err, started)
}

// runSuccessHook calls onSuccess with its own recovery; the transfer has
// already succeeded and must still be deregistered and released.
func (c *Coordinator) runSuccessHook(ctx context.Context, task *Task, onSuccess func(context.Context, Outcome)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("task", task.ID).Interface("panic", r).Msg("Success hook panicked")
		}
	}()
	onSuccess(ctx, Outcome{
		TaskID:    task.ID,
		Direction: task.Direction,
		Path:      task.Path,
		Name:      task.Name,
		Source:    task.Source,
		Dest:      task.Dest(),
		Bytes:     task.BytesDone(),
	})
}

// finish delivers the outcome: success hook, deregistration, busy release,
// then Done.
func (c *Coordinator) finish(ctx context.Context, task *Task, hooks Hooks, err error, started bool) {
	kerr := errkind.Wrap(err, errkind.IOFailure, string(task.Direction), task.Path)

	if kerr == nil && hooks.OnSuccess != nil {
		c.runSuccessHook(ctx, task, hooks.OnSuccess)
	}

	c.registry.Remove(task)
	if hooks.Release != nil {
		hooks.Release()
	}
	o := task.finish(kerr)

	if kerr == nil {
		c.registry.publish(events.EventTransferCompleted, task, nil)
		c.logger.Info().
			Str("direction", string(task.Direction)).
			Str("path", task.Path).
			Int64("bytes", o.Bytes).
			Dur("elapsed", o.EndedAt.Sub(o.StartedAt)).
			Msg("Transfer completed")
	} else {
		c.registry.publish(events.EventTransferFailed, task, kerr)
		c.logger.Error().
			Err(kerr.Err).
			Str("direction", string(task.Direction)).
			Str("path", task.Path).
			Str("kind", kerr.Kind.String()).
			Msg("Transfer failed")
	}

	c.metrics.TransferFinished(string(task.Direction), o.Kind(), o.Bytes, o.EndedAt.Sub(o.StartedAt), started)
	c.record(o)
}

func (c *Coordinator) record(o Outcome) {
	if c.journal == nil {
		return
	}
	r := history.Record{
		TaskID:     o.TaskID,
		Direction:  string(o.Direction),
		Name:       o.Name,
		Source:     o.Source,
		Dest:       o.Dest,
		Outcome:    "ok",
		Bytes:      o.Bytes,
		StartedAt:  o.StartedAt,
		FinishedAt: o.EndedAt,
	}
	if o.Err != nil {
		r.Outcome = o.Err.Kind.String()
		r.Error = o.Err.Message()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.journal.Add(ctx, r); err != nil {
		c.logger.Warn().Err(err).Str("task", o.TaskID).Msg("Failed to record transfer history")
	}
}

func (c *Coordinator) downloadBody(req DownloadRequest) body {
	const op = "download"
	return func(ctx context.Context, task *Task) error {
		ok, err := c.local.IsDir(req.TargetFolder)
		if err != nil || !ok {
			return errkind.New(errkind.TargetNotWritable, op, req.TargetFolder, err)
		}

		p := req.Profile
		sess, err := c.remote.OpenSession(ctx, p.ServerURL, p.Username, p.Password)
		if err != nil {
			return errkind.Wrap(err, errkind.RemoteUnavailable, op, task.Path)
		}
		defer sess.Close()

		// Open the source before touching the local folder so a missing
		// remote file leaves nothing behind.
		src, err := sess.OpenReader(ctx, task.Path)
		if err != nil {
			return errkind.Wrap(err, errkind.RemoteUnavailable, op, task.Path)
		}
		defer src.Close()
		if size, ok := statSize(src); ok {
			task.setSize(size)
			if c.space != nil {
				if err := c.space(req.TargetFolder, size); err != nil {
					return errkind.New(errkind.IOFailure, op, req.TargetFolder, err)
				}
			}
		}

		ref, ok, err := c.local.CreateFile(req.TargetFolder, task.Name)
		if err != nil || !ok {
			return errkind.New(errkind.TargetNotWritable, op, req.TargetFolder, err)
		}
		task.setDest(ref)

		dst, err := c.local.OpenWriteStream(ref)
		if err != nil {
			c.removePartial(ref)
			return errkind.New(errkind.TargetNotWritable, op, ref, err)
		}

		err = c.copy(ctx, task, dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			c.removePartial(ref)
			return errkind.New(errkind.IOFailure, op, task.Path, err)
		}
		return nil
	}
}

func (c *Coordinator) uploadBody(req UploadRequest) body {
	const op = "upload"
	return func(ctx context.Context, task *Task) error {
		p := req.Profile
		sess, err := c.remote.OpenSession(ctx, p.ServerURL, p.Username, p.Password)
		if err != nil {
			return errkind.Wrap(err, errkind.RemoteUnavailable, op, task.Path)
		}
		defer sess.Close()

		exists, err := sess.Exists(ctx, task.Path)
		if err != nil {
			return errkind.Wrap(err, errkind.RemoteUnavailable, op, task.Path)
		}
		if exists {
			return errkind.New(errkind.AlreadyExists, op, task.Path, nil)
		}

		src, err := c.local.OpenReadStream(req.LocalFile)
		if err != nil {
			return errkind.New(errkind.IOFailure, op, req.LocalFile, err)
		}
		defer src.Close()
		if size, ok := statSize(src); ok {
			task.setSize(size)
		}

		dst, err := sess.OpenWriter(ctx, task.Path)
		if err != nil {
			return errkind.Wrap(err, errkind.RemoteUnavailable, op, task.Path)
		}

		err = c.copy(ctx, task, dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errkind.New(errkind.IOFailure, op, task.Path, err)
		}
		return nil
	}
}

func (c *Coordinator) removePartial(ref string) {
	if err := c.local.Remove(ref); err != nil {
		c.logger.Warn().Err(err).Str("file", ref).Msg("Failed to remove partial download")
	}
}

// copy streams src into dst, counting bytes on the task and publishing
// throttled progress events.
func (c *Coordinator) copy(ctx context.Context, task *Task, dst io.Writer, src io.Reader) error {
	pw := &progressWriter{
		w:        dst,
		task:     task,
		registry: c.registry,
	}
	buf := make([]byte, constants.CopyBufferSize)
	_, err := io.CopyBuffer(pw, &ctxReader{ctx: ctx, r: src}, buf)
	if err == nil {
		c.registry.publishProgress(task)
	}
	return err
}

// ctxReader stops a copy once ctx is done, for readers that ignore it.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

type progressWriter struct {
	w         io.Writer
	task      *Task
	registry  *Registry
	lastEvent time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.task.addBytes(int64(n))
		if now := time.Now(); now.Sub(pw.lastEvent) >= constants.ProgressUpdateInterval {
			pw.lastEvent = now
			pw.registry.publishProgress(pw.task)
		}
	}
	return n, err
}

// statSize reports the size of streams that can describe themselves.
func statSize(r io.Reader) (int64, bool) {
	s, ok := r.(interface {
		Stat() (fs.FileInfo, error)
	})
	if !ok {
		return 0, false
	}
	info, err := s.Stat()
	if err != nil || info == nil {
		return 0, false
	}
	return info.Size(), true
}

func remoteURL(serverURL, name string) string {
	addr, err := remote.ParseURL(serverURL)
	if err != nil {
		return serverURL + "/" + name
	}
	return addr.Join(name)
}

// baseName accepts both separators so Windows paths resolve on any host.
func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}
