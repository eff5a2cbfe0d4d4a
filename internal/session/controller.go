package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/credentials"
	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/inventory"
	"github.com/rainforce/smbclient/internal/logging"
	"github.com/rainforce/smbclient/internal/metrics"
	"github.com/rainforce/smbclient/internal/profile"
	"github.com/rainforce/smbclient/internal/remote"
	"github.com/rainforce/smbclient/internal/transfer"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session controller is closed")

	errServerNotFound = errors.New("server not found")
)

// LocalStorage is the local side used for transfers and inventory.
// *localfs.Storage implements it.
type LocalStorage interface {
	transfer.LocalStorage
	inventory.Lister
}

// Options configures a Controller.
type Options struct {
	MaxConcurrent int
	EventBus      *events.EventBus // nil creates a bus owned by the controller
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
	Journal       transfer.Journal
	SpaceCheck    func(folderRef string, size int64) error
}

// Controller is the sole writer of SessionState. All methods are safe for
// concurrent use; blocking ones take a context and also stop when the
// session is torn down.
type Controller struct {
	store   credentials.Store
	remote  remote.Service
	local   LocalStorage
	tracker *inventory.Tracker
	coord   *transfer.Coordinator
	metrics *metrics.Metrics
	logger  *logging.Logger

	eventBus *events.EventBus
	ownsBus  bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	state   SessionState
	listing bool
	relist  bool // a listing was requested while one was in flight
	busy    int
	closed  bool

	// epoch advances on every teardown. Work started under an older epoch
	// may finish, but its results are discarded.
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
}

// NewController wires a controller over the three capabilities.
func NewController(store credentials.Store, svc remote.Service, local LocalStorage, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	bus := opts.EventBus
	ownsBus := false
	if bus == nil {
		bus = events.NewEventBus(constants.EventBusDefaultBuffer)
		ownsBus = true
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	epochCtx, epochCancel := context.WithCancel(rootCtx)

	c := &Controller{
		store:       store,
		remote:      svc,
		local:       local,
		tracker:     inventory.NewTracker(local, bus, logger),
		metrics:     opts.Metrics,
		logger:      logger.Component("session"),
		eventBus:    bus,
		ownsBus:     ownsBus,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		epochCtx:    epochCtx,
		epochCancel: epochCancel,
		state:       SessionState{Phase: Uninitialized},
	}
	c.coord = transfer.NewCoordinator(svc, local, transfer.Options{
		MaxConcurrent: opts.MaxConcurrent,
		EventBus:      bus,
		Logger:        logger,
		Metrics:       opts.Metrics,
		Journal:       opts.Journal,
		SpaceCheck:    opts.SpaceCheck,
	})
	return c
}

// EventBus returns the bus every session, listing, inventory and transfer
// event is published on.
func (c *Controller) EventBus() *events.EventBus {
	return c.eventBus
}

// Subscribe returns a channel of SessionChangedEvents.
func (c *Controller) Subscribe() <-chan events.Event {
	return c.eventBus.Subscribe(EventSessionChanged)
}

// Unsubscribe releases a channel returned by Subscribe.
func (c *Controller) Unsubscribe(ch <-chan events.Event) {
	c.eventBus.Unsubscribe(ch)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// IsPresent reports whether entry exists in the current local target folder.
func (c *Controller) IsPresent(entry remote.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsPresent(entry)
}

// Coordinator exposes the transfer coordinator, mainly for its registry.
func (c *Controller) Coordinator() *transfer.Coordinator {
	return c.coord
}

// Start loads the profile. An incomplete profile moves to AwaitingProfile,
// publishes a ProfileRequiredEvent and returns an IncompleteProfile error
// without contacting the server. Otherwise the first listing runs.
func (c *Controller) Start(ctx context.Context) error {
	p, err := profile.Load(c.store)
	if err != nil {
		// Unreadable keys count as missing.
		c.logger.Warn().Err(err).Msg("Failed to load profile")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Profile = p
	if !p.IsComplete() {
		c.state.Phase = AwaitingProfile
		c.publishLocked()
		c.eventBus.Publish(NewProfileRequiredEvent(p.Missing()))
		c.mu.Unlock()
		c.logger.Info().Strs("missing", p.Missing()).Msg("Profile incomplete")
		return errkind.New(errkind.IncompleteProfile, "start", "", nil)
	}
	if !c.listing {
		c.state.Phase = Ready
	}
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("profile", p.String()).Msg("Profile loaded")
	return c.RefreshList(ctx)
}

// SaveProfile persists new credentials and starts a fresh session with them.
// Store failures are logged; the reload then sees whatever was persisted.
func (c *Controller) SaveProfile(ctx context.Context, serverURL, username, password string) error {
	p := profile.Profile{ServerURL: serverURL, Username: username, Password: password}.Trimmed()

	if !c.teardown(false) {
		return ErrClosed
	}
	if err := profile.Save(c.store, p); err != nil {
		c.logger.Error().Err(err).Msg("Failed to save profile")
	}
	return c.Start(ctx)
}

// Logout clears the stored profile and resets the session: no entries, no
// local target, no error, not busy, every in-flight transfer cancelled.
func (c *Controller) Logout(ctx context.Context) error {
	if !c.teardown(true) {
		return ErrClosed
	}

	if err := profile.Clear(c.store); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear profile")
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	c.logger.Info().Msg("Logged out")
	return nil
}

// teardown starts a new epoch, cancelling the old one's work, and resets the
// state. It returns false once the controller is closed.
func (c *Controller) teardown(awaitProfile bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	c.epochCancel()
	c.epoch++
	c.epochCtx, c.epochCancel = context.WithCancel(c.rootCtx)

	c.listing = false
	c.relist = false
	c.busy = 0
	c.tracker.Reset()
	c.state = SessionState{Phase: Uninitialized}
	if awaitProfile {
		c.state.Phase = AwaitingProfile
		c.publishLocked()
		c.eventBus.Publish(NewProfileRequiredEvent(c.state.Profile.Missing()))
	} else {
		c.publishLocked()
	}
	return true
}

// Close cancels all work, waits for in-flight transfers to deliver their
// outcomes and releases the event bus if the controller created it. The
// stored profile is kept.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.epochCancel()
	c.rootCancel()
	c.mu.Unlock()

	c.coord.Shutdown()
	if c.ownsBus {
		c.eventBus.Close()
	}
	return nil
}

// RefreshList lists the share root. At most one listing runs at a time; a
// call while one is in flight returns nil at once and makes the running call
// list once more after it completes, so the newest request is always served.
// The entry list is cleared when a listing starts and stays empty if it
// fails, in which case LastError holds the categorized error. The returned
// error belongs to the last listing run.
func (c *Controller) RefreshList(ctx context.Context) error {
	again, err := c.refreshOnce(ctx)
	for again {
		// Requested by someone else; the caller's cancellation no longer applies.
		again, err = c.refreshOnce(context.WithoutCancel(ctx))
	}
	return err
}

// refreshOnce runs a single listing. again reports that another listing was
// requested while this one was in flight.
func (c *Controller) refreshOnce(ctx context.Context) (again bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.listing {
		c.relist = true
		c.mu.Unlock()
		c.logger.Debug().Msg("Listing already in flight, queued one more")
		return false, nil
	}
	p := c.state.Profile
	if !p.IsComplete() {
		c.state.Phase = AwaitingProfile
		c.publishLocked()
		c.eventBus.Publish(NewProfileRequiredEvent(p.Missing()))
		c.mu.Unlock()
		return false, errkind.New(errkind.IncompleteProfile, "list", "", nil)
	}

	c.listing = true
	epoch := c.epoch
	release := c.acquireBusyLocked()
	c.state.Entries = nil
	c.state.LastError = nil
	c.state.Phase = Listing
	c.publishLocked()
	c.eventBus.Publish(NewListingEvent(EventListingStarted, p.ServerURL, 0, nil))
	ctx, cancel := c.scopeLocked(ctx)
	c.mu.Unlock()
	defer cancel()

	started := time.Now()
	entries, kerr := c.list(ctx, p)
	kind := errkind.None
	if kerr != nil {
		kind = kerr.Kind
	}
	c.metrics.ObserveListing(kind, time.Since(started))

	c.mu.Lock()
	defer c.mu.Unlock()
	release()

	if epoch != c.epoch {
		c.logger.Debug().Msg("Discarding listing from a previous session")
		return false, nil
	}
	c.listing = false
	again = c.relist
	c.relist = false

	if kerr != nil {
		c.state.Entries = nil
		c.state.LastError = kerr
		c.state.Phase = Error
		c.publishLocked()
		c.eventBus.Publish(NewListingEvent(EventListingFailed, p.ServerURL, 0, kerr))
		c.logger.Error().Err(kerr.Err).Str("kind", kind.String()).Str("url", p.ServerURL).Msg("Listing failed")
		return again, kerr
	}

	c.state.Entries = entries
	c.state.Phase = Ready
	c.publishLocked()
	c.eventBus.Publish(NewListingEvent(EventListingCompleted, p.ServerURL, len(entries), nil))
	c.logger.Info().Int("count", len(entries)).Str("url", p.ServerURL).Msg("Listing completed")
	return again, nil
}

func (c *Controller) list(ctx context.Context, p profile.Profile) ([]remote.Entry, *errkind.Error) {
	const op = "list"

	sess, err := c.remote.OpenSession(ctx, p.ServerURL, p.Username, p.Password)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.RemoteUnavailable, op, p.ServerURL)
	}
	defer sess.Close()

	ok, err := sess.Exists(ctx, "")
	if err != nil {
		return nil, errkind.Wrap(err, errkind.RemoteUnavailable, op, p.ServerURL)
	}
	if !ok {
		return nil, errkind.New(errkind.RemoteUnavailable, op, p.ServerURL, errServerNotFound)
	}

	children, err := sess.ListChildren(ctx, "")
	if err != nil {
		return nil, errkind.Wrap(err, errkind.RemoteUnavailable, op, p.ServerURL)
	}
	return visibleSorted(children), nil
}

// visibleSorted drops hidden entries and orders the rest by
// case-insensitive path.
func visibleSorted(children []remote.Entry) []remote.Entry {
	entries := make([]remote.Entry, 0, len(children))
	for _, e := range children {
		if e.IsHidden {
			continue
		}
		e.Path = remote.NormalizePath(e.Path)
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Path) < strings.ToLower(entries[j].Path)
	})
	return entries
}

// SetLocalTarget selects the local folder downloads go to and recomputes
// which entries are already present there. "" clears the selection.
func (c *Controller) SetLocalTarget(ctx context.Context, folderRef string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.LocalTarget = folderRef
	c.state.LocalPresence = nil
	c.publishLocked()
	ctx, cancel := c.scopeLocked(ctx)
	c.mu.Unlock()
	defer cancel()

	return c.recomputeInventory(ctx, folderRef)
}

// recomputeInventory refreshes presence for folderRef and applies the
// tracker's latest result if it still matches the selected folder.
func (c *Controller) recomputeInventory(ctx context.Context, folderRef string) error {
	_, applied, err := c.tracker.Recompute(ctx, folderRef)
	if err != nil {
		return errkind.New(errkind.TargetNotWritable, "set_local_target", folderRef, err)
	}
	if !applied {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	folder, set := c.tracker.Snapshot()
	if folder == c.state.LocalTarget {
		c.state.LocalPresence = set
		c.publishLocked()
	}
	return nil
}

// Download copies entry into the local target folder and blocks until it
// finishes. A success recomputes presence for that folder.
func (c *Controller) Download(ctx context.Context, entry remote.Entry) transfer.Outcome {
	req, ctx, cancel, rejected := c.downloadRequest(ctx, entry)
	if rejected != nil {
		return *rejected
	}
	defer cancel()
	return c.coord.Download(ctx, req)
}

// StartDownload is the asynchronous Download. onDone, if set, receives the
// outcome of an admitted task. Rejections are returned as an error and
// onDone is not called.
func (c *Controller) StartDownload(entry remote.Entry, onDone func(transfer.Outcome)) (*transfer.Task, error) {
	req, ctx, cancel, rejected := c.downloadRequest(context.Background(), entry)
	if rejected != nil {
		return nil, rejected.Err
	}
	task, out := c.coord.StartDownload(ctx, req)
	return c.watch(task, out, cancel, onDone)
}

// Upload copies localFile to the share root and blocks until it finishes.
// A success refreshes the listing; a failure leaves it untouched.
func (c *Controller) Upload(ctx context.Context, localFile string) transfer.Outcome {
	req, ctx, cancel, rejected := c.uploadRequest(ctx, localFile)
	if rejected != nil {
		return *rejected
	}
	defer cancel()
	return c.coord.Upload(ctx, req)
}

// StartUpload is the asynchronous Upload; see StartDownload.
func (c *Controller) StartUpload(localFile string, onDone func(transfer.Outcome)) (*transfer.Task, error) {
	req, ctx, cancel, rejected := c.uploadRequest(context.Background(), localFile)
	if rejected != nil {
		return nil, rejected.Err
	}
	task, out := c.coord.StartUpload(ctx, req)
	return c.watch(task, out, cancel, onDone)
}

func (c *Controller) watch(task *transfer.Task, rejected *transfer.Outcome, cancel context.CancelFunc, onDone func(transfer.Outcome)) (*transfer.Task, error) {
	if rejected != nil {
		cancel()
		return nil, rejected.Err
	}
	go func() {
		<-task.Done()
		cancel()
		if onDone != nil {
			onDone(task.Outcome())
		}
	}()
	return task, nil
}

func (c *Controller) downloadRequest(ctx context.Context, entry remote.Entry) (transfer.DownloadRequest, context.Context, context.CancelFunc, *transfer.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o := c.blockedLocked(transfer.Download, entry.Path); o != nil {
		return transfer.DownloadRequest{}, nil, nil, o
	}

	folder := c.state.LocalTarget
	hooks := c.busyHooks()
	hooks.OnSuccess = func(ctx context.Context, _ transfer.Outcome) {
		c.mu.Lock()
		current := c.state.LocalTarget
		c.mu.Unlock()
		if current != folder {
			return
		}
		if err := c.recomputeInventory(ctx, folder); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to recompute inventory after download")
		}
	}

	ctx, cancel := c.scopeLocked(ctx)
	return transfer.DownloadRequest{
		Profile:      c.state.Profile,
		Entry:        entry,
		TargetFolder: folder,
		Hooks:        hooks,
	}, ctx, cancel, nil
}

func (c *Controller) uploadRequest(ctx context.Context, localFile string) (transfer.UploadRequest, context.Context, context.CancelFunc, *transfer.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o := c.blockedLocked(transfer.Upload, localFile); o != nil {
		return transfer.UploadRequest{}, nil, nil, o
	}

	hooks := c.busyHooks()
	hooks.OnSuccess = func(ctx context.Context, _ transfer.Outcome) {
		if err := c.RefreshList(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh listing after upload")
		}
	}

	ctx, cancel := c.scopeLocked(ctx)
	return transfer.UploadRequest{
		Profile:   c.state.Profile,
		LocalFile: localFile,
		Hooks:     hooks,
	}, ctx, cancel, nil
}

// blockedLocked returns an outcome for a transfer that must not start.
func (c *Controller) blockedLocked(direction transfer.Direction, path string) *transfer.Outcome {
	var err *errkind.Error
	switch {
	case c.closed:
		err = errkind.New(errkind.IOFailure, string(direction), path, ErrClosed)
	case !c.state.Profile.IsComplete():
		err = errkind.New(errkind.IncompleteProfile, string(direction), path, nil)
	default:
		return nil
	}
	now := time.Now()
	return &transfer.Outcome{
		Direction: direction,
		Path:      path,
		Err:       err,
		StartedAt: now,
		EndedAt:   now,
	}
}

// busyHooks ties a transfer's lifetime to the busy counter.
func (c *Controller) busyHooks() transfer.Hooks {
	var release func()
	return transfer.Hooks{
		Acquire: func() {
			c.mu.Lock()
			release = c.acquireBusyLocked()
			c.mu.Unlock()
		},
		Release: func() {
			if release == nil {
				return
			}
			c.mu.Lock()
			release()
			c.mu.Unlock()
		},
	}
}

// acquireBusyLocked raises the busy counter and returns its release, which
// must be called with c.mu held. A release from an older epoch is a no-op
// because teardown already zeroed the counter.
func (c *Controller) acquireBusyLocked() func() {
	epoch := c.epoch
	c.busy++
	if c.busy == 1 {
		c.state.Busy = true
		c.publishLocked()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if epoch != c.epoch {
				return
			}
			c.busy--
			if c.busy == 0 {
				c.state.Busy = false
				c.publishLocked()
			}
		})
	}
}

// scopeLocked derives a context that also ends when the current epoch ends.
func (c *Controller) scopeLocked(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.epochCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// publishLocked publishes the current state. Called with c.mu held so
// publication order follows mutation order.
func (c *Controller) publishLocked() {
	c.eventBus.Publish(NewSessionChangedEvent(c.state.clone()))
}
