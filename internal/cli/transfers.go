package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/progress"
	"github.com/rainforce/smbclient/internal/transfer"
)

// eventGrace bounds how long a batch waits for terminal events once every
// task has finished. Events can be dropped when a subscriber falls behind.
const eventGrace = time.Second

// transferBatch starts transfers and renders them until all have finished.
type transferBatch struct {
	a        *app
	ui       *progress.TransferUI
	ch       <-chan events.Event
	tasks    []*transfer.Task
	rejected int
}

func (a *app) newTransferBatch() *transferBatch {
	return &transferBatch{
		a:  a,
		ui: progress.NewTransferUI(a.out),
		ch: a.ctrl.EventBus().SubscribeAll(),
	}
}

// add records the result of a StartDownload or StartUpload call.
func (b *transferBatch) add(label string, task *transfer.Task, err error) {
	if err != nil {
		b.rejected++
		// Duplicates are announced by their rejection event
		if errkind.KindOf(err) != errkind.TransferAlreadyInProgress {
			fmt.Fprintf(b.ui.Writer(), "✗ %s: %s\n", label, describe(err))
		}
		return
	}
	b.tasks = append(b.tasks, task)
}

// fail counts a request that never reached the controller.
func (b *transferBatch) fail(label string, err error) {
	b.rejected++
	fmt.Fprintf(b.ui.Writer(), "✗ %s: %s\n", label, describe(err))
}

// wait renders events until every admitted task has finished. Cancelling
// ctx cancels the remaining tasks; wait still returns only after they stop.
func (b *transferBatch) wait(ctx context.Context) (succeeded, failed int) {
	bus := b.a.ctrl.EventBus()
	defer bus.Unsubscribe(b.ch)

	pending := make(map[string]bool, len(b.tasks))
	for _, t := range b.tasks {
		pending[t.ID] = true
	}

	allDone := make(chan struct{})
	go func() {
		for _, t := range b.tasks {
			<-t.Done()
		}
		close(allDone)
	}()

	cancelled := ctx.Done()
	var grace <-chan time.Time
	for len(pending) > 0 {
		select {
		case <-cancelled:
			for _, t := range b.tasks {
				t.Cancel()
			}
			cancelled = nil
		case e, ok := <-b.ch:
			if !ok {
				clear(pending)
				continue
			}
			b.handle(e, pending)
		case <-allDone:
			allDone = nil
			grace = time.After(eventGrace)
		case <-grace:
			b.a.logger.Debug().Int("pending", len(pending)).Msg("Missed terminal transfer events")
			clear(pending)
		}
	}

	// Rejections published after the last completion are still queued
	for drained := false; !drained; {
		select {
		case e, ok := <-b.ch:
			if !ok {
				drained = true
				continue
			}
			b.handle(e, pending)
		default:
			drained = true
		}
	}
	b.ui.Wait()

	for _, t := range b.tasks {
		if t.Outcome().Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed + b.rejected
}

func (b *transferBatch) handle(e events.Event, pending map[string]bool) {
	te, ok := e.(*events.TransferEvent)
	if !ok {
		return
	}
	b.ui.HandleEvent(te)
	switch te.Type() {
	case events.EventTransferCompleted, events.EventTransferFailed:
		delete(pending, te.TaskID)
	}
}

// summarize turns batch counts into the command result.
func summarize(b *transferBatch, succeeded, failed int) error {
	total := succeeded + failed
	if total > 1 {
		fmt.Fprintf(b.ui.Writer(), "\n%d of %d transfer(s) succeeded\n", succeeded, total)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfer(s) failed", failed, total)
	}
	return nil
}

// downloadNames downloads the named entries of the current listing into
// the local target folder.
func (a *app) downloadNames(ctx context.Context, names []string) error {
	state := a.ctrl.Snapshot()
	b := a.newTransferBatch()
	for _, name := range names {
		i, ok := findEntry(state, name)
		if !ok {
			b.fail(name, fmt.Errorf("no such file on the share"))
			continue
		}
		task, err := a.ctrl.StartDownload(state.Entries[i], nil)
		b.add(name, task, err)
	}
	succeeded, failed := b.wait(ctx)
	return summarize(b, succeeded, failed)
}

// uploadFiles uploads local files to the share root.
func (a *app) uploadFiles(ctx context.Context, files []string) error {
	b := a.newTransferBatch()
	for _, f := range files {
		path, err := a.resolveLocal(f)
		if err != nil {
			b.fail(f, err)
			continue
		}
		task, err := a.ctrl.StartUpload(path, nil)
		b.add(f, task, err)
	}
	succeeded, failed := b.wait(ctx)
	return summarize(b, succeeded, failed)
}
