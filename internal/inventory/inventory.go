// Package inventory tracks which files already exist in the local target
// folder so remote entries can be marked as downloaded.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/logging"
	"github.com/rainforce/smbclient/internal/remote"
)

// EventInventoryChanged is published after every applied recompute.
const EventInventoryChanged events.EventType = "inventory_changed"

// InventoryChangedEvent carries the new presence set.
type InventoryChangedEvent struct {
	events.BaseEvent
	Folder string
	Names  []string // sorted
}

// Lister enumerates the immediate child names of a local folder.
type Lister interface {
	ListChildren(folderRef string) ([]string, error)
}

// PresenceSet is a set of local file names.
type PresenceSet map[string]struct{}

// NewPresenceSet builds a set from names.
func NewPresenceSet(names ...string) PresenceSet {
	s := make(PresenceSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether path, with leading separators stripped, is a member.
// The comparison is exact: case and extension sensitive.
func (s PresenceSet) Has(path string) bool {
	_, ok := s[strings.TrimLeft(path, `/\`)]
	return ok
}

// Names returns the members sorted.
func (s PresenceSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (s PresenceSet) Clone() PresenceSet {
	c := make(PresenceSet, len(s))
	for n := range s {
		c[n] = struct{}{}
	}
	return c
}

// Tracker holds the presence set for the current local target folder.
// Thread-safe for concurrent access.
type Tracker struct {
	lister   Lister
	eventBus *events.EventBus
	logger   *logging.Logger

	mu         sync.RWMutex
	folder     string
	names      PresenceSet
	generation uint64
}

// NewTracker creates a Tracker. eventBus may be nil.
func NewTracker(lister Lister, eventBus *events.EventBus, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		lister:   lister,
		eventBus: eventBus,
		logger:   logger.Component("inventory"),
		names:    make(PresenceSet),
	}
}

// Recompute enumerates folderRef and replaces the current set. When another
// Recompute or Reset started after this one, the result is returned but not
// applied (applied=false). An empty folderRef yields an empty set.
func (t *Tracker) Recompute(ctx context.Context, folderRef string) (set PresenceSet, applied bool, err error) {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	set = make(PresenceSet)
	if folderRef != "" {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		names, err := t.lister.ListChildren(folderRef)
		if err != nil {
			t.logger.Warn().Err(err).Str("folder", folderRef).Msg("Failed to enumerate local folder")
			return nil, false, fmt.Errorf("list %s: %w", folderRef, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		set = NewPresenceSet(names...)
	}

	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		t.logger.Debug().Str("folder", folderRef).Msg("Discarding superseded inventory result")
		return set, false, nil
	}
	t.folder = folderRef
	t.names = set
	sorted := set.Names()
	t.mu.Unlock()

	t.logger.Debug().Str("folder", folderRef).Int("count", len(sorted)).Msg("Inventory recomputed")
	if t.eventBus != nil {
		t.eventBus.Publish(&InventoryChangedEvent{
			BaseEvent: events.NewBase(EventInventoryChanged),
			Folder:    folderRef,
			Names:     sorted,
		})
	}
	return set.Clone(), true, nil
}

// Reset empties the set and supersedes any in-flight Recompute.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.generation++
	t.folder = ""
	t.names = make(PresenceSet)
	t.mu.Unlock()
}

// IsPresent reports whether entry exists in the current local folder.
func (t *Tracker) IsPresent(entry remote.Entry) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.names.Has(entry.Path)
}

// Snapshot returns the folder and a copy of the current set.
func (t *Tracker) Snapshot() (string, PresenceSet) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.folder, t.names.Clone()
}
