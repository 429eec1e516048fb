package mediagroup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackmichael/photoposts/internal/domain"
)

// DefaultDebounce is how long a media group stays open after its first photo
// has been processed.
const DefaultDebounce = 2 * time.Second

// ErrClosed is returned by Accept after Shutdown has begun.
var ErrClosed = errors.New("aggregator is shut down")

// Assembler turns acquired photos into a persisted post.
type Assembler interface {
	Assemble(ctx context.Context, photoPaths []string, caption string) (*domain.Post, error)
}

// Config tunes an Aggregator. Zero values select the defaults.
type Config struct {
	Debounce time.Duration
	Clock    Clock
}

type state int

const (
	stateAccumulating state = iota
	stateClosing
	stateFlushed
	stateDiscarded
)

func (s state) String() string {
	switch s {
	case stateAccumulating:
		return "accumulating"
	case stateClosing:
		return "closing"
	case stateFlushed:
		return "flushed"
	case stateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// slot holds the outcome of one photo event. Slots are reserved in arrival
// order and filled when acquisition finishes.
type slot struct {
	storageID string
	err       error
}

// group is the buffer for one media group key. mu is never held across I/O.
type group struct {
	key    string
	chatID int64

	mu       sync.Mutex
	state    state
	slots    []slot
	caption  string
	timer    Timer
	deadline time.Time

	// pending counts reserved slots whose acquisition has not finished.
	pending sync.WaitGroup
}

// Stats is a point-in-time view of aggregator activity.
type Stats struct {
	OpenGroups          int
	PostsCreated        int64
	GroupsDropped       int64
	AcquisitionFailures int64
	FailedPosts         int64
}

// Aggregator folds photo events into posts. Events without a group key are
// posted immediately; grouped events are buffered per key until the group's
// debounce timer fires, then flushed exactly once.
type Aggregator struct {
	acquirer  domain.PhotoAcquirer
	assembler Assembler
	notifier  domain.Notifier
	clock     Clock
	debounce  time.Duration
	logger    *slog.Logger

	// ctx scopes background acquisitions and assembly; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards groups and closed. Lock order is mu, then group.mu.
	mu     sync.Mutex
	groups map[string]*group
	closed bool

	// wg tracks acquisitions and flushes. Add only while holding mu and not closed.
	wg sync.WaitGroup

	postsCreated        atomic.Int64
	groupsDropped       atomic.Int64
	acquisitionFailures atomic.Int64
	failedPosts         atomic.Int64
}

// New creates an Aggregator. notifier may be nil.
func New(acquirer domain.PhotoAcquirer, assembler Assembler, notifier domain.Notifier, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		acquirer:  acquirer,
		assembler: assembler,
		notifier:  notifier,
		clock:     cfg.Clock,
		debounce:  cfg.Debounce,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		groups:    make(map[string]*group),
	}
}

// Accept takes one photo event. The event's position in its group is fixed
// before Accept returns, so callers that deliver events sequentially get
// arrival order in the resulting post regardless of how long each fetch
// takes. Acquisition and assembly run in the background.
func (a *Aggregator) Accept(ev domain.PhotoEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if !ev.IsGrouped() {
		a.wg.Add(1)
		go a.postSingle(ev)
		return nil
	}

	g, ok := a.groups[ev.GroupKey]
	if !ok {
		g = &group{key: ev.GroupKey, chatID: ev.ChatID}
		a.groups[ev.GroupKey] = g
		a.logger.Debug("media group opened", "group_key", ev.GroupKey)
	}

	g.mu.Lock()
	idx := len(g.slots)
	g.slots = append(g.slots, slot{})
	if g.caption == "" && ev.Caption != "" {
		g.caption = ev.Caption
	}
	g.pending.Add(1)
	g.mu.Unlock()

	a.wg.Add(1)
	go a.acquireInto(g, idx, ev)
	return nil
}

func (a *Aggregator) postSingle(ev domain.PhotoEvent) {
	defer a.wg.Done()

	id, err := a.acquirer.Acquire(a.ctx, ev.Ref, ev.ArrivalTime)
	if err != nil {
		a.acquisitionFailures.Add(1)
		a.fail(ev.ChatID, &domain.EmptyBatchError{Failures: []error{err}}, "file_id", ev.Ref.FileID)
		return
	}
	a.assemble(ev.ChatID, []string{id}, ev.Caption)
}

func (a *Aggregator) acquireInto(g *group, idx int, ev domain.PhotoEvent) {
	defer a.wg.Done()

	id, err := a.acquirer.Acquire(a.ctx, ev.Ref, ev.ArrivalTime)
	if err != nil {
		a.acquisitionFailures.Add(1)
		a.logger.Warn("photo acquisition failed", "group_key", g.key, "file_id", ev.Ref.FileID, "error", err)
	}

	g.mu.Lock()
	g.slots[idx] = slot{storageID: id, err: err}
	// The timer is armed once, when the event that opened the group has
	// been processed. Later arrivals never push the deadline back.
	if idx == 0 && g.state == stateAccumulating && g.timer == nil {
		g.deadline = a.clock.Now().Add(a.debounce)
		g.timer = a.clock.AfterFunc(a.debounce, func() { a.fire(g) })
		a.logger.Debug("media group timer armed", "group_key", g.key, "deadline", g.deadline)
	}
	g.mu.Unlock()
	g.pending.Done()
}

// fire closes the group to new events and flushes it once every reserved
// acquisition has finished.
func (a *Aggregator) fire(g *group) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.groups[g.key] == g {
		delete(a.groups, g.key)
	}
	g.mu.Lock()
	if g.state != stateAccumulating {
		a.logger.Debug("media group timer ignored", "group_key", g.key, "state", g.state.String())
		g.mu.Unlock()
		a.mu.Unlock()
		return
	}
	g.state = stateClosing
	g.mu.Unlock()
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	g.pending.Wait()
	a.flush(g)
}

func (a *Aggregator) flush(g *group) {
	g.mu.Lock()
	slots := g.slots
	caption := g.caption
	g.state = stateFlushed
	g.mu.Unlock()

	if len(slots) == 1 {
		// A group key with a single photo yields no post and no error.
		a.groupsDropped.Add(1)
		a.logger.Warn("dropping media group with a single photo", "group_key", g.key)
		return
	}

	paths := make([]string, 0, len(slots))
	var failures []error
	for _, s := range slots {
		if s.err != nil {
			failures = append(failures, s.err)
			continue
		}
		paths = append(paths, s.storageID)
	}

	if len(paths) == 0 {
		a.fail(g.chatID, &domain.EmptyBatchError{Failures: failures}, "group_key", g.key)
		return
	}

	a.logger.Info("media group closed", "group_key", g.key, "events", len(slots), "photos", len(paths))
	a.assemble(g.chatID, paths, caption)
}

func (a *Aggregator) assemble(chatID int64, paths []string, caption string) {
	post, err := a.assembler.Assemble(a.ctx, paths, caption)
	if err != nil {
		a.fail(chatID, err)
		return
	}
	a.postsCreated.Add(1)
	a.notifier.PostCreated(a.ctx, chatID, post)
}

func (a *Aggregator) fail(chatID int64, err error, attrs ...any) {
	a.failedPosts.Add(1)
	a.logger.Error("post not created", append(attrs, "error", err)...)
	a.notifier.PostFailed(a.ctx, chatID, err)
}

// Stats returns current counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	open := len(a.groups)
	a.mu.Unlock()

	return Stats{
		OpenGroups:          open,
		PostsCreated:        a.postsCreated.Load(),
		GroupsDropped:       a.groupsDropped.Load(),
		AcquisitionFailures: a.acquisitionFailures.Load(),
		FailedPosts:         a.failedPosts.Load(),
	}
}

// Run logs stats at the given interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := a.Stats()
			a.logger.Info("aggregator stats",
				"open_groups", st.OpenGroups,
				"posts_created", st.PostsCreated,
				"groups_dropped", st.GroupsDropped,
				"acquisition_failures", st.AcquisitionFailures,
				"failed_posts", st.FailedPosts,
			)
		}
	}
}

// Shutdown stops accepting events, cancels pending debounce timers, waits for
// in-flight acquisitions and flushes, and discards groups that never closed.
// If ctx expires first, outstanding fetches are cancelled.
func (a *Aggregator) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	open := make([]*group, 0, len(a.groups))
	for _, g := range a.groups {
		open = append(open, g)
	}
	a.groups = make(map[string]*group)
	a.mu.Unlock()

	for _, g := range open {
		g.mu.Lock()
		if g.timer != nil {
			g.timer.Stop()
		}
		g.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		a.cancel()
		<-done
	}
	a.cancel()

	for _, g := range open {
		g.mu.Lock()
		if g.state == stateAccumulating {
			g.state = stateDiscarded
			a.logger.Warn("discarding open media group", "group_key", g.key, "events", len(g.slots))
		}
		g.mu.Unlock()
	}
	return err
}

type nopNotifier struct{}

func (nopNotifier) PostCreated(context.Context, int64, *domain.Post) {}

func (nopNotifier) PostFailed(context.Context, int64, error) {}
