// Package syncagent is the client half of the sync protocol. An Agent turns
// a stream of local edits into debounced broadcasts to the hub and debounced
// saves to storage, and tracks whether the latest content is durable.
package syncagent

import (
	"context"
	"sync"
	"time"

	"noteflare/internal/models"
	"noteflare/internal/utils"
)

type State string

const (
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

const (
	DefaultBroadcastDelay = 50 * time.Millisecond
	DefaultSaveDelay      = time.Second
)

// Snapshot is the full editable content of a document.
type Snapshot struct {
	DocumentID string
	Title      string
	Body       string
	Tags       []string
}

func (s Snapshot) clone() Snapshot {
	s.Tags = append([]string(nil), s.Tags...)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return s
}

// Saver persists a snapshot. Implementations must be safe to retry.
type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Broadcaster sends an edit to the hub.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg models.EditMessage) error
}

type Options struct {
	BroadcastDelay time.Duration
	SaveDelay      time.Duration
	Log            *utils.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BroadcastDelay <= 0 {
		o.BroadcastDelay = DefaultBroadcastDelay
	}
	if o.SaveDelay <= 0 {
		o.SaveDelay = DefaultSaveDelay
	}
	if o.Log == nil {
		o.Log = utils.NewNopLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Agent owns two independent timers. Every edit restarts both; each timer
// carries the generation it was armed with, so a fire that lost a race with
// a newer edit or retry does nothing.
type Agent struct {
	saver       Saver
	broadcaster Broadcaster
	opts        Options

	mu            sync.Mutex
	snap          Snapshot
	state         State
	collaborators bool
	closed        bool

	broadcastTimer *time.Timer
	broadcastGen   uint64
	saveTimer      *time.Timer
	saveGen        uint64

	listeners []func(State)
	seq       uint64

	notifyMu  sync.Mutex
	delivered uint64

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// New returns an agent in the saved state. broadcaster may be nil for a
// client that only persists.
func New(saver Saver, broadcaster Broadcaster, opts Options) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		saver:       saver,
		broadcaster: broadcaster,
		opts:        opts.withDefaults(),
		state:       StateSaved,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Current returns the latest local snapshot.
func (a *Agent) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.clone()
}

// OnStateChange registers fn to be called after every state transition.
func (a *Agent) OnStateChange(fn func(State)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// SetCollaborators records the last presence signal from the hub.
func (a *Agent) SetCollaborators(others bool) {
	a.mu.Lock()
	a.collaborators = others
	a.mu.Unlock()
}

func (a *Agent) Collaborators() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collaborators
}

// Load replaces the local snapshot without scheduling anything, e.g. after
// fetching the note or applying a remote update.
func (a *Agent) Load(snap Snapshot) {
	a.mu.Lock()
	a.snap = snap.clone()
	a.mu.Unlock()
}

// Edit records a local change and restarts both timers.
func (a *Agent) Edit(snap Snapshot) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.snap = snap.clone()
	a.armBroadcastLocked(a.opts.BroadcastDelay)
	a.armSaveLocked(a.opts.SaveDelay)
	changed := a.setStateLocked(StateSaving)
	a.mu.Unlock()
	a.notify(changed)
}

// Retry schedules an immediate save of the current snapshot. It only has an
// effect after a failed save.
func (a *Agent) Retry() bool {
	a.mu.Lock()
	if a.closed || a.state != StateError {
		a.mu.Unlock()
		return false
	}
	a.armSaveLocked(0)
	changed := a.setStateLocked(StateSaving)
	a.mu.Unlock()
	a.notify(changed)
	return true
}

func (a *Agent) armBroadcastLocked(delay time.Duration) {
	a.broadcastGen++
	gen := a.broadcastGen
	if a.broadcastTimer != nil {
		a.broadcastTimer.Stop()
	}
	a.broadcastTimer = time.AfterFunc(delay, func() { a.fireBroadcast(gen) })
}

func (a *Agent) armSaveLocked(delay time.Duration) {
	a.saveGen++
	gen := a.saveGen
	if a.saveTimer != nil {
		a.saveTimer.Stop()
	}
	a.saveTimer = time.AfterFunc(delay, func() { a.fireSave(gen) })
}

func (a *Agent) fireBroadcast(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.broadcastGen || !a.collaborators || a.broadcaster == nil {
		a.mu.Unlock()
		return
	}
	snap := a.snap.clone()
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	msg := models.EditMessage{
		Type:       models.FrameEdit,
		DocumentID: snap.DocumentID,
		Title:      snap.Title,
		Body:       snap.Body,
		Tags:       snap.Tags,
		Position:   0,
		Timestamp:  a.opts.Now().UnixMilli(),
	}
	if err := a.broadcaster.Broadcast(a.ctx, msg); err != nil {
		a.opts.Log.Warn("broadcast failed", "documentId", snap.DocumentID, "error", err.Error())
	}
}

func (a *Agent) fireSave(gen uint64) {
	a.mu.Lock()
	if a.closed || gen != a.saveGen {
		a.mu.Unlock()
		return
	}
	snap := a.snap.clone()
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	err := a.saver.Save(a.ctx, snap)
	a.finishSave(gen, snap, err)
}

// finishSave applies a save outcome unless a newer edit or retry has armed
// the timer again, in which case the agent stays saving.
func (a *Agent) finishSave(gen uint64, snap Snapshot, err error) {
	a.mu.Lock()
	if a.closed || gen != a.saveGen {
		a.mu.Unlock()
		return
	}
	next := StateSaved
	if err != nil {
		next = StateError
		a.opts.Log.Warn("save failed", "documentId", snap.DocumentID, "error", err.Error())
	}
	changed := a.setStateLocked(next)
	a.mu.Unlock()
	a.notify(changed)
}

// Flush saves the current snapshot now if it is not known to be durable.
func (a *Agent) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.closed || a.state == StateSaved {
		a.mu.Unlock()
		return nil
	}
	a.saveGen++
	gen := a.saveGen
	if a.saveTimer != nil {
		a.saveTimer.Stop()
	}
	snap := a.snap.clone()
	a.mu.Unlock()

	err := a.saver.Save(ctx, snap)
	a.finishSave(gen, snap, err)
	return err
}

type transition struct {
	seq       uint64
	state     State
	listeners []func(State)
}

func (a *Agent) setStateLocked(s State) transition {
	if a.state == s {
		return transition{}
	}
	a.state = s
	a.seq++
	return transition{seq: a.seq, state: s, listeners: append([]func(State){}, a.listeners...)}
}

// notify runs listeners outside a.mu so they may call back into the agent.
// A transition that arrives after a newer one was delivered is dropped, so
// the last state a listener sees is the agent's current state.
func (a *Agent) notify(t transition) {
	if len(t.listeners) == 0 {
		return
	}
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	if t.seq <= a.delivered {
		return
	}
	a.delivered = t.seq
	for _, fn := range t.listeners {
		fn(t.state)
	}
}

// Close stops both timers, cancels in-flight work and waits for it to return.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.broadcastTimer != nil {
		a.broadcastTimer.Stop()
	}
	if a.saveTimer != nil {
		a.saveTimer.Stop()
	}
	a.mu.Unlock()

	a.cancel()
	a.inflight.Wait()
}
