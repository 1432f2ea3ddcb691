// Package ledger decides whether pipeline work can be skipped.
//
// A Ledger records, per pipeline stage, a fingerprint for every input it has
// processed and the outputs that input produced. On the next run each input is
// classified as unmodified, new or modified, and inputs that disappeared are
// reported as removed. The aggregate form gates one generator over a whole
// batch of inputs: it runs only when some input changed or an output is
// missing.
//
// State lives in a [cache.Cache] under a single key per ledger, encoded as
// deterministic CBOR. Records are staged in memory and only persisted by
// [Ledger.Commit], and an input is only recorded once the caller marks it
// [Ledger.Done]. A run that aborts half way therefore never leaves a
// fingerprint for an output that was not fully written.
package ledger

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/osgirepo/pkg/cache"
)

// Status classifies an input against the previous run.
type Status int

const (
	Unmodified Status = iota
	New
	Modified
	Removed
)

func (s Status) String() string {
	switch s {
	case Unmodified:
		return "unmodified"
	case New:
		return "new"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Input names one logical input. Local files set Path (usually equal to ID);
// remote inputs leave Path empty and are identified by their URL alone.
type Input struct {
	ID   string
	Path string
}

// FileInput returns the input for a local file.
func FileInput(path string) Input { return Input{ID: path, Path: path} }

// URLInput returns the input for a remote resource.
func URLInput(url string) Input { return Input{ID: url} }

const stateKey = "state"

// Ledger tracks the inputs and outputs of one pipeline stage.
// It is safe for concurrent use.
type Ledger struct {
	store  cache.Cache
	logger *log.Logger

	mu      sync.Mutex
	prev    state
	next    state
	pending map[string]record
	seen    map[string]bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(ld *Ledger) {
		if l != nil {
			ld.logger = l
		}
	}
}

// Open loads the ledger for stage from store. A missing or unreadable state
// starts empty.
func Open(ctx context.Context, store cache.Cache, stage string, opts ...Option) (*Ledger, error) {
	if store == nil {
		store = cache.NewNullCache()
	}
	l := &Ledger{
		store:   cache.Scoped(store, "ledger:"+stage+":"),
		logger:  log.NewWithOptions(io.Discard, log.Options{}),
		pending: make(map[string]record),
		seen:    make(map[string]bool),
		next:    newState(),
	}
	for _, opt := range opts {
		opt(l)
	}

	data, ok, err := l.store.Get(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", stage, err)
	}
	l.prev = newState()
	if ok {
		var valid bool
		if l.prev, valid = decodeState(data); !valid {
			l.logger.Warn("discarding unreadable ledger state", "stage", stage)
		}
	}
	for k, v := range l.prev.Aggregates {
		l.next.Aggregates[k] = v
	}
	return l, nil
}

// RegisterInput fingerprints in and compares it with the previous run.
// The new fingerprint is staged until [Ledger.Done] is called for in.ID.
func (l *Ledger) RegisterInput(in Input) (Status, error) {
	l.mu.Lock()
	prev, known := l.prev.Inputs[in.ID]
	l.mu.Unlock()

	var prevFP *Fingerprint
	if known {
		prevFP = &prev.Fingerprint
	}
	fp, err := fingerprint(in, prevFP)
	if err != nil {
		return 0, err
	}

	status := New
	rec := record{Fingerprint: fp}
	switch {
	case !known:
	case fp.Digest == "" || fp.Digest != prev.Fingerprint.Digest:
		status = Modified
	default:
		status = Unmodified
		rec.Outputs = slices.Clone(prev.Outputs)
	}

	l.mu.Lock()
	l.pending[in.ID] = rec
	l.seen[in.ID] = true
	l.mu.Unlock()

	l.logger.Debug("ledger input", "input", in.ID, "status", status)
	return status, nil
}

// Outputs returns the outputs recorded for id by the previous run.
func (l *Ledger) Outputs(id string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.prev.Inputs[id].Outputs)
}

// OutputsExist reports whether id has recorded outputs and all of them are
// present on disk.
func (l *Ledger) OutputsExist(id string) bool {
	outs := l.Outputs(id)
	if len(outs) == 0 {
		return false
	}
	for _, o := range outs {
		if _, err := os.Stat(o); err != nil {
			return false
		}
	}
	return true
}

// AssociateOutput links output to a registered input.
func (l *Ledger) AssociateOutput(id, output string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.pending[id]
	if !ok {
		rec = l.next.Inputs[id]
	}
	if !slices.Contains(rec.Outputs, output) {
		rec.Outputs = append(rec.Outputs, output)
	}
	if ok {
		l.pending[id] = rec
	} else {
		l.next.Inputs[id] = rec
	}
}

// Done marks the input's processing as complete so its fingerprint is
// persisted on Commit.
func (l *Ledger) Done(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.pending[id]; ok {
		l.next.Inputs[id] = rec
		delete(l.pending, id)
	}
}

// Removed returns the inputs recorded by the previous run that were not
// registered in this one, sorted.
func (l *Ledger) Removed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for id := range l.prev.Inputs {
		if !l.seen[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Commit persists every completed input and aggregate. Inputs that were
// registered but never marked done are dropped, so they are reprocessed on
// the next run. It returns the inputs classified as removed.
func (l *Ledger) Commit(ctx context.Context) ([]string, error) {
	removed := l.Removed()

	l.mu.Lock()
	data, err := encMode.Marshal(l.next)
	abandoned := len(l.pending)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	if abandoned > 0 {
		l.logger.Debug("dropping incomplete ledger inputs", "count", abandoned)
	}
	if err := l.store.Set(ctx, stateKey, data, 0); err != nil {
		return nil, fmt.Errorf("persist ledger: %w", err)
	}
	return removed, nil
}

// Reset forgets all state for this stage, in memory and in the store.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	l.prev = newState()
	l.next = newState()
	l.pending = make(map[string]record)
	l.seen = make(map[string]bool)
	l.mu.Unlock()
	return l.store.Delete(ctx, stateKey)
}
