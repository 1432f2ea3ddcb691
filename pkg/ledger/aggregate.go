package ledger

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
)

// Batch describes one aggregate: every input that feeds the outputs, plus a
// salt for settings that change the outputs without touching any input.
type Batch struct {
	Outputs []string
	Inputs  []Input
	Salt    string
}

// AggregateResult reports what AggregateIfNecessary did.
type AggregateResult struct {
	// Regenerated is true when the generator ran.
	Regenerated bool
	// CarriedOver lists outputs retained untouched from the previous run.
	CarriedOver []string
}

// AggregateIfNecessary runs generate only if an input of b changed, an input
// was added or removed, the salt changed, or an output is missing. The new
// batch fingerprint is recorded only when generate succeeds.
func (l *Ledger) AggregateIfNecessary(ctx context.Context, b Batch, generate func(ctx context.Context) error) (AggregateResult, error) {
	key := aggregateKey(b.Outputs)

	l.mu.Lock()
	prev, known := l.prev.Aggregates[key]
	l.mu.Unlock()

	fps := make(map[string]Fingerprint, len(b.Inputs))
	for _, in := range b.Inputs {
		var prevFP *Fingerprint
		if p, ok := prev.Inputs[in.ID]; ok {
			prevFP = &p
		}
		fp, err := fingerprint(in, prevFP)
		if err != nil {
			return AggregateResult{}, err
		}
		fps[in.ID] = fp
	}
	digest := batchDigest(b.Salt, fps)

	if known && prev.Digest == digest && allExist(b.Outputs) {
		l.logger.Debug("aggregate carried over", "outputs", b.Outputs)
		return AggregateResult{CarriedOver: slices.Clone(b.Outputs)}, nil
	}

	if err := generate(ctx); err != nil {
		return AggregateResult{}, err
	}

	l.mu.Lock()
	l.next.Aggregates[key] = aggregate{Digest: digest, Inputs: fps, Outputs: slices.Clone(b.Outputs)}
	l.mu.Unlock()
	l.logger.Debug("aggregate regenerated", "outputs", b.Outputs, "inputs", len(b.Inputs))
	return AggregateResult{Regenerated: true}, nil
}

// ForgetAggregate drops the record for outputs so the next call regenerates.
func (l *Ledger) ForgetAggregate(outputs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.next.Aggregates, aggregateKey(outputs))
}

func aggregateKey(outputs []string) string {
	sorted := slices.Clone(outputs)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
