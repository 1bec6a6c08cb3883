// Package dispatch implements the quorum-based, concurrent storage-node
// dispatch engine shared by the read and write paths: weighted tasks are
// fanned out to nodes and their results are folded into running
// not-found/blocked/ok weight counters until the caller accepts the
// results, the not-found/blocked quorum is reached, or the required
// weight becomes unreachable. Weight accounting and the stop decision happen
// inside one mutex-guarded critical section so that exactly one goroutine
// ever observes a threshold being crossed, closing the race a naive
// increment-then-check-separately implementation would have.
package dispatch

import (
	"context"
	"math/rand"
	"sync"

	"walrus/internal/voting"
	"walrus/walruserrors"
)

// ErrClass is the classification of a task failure, mirroring the
// storage-node transport's closed error taxonomy.
type ErrClass int

const (
	ErrOther ErrClass = iota
	ErrNotFound
	ErrBlocked
	ErrUserAbort
)

// Decision is the caller's verdict on a newly accepted result.
type Decision int

const (
	// Keep accumulates the result and continues dispatching.
	Keep Decision = iota
	// Done accumulates the result and stops the run successfully.
	Done
)

// Task is one unit of dispatcher work: an action with a voting weight and,
// optionally, the committee node index it targets (used by the
// column-wise scheduler's node blacklist).
type Task[T any] struct {
	Weight    int
	NodeIndex int // -1 if not applicable
	Run       func(ctx context.Context) (T, error)
}

// Options configures one dispatcher session.
type Options[T any] struct {
	// NShards is n in the quorum/validity thresholds.
	NShards int
	// Classify maps a task error to the closed taxonomy.
	Classify func(error) ErrClass
	// Accept is consulted for every successful task result.
	Accept func(result T, acceptedSoFar []T) Decision
	// RequiredWeight is the optimistic upper bound used for the
	// exhaustion check: if w_ok + remaining weight can never reach this,
	// the run fails early with InsufficientErr.
	RequiredWeight int
	// FailOnNotFoundOrBlocked enables the not-found/blocked quorum check
	// (step 3 of the dispatcher loop). Write-path fan-outs, which have no
	// "the object doesn't exist" concept, leave this false.
	FailOnNotFoundOrBlocked bool
	// InsufficientErr builds the caller-specific error emitted on
	// exhaustion (NotEnoughSlivers, NoBlobMetadata, ...).
	InsufficientErr func() error
}

// state is the single critical section every task completion passes
// through: weight accounting and the stop decision happen together, under
// one lock, so exactly one goroutine observes "threshold just crossed".
type state[T any] struct {
	mu        sync.Mutex
	opts      options
	wOK, wNF, wBLK int
	remaining int // total weight of not-yet-completed tasks
	accepted  []T
	blacklist map[int]bool
	done      bool
	err       error
}

// options is the type-erased subset of Options needed inside state, which
// cannot itself be generic over T without infecting every helper.
type options struct {
	nShards                 int
	requiredWeight          int
	failOnNotFoundOrBlocked bool
}

// Session runs a sequence of task batches against one shared dispatcher
// state, so scheduling variants (first-success chunking, column-wise
// rounds) can submit work incrementally while still sharing one quorum
// decision.
type Session[T any] struct {
	st       *state[T]
	classify func(error) ErrClass
	accept   func(T, []T) Decision
	insuff   func() error
	cancel   context.CancelFunc
}

// NewSession creates a dispatcher session over totalWeight (the sum of
// weights of every task that might ever be submitted).
func NewSession[T any](ctx context.Context, cancel context.CancelFunc, totalWeight int, opts Options[T]) *Session[T] {
	return &Session[T]{
		st: &state[T]{
			opts: options{
				nShards:                 opts.NShards,
				requiredWeight:          opts.RequiredWeight,
				failOnNotFoundOrBlocked: opts.FailOnNotFoundOrBlocked,
			},
			remaining: totalWeight,
			blacklist: make(map[int]bool),
		},
		classify: opts.Classify,
		accept:   opts.Accept,
		insuff:   opts.InsufficientErr,
		cancel:   cancel,
	}
}

// Done reports whether the session has already reached a terminal state.
func (s *Session[T]) Done() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.done
}

// Blacklisted reports whether a node index has already failed a task in
// this session.
func (s *Session[T]) Blacklisted(nodeIndex int) bool {
	if nodeIndex < 0 {
		return false
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.blacklist[nodeIndex]
}

// Submit launches a batch of tasks fully in parallel and blocks until the
// whole batch completes (or the session reaches a terminal state and
// cancels them). It returns the accepted results so far and whether the
// session is now done.
func (s *Session[T]) Submit(ctx context.Context, tasks []Task[T]) ([]T, bool) {
	var wg sync.WaitGroup

	for _, task := range tasks {
		if s.Done() {
			break
		}

		wg.Add(1)
		go func(t Task[T]) {
			defer wg.Done()

			result, err := t.Run(ctx)
			s.complete(t.Weight, t.NodeIndex, result, err)
		}(task)
	}

	wg.Wait()

	return s.Results(), s.Done()
}

// complete is the single critical section every task passes through.
func (s *Session[T]) complete(weight, nodeIndex int, result T, taskErr error) {
	st := s.st

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.done {
		return
	}

	st.remaining -= weight

	if taskErr != nil {
		class := s.classify(taskErr)

		switch class {
		case ErrUserAbort:
			st.err = &walruserrors.UserAbort{}
			st.done = true
			s.cancel()
			return
		case ErrNotFound:
			st.wNF += weight
		case ErrBlocked:
			st.wBLK += weight
		default:
			// transport/other errors contribute no weight either way
		}

		if nodeIndex >= 0 {
			st.blacklist[nodeIndex] = true
		}
	} else {
		decision := s.accept(result, st.accepted)
		st.accepted = append(st.accepted, result)
		st.wOK += weight

		if decision == Done {
			st.done = true
			s.cancel()
			return
		}
	}

	if st.opts.failOnNotFoundOrBlocked && voting.Quorum(st.wNF+st.wBLK, st.opts.nShards) {
		if st.wNF >= st.wBLK {
			st.err = &walruserrors.BlobNotCertified{}
		} else {
			st.err = &walruserrors.BlobBlocked{}
		}
		st.done = true
		s.cancel()
		return
	}

	if st.wOK+st.remaining < st.opts.requiredWeight {
		if s.insuff != nil {
			st.err = s.insuff()
		} else {
			st.err = &walruserrors.WalrusClient{Reason: "dispatch exhausted without reaching required weight"}
		}
		st.done = true
		s.cancel()
		return
	}
}

// Results returns the accepted results gathered so far.
func (s *Session[T]) Results() []T {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	out := make([]T, len(s.st.accepted))
	copy(out, s.st.accepted)
	return out
}

// Err returns the terminal error, if any. A successful Done() carries a
// nil Err.
func (s *Session[T]) Err() error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.err
}

// RunAllFanout launches every task simultaneously. Used by the write path
// (push slivers, request confirmations) and status-polling: the
// dispatcher's early-abort still applies even though nothing is held back.
func RunAllFanout[T any](ctx context.Context, tasks []Task[T], opts Options[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := 0
	for _, t := range tasks {
		total += t.Weight
	}

	session := NewSession[T](ctx, cancel, total, opts)
	session.Submit(ctx, tasks)

	return session.Results(), session.Err()
}

// RunFirstSuccess tries one task at a time in random order; on failure it
// fans the rest out in chunks of ceil(N/concurrencyHint), stopping as soon
// as Accept signals Done.
func RunFirstSuccess[T any](ctx context.Context, tasks []Task[T], concurrencyHint int, opts Options[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	order := rand.Perm(len(tasks))
	shuffled := make([]Task[T], len(tasks))
	for i, idx := range order {
		shuffled[i] = tasks[idx]
	}

	total := 0
	for _, t := range shuffled {
		total += t.Weight
	}

	session := NewSession[T](ctx, cancel, total, opts)

	if len(shuffled) == 0 {
		return session.Results(), session.Err()
	}

	session.Submit(ctx, shuffled[:1])
	if session.Done() {
		return session.Results(), session.Err()
	}

	remaining := shuffled[1:]
	if concurrencyHint < 1 {
		concurrencyHint = 1
	}

	chunkSize := (len(remaining) + concurrencyHint - 1) / concurrencyHint
	if chunkSize < 1 {
		chunkSize = 1
	}

	for start := 0; start < len(remaining); start += chunkSize {
		end := start + chunkSize
		if end > len(remaining) {
			end = len(remaining)
		}

		session.Submit(ctx, remaining[start:end])
		if session.Done() {
			break
		}
	}

	return session.Results(), session.Err()
}

// RunFirstSuccessOrdered is RunFirstSuccess without the internal random
// shuffle: the caller supplies tasks already in the order it wants tried,
// e.g. weighted so nodes with more shards (and hence more chances of
// already holding the answer) are tried before a large fallback fan-out.
func RunFirstSuccessOrdered[T any](ctx context.Context, tasks []Task[T], concurrencyHint int, opts Options[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := 0
	for _, t := range tasks {
		total += t.Weight
	}

	session := NewSession[T](ctx, cancel, total, opts)

	if len(tasks) == 0 {
		return session.Results(), session.Err()
	}

	session.Submit(ctx, tasks[:1])
	if session.Done() {
		return session.Results(), session.Err()
	}

	remaining := tasks[1:]
	if concurrencyHint < 1 {
		concurrencyHint = 1
	}

	chunkSize := (len(remaining) + concurrencyHint - 1) / concurrencyHint
	if chunkSize < 1 {
		chunkSize = 1
	}

	for start := 0; start < len(remaining); start += chunkSize {
		end := start + chunkSize
		if end > len(remaining) {
			end = len(remaining)
		}

		session.Submit(ctx, remaining[start:end])
		if session.Done() {
			break
		}
	}

	return session.Results(), session.Err()
}

// RunColumnWise groups tasks into rows of size rowSize (the primary
// symbol count k for sliver reads) and dispatches column by column, so
// every round draws from a fresh set of rows (nodes) before repeating any
// one of them. Nodes that fail once are skipped for the remainder of the
// run via the session blacklist.
func RunColumnWise[T any](ctx context.Context, tasks []Task[T], rowSize int, opts Options[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rowSize < 1 {
		rowSize = 1
	}

	rows := make([][]Task[T], 0, (len(tasks)+rowSize-1)/rowSize)
	for i := 0; i < len(tasks); i += rowSize {
		end := i + rowSize
		if end > len(tasks) {
			end = len(tasks)
		}
		rows = append(rows, tasks[i:end])
	}

	total := 0
	for _, t := range tasks {
		total += t.Weight
	}

	session := NewSession[T](ctx, cancel, total, opts)

	numCols := rowSize
	for col := 0; col < numCols; col++ {
		var column []Task[T]
		for _, row := range rows {
			if col < len(row) {
				t := row[col]
				if !session.Blacklisted(t.NodeIndex) {
					column = append(column, t)
				}
			}
		}

		if len(column) == 0 {
			continue
		}

		session.Submit(ctx, column)
		if session.Done() {
			break
		}
	}

	return session.Results(), session.Err()
}
