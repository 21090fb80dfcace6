// Package search turns a rapidly changing text query into debounced,
// cancellable calls against the destination search endpoint.
//
// Every dispatch owns a sequence number and a context. Starting a new
// dispatch, or closing the orchestrator, cancels the previous context and
// bumps the sequence, so a response that arrives late is dropped before it
// can touch state.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/neexbeast/tripsync/internal/destination"
)

const (
	DefaultDebounce       = 300 * time.Millisecond
	DefaultMinQueryLength = 2
	DefaultLimit          = 10
	DefaultRequestTimeout = 10 * time.Second

	msgRateLimited = "Too many searches. Please try again later."
	msgFailed      = "Failed to search destinations. Please try again."
)

// State is the caller-visible snapshot of the orchestrator.
type State struct {
	Query               string
	IsLoading           bool
	Error               string
	Destinations        []destination.Destination
	HasMore             bool
	Source              destination.Source
	SelectedDestination *destination.Destination
	// ShowPopular is true when the query is too short and there are no
	// results, so the caller should show a curated list instead.
	ShowPopular bool
}

type options struct {
	debounce       time.Duration
	minQueryLength int
	limit          int
	autoSearch     bool
	requestTimeout time.Duration
	log            *slog.Logger
	onChange       func(State)
}

// Option configures an Orchestrator.
type Option func(*options)

func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

func WithMinQueryLength(n int) Option { return func(o *options) { o.minQueryLength = n } }

func WithLimit(n int) Option { return func(o *options) { o.limit = n } }

// WithAutoSearch controls whether SetQuery starts a debounced search.
func WithAutoSearch(on bool) Option { return func(o *options) { o.autoSearch = on } }

// WithRequestTimeout bounds each dispatched request; 0 disables the bound.
func WithRequestTimeout(d time.Duration) Option { return func(o *options) { o.requestTimeout = d } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithOnChange registers a callback that receives a snapshot after every
// state change. Callbacks are serialised. The callback may read State but
// must not call mutating methods.
func WithOnChange(fn func(State)) Option { return func(o *options) { o.onChange = fn } }

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	client Client
	opts   options

	mu       sync.Mutex
	state    State
	timer    *time.Timer
	timerGen uint64
	seq      uint64
	cancel   context.CancelFunc
	closed   bool

	notifyMu sync.Mutex
}

// New constructs an Orchestrator over client.
func New(client Client, opts ...Option) *Orchestrator {
	o := options{
		debounce:       DefaultDebounce,
		minQueryLength: DefaultMinQueryLength,
		limit:          DefaultLimit,
		autoSearch:     true,
		requestTimeout: DefaultRequestTimeout,
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator{
		client: client,
		opts:   o,
		state: State{
			Destinations: []destination.Destination{},
			Source:       destination.SourceFallback,
		},
	}
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	s := o.state
	s.Destinations = append([]destination.Destination(nil), o.state.Destinations...)
	if s.Destinations == nil {
		s.Destinations = []destination.Destination{}
	}
	if o.state.SelectedDestination != nil {
		sel := *o.state.SelectedDestination
		s.SelectedDestination = &sel
	}
	s.ShowPopular = o.tooShort(s.Query) && len(s.Destinations) == 0
	return s
}

// Idle reports whether no debounce timer is pending and no request is in
// flight. A closed orchestrator is always idle.
func (o *Orchestrator) Idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed || (o.timer == nil && !o.state.IsLoading)
}

func (o *Orchestrator) tooShort(q string) bool {
	return destination.QueryLength(q) < o.opts.minQueryLength
}

// SetQuery records text and, with auto search on, restarts the debounce timer.
func (o *Orchestrator) SetQuery(text string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.state.Query = text
	if o.opts.autoSearch {
		o.scheduleLocked()
	}
	o.mu.Unlock()
	o.notify()
}

// scheduleLocked starts a new debounce cycle: the pending timer and any
// in-flight request are discarded.
func (o *Orchestrator) scheduleLocked() {
	o.stopTimerLocked()
	o.cancelInFlightLocked()
	gen := o.timerGen
	o.timer = time.AfterFunc(o.opts.debounce, func() { o.fire(gen) })
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerGen++
}

// fire runs when a debounce period elapses without a newer SetQuery.
func (o *Orchestrator) fire(gen uint64) {
	o.mu.Lock()
	if o.closed || gen != o.timerGen {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	query := o.state.Query

	if o.tooShort(query) {
		o.cancelInFlightLocked()
		o.resetResultsLocked()
		o.state.Error = ""
		o.mu.Unlock()
		o.notify()
		return
	}

	ctx, seq := o.dispatchLocked(context.Background())
	o.mu.Unlock()
	o.notify()

	go func() {
		res, err := o.client.Search(ctx, destination.NormalizeQuery(query), o.opts.limit)
		o.complete(seq, query, res, err)
	}()
}

// Search runs an immediate search for text, bypassing the debounce timer.
// The query in State is left as is. A short text resets results without a
// network call. If a newer dispatch supersedes this one the returned error
// wraps both ErrCancelled and context.Canceled.
func (o *Orchestrator) Search(ctx context.Context, text string) (*destination.SearchResult, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.stopTimerLocked()

	if o.tooShort(text) {
		o.cancelInFlightLocked()
		o.resetResultsLocked()
		o.state.Error = ""
		o.mu.Unlock()
		o.notify()
		return &destination.SearchResult{Destinations: []destination.Destination{}, Source: destination.SourceFallback}, nil
	}

	reqCtx, seq := o.dispatchLocked(ctx)
	o.mu.Unlock()
	o.notify()

	res, err := o.client.Search(reqCtx, destination.NormalizeQuery(text), o.opts.limit)
	if !o.complete(seq, text, res, err) {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, context.Canceled)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// dispatchLocked cancels the live request and starts a new one.
func (o *Orchestrator) dispatchLocked(parent context.Context) (context.Context, uint64) {
	o.cancelInFlightLocked()

	var ctx context.Context
	var cancel context.CancelFunc
	if o.opts.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, o.opts.requestTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	o.cancel = cancel
	o.state.IsLoading = true
	o.state.Error = ""
	return ctx, o.seq
}

func (o *Orchestrator) cancelInFlightLocked() {
	o.seq++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state.IsLoading = false
}

func (o *Orchestrator) resetResultsLocked() {
	o.state.Destinations = []destination.Destination{}
	o.state.HasMore = false
	o.state.Source = destination.SourceFallback
}

// complete applies the outcome of dispatch seq. It reports false when the
// outcome was discarded as cancelled.
func (o *Orchestrator) complete(seq uint64, query string, res *destination.SearchResult, err error) bool {
	o.mu.Lock()
	if o.closed || seq != o.seq {
		o.mu.Unlock()
		return false
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state.IsLoading = false

	switch {
	case errors.Is(err, context.Canceled):
		o.mu.Unlock()
		o.notify()
		return false
	case err != nil:
		o.state.Error = userMessage(err)
		o.state.Destinations = []destination.Destination{}
		o.state.HasMore = false
		o.mu.Unlock()
		o.opts.log.Warn("destination search failed", "query", query, "err", err)
	default:
		o.state.Error = ""
		o.state.Destinations = append([]destination.Destination{}, res.Destinations...)
		o.state.HasMore = res.HasMore
		o.state.Source = res.Source
		o.mu.Unlock()
	}
	o.notify()
	return true
}

func userMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.As(err, &verr):
		return verr.Message
	default:
		return msgFailed
	}
}

// SelectDestination records d as the chosen result and copies its name into
// the query. With auto search on that starts a new debounce cycle. A nil d
// clears the selection and leaves the query alone.
func (o *Orchestrator) SelectDestination(d *destination.Destination) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if d == nil {
		o.state.SelectedDestination = nil
	} else {
		sel := *d
		o.state.SelectedDestination = &sel
		o.state.Query = d.Name
		if o.opts.autoSearch {
			o.scheduleLocked()
		}
	}
	o.mu.Unlock()
	o.notify()
}

// ClearResults empties the result list without touching the query.
func (o *Orchestrator) ClearResults() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.resetResultsLocked()
	o.mu.Unlock()
	o.notify()
}

// ClearError drops the current error message.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.state.Error = ""
	o.mu.Unlock()
	o.notify()
}

// Close stops the pending timer and cancels the in-flight request. State is
// frozen afterwards. Close is idempotent.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.stopTimerLocked()
	o.seq++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) notify() {
	if o.opts.onChange == nil {
		return
	}
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	s := o.snapshotLocked()
	o.mu.Unlock()

	o.opts.onChange(s)
}
