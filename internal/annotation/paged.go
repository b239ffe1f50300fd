package annotation

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
)

const (
	DefaultPageLimit = 5000
	fetchTimeout     = 30 * time.Second
)

// PageRequest selects the elements of an annotation worth showing for a view:
// those intersecting Region whose size is at least MinimumSize, largest
// first, at most Limit of them (0 = unlimited).
type PageRequest struct {
	Region      r2.Rect
	MinimumSize float64
	Limit       int
}

// Fetcher loads one page of elements. Implementations perform the I/O; the
// overlay engine never does.
type Fetcher interface {
	FetchElements(ctx context.Context, annotationID string, req PageRequest) ([]Element, error)
}

// Executor runs a fetch job. The default starts a goroutine.
type Executor func(job func())

// Paged is an annotation whose elements are fetched for the visible region.
type Paged struct {
	*Model

	fetcher Fetcher
	limit   int
	exec    Executor
	log     *slog.Logger

	mu       sync.Mutex
	last     *PageRequest
	seq      uint64
	inflight context.CancelFunc
}

type PagedOption func(*Paged)

func WithPageLimit(limit int) PagedOption {
	return func(p *Paged) { p.limit = limit }
}

func WithExecutor(exec Executor) PagedOption {
	return func(p *Paged) { p.exec = exec }
}

func WithLogger(log *slog.Logger) PagedOption {
	return func(p *Paged) { p.log = log }
}

func NewPaged(info Info, fetcher Fetcher, opts ...PagedOption) *Paged {
	p := &Paged{
		Model:   NewModel(info, nil),
		fetcher: fetcher,
		limit:   DefaultPageLimit,
		exec:    func(job func()) { go job() },
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PageFor computes the request covering bounds at the given zoom. The
// region is padded by half the view on every side so small pans do not
// trigger a fetch, and elements smaller than one screen pixel are skipped.
func PageFor(bounds r2.Rect, zoom, zoomMax float64, limit int) PageRequest {
	size := bounds.Size()
	return PageRequest{
		Region:      bounds.Expanded(r2.Point{X: size.X / 2, Y: size.Y / 2}),
		MinimumSize: math.Pow(2, zoomMax-zoom),
		Limit:       limit,
	}
}

// SetView requests the elements for a new view unless the last fetched
// page already covers it.
func (p *Paged) SetView(bounds r2.Rect, zoom, zoomMax float64) {
	req := PageFor(bounds, zoom, zoomMax, p.limit)

	p.mu.Lock()
	if p.last != nil && p.last.MinimumSize == req.MinimumSize && p.last.Region.Contains(bounds) {
		p.mu.Unlock()
		return
	}
	if p.inflight != nil {
		p.inflight()
	}
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	p.last = &req
	p.seq++
	seq := p.seq
	p.inflight = cancel
	p.mu.Unlock()

	p.exec(func() {
		defer cancel()
		p.fetch(ctx, seq, req)
	})
}

func (p *Paged) fetch(ctx context.Context, seq uint64, req PageRequest) {
	elements, err := p.fetcher.FetchElements(ctx, p.ID(), req)

	p.mu.Lock()
	current := seq == p.seq
	if current {
		p.inflight = nil
		if err != nil {
			p.last = nil
		}
	}
	p.mu.Unlock()

	if !current {
		return
	}
	if err != nil {
		p.log.Warn("fetch annotation elements", "annotation", p.ID(), "error", err)
		return
	}
	p.SetElements(elements)
}

// Refresh forgets the last page so the next SetView fetches again.
func (p *Paged) Refresh() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
}
