package download

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/farsightsec/fileset-sync/internal/fetch"
	"github.com/farsightsec/fileset-sync/internal/fileset"
	"github.com/farsightsec/fileset-sync/internal/logger"
)

// Fetcher is the collaborator a Manager uses to retrieve one file; in
// production this is *fetch.Client, in tests a stub.
type Fetcher interface {
	File(ctx context.Context, opts fetch.FileOptions) (fetch.Result, error)
}

// Options configures a Manager. Defaults match SPEC_FULL.md §6's
// configuration surface.
type Options struct {
	MaxDownloads      int
	RetryTimeout      time.Duration
	DigestRequired    bool
	Validator         string
	ContentEncoding   string
	EncryptionKeyFile string
	Progress          ProgressFactory // optional; nil disables progress bars
	Logger            *logger.Logger
}

// ProgressFactory creates a progress sink for one named download and a
// matching close function; it is the download manager's seam for mpb, so
// the manager itself never imports a progress-bar library directly.
type ProgressFactory func(name string) (w io.Writer, done func())

// Manager is the single long-running coordinator for one fileset's
// downloads. There is exactly one Manager per fileset coordinator, per
// SPEC_FULL.md §5.
type Manager struct {
	fetcher Fetcher
	opts    Options
	log     *logger.Logger

	mu   sync.Mutex
	jobs map[fileset.Key]*job

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(fetcher Fetcher, opts Options) *Manager {
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = 4
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		fetcher: fetcher,
		opts:    opts,
		log:     opts.Logger,
		jobs:    make(map[fileset.Key]*job),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the coordinator goroutine. It is not re-entrant; call it
// once per Manager.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop signals shutdown. If blocking is true, Stop waits (up to timeout,
// if positive) for the coordinator and all active workers to finish. The
// terminate flag is cooperative: in-flight workers observe ctx.Done() at
// their next blocking I/O boundary rather than being killed outright.
func (m *Manager) Stop(blocking bool, timeout time.Duration) {
	m.cancel()
	close(m.done)
	m.signal()

	if !blocking {
		return
	}

	if timeout <= 0 {
		m.wg.Wait()
		return
	}

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(timeout):
		m.log.Warn("download manager did not finish within shutdown timeout")
	}
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Contains reports whether f is known to the manager: pending, active, or
// cooling down. Callers must check this before Enqueue, since Enqueue is
// idempotent only with respect to this check, not a guard itself.
func (m *Manager) Contains(f fileset.Descriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[f.Key()]
	return ok
}

// Enqueue adds f to the pending set and wakes the coordinator. Callers
// must have already checked Contains(f) is false.
func (m *Manager) Enqueue(f fileset.Descriptor) {
	m.mu.Lock()
	m.jobs[f.Key()] = &job{descriptor: f, state: Pending}
	m.mu.Unlock()
	m.signal()
}

// EnqueueMissing enqueues every descriptor in missing that is not already
// known to the manager, in the coarsest-first order so a fresh yearly
// bucket lands before many minute buckets. fileset.Sorted already orders
// coarsest-first (ascending granularity rank, then timestamp), so no
// further reordering is needed here.
func (m *Manager) EnqueueMissing(missing fileset.Set) {
	for _, f := range fileset.Sorted(missing) {
		if !m.Contains(f) {
			m.Enqueue(f)
		}
	}
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			m.drainActive()
			return
		case <-m.wake:
		case <-ticker.C:
		}

		if m.ctx.Err() != nil {
			m.drainActive()
			return
		}

		m.fillSlots()
	}
}

// fillSlots selects up to (max_downloads - active) pending jobs, coarsest
// first, and starts a worker for each.
func (m *Manager) fillSlots() {
	m.mu.Lock()
	active := 0
	var pending []*job
	for _, j := range m.jobs {
		switch j.state {
		case Active:
			active++
		case Pending:
			pending = append(pending, j)
		}
	}
	free := m.opts.MaxDownloads - active
	if free <= 0 || len(pending) == 0 {
		m.mu.Unlock()
		return
	}

	sort.Slice(pending, func(i, j int) bool {
		return fileset.Less(pending[i].descriptor, pending[j].descriptor)
	})
	if free > len(pending) {
		free = len(pending)
	}
	selected := pending[:free]
	for _, j := range selected {
		j.state = Active
	}
	m.mu.Unlock()

	for _, j := range selected {
		m.startWorker(j)
	}
}

func (m *Manager) startWorker(j *job) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	j.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runWorker(ctx, j)
		// Wake the coordinator so the freed slot is refilled now rather
		// than on the next ticker tick.
		m.signal()
	}()
}

func (m *Manager) runWorker(ctx context.Context, j *job) {
	f := j.descriptor
	m.log.Info("downloading", "name", f.Name, "uri", f.SourceURI)

	var progressDone func()
	var progressWriter io.Writer
	if m.opts.Progress != nil {
		progressWriter, progressDone = m.opts.Progress(f.Name)
	}

	_, err := m.fetcher.File(ctx, fetch.FileOptions{
		URI:               f.SourceURI,
		Directory:         f.Directory,
		Name:              f.Name,
		DigestRequired:    m.opts.DigestRequired,
		Validator:         m.opts.Validator,
		ContentEncoding:   m.opts.ContentEncoding,
		EncryptionKeyFile: m.opts.EncryptionKeyFile,
		Progress:          progressWriter,
	})
	if progressDone != nil {
		progressDone()
	}

	if err != nil {
		m.log.Warn("download failed, cooling down", "name", f.Name, "error", err, "retry_timeout", m.opts.RetryTimeout)
		m.coolDown(j)
		return
	}

	m.log.Info("download complete", "name", f.Name)
	m.forget(j)
}

// coolDown moves a failed job into cooling-down and starts its retry
// timer; once the timer fires the job is forgotten, which re-enqueues it
// on the next diff if it is still missing.
func (m *Manager) coolDown(j *job) {
	m.mu.Lock()
	j.state = CoolingDown
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-time.After(m.opts.RetryTimeout):
			m.forget(j)
			m.signal()
		case <-m.done:
		}
	}()
}

func (m *Manager) forget(j *job) {
	m.mu.Lock()
	delete(m.jobs, j.descriptor.Key())
	m.mu.Unlock()
}

func (m *Manager) drainActive() {
	m.mu.Lock()
	var cancels []func()
	for _, j := range m.jobs {
		if j.state == Active && j.cancel != nil {
			cancels = append(cancels, j.cancel)
		}
	}
	m.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}
