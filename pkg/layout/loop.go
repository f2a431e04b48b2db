package layout

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"ha-floorplan/internal/common/apperr"
)

// ============================================================
// Event loop
// ============================================================

// ErrLoopClosed - цикл событий уже завершён.
var ErrLoopClosed = errors.New("layout: event loop closed")

const (
	DefaultSaveDebounce = 5 * time.Second
	defaultSaveAttempts = 3
	defaultRetryDelay   = 500 * time.Millisecond
	eventQueueSize      = 256
	noticeQueueSize     = 16
	sentHistory         = 8
	positionEpsilon     = 1e-9
)

// Notice - сообщение для пользователя (временная плашка в UI).
type Notice struct {
	Code    apperr.Code
	Message string
	Err     error
}

// SaveStatus - ход сохранения позиций. At и Err заполнены по завершении.
type SaveStatus struct {
	Saving bool
	At     time.Time
	Err    error
}

type LoopConfig struct {
	Engine       Options
	SaveDebounce time.Duration
	SaveAttempts int
	RetryDelay   time.Duration
	Persister    Persister
	Assets       AssetLoader
	// OnSaveStatus вызывается с горутины сохранения, не с цикла.
	OnSaveStatus func(SaveStatus)
	Logger       *log.Logger
}

type saveRequest struct {
	floorplanID string
	positions   []Position
	edits       uint64
}

// Loop - единственный владелец Engine. Все события (указатель, push,
// изменения размеров) исполняются строго по порядку поступления на
// одной горутине; сохранение идёт отдельно и не блокирует цикл.
type Loop struct {
	cfg      LoopConfig
	engine   *Engine
	events   chan func(*Engine)
	saves    chan saveRequest
	notices  chan Notice
	debounce *Debouncer
	log      *log.Logger
	done     chan struct{}

	// поля ниже трогает только горутина цикла
	ctx     context.Context
	planSeq uint64
	sent    []saveRequest
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = DefaultSaveDebounce
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = defaultSaveAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	l := &Loop{
		cfg:     cfg,
		events:  make(chan func(*Engine), eventQueueSize),
		saves:   make(chan saveRequest, 1),
		notices: make(chan Notice, noticeQueueSize),
		log:     logger.WithPrefix("layout"),
		done:    make(chan struct{}),
	}
	l.debounce = NewDebouncer(cfg.SaveDebounce, l.flushLater)

	opts := cfg.Engine
	opts.OnSave = l.debounce.Trigger
	l.engine = NewEngine(opts)
	return l
}

// Run обрабатывает события до отмены ctx.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.debounce.Stop()

	g, gctx := errgroup.WithContext(ctx)
	l.ctx = gctx

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case fn := <-l.events:
				fn(l.engine)
			}
		}
	})
	g.Go(func() error {
		l.saveWorker(gctx)
		return nil
	})
	return g.Wait()
}

// Do ставит событие в очередь. Не ждёт исполнения.
func (l *Loop) Do(fn func(*Engine)) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.events <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Call исполняет fn на цикле и ждёт завершения.
func (l *Loop) Call(ctx context.Context, fn func(*Engine)) error {
	finished := make(chan struct{})
	if err := l.Do(func(e *Engine) {
		defer close(finished)
		fn(e)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

// Notices - поток сообщений для пользователя. Переполненный канал
// теряет новые сообщения.
func (l *Loop) Notices() <-chan Notice { return l.notices }

// Handle применяет push транспорта к движку.
func (l *Loop) Handle(p Push) error {
	switch p.Kind {
	case PushState:
		return l.Do(func(e *Engine) {
			e.ApplyState(p.EntityID, p.State)
		})
	case PushPositions:
		return l.Do(func(e *Engine) {
			if p.FloorplanID != "" && e.FloorplanID() != "" && p.FloorplanID != e.FloorplanID() {
				l.log.Debug("positions for another plan", "plan", p.FloorplanID)
				return
			}
			if p.Full {
				if l.ownEcho(e, p) {
					l.log.Debug("own save echoed after newer edits", "plan", e.FloorplanID(), "count", len(p.Positions))
					return
				}
				e.SyncPositions(p.Positions)
			} else {
				e.ApplyPositions(p.Positions)
			}
		})
	case PushPlan:
		return l.Do(func(e *Engine) {
			l.replacePlan(e, p)
		})
	}
	return apperr.New(apperr.CodeInvalidInput, "unknown push kind %d", p.Kind)
}

// replacePlan сбрасывает вьюпорт и запускает загрузку ассета.
// Результат устаревшей загрузки отбрасывается.
func (l *Loop) replacePlan(e *Engine, p Push) {
	l.planSeq++
	seq := l.planSeq
	e.ReplacePlan(p.FloorplanID)

	if !p.Natural.Degenerate() {
		e.PlanLoaded(p.Natural)
		return
	}
	if l.cfg.Assets == nil || p.PlanURL == "" {
		l.notify(apperr.CodeAssetUnavailable, "no plan loaded", nil)
		return
	}

	ctx := l.ctx
	go func() {
		size, err := l.cfg.Assets.LoadAsset(ctx, p.PlanURL)
		_ = l.Do(func(e *Engine) {
			if seq != l.planSeq {
				return
			}
			if err != nil {
				l.log.Warn("plan asset failed", "url", p.PlanURL, "err", err)
				e.PlanFailed()
				l.notify(apperr.CodeAssetUnavailable, "plan image unavailable, upload it again", err)
				return
			}
			e.PlanLoaded(size)
		})
	}()
}

// flushLater срабатывает из таймера дебаунса и переносит снимок
// позиций на цикл событий.
func (l *Loop) flushLater() {
	_ = l.Do(l.flush)
}

func (l *Loop) flush(e *Engine) {
	req := saveRequest{floorplanID: e.FloorplanID(), positions: e.Positions(), edits: e.Edits()}
	if req.floorplanID == "" {
		l.log.Warn("save skipped, no floorplan selected", "objects", len(req.positions))
		return
	}
	l.sent = append(l.sent, req)
	if len(l.sent) > sentHistory {
		l.sent = l.sent[len(l.sent)-sentHistory:]
	}
	select {
	case l.saves <- req:
	default:
		// воркер ещё занят: в очереди остаётся только последний снимок
		select {
		case <-l.saves:
		default:
		}
		l.saves <- req
	}
}

// ownEcho - полный push повторяет один из наших отправленных снимков,
// а после него уже были локальные правки. Такой push откатил бы их;
// более свежий снимок и так уйдёт следующим сохранением.
func (l *Loop) ownEcho(e *Engine, p Push) bool {
	for i := len(l.sent) - 1; i >= 0; i-- {
		req := l.sent[i]
		if req.floorplanID != e.FloorplanID() || !samePositions(req.positions, p.Positions) {
			continue
		}
		return e.Edits() > req.edits
	}
	return false
}

func samePositions(a, b []Position) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]Point, len(a))
	for _, p := range a {
		byID[p.EntityID] = Point{X: p.X, Y: p.Y}
	}
	for _, p := range b {
		pt, ok := byID[p.EntityID]
		if !ok || math.Abs(pt.X-p.X) > positionEpsilon || math.Abs(pt.Y-p.Y) > positionEpsilon {
			return false
		}
	}
	return true
}

func (l *Loop) saveWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.saves:
			l.save(ctx, req)
		}
	}
}

func (l *Loop) save(ctx context.Context, req saveRequest) {
	if l.cfg.Persister == nil {
		return
	}
	l.saveStatus(SaveStatus{Saving: true})
	start := time.Now()
	err := apperr.Retry(ctx, l.cfg.SaveAttempts, l.cfg.RetryDelay, func() error {
		return l.cfg.Persister.PersistPositions(ctx, req.floorplanID, req.positions)
	})
	if ctx.Err() != nil {
		return
	}
	l.saveStatus(SaveStatus{At: time.Now(), Err: err})
	if err != nil {
		l.log.Error("save positions", "plan", req.floorplanID, "err", err)
		l.notify(apperr.CodePersistence, "could not save the layout", err)
		return
	}
	l.log.Debug("positions saved", "plan", req.floorplanID, "count", len(req.positions), "took", time.Since(start))
}

func (l *Loop) saveStatus(st SaveStatus) {
	if l.cfg.OnSaveStatus != nil {
		l.cfg.OnSaveStatus(st)
	}
}

func (l *Loop) notify(code apperr.Code, msg string, err error) {
	select {
	case l.notices <- Notice{Code: code, Message: msg, Err: err}:
	default:
	}
}
