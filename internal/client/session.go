package client

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Session
// ============================================================

const defaultReconnect = 2 * time.Second

type SessionConfig struct {
	// PlanID - показываемый план; пусто - текущий план ретранслятора.
	PlanID       string
	Container    layout.Size
	Policy       layout.ResizePolicy
	SaveDebounce time.Duration
	// Reconnect - пауза перед повторным подключением websocket.
	Reconnect time.Duration
	// OnSaveStatus получает ход сохранения позиций.
	OnSaveStatus func(layout.SaveStatus)
	Logger       *log.Logger
}

// Session связывает клиент ретранслятора с циклом раскладки:
// начальные данные, push-и websocket и сохранение позиций.
type Session struct {
	client *Client
	loop   *layout.Loop
	cfg    SessionConfig
	log    *log.Logger

	mu     sync.RWMutex
	planID string
	tree   hub.Tree
}

func NewSession(c *Client, cfg SessionConfig) *Session {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = defaultReconnect
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	loop := layout.NewLoop(layout.LoopConfig{
		Engine:       layout.Options{Policy: cfg.Policy},
		SaveDebounce: cfg.SaveDebounce,
		Persister:    c,
		Assets:       NewHTTPAssetLoader(c.HTTPClient()),
		OnSaveStatus: cfg.OnSaveStatus,
		Logger:       logger,
	})
	return &Session{
		client: c,
		loop:   loop,
		cfg:    cfg,
		log:    logger.WithPrefix("session"),
		planID: cfg.PlanID,
	}
}

// Loop - цикл раскладки сессии; через него UI шлёт события указателя.
func (s *Session) Loop() *layout.Loop { return s.loop }

func (s *Session) PlanID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planID
}

// Tree - дерево хаба из начальных данных.
func (s *Session) Tree() hub.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

func (s *Session) setPlan(id string) {
	s.mu.Lock()
	s.planID = id
	s.mu.Unlock()
}

// Run загружает начальные данные и держит сессию до отмены ctx.
func (s *Session) Run(ctx context.Context) error {
	data, err := s.client.InitialData(ctx)
	if err != nil {
		return err
	}

	plan := s.PlanID()
	if plan == "" && data.Floorplan != nil {
		plan = data.Floorplan.ID
	}
	if plan == "" {
		return apperr.New(apperr.CodeNotFound, "relay has no floorplan, upload one first")
	}
	entry, ok := data.Config[plan]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "floorplan %q not found on relay", plan)
	}
	s.mu.Lock()
	s.planID = plan
	s.tree = data.Tree
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop.Run(gctx) })

	_ = s.loop.Do(func(e *layout.Engine) { e.Resize(s.cfg.Container) })
	_ = s.loop.Handle(layout.Push{
		Kind:        layout.PushPlan,
		FloorplanID: plan,
		PlanURL:     s.client.AssetURL(models.AssetPath(entry.Filename)),
		Natural:     layout.Size{Width: entry.NaturalWidth, Height: entry.NaturalHeight},
	})
	_ = s.loop.Handle(layout.Push{
		Kind:        layout.PushPositions,
		FloorplanID: plan,
		Positions:   models.ToLayout(entry.Positions),
		Full:        true,
	})
	for id, st := range data.States {
		_ = s.loop.Handle(layout.Push{Kind: layout.PushState, EntityID: id, State: st})
	}
	s.log.Info("session started", "plan", plan, "objects", len(entry.Positions), "states", len(data.States))

	g.Go(func() error { return s.listen(gctx) })
	return g.Wait()
}

// listen держит websocket, переподключаясь после разрывов.
func (s *Session) listen(ctx context.Context) error {
	for {
		err := s.client.Listen(ctx, func(f Frame) { s.onFrame(ctx, f) })
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("relay connection lost", "err", err, "retry", s.cfg.Reconnect)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Reconnect):
		}
	}
}

func (s *Session) onFrame(ctx context.Context, f Frame) {
	if f.Error != "" {
		s.log.Warn("relay error", "id", f.ID, "error", f.Error, "message", f.Message)
		return
	}
	pushes, err := s.client.Pushes(f, s.PlanID())
	if err != nil {
		s.log.Warn("skip relay frame", "type", f.Type, "err", err)
		return
	}
	for _, p := range pushes {
		_ = s.loop.Handle(p)
		if p.Kind == layout.PushPlan {
			s.switchPlan(ctx, p.FloorplanID)
		}
	}
}

// switchPlan переключает сессию на новый план и подтягивает его
// позиции: update:floorplan их не содержит.
func (s *Session) switchPlan(ctx context.Context, id string) {
	if id == "" {
		return
	}
	s.setPlan(id)
	plan, err := s.client.Floorplan(ctx, id)
	if err != nil {
		s.log.Warn("load positions of new plan", "plan", id, "err", err)
		return
	}
	_ = s.loop.Handle(layout.Push{
		Kind:        layout.PushPositions,
		FloorplanID: id,
		Positions:   models.ToLayout(plan.Positions),
		Full:        true,
	})
}
