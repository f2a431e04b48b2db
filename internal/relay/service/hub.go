package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fasthttp/websocket"

	"ha-floorplan/internal/common/apperr"
)

// ============================================================
// Hub websocket client
// ============================================================

// ErrAuthInvalid - хаб отверг токен доступа. Повторять бессмысленно.
var ErrAuthInvalid = errors.New("hub: invalid access token")

const hubHandshakeTimeout = 10 * time.Second

// HubConfig - параметры подключения к websocket API хаба.
type HubConfig struct {
	URL       string
	Token     string
	VerifySSL bool
	Reconnect time.Duration
	Logger    *log.Logger
}

// hubFrame - входящий кадр. Заполняются только поля своего type.
type hubFrame struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *hubError       `json:"error"`
	Event   *HubEvent       `json:"event"`
	Message string          `json:"message"`
	Version string          `json:"ha_version"`
}

type hubError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HubEvent - событие подписки.
type HubEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	TimeFired string          `json:"time_fired"`
}

type hubResult struct {
	result json.RawMessage
	err    error
}

// HubClient держит одно соединение с хабом: аутентификация, запросы
// с нарастающим id, подписки на события и переподключение.
type HubClient struct {
	cfg    HubConfig
	dialer *websocket.Dialer
	log    *log.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	version   string
	nextID    int
	pending   map[int]chan hubResult
	handlers  map[string][]func(HubEvent)
	onConnect []func(context.Context)
	ready     chan struct{}
}

func NewHubClient(cfg HubConfig) *HubClient {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 5 * time.Second
	}
	return &HubClient{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: hubHandshakeTimeout,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // самоподписанные сертификаты хаба в локальной сети
		},
		log:      logger.WithPrefix("hub"),
		pending:  make(map[int]chan hubResult),
		handlers: make(map[string][]func(HubEvent)),
		ready:    make(chan struct{}),
	}
}

// Connected сообщает, есть ли сейчас аутентифицированное соединение.
func (h *HubClient) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Version - версия хаба из auth_ok последнего подключения.
func (h *HubClient) Version() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// WaitReady ждёт первого успешного подключения.
func (h *HubClient) WaitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConnect регистрирует fn, вызываемую после каждого подключения
// (в том числе повторного) в отдельной горутине.
func (h *HubClient) OnConnect(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, fn)
}

// Run держит соединение до отмены ctx, переподключаясь через
// cfg.Reconnect. Отказ в аутентификации завершает Run с ошибкой.
func (h *HubClient) Run(ctx context.Context) error {
	for {
		conn, err := h.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrAuthInvalid) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			h.log.Warn("connect failed", "err", err, "retry", h.cfg.Reconnect)
		} else {
			h.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			h.log.Warn("connection lost", "retry", h.cfg.Reconnect)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.cfg.Reconnect):
		}
	}
}

// connect устанавливает соединение и проходит аутентификацию:
// auth_required -> auth -> auth_ok | auth_invalid.
func (h *HubClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := h.dialer.DialContext(ctx, h.cfg.URL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeHubUnavailable, err, "dial %s", h.cfg.URL)
	}

	_ = conn.SetReadDeadline(time.Now().Add(hubHandshakeTimeout))
	var frame hubFrame
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth_required: %w", err)
	}
	if frame.Type != "auth_required" {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", frame.Type)
	}

	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": h.cfg.Token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}
	frame = hubFrame{}
	if err := conn.ReadJSON(&frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read auth result: %w", err)
	}
	switch frame.Type {
	case "auth_ok":
	case "auth_invalid":
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthInvalid, frame.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected auth frame %q", frame.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	h.log.Info("authenticated", "version", frame.Version)
	h.mu.Lock()
	h.version = frame.Version
	h.mu.Unlock()
	return conn, nil
}

// serve публикует соединение, восстанавливает подписки и читает кадры
// до разрыва.
func (h *HubClient) serve(ctx context.Context, conn *websocket.Conn) {
	h.mu.Lock()
	h.conn = conn
	h.nextID = 0
	hooks := append([]func(context.Context){}, h.onConnect...)
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	h.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		h.drop(conn, h.readLoop(conn))
	}()

	h.resubscribe(ctx)
	for _, fn := range hooks {
		go fn(ctx)
	}
	<-closed
}

func (h *HubClient) readLoop(conn *websocket.Conn) error {
	for {
		var frame hubFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Type {
		case "result":
			h.resolve(frame)
		case "event":
			if frame.Event != nil {
				h.dispatch(*frame.Event)
			}
		case "pong":
			h.resolve(hubFrame{ID: frame.ID, Success: true})
		}
	}
}

func (h *HubClient) resolve(frame hubFrame) {
	h.mu.Lock()
	ch, ok := h.pending[frame.ID]
	delete(h.pending, frame.ID)
	h.mu.Unlock()
	if !ok {
		return
	}
	if frame.Success {
		ch <- hubResult{result: frame.Result}
		return
	}
	msg := "request failed"
	if frame.Error != nil {
		msg = frame.Error.Message
	}
	ch <- hubResult{err: apperr.New(apperr.CodeHubUnavailable, "%s", msg)}
}

func (h *HubClient) dispatch(ev HubEvent) {
	h.mu.Lock()
	fns := append([]func(HubEvent){}, h.handlers[ev.EventType]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// drop снимает соединение и отменяет все ожидающие запросы.
func (h *HubClient) drop(conn *websocket.Conn, cause error) {
	conn.Close()
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	pending := h.pending
	h.pending = make(map[int]chan hubResult)
	h.mu.Unlock()

	for _, ch := range pending {
		ch <- hubResult{err: apperr.Wrap(apperr.CodeHubUnavailable, cause, "connection closed")}
	}
}

// Call отправляет запрос, присваивая ему очередной id, и ждёт кадр
// result с тем же id.
func (h *HubClient) Call(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	h.mu.Lock()
	conn := h.conn
	if conn == nil {
		h.mu.Unlock()
		return nil, apperr.New(apperr.CodeHubUnavailable, "hub not connected")
	}
	h.nextID++
	id := h.nextID
	ch := make(chan hubResult, 1)
	h.pending[id] = ch
	h.mu.Unlock()

	frame := maps.Clone(msg)
	frame["id"] = id

	h.writeMu.Lock()
	err := conn.WriteJSON(frame)
	h.writeMu.Unlock()
	if err != nil {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, apperr.Wrap(apperr.CodeHubUnavailable, err, "send %v", msg["type"])
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Subscribe регистрирует обработчик события и, если соединение есть,
// сразу подписывается. После переподключения подписки восстанавливаются.
// fn выполняется на горутине чтения и не должна ждать ответа Call.
func (h *HubClient) Subscribe(ctx context.Context, eventType string, fn func(HubEvent)) error {
	h.mu.Lock()
	_, known := h.handlers[eventType]
	h.handlers[eventType] = append(h.handlers[eventType], fn)
	connected := h.conn != nil
	h.mu.Unlock()

	if known || !connected {
		return nil
	}
	_, err := h.Call(ctx, map[string]any{"type": "subscribe_events", "event_type": eventType})
	return err
}

func (h *HubClient) resubscribe(ctx context.Context) {
	h.mu.Lock()
	types := make([]string, 0, len(h.handlers))
	for t := range h.handlers {
		types = append(types, t)
	}
	h.mu.Unlock()

	for _, t := range types {
		if _, err := h.Call(ctx, map[string]any{"type": "subscribe_events", "event_type": t}); err != nil {
			h.log.Warn("subscribe failed", "event", t, "err", err)
		}
	}
}

// SplitService разбирает "domain.service".
func SplitService(service string) (string, string, error) {
	domain, name, ok := strings.Cut(service, ".")
	if !ok || domain == "" || name == "" || strings.Contains(name, ".") {
		return "", "", apperr.New(apperr.CodeInvalidInput, "service %q must look like domain.service", service)
	}
	return domain, name, nil
}

// CallService вызывает сервис хаба для сущности. entity_id кладётся в
// service_data поверх переданных данных.
func (h *HubClient) CallService(ctx context.Context, entityID, service string, data map[string]any) (json.RawMessage, error) {
	domain, name, err := SplitService(service)
	if err != nil {
		return nil, err
	}
	serviceData := make(map[string]any, len(data)+1)
	maps.Copy(serviceData, data)
	serviceData["entity_id"] = entityID

	return h.Call(ctx, map[string]any{
		"type":         "call_service",
		"domain":       domain,
		"service":      name,
		"service_data": serviceData,
	})
}

// Ping проверяет живость соединения.
func (h *HubClient) Ping(ctx context.Context) error {
	_, err := h.Call(ctx, map[string]any{"type": "ping"})
	return err
}
