package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Relay client
// ============================================================

const defaultTimeout = 15 * time.Second

// InitialData - ответ GET /api/data.
type InitialData struct {
	Tree      hub.Tree             `json:"tree"`
	States    hub.States           `json:"states"`
	Config    models.Hierarchy     `json:"config"`
	Floorplan *models.FloorplanRef `json:"floorplan"`
}

// Client - HTTP и websocket клиент ретранслятора.
type Client struct {
	base *url.URL
	http *http.Client
	log  *log.Logger
}

// New создаёт клиент для ретранслятора по адресу baseURL
// (например http://localhost:3000). httpClient может быть nil.
func New(baseURL string, httpClient *http.Client, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidInput, err, "invalid relay url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.New(apperr.CodeInvalidInput, "relay url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{base: u, http: httpClient, log: logger.WithPrefix("client")}, nil
}

// BaseURL - адрес ретранслятора без завершающего слэша.
func (c *Client) BaseURL() string { return c.base.String() }

// AssetURL превращает путь ассета (/uploads/x.png) в абсолютный URL.
// Абсолютные URL возвращаются как есть.
func (c *Client) AssetURL(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// HTTPClient - клиент, через который идут запросы (нужен загрузчику ассетов).
func (c *Client) HTTPClient() *http.Client { return c.http }

func (c *Client) InitialData(ctx context.Context) (InitialData, error) {
	var out InitialData
	if err := c.do(ctx, http.MethodGet, "/api/data", nil, &out); err != nil {
		return InitialData{}, err
	}
	return out, nil
}

func (c *Client) Floorplans(ctx context.Context) ([]models.Floorplan, error) {
	var out []models.Floorplan
	if err := c.do(ctx, http.MethodGet, "/api/floorplans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Floorplan(ctx context.Context, id string) (*models.Floorplan, error) {
	var out models.Floorplan
	if err := c.do(ctx, http.MethodGet, "/api/floorplans/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PersistPositions сохраняет набор позиций плана. Сетевые сбои и 5xx
// помечаются как повторяемые, 4xx нет.
func (c *Client) PersistPositions(ctx context.Context, floorplanID string, positions []layout.Position) error {
	body := models.SavePositionsRequest{FloorplanID: floorplanID, Positions: models.FromLayout(positions)}
	path := "/api/floorplans/" + url.PathEscape(floorplanID) + "/positions"
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// SendCommand вызывает сервис хаба для сущности.
func (c *Client) SendCommand(ctx context.Context, entityID, service string, data map[string]any) error {
	body := models.CommandRequest{EntityID: entityID, Service: service, ServiceData: data}
	return c.do(ctx, http.MethodPost, "/api/entities/command", body, nil)
}

// ============================================================
// Transport
// ============================================================

// envelope - общий формат ответов ретранслятора.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Code    apperr.Code     `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "encode %s %s", method, path)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Retryable(apperr.Wrap(apperr.CodeNetwork, err, "%s %s", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Retryable(apperr.Wrap(apperr.CodeNetwork, err, "read %s %s", method, path))
	}
	c.log.Debug("relay request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, env, method, path)
	}
	if decodeErr != nil {
		return apperr.Wrap(apperr.CodeMalformedData, decodeErr, "decode %s %s", method, path)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Wrap(apperr.CodeMalformedData, err, "decode %s %s", method, path)
	}
	return nil
}

// statusError переводит ответ с ошибкой в apperr. Ответы 5xx
// повторяемы.
func statusError(status int, env envelope, method, path string) error {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("%s %s: %s", method, path, http.StatusText(status))
	}
	code := env.Code
	if code == "" {
		switch {
		case status == http.StatusNotFound:
			code = apperr.CodeNotFound
		case status >= 500:
			code = apperr.CodeNetwork
		default:
			code = apperr.CodeInvalidInput
		}
	}
	err := apperr.New(code, "%s", msg)
	if status >= 500 {
		return apperr.Retryable(err)
	}
	return err
}
