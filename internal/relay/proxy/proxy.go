package proxy

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Hub REST Proxy
// ============================================================

// hopHeaders не копируются из ответа хаба.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Content-Length":    true,
}

// HubProxy пробрасывает запросы /api/hub/* в REST API хаба, подставляя
// токен ретранслятора. Клиенты токен хаба не видят.
type HubProxy struct {
	baseURL string
	token   string
	client  *http.Client
	log     *log.Logger
}

func NewHubProxy(baseURL, token string, client *http.Client, logger *log.Logger) *HubProxy {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HubProxy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
		log:     logger.WithPrefix("proxy"),
	}
}

// Handler - обработчик для маршрута с wildcard-параметром ("*").
func (p *HubProxy) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		target := p.baseURL + "/" + strings.TrimPrefix(c.Params("*"), "/")
		if q := c.Request().URI().QueryString(); len(q) > 0 {
			target += "?" + string(q)
		}
		return p.Forward(c, target)
	}
}

// Forward проксирует любой метод с учетом multipart/raw.
func (p *HubProxy) Forward(c fiber.Ctx, targetURL string) error {
	contentType := c.Get("Content-Type")
	p.log.Debug("forward", "method", c.Method(), "path", c.Path(), "content_type", contentType, "bytes", len(c.Body()), "target", targetURL)

	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return p.sendRaw(c, targetURL, contentType)
	}
	return p.sendMultipart(c, targetURL)
}

func (p *HubProxy) sendRaw(c fiber.Ctx, targetURL, contentType string) error {
	req, err := http.NewRequestWithContext(c.Context(), c.Method(), targetURL, bytes.NewReader(c.Body()))
	if err != nil {
		p.log.Error("build request", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "proxy failed"})
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return p.do(c, req)
}

func (p *HubProxy) sendMultipart(c fiber.Ctx, targetURL string) error {
	form, err := c.MultipartForm()
	if err != nil {
		p.log.Warn("parse multipart", "err", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid multipart data"})
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, files := range form.File {
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				p.log.Warn("open part", "field", key, "err", err)
				continue
			}

			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, key, fileHeader.Filename))
			h.Set("Content-Type", fileHeader.Header.Get("Content-Type"))

			part, err := writer.CreatePart(h)
			if err != nil {
				file.Close()
				p.log.Warn("create part", "field", key, "err", err)
				continue
			}
			_, err = io.Copy(part, file)
			file.Close()
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "proxy failed"})
			}
		}
	}
	for key, values := range form.Value {
		for _, value := range values {
			_ = writer.WriteField(key, value)
		}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), targetURL, bytes.NewReader(body.Bytes()))
	if err != nil {
		p.log.Error("build multipart request", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "proxy failed"})
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return p.do(c, req)
}

func (p *HubProxy) do(c fiber.Ctx, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	if accept := c.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("upstream", "target", req.URL.String(), "err", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "failed to reach hub"})
	}
	defer resp.Body.Close()

	return p.copyResponse(c, resp)
}

func (p *HubProxy) copyResponse(c fiber.Ctx, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Error("read upstream response", "err", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "invalid hub response"})
	}

	for key, values := range resp.Header {
		if len(values) > 0 && !hopHeaders[key] {
			c.Set(key, values[0])
		}
	}

	c.Status(resp.StatusCode)
	return c.Send(data)
}
