package client

import (
	"context"
	"io"
	"net/http"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/common/planimage"
	"ha-floorplan/pkg/layout"
)

// maxAssetSize ограничивает чтение ассета плана.
const maxAssetSize = 32 << 20

// HTTPAssetLoader скачивает ассет плана и определяет его натуральный размер.
type HTTPAssetLoader struct {
	client *http.Client
}

func NewHTTPAssetLoader(client *http.Client) *HTTPAssetLoader {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPAssetLoader{client: client}
}

func (l *HTTPAssetLoader) LoadAsset(ctx context.Context, url string) (layout.Size, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return layout.Size{}, apperr.Wrap(apperr.CodeAssetUnavailable, err, "plan asset %s", url)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return layout.Size{}, apperr.Wrap(apperr.CodeAssetUnavailable, err, "plan asset %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return layout.Size{}, apperr.New(apperr.CodeAssetUnavailable, "plan asset %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return layout.Size{}, apperr.Wrap(apperr.CodeAssetUnavailable, err, "read plan asset %s", url)
	}
	size, _, err := planimage.DecodeSize(data)
	return size, err
}
