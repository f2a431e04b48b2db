package proxy

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func newProxyApp(t *testing.T, upstream http.HandlerFunc) *fiber.App {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	app := fiber.New()
	app.All("/api/hub/*", NewHubProxy(srv.URL+"/api", "hub-token", nil, nil).Handler())
	return app
}

func TestHubProxyForwardsWithToken(t *testing.T) {
	app := newProxyApp(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hub-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/states/light.kitchen" || r.URL.RawQuery != "minimal=1" {
			t.Errorf("upstream got %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Hub", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"state":"on"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/hub/states/light.kitchen?minimal=1", nil)
	req.Header.Set("Authorization", "Bearer client-token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != `{"state":"on"}` {
		t.Errorf("status %d body %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Hub") != "yes" {
		t.Error("upstream header not copied")
	}
}

func TestHubProxyPassesStatusAndBody(t *testing.T) {
	app := newProxyApp(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || string(data) != `{"entity_id":"light.kitchen"}` {
			t.Errorf("upstream got %s %s", r.Method, data)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad"}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/hub/services/light/turn_on", strings.NewReader(`{"entity_id":"light.kitchen"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHubProxyMultipart(t *testing.T) {
	app := newProxyApp(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("name") != "ground" {
			t.Errorf("name = %q", r.FormValue("name"))
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if fh.Filename != "plan.svg" || string(data) != "<svg/>" {
			t.Errorf("file %s = %s", fh.Filename, data)
		}
		w.WriteHeader(http.StatusCreated)
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "plan.svg")
	_, _ = part.Write([]byte("<svg/>"))
	_ = mw.WriteField("name", "ground")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/hub/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHubProxyUnreachable(t *testing.T) {
	app := fiber.New()
	app.All("/api/hub/*", NewHubProxy("http://127.0.0.1:1/api", "t", nil, nil).Handler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/hub/states", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
