// internal/api/client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestUploadImage_Success(t *testing.T) {
	var receivedSecret, receivedFilename string
	var receivedContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/images" {
			t.Errorf("expected path /api/v1/images, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		receivedSecret = r.FormValue("secret")
		receivedFilename = r.FormValue("filename")

		file, _, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("failed to get file: %v", err)
		}
		defer file.Close()
		receivedContent = make([]byte, 1024)
		n, _ := file.Read(receivedContent)
		receivedContent = receivedContent[:n]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://img.example/abc.jpg"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "wall.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	c := New(server.URL, "mysecret")
	url, err := c.UploadImage(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if url != "https://img.example/abc.jpg" {
		t.Errorf("unexpected url %s", url)
	}
	if receivedSecret != "mysecret" {
		t.Errorf("expected secret=mysecret, got %s", receivedSecret)
	}
	if receivedFilename != "wall.jpg" {
		t.Errorf("expected filename=wall.jpg, got %s", receivedFilename)
	}
	if string(receivedContent) != "jpeg bytes" {
		t.Errorf("expected file content 'jpeg bytes', got '%s'", string(receivedContent))
	}
}

func TestUploadImage_FileNotFound(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	if _, err := c.UploadImage(context.Background(), "/nonexistent/wall.jpg"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUploadImage_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "wall.jpg")
	_ = os.WriteFile(path, []byte("content"), 0o644)

	c := New(server.URL, "wrong-secret")
	if _, err := c.UploadImage(context.Background(), path); err == nil {
		t.Error("expected error for 403 response")
	}
}

func TestUploadImage_MissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "wall.jpg")
	_ = os.WriteFile(path, []byte("content"), 0o644)

	c := New(server.URL, "")
	if _, err := c.UploadImage(context.Background(), path); err == nil {
		t.Error("expected error when response has no url")
	}
}
