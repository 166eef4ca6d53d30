package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *apiHarness) upload(t *testing.T, target, field, filename string, content []byte) map[string]any {
	t.Helper()
	body, ct := multipartBody(t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUpload_Image(t *testing.T) {
	h := newAPIHarness(t, 60, 1<<20)
	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)

	body := h.upload(t, "/api/admin/chat/upload", "file", "photo.bin", content)
	url, ok := body["file_url"].(string)
	require.True(t, ok, body)
	assert.True(t, strings.HasPrefix(url, "/uploads/chat/"), url)
	assert.Equal(t, ".png", path.Ext(url))

	stored, err := os.ReadFile(filepath.Join(h.uploads, path.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	w := httptest.NewRecorder()
	h.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestUpload_CustomerRoute(t *testing.T) {
	h := newAPIHarness(t, 60, 1<<20)
	body := h.upload(t, "/api/customer/chat/upload", "file", "me.png", pngHeader)
	assert.NotEmpty(t, body["file_url"])
}

func TestUpload_Rejections(t *testing.T) {
	h := newAPIHarness(t, 60, 1024)

	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
		message  string
	}{
		{"no file part", "", "", nil, "No file uploaded"},
		{"wrong field", "avatar", "a.png", pngHeader, "No file uploaded"},
		{"empty", "file", "a.png", nil, "Empty file detected"},
		{"text", "file", "notes.png", []byte("just some text pretending to be an image"), "Only image and video files are allowed"},
		{"too large", "file", "big.png", append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 4096)...), "File too large. Maximum size is 0MB."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := h.upload(t, "/api/admin/chat/upload", tt.field, tt.filename, tt.content)
			assertSoftError(t, body, tt.message)
		})
	}

	entries, err := os.ReadDir(h.uploads)
	if err == nil {
		assert.Empty(t, entries, "rejected uploads must not leave files behind")
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	h := newAPIHarness(t, 60, 1<<20)
	body := h.do(t, http.MethodPost, "/api/admin/chat/upload", map[string]any{"file": "x"})
	assertSoftError(t, body, "No file uploaded")
}
