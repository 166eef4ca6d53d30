package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// UploadOptions places accepted files on disk and under a public URL.
type UploadOptions struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	FileURL string `json:"file_url"`
}

// sniffLen is how much of a file mimetype needs for detection.
const sniffLen = 3072

// Uploader stores one image or video per request under a random name.
type Uploader struct {
	opts UploadOptions
}

func NewUploader(opts UploadOptions) *Uploader {
	return &Uploader{opts: opts}
}

// Save streams the "file" part of a multipart request to disk and returns
// its public URL. The content type is sniffed from the bytes, not taken
// from the client.
func (u *Uploader) Save(w http.ResponseWriter, r *http.Request) (string, error) {
	// Room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, u.opts.MaxBytes+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		return "", ErrNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", ErrNoFile
		}
		if err != nil {
			return "", sizeOr(err, ErrNoFile)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()
		return u.store(part)
	}
}

func (u *Uploader) store(part *multipart.Part) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", sizeOr(err, fmt.Errorf("failed to read upload: %w", err))
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") && !strings.HasPrefix(mt.String(), "video/") {
		return "", ErrUnsupportedMedia
	}
	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(part.FileName()))
	}

	if err := os.MkdirAll(u.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	name := uuid.NewString() + ext
	dest := filepath.Join(u.opts.Dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	written, err := copyLimited(f, head, part, u.opts.MaxBytes)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil || written > u.opts.MaxBytes {
		os.Remove(dest)
		if err == nil {
			err = ErrFileTooLarge
		}
		return "", sizeOr(err, err)
	}

	return path.Join(u.opts.URLPrefix, name), nil
}

// copyLimited writes head and then at most one byte past limit from rest.
func copyLimited(dst io.Writer, head []byte, rest io.Reader, limit int64) (int64, error) {
	n, err := dst.Write(head)
	written := int64(n)
	if err != nil {
		return written, err
	}
	m, err := io.Copy(dst, io.LimitReader(rest, limit-written+1))
	return written + m, err
}

// sizeOr reports ErrFileTooLarge when err came from the body limit.
func sizeOr(err, fallback error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrFileTooLarge
	}
	return fallback
}

// uploadMessage maps err to client text. rejected is false for server-side
// failures.
func uploadMessage(err error, maxBytes int64) (msg string, rejected bool) {
	switch {
	case errors.Is(err, ErrNoFile):
		return "No file uploaded", true
	case errors.Is(err, ErrEmptyFile):
		return "Empty file detected", true
	case errors.Is(err, ErrFileTooLarge):
		return fmt.Sprintf("File too large. Maximum size is %dMB.", maxBytes>>20), true
	case errors.Is(err, ErrUnsupportedMedia):
		return "Only image and video files are allowed", true
	}
	return "Failed to upload file", false
}
