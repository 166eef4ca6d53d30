package api

import "errors"

// Upload rejections.
var (
	ErrNoFile           = errors.New("no file uploaded")
	ErrEmptyFile        = errors.New("uploaded file is empty")
	ErrFileTooLarge     = errors.New("uploaded file exceeds size limit")
	ErrUnsupportedMedia = errors.New("only image and video files are allowed")
)
