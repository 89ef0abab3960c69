package core

import "errors"

var (
	ErrEmptyQuery           = errors.New("query must not be empty")
	ErrUnsupportedFileType  = errors.New("only PDF files are supported")
	ErrUnsupportedMediaType = errors.New("only image analysis is supported")
	ErrFileNotFound         = errors.New("file not found")
)
