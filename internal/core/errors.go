package core

import "errors"

var (
	ErrDownload           = errors.New("download failed")
	ErrCorruptDocument    = errors.New("corrupt document")
	ErrInsufficientText   = errors.New("insufficient text")
	ErrEmbedding          = errors.New("embedding failed")
	ErrExternalService    = errors.New("external service error")
	ErrPersistence        = errors.New("persistence failed")
	ErrIO                 = errors.New("io error")
	ErrJobNotFound        = errors.New("job not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")
)
