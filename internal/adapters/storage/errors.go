package storage

import "errors"

var (
	ErrNotFound   = errors.New("clip not found")
	ErrInvalidKey = errors.New("invalid clip key")
	ErrExists     = errors.New("clip key already exists")
)
