package core

import (
	"context"
	"io"
)

type (
	StoredObject struct {
		Key         string `json:"key"`
		URL         string `json:"url"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}

	// FileStorage is any object storage able to keep uploaded files.
	FileStorage interface {
		Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (StoredObject, error)
		Delete(ctx context.Context, key string) error
		URL(key string) string
	}
)
