package dummydb

import (
	"context"

	"github.com/trezcool/somesha/core/upload"
)

type uploadRepository struct {
	db *DB
}

var _ upload.Repository = (*uploadRepository)(nil) // interface compliance check

func NewUploadRepository(db *DB) *uploadRepository {
	return &uploadRepository{db: db}
}

func (repo *uploadRepository) CreateUpload(_ context.Context, u upload.Upload) (upload.Upload, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.uploads[u.ObjectKey] = &u
	return u, nil
}

func (repo *uploadRepository) GetUpload(_ context.Context, key string) (upload.Upload, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if u, ok := repo.db.uploads[key]; ok {
		return *u, nil
	}
	return upload.Upload{}, upload.ErrNotFound
}

func (repo *uploadRepository) DeleteUpload(_ context.Context, key string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.uploads[key]; !ok {
		return upload.ErrNotFound
	}
	delete(repo.db.uploads, key)
	return nil
}
