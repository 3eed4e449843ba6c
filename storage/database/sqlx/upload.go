package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/upload"
)

const uploadColumns = "id, school_id, user_id, kind, object_key, url, content_type, size, created_at"

type uploadRepository struct {
	repository
}

var _ upload.Repository = (*uploadRepository)(nil) // interface compliance check

func NewUploadRepository(exec core.DBExecutor) *uploadRepository {
	return &uploadRepository{repository{exec: exec}}
}

func (repo uploadRepository) CreateUpload(ctx context.Context, u upload.Upload) (upload.Upload, error) {
	_, err := repo.exec.ExecContext(ctx,
		"INSERT INTO uploads ("+uploadColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		u.ID, u.SchoolID, u.UserID, u.Kind, u.ObjectKey, u.URL, u.ContentType, u.Size, u.CreatedAt)
	if err != nil {
		return upload.Upload{}, errors.Wrap(err, "inserting upload")
	}
	return u, nil
}

func (repo uploadRepository) GetUpload(ctx context.Context, key string) (upload.Upload, error) {
	var u upload.Upload
	if err := repo.exec.GetContext(ctx, &u, "SELECT "+uploadColumns+" FROM uploads WHERE object_key = $1", key); err != nil {
		return upload.Upload{}, trapNoRowsErr(err, upload.ErrNotFound, "getting upload")
	}
	return u, nil
}

func (repo uploadRepository) DeleteUpload(ctx context.Context, key string) error {
	res, err := repo.exec.ExecContext(ctx, "DELETE FROM uploads WHERE object_key = $1", key)
	if err != nil {
		return errors.Wrap(err, "deleting upload")
	}
	return expectRows(res, upload.ErrNotFound)
}
