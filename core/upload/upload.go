package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

// DefaultMaxSize is the upload size limit when none is configured.
const DefaultMaxSize = 10 << 20

const (
	KindImage      = "image"
	KindThumbnail  = "thumbnail"
	KindAttachment = "attachment"
)

var (
	Kinds = []string{KindImage, KindThumbnail, KindAttachment}

	ErrNotFound = core.NewNotFoundError("upload")

	ErrTooLarge         = errors.New("the file is too large")
	ErrEmpty            = errors.New("the file is empty")
	ErrNotAnImage       = errors.New("the file is not an image")
	ErrForbiddenContent = errors.New("this type of file is not allowed")

	// executables and scripts are never stored
	forbiddenTypes = []string{
		"application/x-executable",
		"application/x-elf",
		"application/vnd.microsoft.portable-executable",
		"application/x-msdownload",
		"application/x-mach-binary",
		"application/x-sh",
		"text/x-shellscript",
		"application/x-bat",
	}
)

func init() {
	// mimetype sniffs shell scripts as plain text
	mimetype.Lookup("text/plain").Extend(isShellScript, "text/x-shellscript", ".sh", "application/x-sh")
}

var shells = map[string]bool{"sh": true, "ash": true, "bash": true, "dash": true, "ksh": true, "zsh": true, "csh": true, "tcsh": true, "fish": true}

// isShellScript reports whether `raw` starts with a shebang running a shell, directly or through env.
func isShellScript(raw []byte, _ uint32) bool {
	if !bytes.HasPrefix(raw, []byte("#!")) {
		return false
	}
	line := raw[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return false
	}
	interp := path.Base(fields[0])
	if interp == "env" {
		interp = ""
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = path.Base(f)
				break
			}
		}
	}
	return shells[interp]
}

// Upload is a file stored for a school (or the platform's catalog when SchoolID is null).
type Upload struct {
	ID          string      `db:"id" json:"id"`
	SchoolID    null.String `db:"school_id" json:"schoolId"`
	UserID      string      `db:"user_id" json:"userId"`
	Kind        string      `db:"kind" json:"kind"`
	ObjectKey   string      `db:"object_key" json:"key"`
	URL         string      `db:"url" json:"url"`
	ContentType string      `db:"content_type" json:"contentType"`
	Size        int64       `db:"size" json:"size"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

type NewUpload struct {
	Kind     string `json:"kind" form:"kind" validate:"required,oneof=image thumbnail attachment"`
	Filename string
	Size     int64
	Body     io.ReadSeeker
}

type (
	Repository interface {
		CreateUpload(ctx context.Context, u Upload) (Upload, error)
		GetUpload(ctx context.Context, key string) (Upload, error)
		DeleteUpload(ctx context.Context, key string) error
	}

	Service struct {
		repo    Repository
		store   core.FileStorage
		maxSize int64
	}
)

func NewService(repo Repository, store core.FileStorage, maxSize int64) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(store, "store"),
	).CheckAndPanic()

	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{repo: repo, store: store, maxSize: maxSize}
}

// Store sniffs the content type of the file, checks it against its kind and stores it
// under "<school id|platform>/<kind>/<uuid><ext>".
func (svc *Service) Store(ctx context.Context, actor member.Actor, nu NewUpload) (Upload, error) {
	if nu.Size > svc.maxSize {
		return Upload{}, core.NewFieldError("file", errors.Wrapf(ErrTooLarge, "max %d bytes", svc.maxSize))
	}
	if nu.Size == 0 {
		return Upload{}, core.NewFieldError("file", ErrEmpty)
	}

	mtype, err := mimetype.DetectReader(nu.Body)
	if err != nil {
		return Upload{}, errors.Wrap(err, "detecting content type")
	}
	if _, err := nu.Body.Seek(0, io.SeekStart); err != nil {
		return Upload{}, errors.Wrap(err, "rewinding file")
	}
	if err := checkType(nu.Kind, mtype); err != nil {
		return Upload{}, core.NewFieldError("file", err)
	}

	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(path.Ext(nu.Filename))
	}
	owner := "platform"
	if actor.SchoolID != "" {
		owner = actor.SchoolID
	}
	id := uuid.New().String()
	key := fmt.Sprintf("%s/%s/%s%s", owner, nu.Kind, id, ext)
	contentType := mtype.String()

	obj, err := svc.store.Put(ctx, key, nu.Body, nu.Size, contentType)
	if err != nil {
		return Upload{}, errors.Wrap(err, "storing file")
	}

	u, err := svc.repo.CreateUpload(ctx, Upload{
		ID:          id,
		SchoolID:    null.NewString(actor.SchoolID, actor.SchoolID != ""),
		UserID:      actor.UserID,
		Kind:        nu.Kind,
		ObjectKey:   obj.Key,
		URL:         obj.URL,
		ContentType: contentType,
		Size:        nu.Size,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		_ = svc.store.Delete(ctx, obj.Key)
		return Upload{}, err
	}
	return u, nil
}

func checkType(kind string, mtype *mimetype.MIME) error {
	for m := mtype; m != nil; m = m.Parent() {
		for _, forbidden := range forbiddenTypes {
			if m.Is(forbidden) {
				return ErrForbiddenContent
			}
		}
	}
	if kind == KindImage || kind == KindThumbnail {
		if !strings.HasPrefix(mtype.String(), "image/") {
			return ErrNotAnImage
		}
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, key string) (Upload, error) {
	return svc.repo.GetUpload(ctx, key)
}

// Delete removes the file. Only its owner, the admins of its school and platform admins may delete it.
func (svc *Service) Delete(ctx context.Context, actor member.Actor, key string) error {
	u, err := svc.repo.GetUpload(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case u.UserID == actor.UserID:
	case actor.IsPlatformAdmin():
	case actor.IsSchoolAdmin() && u.SchoolID.Valid && u.SchoolID.String == actor.SchoolID:
	default:
		return core.ErrPermissionDenied
	}

	if err := svc.store.Delete(ctx, u.ObjectKey); err != nil {
		return errors.Wrap(err, "deleting stored file")
	}
	return svc.repo.DeleteUpload(ctx, u.ObjectKey)
}
