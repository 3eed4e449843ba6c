package course

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

type Course struct {
	ID           string      `db:"id" json:"id"`
	Title        string      `db:"title" json:"title"`
	Slug         string      `db:"slug" json:"slug"`
	Description  string      `db:"description" json:"description"`
	ThumbnailURL null.String `db:"thumbnail_url" json:"thumbnailUrl"`
	IsPublished  bool        `db:"is_published" json:"isPublished"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

type Lesson struct {
	ID              string      `db:"id" json:"id"`
	CourseID        string      `db:"course_id" json:"courseId"`
	Position        int         `db:"position" json:"position"`
	Title           string      `db:"title" json:"title"`
	Content         string      `db:"content" json:"content"`
	VideoURL        null.String `db:"video_url" json:"videoUrl"`
	AttachmentURL   null.String `db:"attachment_url" json:"attachmentUrl"`
	DurationMinutes int         `db:"duration_minutes" json:"durationMinutes"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

type Quiz struct {
	ID          string      `db:"id" json:"id"`
	CourseID    string      `db:"course_id" json:"courseId"`
	LessonID    null.String `db:"lesson_id" json:"lessonId"`
	Title       string      `db:"title" json:"title"`
	PassPercent int         `db:"pass_percent" json:"passPercent"`
	Questions   Questions   `db:"questions" json:"questions"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// Question is a multiple choice question; Answer is the index of the right option.
type Question struct {
	Prompt  string   `json:"prompt" validate:"required,max=1000"`
	Options []string `json:"options" validate:"min=2,max=10,dive,required"`
	Answer  *int     `json:"answer,omitempty" validate:"required,min=0"`
	Points  int      `json:"points" validate:"min=0,max=100"`
}

// Weight is the score a right answer earns.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Questions is stored as a JSON document.
type Questions []Question

func (qs Questions) Value() (driver.Value, error) {
	if qs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(qs)
}

func (qs *Questions) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*qs = Questions{}
		return nil
	default:
		return errors.Errorf("questions: cannot scan %T", src)
	}
	return json.Unmarshal(data, qs)
}

// MaxScore is the score of a perfect attempt.
func (qs Questions) MaxScore() int {
	total := 0
	for _, q := range qs {
		total += q.Weight()
	}
	return total
}

// Public returns a copy of the Quiz without its answer key.
func (q Quiz) Public() Quiz {
	questions := make(Questions, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Answer = nil
		qq.Options = append([]string{}, qq.Options...)
		questions[i] = qq
	}
	q.Questions = questions
	return q
}

type NewCourse struct {
	Title        string `json:"title" validate:"required,max=200"`
	Slug         string `json:"slug" validate:"omitempty,slug,max=80"`
	Description  string `json:"description" validate:"max=5000"`
	ThumbnailURL string `json:"thumbnailUrl" validate:"omitempty,url"`
	IsPublished  bool   `json:"isPublished"`
}

func (nc *NewCourse) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nc.Title = core.CleanName(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Title)
	}
	nc.Description = core.CleanString(nc.Description)
	nc.ThumbnailURL = core.CleanString(nc.ThumbnailURL)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, nc.Slug)
}

type UpdateCourse struct {
	Title        *string `json:"title" validate:"omitempty,notblank,max=200"`
	Slug         *string `json:"slug" validate:"omitempty,slug,max=80"`
	Description  *string `json:"description" validate:"omitempty,max=5000"`
	ThumbnailURL *string `json:"thumbnailUrl" validate:"omitempty,url"`
	IsPublished  *bool   `json:"isPublished"`
}

func (uc *UpdateCourse) Validate(ctx context.Context, orig Course, validate *validator.Validate, svc *Service) error {
	for _, s := range []*string{uc.Title, uc.Description, uc.ThumbnailURL} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if uc.Slug != nil {
		*uc.Slug = core.CleanString(*uc.Slug, true /* lower */)
	}

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Slug != nil && *uc.Slug != "" && *uc.Slug != orig.Slug {
		return svc.CheckSlugUniqueness(ctx, *uc.Slug, orig)
	}
	return nil
}

func (uc UpdateCourse) Apply(c *Course) {
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Slug != nil && *uc.Slug != "" {
		c.Slug = *uc.Slug
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.ThumbnailURL != nil {
		c.ThumbnailURL = null.NewString(*uc.ThumbnailURL, *uc.ThumbnailURL != "")
	}
	if uc.IsPublished != nil {
		c.IsPublished = *uc.IsPublished
	}
}

type QueryFilter struct {
	Search    string `query:"search"`
	LevelID   string `query:"levelId"`
	Published *bool  `query:"published"`
	Mine      bool   `query:"mine"`

	// scopes, set from the Actor when Mine is requested
	StudentID string `query:"-"`
	TrainerID string `query:"-"`
}

// LessonInput is the payload creating or replacing a Lesson. Position 0 appends the lesson.
type LessonInput struct {
	Title           string `json:"title" validate:"required,max=200"`
	Position        int    `json:"position" validate:"min=0"`
	Content         string `json:"content" validate:"max=100000"`
	VideoURL        string `json:"videoUrl" validate:"omitempty,url"`
	AttachmentURL   string `json:"attachmentUrl" validate:"omitempty,url"`
	DurationMinutes int    `json:"durationMinutes" validate:"min=0,max=1440"`
}

func (li *LessonInput) Validate(validate *validator.Validate) error {
	li.Title = core.CleanName(li.Title)
	li.VideoURL = core.CleanString(li.VideoURL)
	li.AttachmentURL = core.CleanString(li.AttachmentURL)
	return validate.Struct(li)
}

// QuizInput is the payload creating or replacing a Quiz.
type QuizInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	LessonID    string     `json:"lessonId" validate:"omitempty,uuid"`
	PassPercent *int       `json:"passPercent" validate:"omitempty,min=0,max=100"`
	Questions   []Question `json:"questions" validate:"required,min=1,dive"`
}

func (qi *QuizInput) Validate(ctx context.Context, courseID string, validate *validator.Validate, svc *Service) error {
	qi.Title = core.CleanName(qi.Title)
	qi.LessonID = core.CleanString(qi.LessonID)
	for i := range qi.Questions {
		qi.Questions[i].Prompt = core.CleanString(qi.Questions[i].Prompt)
		for j, opt := range qi.Questions[i].Options {
			qi.Questions[i].Options[j] = core.CleanString(opt)
		}
	}

	if err := validate.Struct(qi); err != nil {
		return err
	}
	for i, q := range qi.Questions {
		if *q.Answer >= len(q.Options) {
			return core.NewFieldError("questions", errors.Errorf("question %d: answer must be the index of one of its options", i+1))
		}
	}
	if qi.LessonID != "" {
		l, err := svc.GetLesson(ctx, qi.LessonID)
		if core.IsNotFound(err) || (err == nil && l.CourseID != courseID) {
			return core.NewFieldError("lessonId", ErrLessonNotFound)
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (qi QuizInput) passPercent() int {
	if qi.PassPercent == nil {
		return DefaultPassPercent
	}
	return *qi.PassPercent
}
