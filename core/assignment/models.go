package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
)

type Assignment struct {
	ID            string      `db:"id" json:"id"`
	SchoolID      string      `db:"school_id" json:"schoolId"`
	BatchID       string      `db:"batch_id" json:"batchId"`
	CourseID      null.String `db:"course_id" json:"courseId"`
	CreatedBy     null.String `db:"created_by" json:"createdBy"`
	Title         string      `db:"title" json:"title"`
	Instructions  string      `db:"instructions" json:"instructions"`
	AttachmentURL null.String `db:"attachment_url" json:"attachmentUrl"`
	DueAt         null.Time   `db:"due_at" json:"dueAt"`
	MaxPoints     int         `db:"max_points" json:"maxPoints"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

type Submission struct {
	ID            string      `db:"id" json:"id"`
	AssignmentID  string      `db:"assignment_id" json:"assignmentId"`
	StudentID     string      `db:"student_id" json:"studentId"`
	Content       string      `db:"content" json:"content"`
	AttachmentURL null.String `db:"attachment_url" json:"attachmentUrl"`
	SubmittedAt   time.Time   `db:"submitted_at" json:"submittedAt"`
	Points        null.Int    `db:"points" json:"points"`
	Feedback      string      `db:"feedback" json:"feedback"`
	GradedAt      null.Time   `db:"graded_at" json:"gradedAt"`
	GradedBy      null.String `db:"graded_by" json:"gradedBy"`
	IsLate        bool        `db:"-" json:"isLate"`
}

func (s Submission) IsGraded() bool { return s.GradedAt.Valid }

// markLate flags submissions made after the due date of `a`.
func (s *Submission) markLate(a Assignment) {
	s.IsLate = a.DueAt.Valid && s.SubmittedAt.After(a.DueAt.Time)
}

type NewAssignment struct {
	BatchID       string     `json:"batchId" validate:"required,uuid"`
	CourseID      string     `json:"courseId" validate:"omitempty,uuid"`
	Title         string     `json:"title" validate:"required,max=200"`
	Instructions  string     `json:"instructions" validate:"max=20000"`
	AttachmentURL string     `json:"attachmentUrl" validate:"omitempty,url"`
	DueAt         *time.Time `json:"dueAt"`
	MaxPoints     *int       `json:"maxPoints" validate:"omitempty,min=1,max=1000"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.BatchID = core.CleanString(na.BatchID)
	na.CourseID = core.CleanString(na.CourseID)
	na.Title = core.CleanName(na.Title)
	na.Instructions = core.CleanString(na.Instructions)
	na.AttachmentURL = core.CleanString(na.AttachmentURL)
	return validate.Struct(na)
}

type UpdateAssignment struct {
	CourseID      *string    `json:"courseId" validate:"omitempty,uuid"`
	Title         *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Instructions  *string    `json:"instructions" validate:"omitempty,max=20000"`
	AttachmentURL *string    `json:"attachmentUrl" validate:"omitempty,url"`
	DueAt         *time.Time `json:"dueAt"`
	MaxPoints     *int       `json:"maxPoints" validate:"omitempty,min=1,max=1000"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ua.CourseID, ua.Title, ua.Instructions, ua.AttachmentURL} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(ua)
}

func (ua UpdateAssignment) Apply(a *Assignment) {
	if ua.CourseID != nil {
		a.CourseID = null.NewString(*ua.CourseID, *ua.CourseID != "")
	}
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Instructions != nil {
		a.Instructions = *ua.Instructions
	}
	if ua.AttachmentURL != nil {
		a.AttachmentURL = null.NewString(*ua.AttachmentURL, *ua.AttachmentURL != "")
	}
	if ua.DueAt != nil {
		a.DueAt = null.TimeFrom(ua.DueAt.UTC())
	}
	if ua.MaxPoints != nil {
		a.MaxPoints = *ua.MaxPoints
	}
}

type NewSubmission struct {
	Content       string `json:"content" validate:"required_without=AttachmentURL,max=50000"`
	AttachmentURL string `json:"attachmentUrl" validate:"omitempty,url"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = core.CleanString(ns.Content)
	ns.AttachmentURL = core.CleanString(ns.AttachmentURL)
	return validate.Struct(ns)
}

type Grade struct {
	Points   *int   `json:"points" validate:"required,min=0"`
	Feedback string `json:"feedback" validate:"max=5000"`
}

func (g *Grade) Validate(validate *validator.Validate) error {
	g.Feedback = core.CleanString(g.Feedback)
	return validate.Struct(g)
}

type QueryFilter struct {
	BatchID  string `query:"batchId"`
	CourseID string `query:"courseId"`

	// scopes, set from the Actor
	TrainerID string `query:"-"`
	StudentID string `query:"-"`
}
