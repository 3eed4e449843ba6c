package progress

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Scope restricts the students a Summary covers. Empty fields do not filter.
type Scope struct {
	SchoolID  string
	BatchID   string
	StudentID string
	TrainerID string // students of the trainer's batches
}

type Query struct {
	BatchID   string `query:"batchId"`
	StudentID string `query:"studentId"`
}

// Raw rows the summary is computed from.
type (
	Enrollment struct {
		BatchID      string      `db:"batch_id"`
		BatchName    string      `db:"batch_name"`
		LevelID      null.String `db:"level_id"`
		StudentID    string      `db:"student_id"`
		StudentName  string      `db:"student_name"`
		StudentEmail string      `db:"student_email"`
	}

	LevelCourse struct {
		LevelID  string `db:"level_id"`
		CourseID string `db:"course_id"`
		Title    string `db:"title"`
		Position int    `db:"position"`
		Lessons  int    `db:"lessons"`
		Quizzes  int    `db:"quizzes"`
	}

	Completion struct {
		StudentID   string    `db:"student_id"`
		CourseID    string    `db:"course_id"`
		CompletedAt time.Time `db:"completed_at"`
	}

	Attempt struct {
		StudentID   string    `db:"student_id"`
		QuizID      string    `db:"quiz_id"`
		CourseID    string    `db:"course_id"`
		Score       int       `db:"score"`
		MaxScore    int       `db:"max_score"`
		Passed      bool      `db:"passed"`
		AttemptedAt time.Time `db:"attempted_at"`
	}

	AssignmentRef struct {
		ID        string      `db:"id"`
		BatchID   string      `db:"batch_id"`
		CourseID  null.String `db:"course_id"`
		MaxPoints int         `db:"max_points"`
	}

	SubmissionRef struct {
		AssignmentID string    `db:"assignment_id"`
		StudentID    string    `db:"student_id"`
		SubmittedAt  time.Time `db:"submitted_at"`
		Points       null.Int  `db:"points"`
	}
)

type (
	Summary struct {
		GeneratedAt time.Time         `json:"generatedAt"`
		WeekStart   time.Time         `json:"weekStart"`
		Totals      Totals            `json:"totals"`
		Batches     []BatchSummary    `json:"batches"`
		Students    []StudentProgress `json:"students"`
	}

	Totals struct {
		Students                 int          `json:"students"`
		Batches                  int          `json:"batches"`
		Courses                  int          `json:"courses"`
		LessonsCompleted         int          `json:"lessonsCompleted"`
		LessonsCompletedThisWeek int          `json:"lessonsCompletedThisWeek"`
		QuizzesPassed            int          `json:"quizzesPassed"`
		AssignmentsSubmitted     int          `json:"assignmentsSubmitted"`
		AverageCompletion        float64      `json:"averageCompletion"`
		AverageQuizScore         null.Float64 `json:"averageQuizScore"`
		AverageGrade             null.Float64 `json:"averageGrade"`
	}

	BatchSummary struct {
		ID                string       `json:"id"`
		Name              string       `json:"name"`
		Students          int          `json:"students"`
		AverageCompletion float64      `json:"averageCompletion"`
		AverageQuizScore  null.Float64 `json:"averageQuizScore"`
		AverageGrade      null.Float64 `json:"averageGrade"`
	}

	StudentProgress struct {
		ID                       string           `json:"id"`
		Name                     string           `json:"name"`
		Email                    string           `json:"email"`
		BatchIDs                 []string         `json:"batchIds"`
		LessonsCompleted         int              `json:"lessonsCompleted"`
		LessonsTotal             int              `json:"lessonsTotal"`
		CompletionPercent        float64          `json:"completionPercent"`
		QuizzesPassed            int              `json:"quizzesPassed"`
		QuizzesTotal             int              `json:"quizzesTotal"`
		AverageQuizScore         null.Float64     `json:"averageQuizScore"`
		AssignmentsSubmitted     int              `json:"assignmentsSubmitted"`
		AssignmentsTotal         int              `json:"assignmentsTotal"`
		AverageGrade             null.Float64     `json:"averageGrade"`
		LessonsCompletedThisWeek int              `json:"lessonsCompletedThisWeek"`
		LastActivity             null.Time        `json:"lastActivity"`
		Courses                  []CourseProgress `json:"courses"`
	}

	CourseProgress struct {
		CourseID             string       `json:"courseId"`
		Title                string       `json:"title"`
		LessonsCompleted     int          `json:"lessonsCompleted"`
		LessonsTotal         int          `json:"lessonsTotal"`
		CompletionPercent    float64      `json:"completionPercent"`
		QuizzesPassed        int          `json:"quizzesPassed"`
		QuizzesTotal         int          `json:"quizzesTotal"`
		BestQuizScore        null.Float64 `json:"bestQuizScore"`
		AssignmentsSubmitted int          `json:"assignmentsSubmitted"`
		AssignmentsTotal     int          `json:"assignmentsTotal"`
		AverageGrade         null.Float64 `json:"averageGrade"`
	}
)
