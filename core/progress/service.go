package progress

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jinzhu/now"
	"github.com/kat-co/vala"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

var weekConfig = &now.Config{WeekStartDay: time.Monday}

type (
	Repository interface {
		// QueryEnrollments lists the (batch, student) pairs of the Scope, ordered by student name.
		QueryEnrollments(ctx context.Context, scope Scope) ([]Enrollment, error)
		// QueryLevelCourses lists the courses of the levels with their lesson and quiz counts, ordered by position.
		QueryLevelCourses(ctx context.Context, levelIDs []string) ([]LevelCourse, error)
		QueryCompletions(ctx context.Context, studentIDs []string) ([]Completion, error)
		QueryAttempts(ctx context.Context, studentIDs []string) ([]Attempt, error)
		QueryAssignments(ctx context.Context, batchIDs []string) ([]AssignmentRef, error)
		QuerySubmissions(ctx context.Context, studentIDs []string) ([]SubmissionRef, error)
	}

	Service struct {
		repo  Repository
		clock func() time.Time
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Service{repo: repo, clock: time.Now}
}

// ScopeFor restricts `q` to what the Actor may see: coordinators see their school,
// trainers the students of their batches and students themselves only.
func ScopeFor(actor member.Actor, q Query) (Scope, error) {
	scope := Scope{SchoolID: actor.SchoolID, BatchID: q.BatchID, StudentID: q.StudentID}
	switch {
	case actor.IsSchoolAdmin():
	case actor.IsTrainer() && actor.TrainerID != "":
		scope.TrainerID = actor.TrainerID
	case actor.IsStudent() && actor.StudentID != "":
		if q.StudentID != "" && q.StudentID != actor.StudentID {
			return Scope{}, core.ErrPermissionDenied
		}
		scope.StudentID = actor.StudentID
	default:
		return Scope{}, core.ErrPermissionDenied
	}
	return scope, nil
}

type (
	studentAcc struct {
		progress    *StudentProgress
		courses     map[string]*CourseProgress
		bestPerQuiz map[string]float64
		grades      []float64
		courseGrade map[string][]float64
		assignments map[string]bool // assignment ids of the student's batches
	}

	batchAcc struct {
		summary  *BatchSummary
		students []string
	}
)

// Summary aggregates the learning progress of the students of the Scope.
func (svc *Service) Summary(ctx context.Context, scope Scope) (Summary, error) {
	current := svc.clock().UTC()
	weekStart := weekConfig.With(current).BeginningOfWeek()
	sum := Summary{GeneratedAt: current, WeekStart: weekStart, Batches: []BatchSummary{}, Students: []StudentProgress{}}

	enrollments, err := svc.repo.QueryEnrollments(ctx, scope)
	if err != nil {
		return sum, err
	}
	if len(enrollments) == 0 {
		return sum, nil
	}

	// students & batches
	students := make(map[string]*studentAcc)
	var studentOrder []string
	batches := make(map[string]*batchAcc)
	var batchOrder, levelIDs []string
	batchLevel := make(map[string]string)
	seenLevels := make(map[string]bool)
	for _, e := range enrollments {
		st, ok := students[e.StudentID]
		if !ok {
			st = &studentAcc{
				progress:    &StudentProgress{ID: e.StudentID, Name: e.StudentName, Email: e.StudentEmail, BatchIDs: []string{}, Courses: []CourseProgress{}},
				courses:     make(map[string]*CourseProgress),
				bestPerQuiz: make(map[string]float64),
				courseGrade: make(map[string][]float64),
				assignments: make(map[string]bool),
			}
			students[e.StudentID] = st
			studentOrder = append(studentOrder, e.StudentID)
		}
		st.progress.BatchIDs = append(st.progress.BatchIDs, e.BatchID)

		b, ok := batches[e.BatchID]
		if !ok {
			b = &batchAcc{summary: &BatchSummary{ID: e.BatchID, Name: e.BatchName}}
			batches[e.BatchID] = b
			batchOrder = append(batchOrder, e.BatchID)
		}
		b.students = append(b.students, e.StudentID)

		if e.LevelID.Valid {
			batchLevel[e.BatchID] = e.LevelID.String
			if !seenLevels[e.LevelID.String] {
				seenLevels[e.LevelID.String] = true
				levelIDs = append(levelIDs, e.LevelID.String)
			}
		}
	}

	// courses of each student, through the levels of their batches
	levelCourses := make(map[string][]LevelCourse)
	if len(levelIDs) > 0 {
		lcs, err := svc.repo.QueryLevelCourses(ctx, levelIDs)
		if err != nil {
			return sum, err
		}
		for _, lc := range lcs {
			levelCourses[lc.LevelID] = append(levelCourses[lc.LevelID], lc)
		}
	}
	allCourses := make(map[string]bool)
	for _, id := range studentOrder {
		st := students[id]
		for _, batchID := range st.progress.BatchIDs {
			for _, lc := range levelCourses[batchLevel[batchID]] {
				if _, ok := st.courses[lc.CourseID]; ok {
					continue
				}
				st.progress.Courses = append(st.progress.Courses, CourseProgress{
					CourseID:     lc.CourseID,
					Title:        lc.Title,
					LessonsTotal: lc.Lessons,
					QuizzesTotal: lc.Quizzes,
				})
				allCourses[lc.CourseID] = true
			}
			for i := range st.progress.Courses {
				st.courses[st.progress.Courses[i].CourseID] = &st.progress.Courses[i]
			}
		}
	}

	// lesson completions
	completions, err := svc.repo.QueryCompletions(ctx, studentOrder)
	if err != nil {
		return sum, err
	}
	for _, c := range completions {
		st, ok := students[c.StudentID]
		if !ok {
			continue
		}
		touch(st.progress, c.CompletedAt)
		if !c.CompletedAt.Before(weekStart) {
			st.progress.LessonsCompletedThisWeek++
		}
		if cp, ok := st.courses[c.CourseID]; ok {
			cp.LessonsCompleted++
		}
	}

	// quiz attempts: a quiz counts once, with its best score
	attempts, err := svc.repo.QueryAttempts(ctx, studentOrder)
	if err != nil {
		return sum, err
	}
	passed := make(map[string]bool) // {studentID/quizID}
	for _, a := range attempts {
		st, ok := students[a.StudentID]
		if !ok {
			continue
		}
		touch(st.progress, a.AttemptedAt)
		pct := percent(a.Score, a.MaxScore)
		if best, ok := st.bestPerQuiz[a.QuizID]; !ok || pct > best {
			st.bestPerQuiz[a.QuizID] = pct
		}
		cp, ok := st.courses[a.CourseID]
		if !ok {
			continue
		}
		if !cp.BestQuizScore.Valid || pct > cp.BestQuizScore.Float64 {
			cp.BestQuizScore = null.Float64From(round(pct))
		}
		if key := a.StudentID + "/" + a.QuizID; a.Passed && !passed[key] {
			passed[key] = true
			cp.QuizzesPassed++
		}
	}

	// assignments & submissions
	assignments, err := svc.repo.QueryAssignments(ctx, batchOrder)
	if err != nil {
		return sum, err
	}
	assignmentByID := make(map[string]AssignmentRef, len(assignments))
	batchAssignments := make(map[string][]AssignmentRef)
	for _, a := range assignments {
		assignmentByID[a.ID] = a
		batchAssignments[a.BatchID] = append(batchAssignments[a.BatchID], a)
	}
	for _, id := range studentOrder {
		st := students[id]
		for _, batchID := range st.progress.BatchIDs {
			for _, a := range batchAssignments[batchID] {
				if st.assignments[a.ID] {
					continue
				}
				st.assignments[a.ID] = true
				st.progress.AssignmentsTotal++
				if cp, ok := st.courses[a.CourseID.String]; ok && a.CourseID.Valid {
					cp.AssignmentsTotal++
				}
			}
		}
	}

	submissions, err := svc.repo.QuerySubmissions(ctx, studentOrder)
	if err != nil {
		return sum, err
	}
	for _, s := range submissions {
		st, ok := students[s.StudentID]
		if !ok || !st.assignments[s.AssignmentID] {
			continue
		}
		a := assignmentByID[s.AssignmentID]
		touch(st.progress, s.SubmittedAt)
		st.progress.AssignmentsSubmitted++
		cp, hasCourse := st.courses[a.CourseID.String]
		hasCourse = hasCourse && a.CourseID.Valid
		if hasCourse {
			cp.AssignmentsSubmitted++
		}
		if s.Points.Valid {
			grade := percent(s.Points.Int, a.MaxPoints)
			st.grades = append(st.grades, grade)
			if hasCourse {
				st.courseGrade[a.CourseID.String] = append(st.courseGrade[a.CourseID.String], grade)
			}
		}
	}

	// per student
	var allCompletion, allQuiz, allGrades []float64
	for _, id := range studentOrder {
		st := students[id]
		p := st.progress
		for i := range p.Courses {
			cp := &p.Courses[i]
			if cp.LessonsCompleted > cp.LessonsTotal {
				cp.LessonsCompleted = cp.LessonsTotal
			}
			cp.CompletionPercent = round(percent(cp.LessonsCompleted, cp.LessonsTotal))
			cp.AverageGrade = average(st.courseGrade[cp.CourseID])

			p.LessonsCompleted += cp.LessonsCompleted
			p.LessonsTotal += cp.LessonsTotal
			p.QuizzesPassed += cp.QuizzesPassed
			p.QuizzesTotal += cp.QuizzesTotal
		}
		p.CompletionPercent = round(percent(p.LessonsCompleted, p.LessonsTotal))
		p.AverageGrade = average(st.grades)
		bests := make([]float64, 0, len(st.bestPerQuiz))
		for _, b := range st.bestPerQuiz {
			bests = append(bests, b)
		}
		sort.Float64s(bests)
		p.AverageQuizScore = average(bests)

		sum.Totals.LessonsCompleted += p.LessonsCompleted
		sum.Totals.LessonsCompletedThisWeek += p.LessonsCompletedThisWeek
		sum.Totals.QuizzesPassed += p.QuizzesPassed
		sum.Totals.AssignmentsSubmitted += p.AssignmentsSubmitted
		allCompletion = append(allCompletion, p.CompletionPercent)
		if p.AverageQuizScore.Valid {
			allQuiz = append(allQuiz, p.AverageQuizScore.Float64)
		}
		if p.AverageGrade.Valid {
			allGrades = append(allGrades, p.AverageGrade.Float64)
		}
		sum.Students = append(sum.Students, *p)
	}

	// per batch
	for _, id := range batchOrder {
		b := batches[id]
		var completion, quiz, grades []float64
		for _, studentID := range b.students {
			p := students[studentID].progress
			completion = append(completion, p.CompletionPercent)
			if p.AverageQuizScore.Valid {
				quiz = append(quiz, p.AverageQuizScore.Float64)
			}
			if p.AverageGrade.Valid {
				grades = append(grades, p.AverageGrade.Float64)
			}
		}
		b.summary.Students = len(b.students)
		b.summary.AverageCompletion = average(completion).Float64
		b.summary.AverageQuizScore = average(quiz)
		b.summary.AverageGrade = average(grades)
		sum.Batches = append(sum.Batches, *b.summary)
	}

	sum.Totals.Students = len(studentOrder)
	sum.Totals.Batches = len(batchOrder)
	sum.Totals.Courses = len(allCourses)
	sum.Totals.AverageCompletion = average(allCompletion).Float64
	sum.Totals.AverageQuizScore = average(allQuiz)
	sum.Totals.AverageGrade = average(allGrades)
	return sum, nil
}

func touch(p *StudentProgress, t time.Time) {
	if !p.LastActivity.Valid || t.After(p.LastActivity.Time) {
		p.LastActivity = null.TimeFrom(t)
	}
}

func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// average is null for no values.
func average(values []float64) null.Float64 {
	if len(values) == 0 {
		return null.Float64{}
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return null.Float64From(round(total / float64(len(values))))
}

// round keeps one decimal.
func round(f float64) float64 {
	return math.Round(f*10) / 10
}
