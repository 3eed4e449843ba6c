// Package dummydb keeps every table in memory. It backs tests and local runs without PostgreSQL.
package dummydb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/assignment"
	"github.com/trezcool/somesha/core/batch"
	"github.com/trezcool/somesha/core/course"
	"github.com/trezcool/somesha/core/learning"
	"github.com/trezcool/somesha/core/level"
	"github.com/trezcool/somesha/core/member"
	"github.com/trezcool/somesha/core/school"
	"github.com/trezcool/somesha/core/student"
	"github.com/trezcool/somesha/core/trainer"
	"github.com/trezcool/somesha/core/upload"
)

type (
	DB struct {
		sync.RWMutex

		schools      map[string]*school.School
		coordinators map[string]*school.Coordinator
		trainers     map[string]*trainer.Trainer
		students     map[string]*student.Student
		batches      map[string]*batch.Batch
		courses      map[string]*course.Course
		lessons      map[string]*course.Lesson
		quizzes      map[string]*course.Quiz
		levels       map[string]*level.Level
		completions  map[string]*learning.LessonCompletion
		attempts     map[string]*learning.QuizAttempt
		assignments  map[string]*assignment.Assignment
		submissions  map[string]*assignment.Submission
		uploads      map[string]*upload.Upload // {key: upload}

		trainerLevels map[string]set      // {trainerID: levelIDs}
		levelCourses  map[string][]string // {levelID: ordered courseIDs}
		batchTrainers map[string]set      // {batchID: trainerIDs}
		batchStudents map[string]set      // {batchID: studentIDs}
	}

	set map[string]bool

	// Transactor runs units of work directly on the DB; nothing is rolled back.
	Transactor struct{}
)

var _ core.Transactor = (*Transactor)(nil)

func Open() *DB {
	return &DB{
		schools:       make(map[string]*school.School),
		coordinators:  make(map[string]*school.Coordinator),
		trainers:      make(map[string]*trainer.Trainer),
		students:      make(map[string]*student.Student),
		batches:       make(map[string]*batch.Batch),
		courses:       make(map[string]*course.Course),
		lessons:       make(map[string]*course.Lesson),
		quizzes:       make(map[string]*course.Quiz),
		levels:        make(map[string]*level.Level),
		completions:   make(map[string]*learning.LessonCompletion),
		attempts:      make(map[string]*learning.QuizAttempt),
		assignments:   make(map[string]*assignment.Assignment),
		submissions:   make(map[string]*assignment.Submission),
		uploads:       make(map[string]*upload.Upload),
		trainerLevels: make(map[string]set),
		levelCourses:  make(map[string][]string),
		batchTrainers: make(map[string]set),
		batchStudents: make(map[string]set),
	}
}

func (*Transactor) WithinTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

func newSet(ids []string) set {
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s set) keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// matches does a case-insensitive search of `term` in any of `fields`.
func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// lookupMatches applies member.Lookup to a role record.
func lookupMatches(lookup member.Lookup, id, userID, email string) bool {
	switch {
	case lookup.ID != "":
		return lookup.ID == id
	case lookup.UserID != "":
		return lookup.UserID == userID
	case lookup.Email != "":
		return strings.EqualFold(lookup.Email, email)
	}
	return false
}

func isExcluded(id string, excluded []string) bool {
	for _, ex := range excluded {
		if ex == id {
			return true
		}
	}
	return false
}

func missingFrom(ids []string, exists func(id string) bool) []string {
	var out []string
	for _, id := range ids {
		if !exists(id) {
			out = append(out, id)
		}
	}
	return out
}
