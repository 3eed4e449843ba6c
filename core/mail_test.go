package core

import (
	"fmt"
	"net/mail"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) record(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]interface{}{msg}, args...)...))
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{}) {}
func (l *recordingLogger) Warn(string, ...interface{}) {}
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.record(msg, args...) }
func (l *recordingLogger) Fatal(msg string, args ...interface{}) { l.record(msg, args...) }

func TestParseEmailTemplates(t *testing.T) {
	logger := new(recordingLogger)
	ParseEmailTemplates(&Config{AppName: "Somesha", FrontendBaseURL: "https://somesha.test"}, logger)
	require.Empty(t, logger.errors)

	for _, name := range []string{"student_welcome", "submission_graded"} {
		assert.True(t, hasTemplate(name), name)
	}

	msg := &EmailMessage{
		To:           []mail.Address{{Name: "Ann", Address: "ann@greenhill.test"}},
		Subject:      "Welcome to Green Hill",
		TemplateName: "student_welcome",
		TemplateData: struct {
			Name       string
			SchoolName string
			Email      string
			Invited    bool
		}{"Ann", "Green Hill", "ann@greenhill.test", true},
	}
	require.NoError(t, msg.Render())
	assert.Contains(t, msg.TextContent, "Hello Ann,")
	assert.Contains(t, msg.TextContent, "The Somesha team")
	assert.Contains(t, msg.HTMLContent, "Green Hill")
	assert.True(t, msg.HasContent())
}

func TestEmailMessage_Render(t *testing.T) {
	ParseEmailTemplates(&Config{AppName: "Somesha"}, new(recordingLogger))

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "nope"}
		err := msg.Render()
		assert.Equal(t, ErrTemplateNotFound, errors.Cause(err))
		assert.False(t, msg.HasContent())
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render())
		assert.Equal(t, "hello", msg.TextContent)
		assert.Empty(t, msg.HTMLContent)
	})
}
