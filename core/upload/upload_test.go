package upload

import (
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/stretchr/testify/assert"
)

func Test_checkType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

	tests := []struct {
		name    string
		kind    string
		content []byte
		wantErr error
	}{
		{name: "image", kind: KindImage, content: png},
		{name: "notes as attachment", kind: KindAttachment, content: []byte("just some notes")},
		{name: "notes as image", kind: KindImage, content: []byte("just some notes"), wantErr: ErrNotAnImage},
		{name: "python script", kind: KindAttachment, content: []byte("#!/usr/bin/env python3\nprint('hi')\n")},
		{name: "sh script", kind: KindAttachment, content: []byte("#!/bin/sh\necho hello\n"), wantErr: ErrForbiddenContent},
		{name: "bash through env", kind: KindAttachment, content: []byte("#!/usr/bin/env bash\nrm -rf /tmp/x\n"), wantErr: ErrForbiddenContent},
		{name: "env with flags", kind: KindAttachment, content: []byte("#!/usr/bin/env -S zsh -e\nls\n"), wantErr: ErrForbiddenContent},
		{name: "elf", kind: KindAttachment, content: append([]byte("\x7fELF\x02\x01\x01\x00"), make([]byte, 64)...), wantErr: ErrForbiddenContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, checkType(tt.kind, mimetype.Detect(tt.content)))
		})
	}
}

func Test_isShellScript(t *testing.T) {
	assert.True(t, isShellScript([]byte("#! /bin/bash\n"), 0))
	assert.False(t, isShellScript([]byte("#!\n"), 0))
	assert.False(t, isShellScript([]byte("echo hello\n"), 0))
	assert.False(t, isShellScript([]byte("#!/usr/bin/perl\n"), 0))
}
