package types

import (
	"strings"
	"testing"
)

func TestIsValidFilename(t *testing.T) {
	valid := []string{
		"result.pdf",
		"midterm_2026.docx",
		"a",
		"answer sheet.txt",
	}
	for _, name := range valid {
		if !IsValidFilename(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}

	invalid := []string{
		"",
		".",
		"..",
		"../etc/passwd",
		"results/../secret.txt",
		"dir/file.txt",
		"dir\\file.txt",
		strings.Repeat("x", 256),
		"bad\x00name",
	}
	for _, name := range invalid {
		if IsValidFilename(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestIsValidEvent(t *testing.T) {
	for _, name := range []string{
		EventAuthenticateAdmin,
		EventUploadFileToAdmin,
		EventUploadProgress,
		EventUploadProgressAck,
		EventFileReceived,
		EventFileUploaded,
		EventGetInitialDevices,
		EventUpdateConnectedDevices,
		EventTerminateSession,
		EventSessionsUpdated,
	} {
		if !IsValidEvent(name) {
			t.Errorf("event %q should be recognized", name)
		}
	}
	if IsValidEvent("upload_file") {
		t.Error("unknown event name accepted")
	}
	if IsValidEvent("") {
		t.Error("empty event name accepted")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{RoleStudent, RoleAdmin, RoleDashboard, RoleUnauthenticated} {
		if !IsValidRole(role) {
			t.Errorf("role %q should be valid", role)
		}
	}
	if IsValidRole("instructor") {
		t.Error("unknown role accepted")
	}
}

func TestUploadFilePayloadValidate(t *testing.T) {
	p := &UploadFilePayload{Filename: "exam.pdf", Filedata: "dGVzdA=="}
	if err := p.Validate(); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}

	p = &UploadFilePayload{Filename: "exam.pdf"}
	if err := p.Validate(); err != ErrEmptyFiledata {
		t.Errorf("expected ErrEmptyFiledata, got %v", err)
	}

	p = &UploadFilePayload{Filename: "../exam.pdf", Filedata: "dGVzdA=="}
	if err := p.Validate(); err != ErrInvalidFilename {
		t.Errorf("expected ErrInvalidFilename, got %v", err)
	}
}

func TestProgressPayloadValidate(t *testing.T) {
	cases := []struct {
		pct int
		ok  bool
	}{
		{0, true},
		{50, true},
		{100, true},
		{-1, false},
		{101, false},
	}
	for _, c := range cases {
		p := &ProgressPayload{Filename: "exam.pdf", Progress: c.pct}
		err := p.Validate()
		if c.ok && err != nil {
			t.Errorf("progress %d rejected: %v", c.pct, err)
		}
		if !c.ok && err == nil {
			t.Errorf("progress %d accepted", c.pct)
		}
	}
}

func TestExamSessionValidate(t *testing.T) {
	s := &ExamSession{
		ID:       "sess-1",
		ExamCode: "A1B2C3",
		Subject:  "Calculus II",
		Student:  "jordan",
		Status:   SessionStatusActive,
	}
	if err := s.Validate(); err != nil {
		t.Errorf("valid session rejected: %v", err)
	}

	bad := *s
	bad.ExamCode = "abc123"
	if err := bad.Validate(); err != ErrInvalidExamCode {
		t.Errorf("expected ErrInvalidExamCode, got %v", err)
	}

	bad = *s
	bad.Status = "paused"
	if err := bad.Validate(); err != ErrInvalidStatus {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
