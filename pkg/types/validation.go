package types

import (
	"regexp"
	"strings"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	examCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// IsValidRole reports whether role is one of the recognized connection roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleAdmin, RoleDashboard, RoleUnauthenticated:
		return true
	default:
		return false
	}
}

// IsValidEvent reports whether name is part of the event vocabulary.
func IsValidEvent(name string) bool {
	switch name {
	case EventAuthenticateAdmin,
		EventAdminAuthenticated,
		EventAdminAuthenticationFailed,
		EventUploadFileToAdmin,
		EventUploadProgress,
		EventUploadProgressAck,
		EventFileReceived,
		EventFileUploaded,
		EventGetInitialDevices,
		EventUpdateConnectedDevices,
		EventTerminateSession,
		EventSessionsUpdated:
		return true
	default:
		return false
	}
}

// IsValidFilename rejects empty names, path traversal and separator
// characters. Filenames cross the wire verbatim and are later joined to
// storage directories, so they must be a single path element.
func IsValidFilename(name string) bool {
	if len(name) < 1 || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if strings.ContainsRune(name, 0) {
		return false
	}
	return true
}

// IsValidSubdirectory reports whether sub names one of the managed file areas.
func IsValidSubdirectory(sub string) bool {
	switch sub {
	case DirUploads, DirQuestions, DirResults:
		return true
	default:
		return false
	}
}

// IsValidProgress bounds a progress report to the 0-100 range.
func IsValidProgress(pct int) bool {
	return pct >= 0 && pct <= 100
}

// IsValidUsername checks admin username format, 1-50 characters,
// alphanumeric plus underscore and hyphen.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidExamCode checks the 6-character uppercase alphanumeric code handed
// to students joining an exam session.
func IsValidExamCode(code string) bool {
	return examCodeRegex.MatchString(code)
}

// Validate ensures the upload payload can be accepted before any disk or
// database work happens.
func (p *UploadFilePayload) Validate() error {
	if !IsValidFilename(p.Filename) {
		return ErrInvalidFilename
	}
	if p.Filedata == "" {
		return ErrEmptyFiledata
	}
	return nil
}

// Validate bounds a progress report.
func (p *ProgressPayload) Validate() error {
	if !IsValidFilename(p.Filename) {
		return ErrInvalidFilename
	}
	if !IsValidProgress(p.Progress) {
		return ErrInvalidProgress
	}
	return nil
}

// Validate ensures the session is well-formed before persistence.
func (s *ExamSession) Validate() error {
	if s.ID == "" {
		return ErrInvalidSessionID
	}
	if len(s.Subject) < 1 || len(s.Subject) > 200 {
		return ErrInvalidSubject
	}
	if !IsValidExamCode(s.ExamCode) {
		return ErrInvalidExamCode
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusTerminated {
		return ErrInvalidStatus
	}
	return nil
}
