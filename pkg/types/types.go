package types

import (
	"time"
)

// Event name constants for the socket protocol. Names are part of the wire
// contract shared with browser clients and must not change.
const (
	EventAuthenticateAdmin         = "authenticate_admin"
	EventAdminAuthenticated        = "admin_authenticated"
	EventAdminAuthenticationFailed = "admin_authentication_failed"
	EventUploadFileToAdmin         = "upload_file_to_admin"
	EventUploadProgress            = "upload_progress"
	EventUploadProgressAck         = "upload_progress_ack"
	EventFileReceived              = "file_received"
	EventFileUploaded              = "file_uploaded"
	EventGetInitialDevices         = "get_initial_devices"
	EventUpdateConnectedDevices    = "update_connected_devices"
	EventTerminateSession          = "terminate_session"
	EventSessionsUpdated           = "sessions_updated"
)

// Connection roles. A connection starts as student or dashboard depending on
// how it identifies itself at upgrade time; admin is only granted through
// token authentication over the socket.
const (
	RoleStudent         = "student"
	RoleAdmin           = "admin"
	RoleDashboard       = "dashboard"
	RoleUnauthenticated = "unauthenticated"
)

// File inventory sources. A record tagged database has upload metadata in the
// truth store; a filesystem record was found only on disk.
const (
	SourceDatabase   = "database"
	SourceFilesystem = "filesystem"
)

// Exam session statuses.
const (
	SessionStatusActive     = "active"
	SessionStatusTerminated = "terminated"
)

// Subdirectory names for the managed file areas.
const (
	DirUploads   = "uploads"
	DirQuestions = "questions"
	DirResults   = "results"
)

// Device describes one connected client as presented in roster snapshots.
type Device struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	Role string `json:"role"`
}

// FileRecord describes one entry in the merged file inventory.
type FileRecord struct {
	Filename     string    `json:"filename"`
	Subdirectory string    `json:"subdirectory"`
	Source       string    `json:"source"`
	UploadedAt   time.Time `json:"uploaded_at,omitempty"`
}

// ExamSession is an active exam administration. Immutable after creation
// except for status, which moves active -> terminated exactly once.
type ExamSession struct {
	ID        string    `json:"id" db:"id"`
	ExamCode  string    `json:"exam_code" db:"exam_code"`
	Subject   string    `json:"subject" db:"subject"`
	Student   string    `json:"student" db:"student"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Admin is a stored administrator credential. PasswordHash is bcrypt and is
// never serialized.
type Admin struct {
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AuthenticatePayload carries the admin token over the socket.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthResultPayload is the reply to an authentication attempt. Exactly one of
// Message or Error is set.
type AuthResultPayload struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UploadFilePayload carries a student result upload. Filedata is a base64
// payload, optionally prefixed with a data-URI header.
type UploadFilePayload struct {
	Filename string `json:"filename"`
	Filedata string `json:"filedata"`
}

// ProgressPayload reports transfer progress for a named file, 0-100.
type ProgressPayload struct {
	Filename string `json:"filename"`
	Progress int    `json:"progress"`
}

// ReceiptPayload is the terminal outcome of a transfer. Error empty means the
// file was accepted. Timestamp disambiguates re-deliveries of the same name.
type ReceiptPayload struct {
	Filename  string `json:"filename,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// FileUploadedPayload announces a file placed through the REST surface.
type FileUploadedPayload struct {
	Filename     string `json:"filename"`
	Subdirectory string `json:"subdirectory,omitempty"`
}

// DeviceListPayload is a full roster snapshot. Receivers replace their local
// roster wholesale; the list is never delta-encoded.
type DeviceListPayload struct {
	Devices []Device `json:"devices"`
}

// TerminateSessionPayload asks the server to end one exam session.
type TerminateSessionPayload struct {
	SessionID string `json:"session_id"`
}
