// Package api exposes the REST surface: admin login, session management and
// the file areas. Socket upgrades are mounted on the same mux.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"examboard/internal/websocket"
	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

// tokenIssuer mints admin tokens after a successful login.
type tokenIssuer interface {
	IssueToken(username string) (string, error)
}

// notifier pushes change signals to connected socket clients.
type notifier interface {
	BroadcastFileUploaded(filename, subdirectory string)
	BroadcastSessionsUpdated()
}

// healthChecker reports truth store connectivity.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP front of the system. No business logic lives here, only
// request decoding, dispatch and response encoding.
type Server struct {
	sessions interfaces.SessionManager
	files    interfaces.FileStore
	admins   interfaces.AdminStore
	tokens   tokenIssuer
	notify   notifier
	db       healthChecker
	registry *websocket.Registry
	log      zerolog.Logger
	router   *http.ServeMux
}

// NewServer wires the REST routes. wsHandler handles socket upgrades on /ws.
func NewServer(
	sessions interfaces.SessionManager,
	files interfaces.FileStore,
	admins interfaces.AdminStore,
	tokens tokenIssuer,
	notify notifier,
	db healthChecker,
	registry *websocket.Registry,
	wsHandler http.HandlerFunc,
	log zerolog.Logger,
) *Server {
	s := &Server{
		sessions: sessions,
		files:    files,
		admins:   admins,
		tokens:   tokens,
		notify:   notify,
		db:       db,
		registry: registry,
		log:      log.With().Str("component", "api").Logger(),
		router:   http.NewServeMux(),
	}
	s.setupRoutes(wsHandler)
	return s
}

func (s *Server) setupRoutes(wsHandler http.HandlerFunc) {
	wrap := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(h))
	}

	s.router.Handle("/portal_admin", wrap(s.handlePortalAdmin))
	s.router.Handle("/check_password", wrap(s.handleCheckPassword))
	s.router.Handle("/new_admin", wrap(s.handleNewAdmin))
	s.router.Handle("/get_active_sessions", wrap(s.handleActiveSessions))
	s.router.Handle("/create_session", wrap(s.handleCreateSession))
	s.router.Handle("/files", wrap(s.handleFiles))
	// Older pages fetch the inventory under this name.
	s.router.Handle("/list_files", wrap(s.handleFiles))
	s.router.Handle("/upload", s.corsMiddleware(http.HandlerFunc(s.handleUpload)))
	s.router.Handle("/delete", wrap(s.handleDelete))
	s.router.Handle("/read", s.corsMiddleware(http.HandlerFunc(s.handleRead)))
	s.router.Handle("/view_result", s.corsMiddleware(http.HandlerFunc(s.handleViewResult)))
	s.router.Handle("/health", wrap(s.handleHealth))
	if wsHandler != nil {
		s.router.Handle("/ws", http.HandlerFunc(wsHandler))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type createSessionRequest struct {
	Subject string `json:"subject"`
	Student string `json:"student"`
}

type deleteRequest struct {
	Subdirectory string `json:"subdirectory"`
	Filename     string `json:"filename"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handlePortalAdmin verifies credentials and issues the socket token.
func (s *Server) handlePortalAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := s.admins.VerifyPassword(r.Context(), req.Username, req.Password); err != nil {
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.IssueToken(req.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("token issue failed")
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

// handleCheckPassword validates credentials without issuing a token.
func (s *Server) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.admins.VerifyPassword(r.Context(), req.Username, req.Password); err != nil {
		s.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"valid": true})
}

// handleNewAdmin registers an additional administrator.
func (s *Server) handleNewAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := s.admins.CreateAdmin(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrAdminExists):
			s.sendError(w, "Admin already exists", http.StatusConflict)
		case errors.Is(err, types.ErrInvalidUsername):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.Error().Err(err).Msg("admin creation failed")
			s.sendError(w, "Failed to create admin", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "Admin created"})
}

// handleActiveSessions lists sessions still in progress.
func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.sessions.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*types.ExamSession{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"sessions": sessions})
}

// handleCreateSession opens a new exam session and signals connected
// clients to refresh.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Subject == "" {
		s.sendError(w, "Subject is required", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), req.Subject, req.Student)
	if err != nil {
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.notify.BroadcastSessionsUpdated()

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"session": session})
}

// handleFiles returns the merged file inventory.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inventory, err := s.files.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("inventory listing failed")
		s.sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(inventory)
}

// handleUpload accepts a multipart file for one of the managed areas.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 32MB in memory, larger bodies spill to disk.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.sendJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	subdirectory := r.FormValue("subdirectory")
	if subdirectory == "" {
		subdirectory = types.DirQuestions
	}
	if !types.IsValidSubdirectory(subdirectory) {
		s.sendJSONError(w, "Unknown subdirectory", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendJSONError(w, "File field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !types.IsValidFilename(header.Filename) {
		s.sendJSONError(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	contents, err := io.ReadAll(file)
	if err != nil {
		s.sendJSONError(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	if err := s.files.Save(r.Context(), subdirectory, header.Filename, contents); err != nil {
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		s.sendJSONError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}
	s.notify.BroadcastFileUploaded(header.Filename, subdirectory)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(types.FileUploadedPayload{
		Filename:     header.Filename,
		Subdirectory: subdirectory,
	})
}

// handleDelete removes a stored file. Browsers send DELETE; curl scripts in
// the field use POST, so both are accepted.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.files.Delete(r.Context(), req.Subdirectory, req.Filename); err != nil {
		if errors.Is(err, interfaces.ErrFileNotFound) {
			s.sendError(w, "File not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to delete file", http.StatusBadRequest)
		}
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "File deleted"})
}

// handleRead streams one stored file.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	subdirectory := r.URL.Query().Get("subdirectory")
	filename := r.URL.Query().Get("filename")
	s.serveFile(w, r, subdirectory, filename)
}

// handleViewResult streams a file from the results area.
func (s *Server) handleViewResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.serveFile(w, r, types.DirResults, r.URL.Query().Get("filename"))
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, subdirectory, filename string) {
	contents, err := s.files.Read(r.Context(), subdirectory, filename)
	if err != nil {
		if errors.Is(err, interfaces.ErrFileNotFound) {
			s.sendJSONError(w, "File not found", http.StatusNotFound)
		} else {
			s.sendJSONError(w, "Failed to read file", http.StatusBadRequest)
		}
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(contents)
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Database    string    `json:"database"`
	Connections int       `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, dbStatus := "healthy", "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(healthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Count(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendJSONError is for handlers outside the JSON middleware.
func (s *Server) sendJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	s.sendError(w, message, code)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
