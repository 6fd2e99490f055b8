package relay

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hsinyu-ko/coedit/internal/errors"
	"github.com/hsinyu-ko/coedit/internal/logging"
)

// Server exposes the relay over HTTP: document and version endpoints
// plus the per-document websocket.
type Server struct {
	store *Store
	hub   *Hub

	upgrader websocket.Upgrader
}

// NewServer creates a Server over store and hub.
func NewServer(store *Store, hub *Hub) *Server {
	return &Server{
		store: store,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}", s.handleGetDocument).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/versions", s.handleListVersions).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/versions", s.handleSaveVersion).Methods(http.MethodPost)
	r.HandleFunc("/ws/documents/{id}", s.handleWebsocket).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := s.store.Document(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	versions, err := s.store.Versions(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []Version{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// saveVersionRequest is the snapshot payload from the sync engine.
type saveVersionRequest struct {
	Content string `json:"content"`
	Summary string `json:"summary"`
}

// saveVersionResponse acknowledges a snapshot save.
type saveVersionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSaveVersion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req saveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, saveVersionResponse{Error: "invalid request body"})
		return
	}

	if _, err := s.store.Document(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.SaveVersion(r.Context(), id, req.Content, req.Summary); err != nil {
		logging.Error("save version", err, map[string]interface{}{"document_id": id})
		writeJSON(w, http.StatusInternalServerError, saveVersionResponse{Error: "version save failed"})
		return
	}
	writeJSON(w, http.StatusOK, saveVersionResponse{Success: true})
}

// handleWebsocket upgrades the connection and hands it to the hub. The
// caller identifies itself with user_id and username query parameters.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "user_id query parameter required", http.StatusBadRequest)
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "anonymous"
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.hub.Join(ws, id, userID, username)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps store error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrDocumentNotFound, errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrInvalid:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
