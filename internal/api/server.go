// Package api exposes the intake chat over HTTP and WebSocket, plus the
// intake form webhook.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Lllllllleong/attachmentflow/internal/chat"
	"github.com/Lllllllleong/attachmentflow/internal/models"
)

const webhookReply = "Thank you! Your information has been saved."

// ChatService is the conversation API the handlers drive.
type ChatService interface {
	Connect(ctx context.Context) (string, error)
	Message(ctx context.Context, sessionID, text string) (string, error)
	EndChat(ctx context.Context, sessionID string) (int, error)
}

// IntakeStore saves the parameters collected by a form-filling agent.
type IntakeStore interface {
	SaveIntake(ctx context.Context, params map[string]any) (string, error)
}

// FirestoreIntakeStore adds one document per intake to a collection.
type FirestoreIntakeStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreIntakeStore(client *firestore.Client, collection string) *FirestoreIntakeStore {
	if collection == "" {
		collection = "transcript"
	}
	return &FirestoreIntakeStore{client: client, collection: collection}
}

func (f *FirestoreIntakeStore) SaveIntake(ctx context.Context, params map[string]any) (string, error) {
	ref, _, err := f.client.Collection(f.collection).Add(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to save intake: %w", err)
	}
	return ref.ID, nil
}

type Server struct {
	router   *chi.Mux
	chat     ChatService
	intake   IntakeStore
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer builds the router. intake may be nil, in which case the
// webhook answers 503.
func NewServer(port int, svc ChatService, intake IntakeStore) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		chat:   svc,
		intake: intake,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Post("/{id}/messages", s.postMessage)
		r.Post("/{id}/end", s.endChat)
	})
	router.Get("/ws", s.serveWS)
	router.Post("/webhook/intake", s.webhook)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler is the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.Connect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.CreateSessionResponse{SessionID: id})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	reply, err := s.chat.Message(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Role: chat.RoleAssistant, Content: reply})
}

func (s *Server) endChat(w http.ResponseWriter, r *http.Request) {
	n, err := s.chat.EndChat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EndChatResponse{TranscriptNumber: n})
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if s.intake == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "intake storage is not configured"})
		return
	}
	var req models.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.QueryResult.Parameters == nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "queryResult.parameters is required"})
		return
	}
	id, err := s.intake.SaveIntake(r.Context(), req.QueryResult.Parameters)
	if err != nil {
		slog.Error("Failed to save intake.", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to save intake"})
		return
	}
	slog.Info("Intake saved.", "documentId", id)
	writeJSON(w, http.StatusOK, models.WebhookResponse{FulfillmentText: webhookReply})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed.", "error", err)
	}
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
