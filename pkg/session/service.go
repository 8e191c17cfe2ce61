// Package session owns the registry of live cooking sessions. A session is
// created when a transport connects; its engine is created later, when a
// recipe actually starts. Each session binds at most one engine, one
// assistant inbox, and one UI output channel; sessions share nothing but
// the recipe source.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/souschef-ai/souschef/pkg/assistant"
	"github.com/souschef-ai/souschef/pkg/engine"
	"github.com/souschef-ai/souschef/pkg/events"
	"github.com/souschef-ai/souschef/pkg/models"
	"github.com/souschef-ai/souschef/pkg/recipes"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoRecipe is returned when an engine operation runs before
	// StartRecipe, or when StartRecipe has no recipe id to resolve.
	ErrNoRecipe = errors.New("no recipe in progress")

	// ErrNoOutput is returned when a UI send happens before an output
	// channel is attached.
	ErrNoOutput = errors.New("no output channel attached")
)

// Session is one live transport connection and, once a recipe starts, its
// engine.
type Session struct {
	ID        string
	Inbox     *assistant.Inbox
	CreatedAt time.Time

	output outputHolder

	mu       sync.Mutex
	recipeID string // default recipe for StartRecipe
	payload  []byte // inline recipe document, takes priority over recipeID
	eng      *engine.Engine
	handler  *events.Handler
}

// Summary is the admin-facing view of a session.
type Summary struct {
	ID        string    `json:"id"`
	RecipeID  string    `json:"recipe_id"`
	Running   bool      `json:"running"`
	CreatedAt time.Time `json:"created_at"`
}

// outputHolder is the swappable UI output slot. The event handler is wired
// to it once; reconnects just swap the inner channel.
type outputHolder struct {
	mu  sync.Mutex
	out events.OutputChannel
}

func (h *outputHolder) Send(ctx context.Context, ev events.UIEvent) error {
	h.mu.Lock()
	out := h.out
	h.mu.Unlock()
	if out == nil {
		return ErrNoOutput
	}
	return out.Send(ctx, ev)
}

func (h *outputHolder) set(out events.OutputChannel) {
	h.mu.Lock()
	h.out = out
	h.mu.Unlock()
}

// AttachOutput binds (or replaces) the session's UI output channel.
// Passing nil detaches it.
func (s *Session) AttachOutput(out events.OutputChannel) {
	s.output.set(out)
}

// SendUI pushes one UI event to the attached output channel.
func (s *Session) SendUI(ctx context.Context, ev events.UIEvent) error {
	return s.output.Send(ctx, ev)
}

// SetRecipeID records the default recipe for StartRecipe calls that omit
// an explicit id.
func (s *Session) SetRecipeID(recipeID string) {
	s.mu.Lock()
	s.recipeID = recipeID
	s.mu.Unlock()
}

// RecipeID returns the session's recipe id: the running engine's recipe if
// one exists, the configured default otherwise.
func (s *Session) RecipeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng != nil {
		return s.eng.Recipe().ID
	}
	return s.recipeID
}

// SetRecipePayload stores an inline recipe document supplied by the
// transport. It takes priority over any configured recipe id.
func (s *Session) SetRecipePayload(doc []byte) {
	s.mu.Lock()
	s.payload = append([]byte(nil), doc...)
	s.mu.Unlock()
}

// Engine returns the session's engine, or ErrNoRecipe before StartRecipe.
func (s *Session) Engine() (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil, ErrNoRecipe
	}
	return s.eng, nil
}

// Summary returns the admin view.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{ID: s.ID, RecipeID: s.recipeID, CreatedAt: s.CreatedAt}
	if s.eng != nil {
		sum.RecipeID = s.eng.Recipe().ID
		sum.Running = s.eng.Running()
	}
	return sum
}

// stopEngine detaches and stops the current engine, if any.
func (s *Session) stopEngine() {
	s.mu.Lock()
	eng := s.eng
	s.eng = nil
	s.handler = nil
	s.mu.Unlock()
	if eng != nil {
		eng.Stop()
	}
}

// close tears down the session's engine, inbox, and output binding.
func (s *Session) close() {
	s.stopEngine()
	s.Inbox.Close()
	s.output.set(nil)
}

// Service is the in-memory session registry.
type Service struct {
	source recipes.Source

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a registry over the given recipe source.
func NewService(source recipes.Source) *Service {
	return &Service{
		source:   source,
		sessions: make(map[string]*Session),
	}
}

// Create registers a session. An empty sessionID gets a generated UUID.
// Creating under an existing id replaces the old session; its engine is
// stopped first.
func (s *Service) Create(sessionID string) *Session {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	sess := &Session{
		ID:        sessionID,
		Inbox:     assistant.NewInbox(),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	prev := s.sessions[sessionID]
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	if prev != nil {
		slog.Warn("Replacing existing session", "session_id", sessionID)
		prev.close()
	}

	slog.Info("Session created", "session_id", sessionID)
	return sess
}

// Get retrieves a session by id.
func (s *Service) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// Engine returns the session's engine, failing with ErrSessionNotFound or
// ErrNoRecipe.
func (s *Service) Engine(sessionID string) (*engine.Engine, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Engine()
}

// StartRecipe resolves a recipe and starts a fresh engine for the session.
// Resolution order: inline payload, explicit recipeID argument, the
// session's configured default. A previous engine for the session is
// stopped before the new one goes live.
func (s *Service) StartRecipe(ctx context.Context, sessionID, recipeID string) (*engine.Engine, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}

	recipe, err := s.resolveRecipe(ctx, sess, recipeID)
	if err != nil {
		return nil, err
	}

	eng := engine.New(sessionID, recipe)
	handler := events.NewHandler(sessionID, &sess.output, sess.Inbox, eng.State)
	eng.SetSink(handler.Handle)

	sess.mu.Lock()
	prev := sess.eng
	sess.eng = eng
	sess.handler = handler
	sess.recipeID = recipe.ID
	sess.mu.Unlock()
	if prev != nil {
		slog.Warn("Replacing running engine", "session_id", sessionID,
			"old_recipe_id", prev.Recipe().ID, "recipe_id", recipe.ID)
		prev.Stop()
	}

	if err := eng.Start(); err != nil {
		return nil, err
	}
	slog.Info("Recipe started", "session_id", sessionID, "recipe_id", recipe.ID)
	return eng, nil
}

func (s *Service) resolveRecipe(ctx context.Context, sess *Session, recipeID string) (*models.Recipe, error) {
	sess.mu.Lock()
	payload := sess.payload
	if recipeID == "" {
		recipeID = sess.recipeID
	}
	sess.mu.Unlock()

	if len(payload) > 0 {
		r, err := models.ParseDocument(payload)
		if err != nil {
			return nil, fmt.Errorf("inline recipe payload: %w", err)
		}
		return r, nil
	}
	if recipeID == "" {
		return nil, ErrNoRecipe
	}
	return s.source.Load(ctx, recipeID)
}

// StopRecipe stops the session's engine but keeps the session alive.
// Returns ErrNoRecipe if nothing is running.
func (s *Service) StopRecipe(sessionID string) error {
	sess, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	if _, err := sess.Engine(); err != nil {
		return err
	}
	sess.stopEngine()
	slog.Info("Recipe stopped", "session_id", sessionID)
	return nil
}

// List returns summaries of all live sessions.
func (s *Service) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	return out
}

// Cleanup tears down and removes a session. Idempotent: cleaning up an
// unknown id is a no-op.
func (s *Service) Cleanup(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.close()
	slog.Info("Session cleaned up", "session_id", sessionID)
}

// StopAll tears down every session. Used on server shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
	if len(all) > 0 {
		slog.Info("All sessions stopped", "count", len(all))
	}
}

// Source exposes the recipe source for catalog queries.
func (s *Service) Source() recipes.Source {
	return s.source
}

// SendControl pushes a control event to a session's UI channel. Fails when
// the session is unknown or no output channel is attached.
func (s *Service) SendControl(ctx context.Context, sessionID, action string, extra map[string]any) error {
	sess, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.SendUI(ctx, events.Control(action, extra))
}
