// Package worker turns the engine's event stream into persisted state and
// domain events, and exposes the account operations built on top of it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/protocol"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/wa"
	"go.uber.org/zap"
)

// EventBuffer is the capacity of the outbound domain event stream.
const EventBuffer = 1000

// Engine is the subset of *ipc.Bridge the worker drives.
type Engine interface {
	Send(cmd protocol.Command) error
	Lines() <-chan string
	Exits() <-chan error
	Decode(line string) (protocol.Event, bool)
	IsRunning() bool
	Stop() error
}

var _ Engine = (*ipc.Bridge)(nil)

// Worker owns the single consumer of engine output. Events are handled one
// at a time in arrival order.
type Worker struct {
	db     *store.DB
	engine Engine
	logger *zap.Logger

	events   chan Event
	done     chan struct{}
	stopping chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// New creates a worker. Call Start to begin consuming engine output.
func New(db *store.DB, engine Engine, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		db:     db,
		engine: engine,
		logger: logger.Named("worker"),
		events:   make(chan Event, EventBuffer),
		done:     make(chan struct{}),
		stopping: make(chan struct{}),
	}
}

// Events is the outbound domain event stream. It is closed after Stop.
// The pipeline blocks while it is full.
func (w *Worker) Events() <-chan Event { return w.events }

// Start launches the pipeline task. Subsequent calls do nothing.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)
		go w.run(ctx)
	})
}

// Stop shuts the engine down, handles whatever it wrote before exiting and
// then ends the pipeline.
func (w *Worker) Stop() error {
	err := w.engine.Stop()
	if w.cancel != nil {
		w.stopOnce.Do(func() { close(w.stopping) })
		<-w.done
		w.cancel()
	}
	return err
}

// EngineRunning reports whether the engine process is alive.
func (w *Worker) EngineRunning() bool { return w.engine.IsRunning() }

func (w *Worker) emit(ctx context.Context, e Event) error {
	select {
	case w.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) ListAccounts() ([]store.Account, error) {
	return w.db.ListAccounts()
}

// CreateAccount registers an account, or renames it if it exists.
func (w *Worker) CreateAccount(id string, name *string) (*store.Account, error) {
	if err := store.ValidateAccountID(id); err != nil {
		return nil, err
	}
	return w.db.CreateAccount(id, name)
}

// DeleteAccount stops the account's session if the engine is up and removes
// it with everything stored for it.
func (w *Worker) DeleteAccount(id string) error {
	if _, err := w.db.GetAccount(id); err != nil {
		return err
	}
	if err := w.engine.Send(protocol.StopAccount{AccountID: id}); err != nil && !errors.Is(err, ipc.ErrProcessNotRunning) {
		return fmt.Errorf("stop account %s: %w", id, err)
	}
	return w.db.DeleteAccount(id)
}

// StartAccount asks the engine to connect the account. A stored auth state
// is sent first so the session resumes without pairing.
func (w *Worker) StartAccount(id string) error {
	acct, err := w.db.GetAccount(id)
	if err != nil {
		return err
	}
	if acct.AuthState != nil {
		if err := w.engine.Send(protocol.SetAuthState{AccountID: id, AuthState: *acct.AuthState}); err != nil {
			return fmt.Errorf("replay auth state: %w", err)
		}
		w.logger.Info("auth state replayed", zap.String("account_id", id))
	}
	return w.engine.Send(protocol.StartAccount{AccountID: id})
}

func (w *Worker) StopAccount(id string) error {
	return w.engine.Send(protocol.StopAccount{AccountID: id})
}

// RequestQrCode asks the engine to re-emit the pairing code.
func (w *Worker) RequestQrCode(id string) error {
	return w.engine.Send(protocol.GetQrCode{AccountID: id})
}

// Refresh asks the engine to resend the account's contacts and groups.
func (w *Worker) Refresh(id string) error {
	if err := w.engine.Send(protocol.GetContacts{AccountID: id}); err != nil {
		return err
	}
	return w.engine.Send(protocol.GetGroups{AccountID: id})
}

// RequestHistory asks the engine for older messages, optionally of one chat.
func (w *Worker) RequestHistory(id string, chatJID *string, limit int64) error {
	return w.engine.Send(protocol.GetMessages{AccountID: id, ChatJID: chatJID, Limit: limit})
}

// SendMessage queues a text message. The recipient must be a valid JID.
func (w *Worker) SendMessage(accountID, to, content string) error {
	if err := wa.ValidateRecipient(to); err != nil {
		return err
	}
	if _, err := w.db.GetAccount(accountID); err != nil {
		return err
	}
	return w.engine.Send(protocol.SendMessage{AccountID: accountID, To: to, Content: content})
}

func (w *Worker) GetContacts(accountID string) ([]store.Contact, error) {
	return w.db.GetContacts(accountID)
}

func (w *Worker) GetGroups(accountID string) ([]store.Group, error) {
	return w.db.GetGroups(accountID)
}

// GetMessages returns messages newest first, optionally limited to one chat.
func (w *Worker) GetMessages(accountID string, chatJID *string, limit, offset int) ([]store.Message, error) {
	if chatJID != nil {
		jid := wa.Normalize(*chatJID)
		chatJID = &jid
	}
	return w.db.GetMessages(accountID, chatJID, limit, offset)
}

func (w *Worker) GetChats(accountID string) ([]string, error) {
	return w.db.GetChats(accountID)
}

func (w *Worker) GetChatPreviews(accountID string, limit int) ([]store.ChatPreview, error) {
	return w.db.ChatPreviews(accountID, limit)
}

// GetChatName resolves a display name for a chat, or nil if none is known.
func (w *Worker) GetChatName(accountID, chatJID string) (*string, error) {
	return w.db.ChatName(accountID, wa.Normalize(chatJID))
}

func (w *Worker) Counts(accountID string) (*store.Counts, error) {
	return w.db.Counts(accountID)
}
