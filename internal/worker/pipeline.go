package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ry-diffusion/Tina/internal/protocol"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/wa"
	"go.uber.org/zap"
)

const (
	// Contact and group batches larger than listProgressMin report progress
	// every listProgressEvery items.
	listProgressMin   = 10
	listProgressEvery = 50

	messageProgressMin   = 50
	messageProgressEvery = 100
)

// run consumes engine output until ctx ends or Stop is called.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case line := <-w.engine.Lines():
			w.consume(ctx, line)
		case err := <-w.engine.Exits():
			// Lines the engine wrote before dying come first.
			w.drainLines(ctx)
			w.logger.Error("engine stopped", zap.Error(err))
			e := newEvent(KindError, "")
			e.Error = err.Error()
			_ = w.emit(ctx, e)
		case <-w.stopping:
			w.drainLines(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// drainLines handles every line already buffered without waiting for more.
func (w *Worker) drainLines(ctx context.Context) {
	for {
		select {
		case line := <-w.engine.Lines():
			w.consume(ctx, line)
		default:
			return
		}
	}
}

func (w *Worker) consume(ctx context.Context, line string) {
	evt, ok := w.engine.Decode(line)
	if !ok {
		return
	}
	w.process(ctx, evt)
}

// process handles one engine event. Failures are logged and surfaced as an
// Error event; the pipeline always moves on to the next event.
func (w *Worker) process(ctx context.Context, evt protocol.Event) {
	err := w.handle(ctx, evt)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	accountID := ""
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		accountID = batchErr.AccountID
		w.logger.Error("batch aborted",
			zap.String("event", batchErr.Event),
			zap.String("account_id", batchErr.AccountID),
			zap.Int("index", batchErr.Index),
			zap.Error(batchErr.Err))
	} else {
		w.logger.Error("handle engine event", zap.String("event", evt.Type()), zap.Error(err))
	}

	e := newEvent(KindError, accountID)
	e.Error = err.Error()
	_ = w.emit(ctx, e)
}

func (w *Worker) handle(ctx context.Context, evt protocol.Event) error {
	switch e := evt.(type) {
	case protocol.Ready:
		if e.AccountID == "" {
			return w.emit(ctx, newEvent(KindEngineReady, ""))
		}
		return w.emit(ctx, newEvent(KindAccountReady, e.AccountID))

	case protocol.QrCode:
		out := newEvent(KindQrCode, e.AccountID)
		out.QR = e.QR
		return w.emit(ctx, out)

	case protocol.Connected:
		if err := w.db.SetAccountPhone(e.AccountID, e.PhoneNumber); err != nil {
			if !errors.Is(err, store.ErrAccountNotFound) {
				return fmt.Errorf("record phone number: %w", err)
			}
			w.logger.Warn("connected account is not stored", zap.String("account_id", e.AccountID))
		}
		out := newEvent(KindConnected, e.AccountID)
		out.PhoneNumber = e.PhoneNumber
		return w.emit(ctx, out)

	case protocol.Disconnected:
		out := newEvent(KindDisconnected, e.AccountID)
		out.Reason = e.Reason
		return w.emit(ctx, out)

	case protocol.LoggedOut:
		return w.emit(ctx, newEvent(KindLoggedOut, e.AccountID))

	case protocol.AuthStateUpdated:
		if err := w.db.SaveAuthState(e.AccountID, e.AuthState); err != nil {
			return fmt.Errorf("save auth state for %s: %w", e.AccountID, err)
		}
		w.logger.Debug("auth state saved", zap.String("account_id", e.AccountID))
		return nil

	case protocol.ContactsUpsert:
		return w.syncContacts(ctx, evt.Type(), e.AccountID, e.Contacts, true)
	case protocol.ContactsUpdate:
		return w.syncContacts(ctx, evt.Type(), e.AccountID, e.Contacts, false)
	case protocol.GroupsUpsert:
		return w.syncGroups(ctx, evt.Type(), e.AccountID, e.Groups, true)
	case protocol.GroupsUpdate:
		return w.syncGroups(ctx, evt.Type(), e.AccountID, e.Groups, false)
	case protocol.MessagesUpsert:
		return w.syncMessages(ctx, evt.Type(), e.AccountID, e.Messages)

	case protocol.HistorySyncComplete:
		done := syncEvent(KindSyncCompleted, e.AccountID, SyncHistory)
		done.Total = e.MessagesCount
		if err := w.emit(ctx, done); err != nil {
			return err
		}
		legacy := newEvent(KindHistorySyncComplete, e.AccountID)
		legacy.Count = e.MessagesCount
		return w.emit(ctx, legacy)

	case protocol.Error:
		out := newEvent(KindError, "")
		if e.AccountID != nil {
			out.AccountID = *e.AccountID
		}
		out.Error = e.Error
		return w.emit(ctx, out)

	case protocol.CommandResult:
		if !e.Success {
			var reason string
			if e.Error != nil {
				reason = *e.Error
			}
			w.logger.Warn("engine command failed", zap.String("command_id", e.CommandID), zap.String("error", reason))
		}
		return nil
	}
	return nil
}

func (w *Worker) syncContacts(ctx context.Context, event, accountID string, items []protocol.ContactData, summarize bool) error {
	return runBatch(ctx, w, batch[protocol.ContactData]{
		event:     event,
		accountID: accountID,
		syncType:  SyncContacts,
		legacy:    KindContactsSynced,
		items:     items,
		summarize: summarize,
		save: func(c protocol.ContactData) error {
			return w.db.UpsertContact(&store.Contact{
				AccountID:    accountID,
				JID:          wa.Normalize(c.JID),
				LID:          c.LID,
				PhoneNumber:  c.PhoneNumber,
				Name:         c.Name,
				NotifyName:   c.Notify,
				VerifiedName: c.VerifiedName,
				ImgURL:       c.ImgURL,
				Status:       c.Status,
			})
		},
	})
}

func (w *Worker) syncGroups(ctx context.Context, event, accountID string, items []protocol.GroupData, summarize bool) error {
	return runBatch(ctx, w, batch[protocol.GroupData]{
		event:     event,
		accountID: accountID,
		syncType:  SyncGroups,
		legacy:    KindGroupsSynced,
		items:     items,
		summarize: summarize,
		save: func(g protocol.GroupData) error {
			participants := make([]store.Participant, 0, len(g.Participants))
			for _, p := range g.Participants {
				participants = append(participants, store.Participant{ID: p.ID, Admin: p.Admin, PhoneNumber: p.PhoneNumber})
			}
			return w.db.UpsertGroup(&store.Group{
				AccountID:    accountID,
				JID:          wa.Normalize(g.JID),
				Subject:      g.Subject,
				Owner:        g.Owner,
				Description:  g.Description,
				Participants: participants,
			})
		},
	})
}

// batch describes one contacts or groups bulk event.
type batch[T any] struct {
	event     string
	accountID string
	syncType  SyncType
	legacy    string
	items     []T
	summarize bool // emit started/progress/completed around the batch
	save      func(T) error
}

func runBatch[T any](ctx context.Context, w *Worker, b batch[T]) error {
	total := len(b.items)
	if b.summarize {
		started := syncEvent(KindSyncStarted, b.accountID, b.syncType)
		started.Total = total
		if err := w.emit(ctx, started); err != nil {
			return err
		}
	}

	for i, item := range b.items {
		if err := b.save(item); err != nil {
			return &BatchError{Event: b.event, AccountID: b.accountID, Index: i, Err: err}
		}
		n := i + 1
		if b.summarize && total > listProgressMin && n%listProgressEvery == 0 {
			if err := w.emit(ctx, progressEvent(b.accountID, b.syncType, n, total)); err != nil {
				return err
			}
		}
	}

	if !b.summarize {
		w.logger.Debug("incremental update applied", zap.String("event", b.event), zap.String("account_id", b.accountID), zap.Int("count", total))
		return nil
	}
	return w.emitCompleted(ctx, b.accountID, b.syncType, b.legacy, total)
}

func (w *Worker) syncMessages(ctx context.Context, event, accountID string, items []protocol.MessageData) error {
	total := len(items)
	for i, m := range items {
		msg := &store.Message{
			AccountID:   accountID,
			MessageID:   m.MessageID,
			ChatJID:     wa.Normalize(m.ChatJID),
			SenderJID:   wa.Normalize(m.SenderJID),
			Content:     m.Content,
			MessageType: m.MessageType,
			Timestamp:   m.Timestamp,
			IsFromMe:    m.IsFromMe,
			RawJSON:     m.RawJSON,
		}
		inserted, err := w.db.InsertMessage(msg)
		if err != nil {
			return &BatchError{Event: event, AccountID: accountID, Index: i, Err: err}
		}
		if inserted {
			out := newEvent(KindNewMessage, accountID)
			out.MessageID = msg.MessageID
			out.ChatJID = msg.ChatJID
			out.SenderJID = msg.SenderJID
			out.Content = msg.Content
			out.MessageTimestamp = msg.Timestamp
			out.FromMe = msg.IsFromMe
			if err := w.emit(ctx, out); err != nil {
				return err
			}
		}
		n := i + 1
		if total > messageProgressMin && n%messageProgressEvery == 0 {
			if err := w.emit(ctx, progressEvent(accountID, SyncMessages, n, total)); err != nil {
				return err
			}
		}
	}
	return w.emitCompleted(ctx, accountID, SyncMessages, KindMessagesSynced, total)
}

func progressEvent(accountID string, st SyncType, current, total int) Event {
	e := syncEvent(KindSyncProgress, accountID, st)
	e.Current = current
	e.Total = total
	return e
}

// emitCompleted publishes the completion event followed by its legacy
// "synced" counterpart.
func (w *Worker) emitCompleted(ctx context.Context, accountID string, st SyncType, legacy string, total int) error {
	done := syncEvent(KindSyncCompleted, accountID, st)
	done.Total = total
	if err := w.emit(ctx, done); err != nil {
		return err
	}
	synced := newEvent(legacy, accountID)
	synced.Count = total
	return w.emit(ctx, synced)
}
