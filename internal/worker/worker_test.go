package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/protocol"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/wa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeEngine records commands and lets tests inject engine output.
type fakeEngine struct {
	lines chan string
	exits chan error

	mu      sync.Mutex
	sent    []protocol.Command
	running bool
	stopped int

	// onStop runs inside Stop, like an engine answering the Shutdown request.
	onStop func()
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		lines:   make(chan string, 100),
		exits:   make(chan error, 1),
		running: true,
	}
}

func (f *fakeEngine) Send(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return ipc.ErrProcessNotRunning
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeEngine) Lines() <-chan string { return f.lines }
func (f *fakeEngine) Exits() <-chan error  { return f.exits }

func (f *fakeEngine) Decode(line string) (protocol.Event, bool) {
	m, ok := protocol.Decode(line)
	if !ok {
		return nil, false
	}
	return m.Event()
}

func (f *fakeEngine) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) Stop() error {
	if f.onStop != nil {
		f.onStop()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stopped++
	return nil
}

func (f *fakeEngine) commands() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.sent...)
}

func (f *fakeEngine) emit(t *testing.T, e protocol.Event) {
	t.Helper()
	line, err := protocol.Encode(protocol.NewEvent(e))
	require.NoError(t, err)
	f.lines <- string(line)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestWorker(t *testing.T) (*Worker, *fakeEngine, *store.DB) {
	t.Helper()
	db := testDB(t)
	_, err := db.CreateAccount("acme", ptr("Acme"))
	require.NoError(t, err)
	engine := newFakeEngine()
	return New(db, engine, zaptest.NewLogger(t)), engine, db
}

func ptr(s string) *string { return &s }

// drain collects every event emitted so far without blocking.
func drain(w *Worker) []Event {
	var out []Event
	for {
		select {
		case e := <-w.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func next(t *testing.T, w *Worker) Event {
	t.Helper()
	select {
	case e := <-w.Events():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker event")
		return Event{}
	}
}

func TestContactsUpsertScenario(t *testing.T) {
	w, _, db := newTestWorker(t)

	w.process(context.Background(), protocol.ContactsUpsert{
		AccountID: "acme",
		Contacts:  []protocol.ContactData{{JID: "1@s", Name: ptr("Ana")}},
	})

	contacts, err := db.GetContacts("acme")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "1@s", contacts[0].JID)
	assert.Equal(t, "Ana", *contacts[0].Name)

	events := drain(w)
	require.Equal(t, []string{KindSyncStarted, KindSyncCompleted, KindContactsSynced}, kinds(events))
	assert.Equal(t, SyncContacts, events[0].SyncType)
	assert.Equal(t, SyncContacts, events[1].SyncType)
	assert.Equal(t, 1, events[1].Total)
	assert.Equal(t, 1, events[2].Count)
	for _, e := range events {
		assert.Equal(t, "acme", e.AccountID)
		assert.NotEmpty(t, e.ID)
	}
}

func TestContactsBatchProgress(t *testing.T) {
	w, _, _ := newTestWorker(t)

	contacts := make([]protocol.ContactData, 120)
	for i := range contacts {
		contacts[i] = protocol.ContactData{JID: fmt.Sprintf("%d@s.whatsapp.net", i)}
	}
	w.process(context.Background(), protocol.ContactsUpsert{AccountID: "acme", Contacts: contacts})

	events := drain(w)
	var progress []int
	completedAt := -1
	for i, e := range events {
		switch e.Kind {
		case KindSyncProgress:
			assert.Equal(t, -1, completedAt, "progress after completion")
			assert.Equal(t, 120, e.Total)
			progress = append(progress, e.Current)
		case KindSyncCompleted:
			completedAt = i
		}
	}
	assert.Equal(t, []int{50, 100}, progress)
	assert.NotEqual(t, -1, completedAt)
}

func TestSmallBatchHasNoProgress(t *testing.T) {
	w, _, _ := newTestWorker(t)

	groups := make([]protocol.GroupData, 10)
	for i := range groups {
		groups[i] = protocol.GroupData{JID: fmt.Sprintf("%d@g.us", i)}
	}
	w.process(context.Background(), protocol.GroupsUpsert{AccountID: "acme", Groups: groups})

	assert.Equal(t, []string{KindSyncStarted, KindSyncCompleted, KindGroupsSynced}, kinds(drain(w)))
}

func TestIncrementalUpdatesAreQuiet(t *testing.T) {
	w, _, db := newTestWorker(t)

	w.process(context.Background(), protocol.ContactsUpdate{
		AccountID: "acme",
		Contacts:  []protocol.ContactData{{JID: "1@s", Notify: ptr("ana")}},
	})
	w.process(context.Background(), protocol.GroupsUpdate{
		AccountID: "acme",
		Groups: []protocol.GroupData{{
			JID:          "9@g.us",
			Subject:      ptr("Team"),
			Participants: []protocol.ParticipantData{{ID: "1@s", Admin: ptr("admin")}},
		}},
	})

	assert.Empty(t, drain(w))

	g, err := db.GetGroup("acme", "9@g.us")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Team", *g.Subject)
	require.Len(t, g.Participants, 1)
	assert.Equal(t, "admin", *g.Participants[0].Admin)
}

func TestMessagesUpsertDeduplicates(t *testing.T) {
	w, _, db := newTestWorker(t)

	msg := protocol.MessageData{
		MessageID: "m1",
		ChatJID:   "1@s.whatsapp.net",
		SenderJID: "1:4@s.whatsapp.net",
		Content:   ptr("hello"),
		Timestamp: 1700000000,
	}
	w.process(context.Background(), protocol.MessagesUpsert{AccountID: "acme", Messages: []protocol.MessageData{msg, msg}})

	rows, err := db.GetMessages("acme", nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1@s.whatsapp.net", rows[0].SenderJID, "device suffix is stripped")

	events := drain(w)
	require.Equal(t, []string{KindNewMessage, KindSyncCompleted, KindMessagesSynced}, kinds(events))
	assert.Equal(t, "m1", events[0].MessageID)
	assert.Equal(t, "1@s.whatsapp.net", events[0].ChatJID)
	assert.Equal(t, "hello", *events[0].Content)
	assert.Equal(t, int64(1700000000), events[0].MessageTimestamp)
	assert.Equal(t, SyncMessages, events[1].SyncType)
	assert.Equal(t, 2, events[2].Count)
}

func TestMessagesBatchProgress(t *testing.T) {
	w, _, _ := newTestWorker(t)

	msgs := make([]protocol.MessageData, 250)
	for i := range msgs {
		msgs[i] = protocol.MessageData{MessageID: fmt.Sprintf("m%d", i), ChatJID: "1@s.whatsapp.net", Timestamp: int64(i)}
	}

	// Everything emitted here fits in the EventBuffer.
	w.process(context.Background(), protocol.MessagesUpsert{AccountID: "acme", Messages: msgs})

	var progress []int
	newCount := 0
	for _, e := range drain(w) {
		switch e.Kind {
		case KindSyncProgress:
			progress = append(progress, e.Current)
		case KindNewMessage:
			newCount++
		}
	}
	assert.Equal(t, []int{100, 200}, progress)
	assert.Equal(t, 250, newCount)
}

func TestBatchFailureAbortsRemainder(t *testing.T) {
	w, _, db := newTestWorker(t)

	// "ghost" is not a stored account, so every insert violates the foreign key.
	w.process(context.Background(), protocol.ContactsUpsert{
		AccountID: "ghost",
		Contacts:  []protocol.ContactData{{JID: "1@s"}, {JID: "2@s"}},
	})

	events := drain(w)
	require.Equal(t, []string{KindSyncStarted, KindError}, kinds(events), "no completion for an aborted batch")
	assert.Equal(t, "ghost", events[1].AccountID)
	assert.Contains(t, events[1].Error, "item 0")

	contacts, err := db.GetContacts("ghost")
	require.NoError(t, err)
	assert.Empty(t, contacts)

	// The pipeline keeps going.
	w.process(context.Background(), protocol.Ready{})
	assert.Equal(t, []string{KindEngineReady}, kinds(drain(w)))
}

func TestBatchErrorUnwraps(t *testing.T) {
	w, _, _ := newTestWorker(t)

	err := w.handle(context.Background(), protocol.MessagesUpsert{
		AccountID: "ghost",
		Messages:  []protocol.MessageData{{MessageID: "m1", ChatJID: "1@s"}},
	})
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "MessagesUpsert", batchErr.Event)
	assert.Equal(t, 0, batchErr.Index)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestLifecycleEventsRepublished(t *testing.T) {
	w, _, db := newTestWorker(t)
	ctx := context.Background()

	w.process(ctx, protocol.Ready{})
	w.process(ctx, protocol.Ready{AccountID: "acme"})
	w.process(ctx, protocol.QrCode{AccountID: "acme", QR: "2@abc"})
	w.process(ctx, protocol.Connected{AccountID: "acme", PhoneNumber: ptr("5585999")})
	w.process(ctx, protocol.Disconnected{AccountID: "acme", Reason: "stream replaced"})
	w.process(ctx, protocol.LoggedOut{AccountID: "acme"})
	w.process(ctx, protocol.HistorySyncComplete{AccountID: "acme", MessagesCount: 42})
	w.process(ctx, protocol.Error{Error: "socket closed"})
	w.process(ctx, protocol.CommandResult{CommandID: "1", Success: true})

	events := drain(w)
	require.Equal(t, []string{
		KindEngineReady,
		KindAccountReady,
		KindQrCode,
		KindConnected,
		KindDisconnected,
		KindLoggedOut,
		KindSyncCompleted,
		KindHistorySyncComplete,
		KindError,
	}, kinds(events))

	assert.Empty(t, events[0].AccountID)
	assert.Equal(t, "2@abc", events[2].QR)
	assert.Equal(t, "5585999", *events[3].PhoneNumber)
	assert.Equal(t, "stream replaced", events[4].Reason)
	assert.Equal(t, SyncHistory, events[6].SyncType)
	assert.Equal(t, 42, events[6].Total)
	assert.Equal(t, 42, events[7].Count)
	assert.Empty(t, events[8].AccountID, "error without account is global")
	assert.Equal(t, "socket closed", events[8].Error)

	acct, err := db.GetAccount("acme")
	require.NoError(t, err)
	assert.Equal(t, "5585999", *acct.PhoneNumber)
}

func TestAuthStatePersistedNotRepublished(t *testing.T) {
	w, _, db := newTestWorker(t)

	w.process(context.Background(), protocol.AuthStateUpdated{AccountID: "acme", AuthState: `{"creds":1}`})

	assert.Empty(t, drain(w))
	state, err := db.AuthState("acme")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, `{"creds":1}`, *state)
}

func TestPipelineConsumesEngineLines(t *testing.T) {
	w, engine, _ := newTestWorker(t)
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	engine.lines <- "not json"
	engine.emit(t, protocol.Ready{})
	engine.emit(t, protocol.QrCode{AccountID: "acme", QR: "qr-1"})

	assert.Equal(t, KindEngineReady, next(t, w).Kind)
	assert.Equal(t, "qr-1", next(t, w).QR)
}

func TestEngineExitBecomesGlobalError(t *testing.T) {
	w, engine, _ := newTestWorker(t)
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	engine.exits <- &ipc.ExitError{PID: 42, Err: errors.New("exit status 3")}

	e := next(t, w)
	assert.Equal(t, KindError, e.Kind)
	assert.Empty(t, e.AccountID)
	assert.Contains(t, e.Error, "exit status 3")
}

func TestEngineLinesPrecedeExitError(t *testing.T) {
	w, engine, _ := newTestWorker(t)
	engine.emit(t, protocol.Ready{})
	engine.emit(t, protocol.Error{Error: "fatal: boom"})
	engine.exits <- &ipc.ExitError{PID: 42, Err: errors.New("exit status 3")}

	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	assert.Equal(t, KindEngineReady, next(t, w).Kind)
	assert.Equal(t, "fatal: boom", next(t, w).Error)
	assert.Contains(t, next(t, w).Error, "exit status 3")
}

func TestStopPersistsOutputWrittenDuringShutdown(t *testing.T) {
	w, engine, db := newTestWorker(t)
	engine.onStop = func() {
		engine.emit(t, protocol.AuthStateUpdated{AccountID: "acme", AuthState: "final"})
	}
	w.Start(context.Background())

	require.NoError(t, w.Stop())

	acct, err := db.GetAccount("acme")
	require.NoError(t, err)
	require.NotNil(t, acct.AuthState)
	assert.Equal(t, "final", *acct.AuthState)
}

func TestStopClosesEventsAndStopsEngine(t *testing.T) {
	w, engine, _ := newTestWorker(t)
	w.Start(context.Background())

	require.NoError(t, w.Stop())
	_, open := <-w.Events()
	assert.False(t, open)
	assert.Equal(t, 1, engine.stopped)
	assert.False(t, w.EngineRunning())
}

func TestStartAccountReplaysAuthState(t *testing.T) {
	w, engine, db := newTestWorker(t)

	require.NoError(t, w.StartAccount("acme"))
	assert.Equal(t, []protocol.Command{protocol.StartAccount{AccountID: "acme"}}, engine.commands())

	require.NoError(t, db.SaveAuthState("acme", "blob"))
	require.NoError(t, w.StartAccount("acme"))
	assert.Equal(t, []protocol.Command{
		protocol.StartAccount{AccountID: "acme"},
		protocol.SetAuthState{AccountID: "acme", AuthState: "blob"},
		protocol.StartAccount{AccountID: "acme"},
	}, engine.commands())
}

func TestStartAccountUnknown(t *testing.T) {
	w, engine, _ := newTestWorker(t)
	assert.ErrorIs(t, w.StartAccount("nobody"), store.ErrAccountNotFound)
	assert.Empty(t, engine.commands())
}

func TestSendMessage(t *testing.T) {
	w, engine, _ := newTestWorker(t)

	require.NoError(t, w.SendMessage("acme", "558592403672@s.whatsapp.net", "hi"))
	assert.Equal(t, []protocol.Command{
		protocol.SendMessage{AccountID: "acme", To: "558592403672@s.whatsapp.net", Content: "hi"},
	}, engine.commands())

	assert.ErrorIs(t, w.SendMessage("acme", "nobody", "hi"), wa.ErrInvalidJID)
	assert.ErrorIs(t, w.SendMessage("ghost", "1@s.whatsapp.net", "hi"), store.ErrAccountNotFound)

	require.NoError(t, engine.Stop())
	assert.ErrorIs(t, w.SendMessage("acme", "1@s.whatsapp.net", "hi"), ipc.ErrProcessNotRunning)
}

func TestEngineCommands(t *testing.T) {
	w, engine, _ := newTestWorker(t)

	require.NoError(t, w.StopAccount("acme"))
	require.NoError(t, w.RequestQrCode("acme"))
	require.NoError(t, w.Refresh("acme"))
	require.NoError(t, w.RequestHistory("acme", ptr("1@s.whatsapp.net"), 50))

	assert.Equal(t, []protocol.Command{
		protocol.StopAccount{AccountID: "acme"},
		protocol.GetQrCode{AccountID: "acme"},
		protocol.GetContacts{AccountID: "acme"},
		protocol.GetGroups{AccountID: "acme"},
		protocol.GetMessages{AccountID: "acme", ChatJID: ptr("1@s.whatsapp.net"), Limit: 50},
	}, engine.commands())
}

func TestAccountManagement(t *testing.T) {
	w, engine, _ := newTestWorker(t)

	_, err := w.CreateAccount("bad id", nil)
	assert.ErrorIs(t, err, store.ErrInvalidAccountID)

	_, err = w.CreateAccount("work", ptr("Work"))
	require.NoError(t, err)

	accounts, err := w.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acme", accounts[0].ID)
	assert.Equal(t, "Acme", *accounts[0].Name)

	require.NoError(t, engine.Stop())
	require.NoError(t, w.DeleteAccount("work"), "delete works without an engine")
	assert.ErrorIs(t, w.DeleteAccount("work"), store.ErrAccountNotFound)

	accounts, err = w.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestDeviceJIDsShareOneChat(t *testing.T) {
	w, _, db := newTestWorker(t)
	ctx := context.Background()

	w.process(ctx, protocol.ContactsUpsert{AccountID: "acme", Contacts: []protocol.ContactData{{JID: "5511999:7@s.whatsapp.net", Name: ptr("Ana")}}})
	w.process(ctx, protocol.GroupsUpsert{AccountID: "acme", Groups: []protocol.GroupData{{JID: "120363000000000000@g.us", Subject: ptr("Team")}}})
	w.process(ctx, protocol.MessagesUpsert{AccountID: "acme", Messages: []protocol.MessageData{
		{MessageID: "a", ChatJID: "5511999:3@s.whatsapp.net", SenderJID: "5511999:3@s.whatsapp.net", Content: ptr("oi"), Timestamp: 100},
	}})
	drain(w)

	contact, err := db.GetContact("acme", "5511999@s.whatsapp.net")
	require.NoError(t, err)
	require.NotNil(t, contact)

	previews, err := w.GetChatPreviews("acme", 0)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, "5511999@s.whatsapp.net", previews[0].ChatJID)
	assert.Equal(t, "Ana", previews[0].Name)

	name, err := w.GetChatName("acme", "5511999:7@s.whatsapp.net")
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "Ana", *name)

	msgs, err := w.GetMessages("acme", ptr("5511999:1@s.whatsapp.net"), 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestReadOperations(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()

	w.process(ctx, protocol.ContactsUpsert{AccountID: "acme", Contacts: []protocol.ContactData{{JID: "1@s.whatsapp.net", Name: ptr("Ana")}}})
	w.process(ctx, protocol.GroupsUpsert{AccountID: "acme", Groups: []protocol.GroupData{{JID: "9@g.us", Subject: ptr("Team")}}})
	w.process(ctx, protocol.MessagesUpsert{AccountID: "acme", Messages: []protocol.MessageData{
		{MessageID: "a", ChatJID: "1@s.whatsapp.net", Content: ptr("old"), Timestamp: 100},
		{MessageID: "b", ChatJID: "9@g.us", Content: ptr("new"), Timestamp: 200},
	}})
	drain(w)

	chats, err := w.GetChats("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"9@g.us", "1@s.whatsapp.net"}, chats)

	previews, err := w.GetChatPreviews("acme", 10)
	require.NoError(t, err)
	require.Len(t, previews, 2)
	assert.Equal(t, "Team", previews[0].Name)
	assert.True(t, previews[0].IsGroup)
	assert.Equal(t, "Ana", previews[1].Name)

	name, err := w.GetChatName("acme", "1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Ana", *name)

	name, err = w.GetChatName("acme", "unknown@s.whatsapp.net")
	require.NoError(t, err)
	assert.Nil(t, name)

	msgs, err := w.GetMessages("acme", ptr("9@g.us"), 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", *msgs[0].Content)

	contacts, err := w.GetContacts("acme")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
	groups, err := w.GetGroups("acme")
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	counts, err := w.Counts("acme")
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Contacts: 1, Groups: 1, Messages: 2}, *counts)
}
