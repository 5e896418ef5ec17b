package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"github.com/ry-diffusion/Tina/internal/api"
	"github.com/ry-diffusion/Tina/internal/bus"
	"github.com/ry-diffusion/Tina/internal/config"
	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/protocol"
	"github.com/ry-diffusion/Tina/internal/status"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/worker"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"accounts", "list"}, {"accounts", "create"}, {"accounts", "delete"},
		{"login"}, {"start"}, {"stop"}, {"refresh"}, {"history"},
		{"contacts"}, {"groups"}, {"chats"}, {"messages"},
		{"send"}, {"watch"}, {"status"},
	}
	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	assert.Equal(t, "o", format.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("no-autostart"))
}

func TestInvalidFormatRejectedBeforeConnecting(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "--config", "/nonexistent/config.toml", "status"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestNoAutostartReportsUnavailable(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "tina-cli-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.DataDir = dir
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfgPath, cfg))

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--config", cfgPath, "--no-autostart", "status"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err = cmd.Execute()
	require.ErrorIs(t, err, ErrDaemonUnavailable)
}

func TestPrinterFormats(t *testing.T) {
	data := []store.Account{{ID: "acme", CreatedAt: 1700000000}}

	var out bytes.Buffer
	require.NoError(t, (&printer{format: "json", w: &out}).print(data, nil))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	want := []map[string]any{{"id": "acme", "name": nil, "phone_number": nil, "created_at": float64(1700000000), "updated_at": float64(0)}}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("json output mismatch (-want +got):\n%s", diff)
	}

	out.Reset()
	require.NoError(t, (&printer{format: "yaml", w: &out}).print(data, nil))
	assert.Contains(t, out.String(), "- id: acme\n")
	assert.Contains(t, out.String(), "  created_at: 1700000000\n")
}

func TestRenderQR(t *testing.T) {
	qr := renderQR("2@abcdefghijklmnop,ABCDEFGHIJKLMNOP=,1234567890=")
	lines := strings.Split(strings.TrimRight(qr, "\n"), "\n")
	require.Greater(t, len(lines), 10)
	assert.Contains(t, qr, "█")
	width := len([]rune(lines[0]))
	for _, l := range lines {
		assert.Equal(t, width, len([]rune(l)))
	}
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\nb\t c", 10))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
}

// stubEngine accepts every command while running.
type stubEngine struct {
	mu      sync.Mutex
	running bool
	sent    []protocol.Command
}

func (e *stubEngine) Send(cmd protocol.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ipc.ErrProcessNotRunning
	}
	e.sent = append(e.sent, cmd)
	return nil
}

func (e *stubEngine) Lines() <-chan string { return nil }
func (e *stubEngine) Exits() <-chan error  { return nil }

func (e *stubEngine) Decode(string) (protocol.Event, bool) { return nil, false }

func (e *stubEngine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *stubEngine) Stop() error { return nil }

// serveControl runs a control server for a fresh data dir and returns the
// config path that points wppctl at it.
func serveControl(t *testing.T) (string, *bus.Bus, *stubEngine) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "tina-cli-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.DataDir = dir
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfgPath, cfg))
	layout := cfg.Layout()
	require.NoError(t, layout.EnsureDirs())

	db, err := store.Open(layout.DBPath())
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zaptest.NewLogger(t)
	engine := &stubEngine{running: true}
	b := bus.New()
	control := api.NewControl(worker.New(db, engine, logger), status.NewRegistry(b), b, logger)

	lis, err := net.Listen("unix", layout.SocketPath())
	require.NoError(t, err)
	srv := grpc.NewServer()
	api.RegisterControlServer(srv, control)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		control.Shutdown()
		srv.GracefulStop()
	})
	return cfgPath, b, engine
}

func execute(t *testing.T, ctx context.Context, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--no-autostart"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestAccountCommands(t *testing.T) {
	cfgPath, _, engine := serveControl(t)
	ctx := context.Background()

	out, err := execute(t, ctx, cfgPath, "accounts", "create", "acme", "--name", "Acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Account acme created")

	out, err = execute(t, ctx, cfgPath, "accounts", "list", "-o", "json")
	require.NoError(t, err)
	var accounts []store.Account
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "Acme", *accounts[0].Name)

	out, err = execute(t, ctx, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine:")
	assert.Contains(t, out, "OFFLINE")

	_, err = execute(t, ctx, cfgPath, "send", "acme", "5511999999999@s.whatsapp.net", "hello", "there")
	require.NoError(t, err)

	engine.mu.Lock()
	require.Len(t, engine.sent, 1)
	assert.Equal(t, protocol.SendMessage{AccountID: "acme", To: "5511999999999@s.whatsapp.net", Content: "hello there"}, engine.sent[0])
	engine.mu.Unlock()

	_, err = execute(t, ctx, cfgPath, "start", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestLoginRendersQRUntilConnected(t *testing.T) {
	cfgPath, b, _ := serveControl(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := execute(t, ctx, cfgPath, "accounts", "create", "acme")
	require.NoError(t, err)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := execute(t, ctx, cfgPath, "login", "acme")
		done <- result{out, err}
	}()
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	qr := "2@pairing-ref"
	phone := "5511999999999"
	publish := func(e worker.Event) {
		e.Timestamp = time.Now()
		require.NoError(t, b.Publish(ctx, bus.Event{Kind: e.Kind, Timestamp: e.Timestamp, Payload: e}))
	}
	publish(worker.Event{Kind: worker.KindQrCode, AccountID: "other", QR: &qr})
	publish(worker.Event{Kind: worker.KindQrCode, AccountID: "acme", QR: &qr})
	publish(worker.Event{Kind: worker.KindConnected, AccountID: "acme", PhoneNumber: &phone})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 1, strings.Count(r.out, "Scan this QR code"))
		assert.Contains(t, r.out, "Connected as 5511999999999.")
	case <-ctx.Done():
		t.Fatal("login did not finish after the account connected")
	}
}
