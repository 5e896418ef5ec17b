package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ry-diffusion/Tina/internal/bus"
	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/status"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/wa"
	"github.com/ry-diffusion/Tina/internal/worker"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// watchBuffer is the per-watcher bus subscription capacity.
const watchBuffer = 256

// Control implements ControlServer on top of the worker.
type Control struct {
	worker    *worker.Worker
	registry  *status.Registry
	bus       *bus.Bus
	logger    *zap.Logger
	startedAt time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

var _ ControlServer = (*Control)(nil)

// NewControl creates the control service.
func NewControl(w *worker.Worker, r *status.Registry, b *bus.Bus, logger *zap.Logger) *Control {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Control{
		worker:    w,
		registry:  r,
		bus:       b,
		logger:    logger.Named("api"),
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
}

// Shutdown ends every open WatchEvents stream so the server can drain.
func (c *Control) Shutdown() {
	c.closeOnce.Do(func() { close(c.closing) })
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAccountNotFound):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, ipc.ErrProcessNotRunning), errors.Is(err, ipc.ErrChannelClosed):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, store.ErrInvalidAccountID), errors.Is(err, wa.ErrInvalidJID):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

func empty(err error) (*Empty, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func requireAccount(id string) error {
	if id == "" {
		return grpcstatus.Error(codes.InvalidArgument, "account_id is required")
	}
	return nil
}

func (c *Control) ListAccounts(_ context.Context, _ *Empty) (*ListAccountsResponse, error) {
	accounts, err := c.worker.ListAccounts()
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListAccountsResponse{Accounts: accounts}, nil
}

func (c *Control) CreateAccount(_ context.Context, req *CreateAccountRequest) (*AccountResponse, error) {
	acct, err := c.worker.CreateAccount(req.AccountID, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	c.logger.Info("account created", zap.String("account_id", acct.ID))
	return &AccountResponse{Account: acct}, nil
}

func (c *Control) DeleteAccount(_ context.Context, req *AccountRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	if err := c.worker.DeleteAccount(req.AccountID); err != nil {
		return nil, toStatus(err)
	}
	c.registry.Forget(req.AccountID)
	c.logger.Info("account deleted", zap.String("account_id", req.AccountID))
	return &Empty{}, nil
}

func (c *Control) StartAccount(_ context.Context, req *AccountRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	return empty(c.worker.StartAccount(req.AccountID))
}

func (c *Control) StopAccount(_ context.Context, req *AccountRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	return empty(c.worker.StopAccount(req.AccountID))
}

func (c *Control) RequestQrCode(_ context.Context, req *AccountRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	return empty(c.worker.RequestQrCode(req.AccountID))
}

func (c *Control) RefreshAccount(_ context.Context, req *AccountRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	return empty(c.worker.Refresh(req.AccountID))
}

func (c *Control) RequestHistory(_ context.Context, req *HistoryRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	return empty(c.worker.RequestHistory(req.AccountID, req.ChatJID, req.Limit))
}

func (c *Control) GetContacts(_ context.Context, req *AccountRequest) (*ContactsResponse, error) {
	contacts, err := c.worker.GetContacts(req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ContactsResponse{Contacts: contacts}, nil
}

func (c *Control) GetGroups(_ context.Context, req *AccountRequest) (*GroupsResponse, error) {
	groups, err := c.worker.GetGroups(req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GroupsResponse{Groups: groups}, nil
}

func (c *Control) GetMessages(_ context.Context, req *GetMessagesRequest) (*MessagesResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	msgs, err := c.worker.GetMessages(req.AccountID, req.ChatJID, limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessagesResponse{Messages: msgs}, nil
}

func (c *Control) GetChats(_ context.Context, req *AccountRequest) (*ChatsResponse, error) {
	chats, err := c.worker.GetChats(req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ChatsResponse{Chats: chats}, nil
}

func (c *Control) GetChatPreviews(_ context.Context, req *ChatPreviewsRequest) (*ChatPreviewsResponse, error) {
	previews, err := c.worker.GetChatPreviews(req.AccountID, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ChatPreviewsResponse{Previews: previews}, nil
}

func (c *Control) GetChatName(_ context.Context, req *ChatNameRequest) (*ChatNameResponse, error) {
	name, err := c.worker.GetChatName(req.AccountID, req.ChatJID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ChatNameResponse{Name: name}, nil
}

func (c *Control) SendMessage(_ context.Context, req *SendMessageRequest) (*Empty, error) {
	if err := requireAccount(req.AccountID); err != nil {
		return nil, err
	}
	if req.Content == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "content is required")
	}
	return empty(c.worker.SendMessage(req.AccountID, req.To, req.Content))
}

// GetStatus reports every stored account, including ones the registry has
// not seen an event for yet.
func (c *Control) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	accounts, err := c.worker.ListAccounts()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &StatusResponse{
		EngineRunning: c.worker.EngineRunning(),
		UptimeMs:      time.Since(c.startedAt).Milliseconds(),
		Accounts:      make([]AccountStatus, 0, len(accounts)),
	}
	for _, a := range accounts {
		st := AccountStatus{Account: c.registry.Get(a.ID)}
		if st.PhoneNumber == nil {
			st.PhoneNumber = a.PhoneNumber
		}
		if counts, err := c.worker.Counts(a.ID); err == nil {
			st.Counts = counts
		} else {
			c.logger.Warn("count account rows", zap.String("account_id", a.ID), zap.Error(err))
		}
		resp.Accounts = append(resp.Accounts, st)
	}
	return resp, nil
}

// WatchEvents streams bus events until the client goes away.
func (c *Control) WatchEvents(req *WatchRequest, stream EventSender) error {
	ch, unsub := c.bus.Subscribe(req.Prefix, watchBuffer)
	defer unsub()

	c.logger.Debug("watcher attached", zap.String("prefix", req.Prefix))
	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				c.logger.Warn("encode watch payload", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(&WatchEvent{Kind: evt.Kind, Timestamp: evt.Timestamp, Payload: payload}); err != nil {
				return err
			}
		case <-ctx.Done():
			c.logger.Debug("watcher detached", zap.String("prefix", req.Prefix))
			return nil
		case <-c.closing:
			return grpcstatus.Error(codes.Unavailable, "daemon shutting down")
		}
	}
}
