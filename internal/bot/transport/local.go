package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/souqbot/server/internal/bot/model"
)

// Local is an in-process implementation of the session transport contract,
// used by tests and the demo entry point. Accounts are registered up front
// with a token; Connect validates the token against the registry.
//
// Sends addressed to another registered account are delivered to that
// account's inbound handler, which makes it possible to reproduce (and test
// against) the bot-to-bot feedback loop the manager must prevent.
type Local struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// Delivery is one outbound message recorded by a local session.
type Delivery struct {
	From       string
	ChatTarget string
	Text       string
}

type account struct {
	id    string
	token string

	mu        sync.Mutex
	handler   model.EventHandler
	connected bool
	outbox    []Delivery
}

func NewLocal() *Local {
	return &Local{accounts: make(map[string]*account)}
}

// RegisterAccount makes an account connectable with the given token.
func (l *Local) RegisterAccount(accountID, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[accountID] = &account{id: accountID, token: token}
}

// Connect implements model.Transport.
func (l *Local) Connect(ctx context.Context, creds model.Credentials) (model.Session, error) {
	l.mu.RLock()
	acc, ok := l.accounts[creds.AccountID]
	l.mu.RUnlock()
	if !ok || acc.token != creds.Token {
		return nil, model.ErrUnauthorized
	}

	acc.mu.Lock()
	acc.connected = true
	acc.mu.Unlock()

	return &localSession{net: l, acc: acc}, nil
}

// Inject delivers an inbound event to the account's handler, the way a real
// platform would push a customer message. Delivery is synchronous so events
// for one account arrive strictly in call order.
func (l *Local) Inject(ctx context.Context, accountID string, ev model.IncomingEvent) error {
	l.mu.RLock()
	acc, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no such account %q", accountID)
	}

	acc.mu.Lock()
	handler := acc.handler
	connected := acc.connected
	acc.mu.Unlock()

	if !connected || handler == nil {
		return fmt.Errorf("account %q is not listening", accountID)
	}
	handler(ctx, ev)
	return nil
}

// Deliveries returns a copy of everything the account has sent so far.
func (l *Local) Deliveries(accountID string) []Delivery {
	l.mu.RLock()
	acc, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return append([]Delivery(nil), acc.outbox...)
}

type localSession struct {
	net *Local
	acc *account
}

func (s *localSession) Identity() string {
	return s.acc.id
}

func (s *localSession) OnMessage(handler model.EventHandler) {
	s.acc.mu.Lock()
	defer s.acc.mu.Unlock()
	s.acc.handler = handler
}

func (s *localSession) Send(ctx context.Context, chatTarget, text string) error {
	s.acc.mu.Lock()
	if !s.acc.connected {
		s.acc.mu.Unlock()
		return fmt.Errorf("session %q is disconnected", s.acc.id)
	}
	s.acc.outbox = append(s.acc.outbox, Delivery{From: s.acc.id, ChatTarget: chatTarget, Text: text})
	s.acc.mu.Unlock()

	// Deliver to the peer when the target is itself a registered account.
	s.net.mu.RLock()
	peer, ok := s.net.accounts[chatTarget]
	s.net.mu.RUnlock()
	if ok {
		peer.mu.Lock()
		handler := peer.handler
		connected := peer.connected
		peer.mu.Unlock()
		if connected && handler != nil {
			handler(ctx, model.IncomingEvent{
				SenderID:   s.acc.id,
				SenderName: s.acc.id,
				ChatTarget: s.acc.id,
				Text:       text,
				Private:    true,
			})
		}
	}
	return nil
}

func (s *localSession) IsConnected() bool {
	s.acc.mu.Lock()
	defer s.acc.mu.Unlock()
	return s.acc.connected
}

func (s *localSession) Disconnect(ctx context.Context) error {
	s.acc.mu.Lock()
	defer s.acc.mu.Unlock()
	s.acc.connected = false
	return nil
}

var _ model.Transport = (*Local)(nil)
var _ model.Session = (*localSession)(nil)
