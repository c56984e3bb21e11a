// Package terminal keeps one session per POS terminal. A session owns the
// terminal's cart and is passed explicitly to the commit pipeline.
package terminal

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/cart"
	"github.com/joao-fontenele/posflow/internal/domain"
)

type Session struct {
	TerminalID string

	mu   sync.Mutex
	cart *cart.Cart
}

func newSession(terminalID string) *Session {
	return &Session{TerminalID: terminalID, cart: cart.New()}
}

// WithCart runs fn while holding the session lock.
func (s *Session) WithCart(fn func(c *cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.cart)
}

// Checkout holds the session for the whole of fn, so the cart cannot change
// between the snapshot and the commit. The cart is cleared only when fn
// succeeds.
func (s *Session) Checkout(fn func(lines []domain.OrderLine, total decimal.Decimal) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.cart.Snapshot(), s.cart.Total()); err != nil {
		return err
	}
	s.cart.Clear()
	return nil
}

type View struct {
	TerminalID string          `json:"terminal_id"`
	Lines      []cart.Line     `json:"lines"`
	Total      decimal.Decimal `json:"total"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{TerminalID: s.TerminalID, Lines: s.cart.Lines(), Total: s.cart.Total()}
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Clear()
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Session returns the session for terminalID, opening one on first use.
func (r *Registry) Session(terminalID string) (*Session, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, domain.Invalid(domain.ErrMissingTerminal)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[terminalID]
	if !ok {
		s = newSession(terminalID)
		r.sessions[terminalID] = s
	}
	return s, nil
}
