package dummy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
	ErrNotFound             = errors.New("payment not found")
)

type Payment struct {
	ID               string    `json:"id"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Description      string    `json:"description"`
	Status           string    `json:"status"`
	PayerName        string    `json:"payerName"`
	PayerEmail       string    `json:"payerEmail"`
	RecipientName    string    `json:"recipientName"`
	RecipientAccount string    `json:"recipientAccount"`
	TransactionID    string    `json:"transactionId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

var (
	currencies   = []string{"RUB", "USD", "EUR", "GBP"}
	statuses     = []string{"PENDING", "COMPLETED", "FAILED", "PROCESSING"}
	payerNames   = []string{"Ivan Ivanov", "Alexey Petrov", "Maria Sidorova", "Ekaterina Smirnova", "Dmitry Kuznetsov", "Olga Popova"}
	descriptions = []string{"Order payment", "Account transfer", "Service fee", "Refund", "Monthly payment", "Bonus payout"}
)

// RandomPayment builds the record the upstream provider would hand out.
// Transaction ids only carry millisecond time plus three random digits,
// so concurrent fetches collide now and then.
func RandomPayment(now time.Time) Payment {
	payer := payerNames[rand.Intn(len(payerNames))]
	first, last, _ := strings.Cut(strings.ToLower(payer), " ")
	return Payment{
		ID:               uuid.NewString(),
		Amount:           math.Round((100+rand.Float64()*9900)*100) / 100,
		Currency:         currencies[rand.Intn(len(currencies))],
		Description:      descriptions[rand.Intn(len(descriptions))],
		Status:           statuses[rand.Intn(len(statuses))],
		PayerName:        payer,
		PayerEmail:       first + "." + last + "@example.com",
		RecipientName:    "Romashka LLC",
		RecipientAccount: fmt.Sprintf("ACC%08d", rand.Intn(100000000)),
		TransactionID:    fmt.Sprintf("TXN%d%d", now.UnixMilli(), rand.Intn(1000)),
		CreatedAt:        now.Add(-time.Duration(rand.Intn(1440)) * time.Minute),
		UpdatedAt:        now,
	}
}

// Store keeps payments in memory, newest last.
type Store struct {
	mu       sync.RWMutex
	payments []Payment
	byID     map[string]int
	txns     map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		byID: make(map[string]int),
		txns: make(map[string]struct{}),
	}
}

// Save rejects a payment whose transaction id is already stored.
func (s *Store) Save(p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[p.TransactionID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, p.TransactionID)
	}
	s.txns[p.TransactionID] = struct{}{}
	s.byID[p.ID] = len(s.payments)
	s.payments = append(s.payments, p)
	return nil
}

// Latest returns up to limit payments, newest first.
func (s *Store) Latest(limit int) []Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(max(limit, 0), len(s.payments))
	out := make([]Payment, 0, n)
	for i := len(s.payments) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.payments[i])
	}
	return out
}

func (s *Store) All() []Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Payment, len(s.payments))
	copy(out, s.payments)
	return out
}

func (s *Store) Get(id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return s.payments[i], nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}
