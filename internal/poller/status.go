package poller

import (
	"sort"
	"sync"
	"time"

	"github.com/spacewatch/backend/internal/notify"
)

// AccountStatus is the last observed poll outcome for one monitored
// account, kept in memory for the API and the event stream.
type AccountStatus struct {
	Account    string        `json:"account"`
	PolledAt   time.Time     `json:"polledAt"`
	LiveCount  int           `json:"liveCount"`
	Created    int           `json:"created"`
	Removed    int           `json:"removed"`
	Dispatched notify.Result `json:"dispatched"`
	LastError  string        `json:"lastError,omitempty"`
}

// StatusStore holds per-account statuses behind a read-write lock.
// The poller writes it once per account per cycle; HTTP handlers and
// the websocket snapshot read it concurrently.
type StatusStore struct {
	mu       sync.RWMutex
	accounts map[string]*AccountStatus
}

func NewStatusStore() *StatusStore {
	return &StatusStore{
		accounts: make(map[string]*AccountStatus),
	}
}

func (s *StatusStore) Get(account string) (AccountStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.accounts[account]
	if !ok {
		return AccountStatus{}, false
	}
	return *st, true
}

// All returns a copy of every account status, sorted by account name
// for stable API output.
func (s *StatusStore) All() []AccountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]AccountStatus, 0, len(s.accounts))
	for _, st := range s.accounts {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Account < result[j].Account
	})
	return result
}

func (s *StatusStore) Update(status AccountStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := status
	s.accounts[status.Account] = &copy
}
