// ABOUTME: Mock Registry implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping uniqueness and cascade rules

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Registry implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	clients  map[string]*Client  // keyed by client ID
	accounts map[string]*Account // keyed by account ID

	// CommitErr, when set, is returned by CreateClient after provision has
	// run, simulating a failed commit.
	CommitErr error
}

// Ensure MockStore implements Registry.
var _ Registry = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		clients:  make(map[string]*Client),
		accounts: make(map[string]*Account),
	}
}

// CreateClient stores a client and optional owner atomically.
func (m *MockStore) CreateClient(ctx context.Context, client *Client, owner *Account, provision ProvisionFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		switch {
		case c.ID == client.ID, c.Email == client.Email:
			return ErrClientAlreadyExists
		case c.TenantID == client.TenantID:
			return ErrTenantIDTaken
		}
	}
	if owner != nil {
		if owner.ClientID != client.ID {
			return fmt.Errorf("owner account belongs to client %q, not %q", owner.ClientID, client.ID)
		}
		if m.accountEmailTakenLocked(owner.Email, "") {
			return ErrAccountAlreadyExists
		}
	}

	if provision != nil {
		if err := provision(ctx, client); err != nil {
			return err
		}
	}
	if m.CommitErr != nil {
		return m.CommitErr
	}

	c := *client
	m.clients[c.ID] = &c
	if owner != nil {
		a := *owner
		m.accounts[a.ID] = &a
	}
	return nil
}

// GetClient retrieves a client by ID.
func (m *MockStore) GetClient(ctx context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	result := *c
	return &result, nil
}

// GetClientByEmail retrieves a client by contact email.
func (m *MockStore) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.Email == email {
			result := *c
			return &result, nil
		}
	}
	return nil, ErrClientNotFound
}

// ListClients returns all clients ordered by creation time.
func (m *MockStore) ListClients(ctx context.Context) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		result := *c
		clients = append(clients, &result)
	}
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt.Equal(clients[j].CreatedAt) {
			return clients[i].ID < clients[j].ID
		}
		return clients[i].CreatedAt.Before(clients[j].CreatedAt)
	})
	return clients, nil
}

// SetClientActive toggles a client's active flag.
func (m *MockStore) SetClientActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	c.IsActive = active
	return nil
}

// DeleteClient removes a client and its accounts.
func (m *MockStore) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(m.clients, id)
	for aid, a := range m.accounts {
		if a.ClientID == id {
			delete(m.accounts, aid)
		}
	}
	return nil
}

// CreateAccount stores a new account.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.ID]; ok {
		return ErrAccountAlreadyExists
	}
	if m.accountEmailTakenLocked(account.Email, "") {
		return ErrAccountAlreadyExists
	}
	if _, ok := m.clients[account.ClientID]; !ok {
		return ErrClientNotFound
	}
	a := *account
	m.accounts[a.ID] = &a
	return nil
}

// GetAccount retrieves an account by ID.
func (m *MockStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	result := *a
	return &result, nil
}

// GetAccountByEmail retrieves an account by login email.
func (m *MockStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.Email == email {
			result := *a
			return &result, nil
		}
	}
	return nil, ErrAccountNotFound
}

// ListAccountsByClient returns the accounts bound to a client.
func (m *MockStore) ListAccountsByClient(ctx context.Context, clientID string) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := []*Account{}
	for _, a := range m.accounts {
		if a.ClientID == clientID {
			result := *a
			accounts = append(accounts, &result)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// UpdateAccount applies the non-nil fields of update.
func (m *MockStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if update.Email != nil && m.accountEmailTakenLocked(*update.Email, id) {
		return ErrAccountAlreadyExists
	}
	if update.Username != nil {
		a.Username = *update.Username
	}
	if update.Email != nil {
		a.Email = *update.Email
	}
	return nil
}

// UpdateAccountPassword replaces the stored password hash.
func (m *MockStore) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	return m.mutateAccount(id, func(a *Account) { a.PasswordHash = passwordHash })
}

// UpdateAccountProfilePicture sets or clears the profile picture reference.
func (m *MockStore) UpdateAccountProfilePicture(ctx context.Context, id, ref string) error {
	return m.mutateAccount(id, func(a *Account) { a.ProfilePicture = ref })
}

// SetAccountActive toggles an account's active flag.
func (m *MockStore) SetAccountActive(ctx context.Context, id string, active bool) error {
	return m.mutateAccount(id, func(a *Account) { a.IsActive = active })
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) mutateAccount(id string, fn func(*Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(a)
	return nil
}

func (m *MockStore) accountEmailTakenLocked(email, exceptID string) bool {
	for _, a := range m.accounts {
		if a.Email == email && a.ID != exceptID {
			return true
		}
	}
	return false
}
