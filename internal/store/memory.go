package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/driveclone/apiserver/types"
	"github.com/google/uuid"
)

// MemoryAccountRepository keeps accounts in process memory. The uniqueness
// check and the insert happen under one lock.
type MemoryAccountRepository struct {
	mu         sync.RWMutex
	byID       map[string]types.Account
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:       make(map[string]types.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryAccountRepository) GetByUsername(_ context.Context, username string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok || r.byID[id].Username != username {
		return types.Account{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) FindConflict(_ context.Context, username, email string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflictLocked(username, email)
}

func (r *MemoryAccountRepository) Create(_ context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conflictLocked(account.Username, account.Email); err != nil {
		return types.Account{}, err
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC()

	r.byID[account.ID] = account
	r.byUsername[strings.ToLower(account.Username)] = account.ID
	r.byEmail[strings.ToLower(account.Email)] = account.ID
	return account, nil
}

func (r *MemoryAccountRepository) Ping(context.Context) error {
	return nil
}

func (r *MemoryAccountRepository) conflictLocked(username, email string) error {
	if _, ok := r.byEmail[strings.ToLower(email)]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := r.byUsername[strings.ToLower(username)]; ok {
		return ErrDuplicateUsername
	}
	return nil
}
