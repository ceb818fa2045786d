package service

import (
	"context"
	"errors"
	"sync"

	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"gorm.io/gorm"
)

// memoryAccountCache keeps the chart of accounts in process. The chart is
// immutable after seeding so entries never go stale on their own.
type memoryAccountCache struct {
	mu       sync.RWMutex
	accounts map[ledgerdomain.AccountCode]ledgerdomain.LedgerAccount
}

func NewAccountCache() ledgerdomain.AccountCache {
	return &memoryAccountCache{accounts: map[ledgerdomain.AccountCode]ledgerdomain.LedgerAccount{}}
}

func (c *memoryAccountCache) Get(ctx context.Context, db *gorm.DB, code ledgerdomain.AccountCode) (ledgerdomain.LedgerAccount, error) {
	c.mu.RLock()
	account, ok := c.accounts[code]
	c.mu.RUnlock()
	if ok {
		return account, nil
	}

	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledgerdomain.LedgerAccount{}, ledgerdomain.ErrUnknownAccount
	}
	if err != nil {
		return ledgerdomain.LedgerAccount{}, err
	}

	c.mu.Lock()
	c.accounts[code] = account
	c.mu.Unlock()
	return account, nil
}

func (c *memoryAccountCache) Invalidate() {
	c.mu.Lock()
	c.accounts = map[ledgerdomain.AccountCode]ledgerdomain.LedgerAccount{}
	c.mu.Unlock()
}
