package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// NewRepositories wires every gorm repository to db. Transaction opens a
// database transaction and hands fn repositories bound to it.
func NewRepositories(db *gorm.DB) *Repositories {
	repos := newGormRepositories(db)
	repos.transact = func(ctx context.Context, fn func(tx *Repositories) error) error {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txRepos := newGormRepositories(tx)
			// nested calls become savepoints
			txRepos.transact = func(_ context.Context, inner func(*Repositories) error) error {
				return tx.Transaction(func(sp *gorm.DB) error {
					return inner(newGormRepositories(sp))
				})
			}
			return fn(txRepos)
		})
		return mapError(err)
	}
	return repos
}

func newGormRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Ad:      NewAdRepository(db),
		AdPlan:  NewAdPlanRepository(db),
		Wallet:  NewWalletRepository(db),
		AdEvent: NewAdEventRepository(db),
		Setting: NewSettingRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	build func() *Repositories
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory backed by MySQL
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		build: func() *Repositories { return NewRepositories(db) },
	}
}

// NewMemoryFactory creates a factory backed by the in-process store
func NewMemoryFactory() *Factory {
	return &Factory{build: NewMemoryRepositories}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = f.build()
	})
	return f.repos
}

// GetAdRepository returns the ad repository instance
func (f *Factory) GetAdRepository() AdRepository {
	return f.GetRepositories().Ad
}

// GetAdPlanRepository returns the ad plan repository instance
func (f *Factory) GetAdPlanRepository() AdPlanRepository {
	return f.GetRepositories().AdPlan
}

// GetWalletRepository returns the wallet repository instance
func (f *Factory) GetWalletRepository() WalletRepository {
	return f.GetRepositories().Wallet
}

// GetAdEventRepository returns the ad event repository instance
func (f *Factory) GetAdEventRepository() AdEventRepository {
	return f.GetRepositories().AdEvent
}

// GetSettingRepository returns the setting repository instance
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// InitializeMemoryFactory initializes the global factory with the in-process store
func InitializeMemoryFactory() {
	factoryOnce.Do(func() {
		globalFactory = NewMemoryFactory()
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
