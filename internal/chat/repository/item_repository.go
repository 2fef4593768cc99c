package repository

import (
	"context"
	"errors"
	"sync"

	"chat_presence_service/internal/chat/domain"
	errprocess "chat_presence_service/pkg/err"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ItemDirectory lookup of listings owned by the marketplace
type ItemDirectory interface {
	FindItem(ctx context.Context, itemID string) (*domain.Item, error)
}

type pgItemDirectory struct {
	pool *pgxpool.Pool
}

// NewPGItemDirectory read items from the marketplace database
func NewPGItemDirectory(pool *pgxpool.Pool) ItemDirectory {
	return &pgItemDirectory{pool: pool}
}

func (d *pgItemDirectory) FindItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var item domain.Item
	err := d.pool.QueryRow(ctx,
		`SELECT id, owner_id, title FROM items WHERE id = $1 AND deleted_at IS NULL`, itemID,
	).Scan(&item.ID, &item.OwnerID, &item.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errprocess.New(errprocess.NotFound, "item not found")
	}
	if err != nil {
		return nil, errprocess.Wrap(errprocess.Internal, "find item", err)
	}
	return &item, nil
}

// MemoryItemDirectory fixed set of items
type MemoryItemDirectory struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// NewMemoryItemDirectory create a MemoryItemDirectory seeded with items
func NewMemoryItemDirectory(items ...domain.Item) *MemoryItemDirectory {
	d := &MemoryItemDirectory{items: make(map[string]domain.Item, len(items))}
	for _, it := range items {
		d.items[it.ID] = it
	}
	return d
}

// Put add or replace an item
func (d *MemoryItemDirectory) Put(item domain.Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[item.ID] = item
}

// FindItem implements ItemDirectory
func (d *MemoryItemDirectory) FindItem(ctx context.Context, itemID string) (*domain.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	it, ok := d.items[itemID]
	if !ok {
		return nil, errprocess.New(errprocess.NotFound, "item not found")
	}
	return &it, nil
}
