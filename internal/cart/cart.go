// Package cart holds the in-memory cart of a single device.
package cart

import (
	"sync"

	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	hundred         = decimal.NewFromInt(100)
	maxCartDiscount = decimal.NewFromInt(domain.MaxCartDiscountPercent)
)

// Cart is safe for concurrent use.
//
// While frozen, every mutation fails with domain.ErrSubmissionInProgress so
// the cart keeps matching the order being submitted.
type Cart struct {
	mu              sync.RWMutex
	items           []domain.CartItem
	discountPercent decimal.Decimal
	frozen          bool
}

func New() *Cart {
	return &Cart{}
}

// AddItem adds a line or, when the id is already present, adds to its quantity.
func (c *Cart) AddItem(item domain.CartItem) error {
	if item.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if err := pricing.ValidateItems([]domain.CartItem{item}); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}

	if i := c.indexOf(item.ID); i >= 0 {
		c.items[i].Quantity += item.Quantity
		return nil
	}
	c.items = append(c.items, item)
	return nil
}

// UpdateQuantity sets the quantity of a line. A quantity below 1 removes it.
func (c *Cart) UpdateQuantity(id string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}

	i := c.indexOf(id)
	if i < 0 {
		return domain.ErrItemNotFound
	}
	if quantity < 1 {
		c.items = append(c.items[:i], c.items[i+1:]...)
		return nil
	}
	c.items[i].Quantity = quantity
	return nil
}

func (c *Cart) RemoveItem(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}

	i := c.indexOf(id)
	if i < 0 {
		return domain.ErrItemNotFound
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

func (c *Cart) SetItemDiscount(id string, percent decimal.Decimal) error {
	if err := pricing.ValidatePercent("discount_percent", percent, hundred); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}

	i := c.indexOf(id)
	if i < 0 {
		return domain.ErrItemNotFound
	}
	c.items[i].DiscountPercent = percent
	return nil
}

// ApplyDiscount sets the cart-level discount, capped at domain.MaxCartDiscountPercent.
func (c *Cart) ApplyDiscount(percent decimal.Decimal) error {
	if err := pricing.ValidatePercent("discount_percent", percent, maxCartDiscount); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}
	c.discountPercent = percent
	return nil
}

func (c *Cart) RemoveDiscount() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}
	c.discountPercent = decimal.Zero
	return nil
}

func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return domain.ErrSubmissionInProgress
	}
	c.clearLocked()
	return nil
}

// Freeze blocks mutations and returns the state being submitted.
func (c *Cart) Freeze() domain.CartState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
	return c.snapshotLocked()
}

// Release lifts a Freeze. With clear set the submitted contents are
// dropped in the same step.
func (c *Cart) Release(clear bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = false
	if clear {
		c.clearLocked()
	}
}

func (c *Cart) clearLocked() {
	c.items = nil
	c.discountPercent = decimal.Zero
}

func (c *Cart) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

// Snapshot returns a copy of the cart that later mutations do not affect.
func (c *Cart) Snapshot() domain.CartState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cart) snapshotLocked() domain.CartState {
	return domain.CartState{
		Items:           append([]domain.CartItem(nil), c.items...),
		DiscountPercent: c.discountPercent,
	}
}

// Totals prices the current cart against a settings snapshot.
func (c *Cart) Totals(settings domain.Settings, extras pricing.Extras) domain.MoneyBreakdown {
	state := c.Snapshot()
	return pricing.ComputeTotals(state.Items, state.DiscountPercent, settings.Taxes, extras)
}

func (c *Cart) indexOf(id string) int {
	for i, item := range c.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
