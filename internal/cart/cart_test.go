package cart

import (
	"sync"
	"testing"

	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id, price string, qty int) domain.CartItem {
	return domain.CartItem{ID: id, Name: id, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func testSettings() domain.Settings {
	return domain.Settings{
		Version:        1,
		OrganizationID: "org-1",
		Currency:       "USD",
		Taxes: []domain.TaxRule{
			{ID: "vat", Rate: decimal.NewFromInt(8), Kind: domain.TaxKindPercentage, Enabled: true},
		},
	}
}

func TestCart_AddItem_MergesSameID(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("burger", "10", 1)))
	require.NoError(t, c.AddItem(item("burger", "10", 2)))
	require.NoError(t, c.AddItem(item("fries", "5", 1)))

	state := c.Snapshot()
	require.Len(t, state.Items, 2)
	assert.Equal(t, 3, state.Items[0].Quantity)
}

func TestCart_AddItem_RejectsInvalid(t *testing.T) {
	c := New()

	err := c.AddItem(item("neg", "-1", 1))
	assert.True(t, domain.IsValidation(err))

	err = c.AddItem(item("zero", "1", 0))
	assert.True(t, domain.IsValidation(err))

	err = c.AddItem(item("", "1", 1))
	assert.True(t, domain.IsValidation(err))

	assert.True(t, c.IsEmpty())
}

func TestCart_UpdateQuantity_ZeroRemovesLine(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("burger", "10", 2)))

	require.NoError(t, c.UpdateQuantity("burger", 5))
	assert.Equal(t, 5, c.Snapshot().Items[0].Quantity)

	require.NoError(t, c.UpdateQuantity("burger", 0))
	assert.True(t, c.IsEmpty())

	assert.ErrorIs(t, c.UpdateQuantity("burger", 1), domain.ErrItemNotFound)
}

func TestCart_RemoveItem(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("a", "1", 1)))
	require.NoError(t, c.AddItem(item("b", "1", 1)))

	require.NoError(t, c.RemoveItem("a"))
	state := c.Snapshot()
	require.Len(t, state.Items, 1)
	assert.Equal(t, "b", state.Items[0].ID)

	assert.ErrorIs(t, c.RemoveItem("a"), domain.ErrItemNotFound)
}

func TestCart_ApplyDiscount_CappedAtFifty(t *testing.T) {
	c := New()

	require.NoError(t, c.ApplyDiscount(decimal.NewFromInt(50)))
	err := c.ApplyDiscount(decimal.NewFromInt(51))
	assert.True(t, domain.IsValidation(err))
	assert.True(t, c.Snapshot().DiscountPercent.Equal(decimal.NewFromInt(50)))
}

func TestCart_SetItemDiscount(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("fries", "5", 1)))

	require.NoError(t, c.SetItemDiscount("fries", decimal.NewFromInt(50)))
	assert.True(t, domain.IsValidation(c.SetItemDiscount("fries", decimal.NewFromInt(120))))
	assert.ErrorIs(t, c.SetItemDiscount("nope", decimal.NewFromInt(10)), domain.ErrItemNotFound)
	assert.Equal(t, "50", c.Snapshot().Items[0].DiscountPercent.String())
}

func TestCart_DiscountRoundTripRestoresTotals(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("burger", "10", 2)))
	require.NoError(t, c.AddItem(item("fries", "5", 1)))
	require.NoError(t, c.SetItemDiscount("fries", decimal.NewFromInt(50)))
	settings := testSettings()

	before := c.Totals(settings, pricing.Extras{})
	require.NoError(t, c.ApplyDiscount(decimal.NewFromInt(10)))
	discounted := c.Totals(settings, pricing.Extras{})
	require.NoError(t, c.RemoveDiscount())
	after := c.Totals(settings, pricing.Extras{})

	assert.Equal(t, "21.87", discounted.Total.StringFixed(2))
	assert.True(t, before.Total.Equal(after.Total))
	assert.True(t, before.TaxAmount.Equal(after.TaxAmount))
	assert.True(t, after.CartDiscountAmount.IsZero())
}

func TestCart_SnapshotIsACopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("a", "1", 1)))

	snap := c.Snapshot()
	require.NoError(t, c.UpdateQuantity("a", 9))

	assert.Equal(t, 1, snap.Items[0].Quantity)
}

func TestCart_Clear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("a", "1", 1)))
	require.NoError(t, c.ApplyDiscount(decimal.NewFromInt(5)))

	require.NoError(t, c.Clear())

	assert.True(t, c.IsEmpty())
	assert.True(t, c.Snapshot().DiscountPercent.IsZero())
}

func TestCart_ConcurrentAdds(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.AddItem(item("coffee", "3", 1))
		}()
	}
	wg.Wait()

	state := c.Snapshot()
	require.Len(t, state.Items, 1)
	assert.Equal(t, 50, state.Items[0].Quantity)
}

func TestCart_FrozenRejectsMutations(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("a", "1", 1)))

	state := c.Freeze()
	require.Len(t, state.Items, 1)

	assert.ErrorIs(t, c.AddItem(item("b", "2", 1)), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.UpdateQuantity("a", 3), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.RemoveItem("a"), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.SetItemDiscount("a", decimal.NewFromInt(10)), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.ApplyDiscount(decimal.NewFromInt(10)), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.RemoveDiscount(), domain.ErrSubmissionInProgress)
	assert.ErrorIs(t, c.Clear(), domain.ErrSubmissionInProgress)
	assert.Equal(t, state, c.Snapshot())

	c.Release(false)
	require.NoError(t, c.AddItem(item("b", "2", 1)))
	assert.Len(t, c.Snapshot().Items, 2)
}

func TestCart_ReleaseWithClear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(item("a", "1", 1)))
	require.NoError(t, c.ApplyDiscount(decimal.NewFromInt(5)))

	c.Freeze()
	c.Release(true)

	assert.True(t, c.IsEmpty())
	assert.True(t, c.Snapshot().DiscountPercent.IsZero())
	require.NoError(t, c.AddItem(item("b", "2", 1)))
}
