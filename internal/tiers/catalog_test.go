package tiers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-reconciler/internal/config"
)

func testEntries() []config.TierEntry {
	return []config.TierEntry{
		{PriceID: "price_pro_monthly", LookupKey: "pro_monthly", Tier: "pro"},
		{PriceID: "price_pro_yearly", LookupKey: "pro_yearly", Tier: "pro", Interval: "year"},
		{PriceID: "price_vip_monthly", Tier: "vip"},
		{PriceID: "price_student_pro", LookupKey: "student_pro", Tier: "pro", Student: true},
	}
}

func TestNewCatalog_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []config.TierEntry
		wantErr string
	}{
		{
			name: "duplicate price id",
			entries: []config.TierEntry{
				{PriceID: "price_1", Tier: "pro"},
				{PriceID: "price_1", Tier: "vip"},
			},
			wantErr: "duplicate price_id",
		},
		{
			name: "duplicate lookup key",
			entries: []config.TierEntry{
				{PriceID: "price_1", LookupKey: "key", Tier: "pro"},
				{PriceID: "price_2", LookupKey: "key", Tier: "vip"},
			},
			wantErr: "duplicate lookup_key",
		},
		{
			name: "empty price id",
			entries: []config.TierEntry{
				{Tier: "pro"},
			},
			wantErr: "empty price_id",
		},
		{
			name: "two prices for one tier and interval",
			entries: []config.TierEntry{
				{PriceID: "price_1", Tier: "pro"},
				{PriceID: "price_2", Tier: "pro", Interval: "month"},
			},
			wantErr: "duplicate entry for tier",
		},
		{
			name: "unknown interval",
			entries: []config.TierEntry{
				{PriceID: "price_1", Tier: "pro", Interval: "week"},
			},
			wantErr: "unknown interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.entries)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalog_Resolve(t *testing.T) {
	c, err := NewCatalog(testEntries())
	require.NoError(t, err)

	tests := []struct {
		name        string
		priceID     string
		lookupKey   string
		wantTier    string
		wantStudent bool
		wantErr     error
	}{
		{
			name:     "resolve by price id",
			priceID:  "price_pro_monthly",
			wantTier: "pro",
		},
		{
			name:      "resolve by lookup key when price id unknown",
			priceID:   "price_renamed",
			lookupKey: "pro_yearly",
			wantTier:  "pro",
		},
		{
			name:        "student price",
			priceID:     "price_student_pro",
			wantTier:    "pro",
			wantStudent: true,
		},
		{
			name:      "unknown price and lookup key",
			priceID:   "price_unknown",
			lookupKey: "unknown_key",
			wantErr:   ErrUnknownPrice,
		},
		{
			name:    "empty lookup key is not matched",
			priceID: "price_unknown",
			wantErr: ErrUnknownPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := c.Resolve(tt.priceID, tt.lookupKey)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, entry.Tier)
			assert.Equal(t, tt.wantStudent, entry.Student)
		})
	}
}

func TestCatalog_FindByTier(t *testing.T) {
	c, err := NewCatalog(testEntries())
	require.NoError(t, err)

	entry, err := c.FindByTier("vip", false, "")
	require.NoError(t, err)
	assert.Equal(t, "price_vip_monthly", entry.PriceID)

	entry, err = c.FindByTier("pro", true, IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, "price_student_pro", entry.PriceID)

	_, err = c.FindByTier("vip", true, "")
	assert.ErrorIs(t, err, ErrUnknownPrice)
}

func TestCatalog_FindByTier_IntervalSelectsExactPrice(t *testing.T) {
	c, err := NewCatalog(testEntries())
	require.NoError(t, err)

	// У тарифа pro две цены, интервал выбирает конкретную.
	entry, err := c.FindByTier("pro", false, IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_monthly", entry.PriceID)

	entry, err = c.FindByTier("pro", false, IntervalYear)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_yearly", entry.PriceID)

	// Пустой интервал означает помесячную цену.
	entry, err = c.FindByTier("pro", false, "")
	require.NoError(t, err)
	assert.Equal(t, "price_pro_monthly", entry.PriceID)

	_, err = c.FindByTier("vip", false, IntervalYear)
	assert.ErrorIs(t, err, ErrUnknownPrice)
}
