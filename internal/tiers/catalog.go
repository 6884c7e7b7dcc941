// Package tiers содержит каталог тарифов: закрытое сопоставление
// идентификаторов цен Stripe внутренним тарифам системы.
package tiers

import (
	"errors"
	"fmt"

	"github.com/magabrotheeeer/billing-reconciler/internal/config"
)

// ErrUnknownPrice возвращается, когда price id или lookup key
// отсутствует в каталоге. Это ошибка конфигурации, а не сбой среды.
var ErrUnknownPrice = errors.New("unknown price")

// IntervalMonth и IntervalYear — допустимые интервалы тарификации.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Entry описывает один тариф каталога.
type Entry struct {
	PriceID   string // Идентификатор цены у Stripe
	LookupKey string // Lookup key цены у Stripe, может быть пустым
	Tier      string // Внутренний тариф: pro или vip
	Student   bool   // Студенческая цена
	Interval  string // Интервал тарификации: month или year
}

// planKey однозначно определяет цену для клиентских операций.
type planKey struct {
	tier     string
	student  bool
	interval string
}

// Catalog хранит записи каталога с индексами по price id,
// lookup key и тройке (тариф, студент, интервал).
type Catalog struct {
	byPriceID   map[string]Entry
	byLookupKey map[string]Entry
	byPlan      map[planKey]Entry
}

// NewCatalog строит каталог из записей конфигурации.
// Дубликат price id, lookup key или тройки (тариф, студент, интервал)
// считается ошибкой конфигурации. Пустой интервал означает month.
func NewCatalog(entries []config.TierEntry) (*Catalog, error) {
	const op = "tiers.NewCatalog"
	c := &Catalog{
		byPriceID:   make(map[string]Entry, len(entries)),
		byLookupKey: make(map[string]Entry),
		byPlan:      make(map[planKey]Entry, len(entries)),
	}
	for _, e := range entries {
		if e.PriceID == "" {
			return nil, fmt.Errorf("%s: entry for tier %q has empty price_id", op, e.Tier)
		}
		if _, ok := c.byPriceID[e.PriceID]; ok {
			return nil, fmt.Errorf("%s: duplicate price_id %q", op, e.PriceID)
		}
		interval := e.Interval
		if interval == "" {
			interval = IntervalMonth
		}
		if interval != IntervalMonth && interval != IntervalYear {
			return nil, fmt.Errorf("%s: price %q has unknown interval %q", op, e.PriceID, e.Interval)
		}
		entry := Entry{
			PriceID:   e.PriceID,
			LookupKey: e.LookupKey,
			Tier:      e.Tier,
			Student:   e.Student,
			Interval:  interval,
		}
		c.byPriceID[e.PriceID] = entry
		if e.LookupKey != "" {
			if _, ok := c.byLookupKey[e.LookupKey]; ok {
				return nil, fmt.Errorf("%s: duplicate lookup_key %q", op, e.LookupKey)
			}
			c.byLookupKey[e.LookupKey] = entry
		}
		key := planKey{tier: entry.Tier, student: entry.Student, interval: interval}
		if _, ok := c.byPlan[key]; ok {
			return nil, fmt.Errorf("%s: duplicate entry for tier %q student %t interval %q",
				op, entry.Tier, entry.Student, interval)
		}
		c.byPlan[key] = entry
	}
	return c, nil
}

// Resolve ищет тариф по price id, затем по lookup key.
// Возвращает ErrUnknownPrice, если цена не входит в каталог.
func (c *Catalog) Resolve(priceID, lookupKey string) (Entry, error) {
	const op = "tiers.Resolve"
	if e, ok := c.byPriceID[priceID]; ok {
		return e, nil
	}
	if lookupKey != "" {
		if e, ok := c.byLookupKey[lookupKey]; ok {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: price %q lookup %q: %w", op, priceID, lookupKey, ErrUnknownPrice)
}

// FindByTier возвращает запись каталога по тарифу, студенческому признаку
// и интервалу тарификации. Пустой интервал означает month. Используется
// при создании checkout-сессии и апгрейде подписки.
func (c *Catalog) FindByTier(tier string, student bool, interval string) (Entry, error) {
	const op = "tiers.FindByTier"
	if interval == "" {
		interval = IntervalMonth
	}
	if e, ok := c.byPlan[planKey{tier: tier, student: student, interval: interval}]; ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%s: tier %q student %t interval %q: %w", op, tier, student, interval, ErrUnknownPrice)
}
