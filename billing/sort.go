package billing

import (
	"fmt"
	"sort"
	"strings"
)

// SortOption orders a subscription list.
type SortOption string

const (
	SortNext      SortOption = "next"
	SortName      SortOption = "name"
	SortPriceLow  SortOption = "price-low"
	SortPriceHigh SortOption = "price-high"
)

func ParseSortOption(s string) (SortOption, error) {
	switch opt := SortOption(strings.ToLower(strings.TrimSpace(s))); opt {
	case "":
		return SortNext, nil
	case SortNext, SortName, SortPriceLow, SortPriceHigh:
		return opt, nil
	}
	return "", fmt.Errorf("unknown sort option %q", s)
}

// Sort orders subs in place. Ties fall back to name so the order is stable
// across calls.
func Sort(subs []Subscription, by SortOption) {
	sort.SliceStable(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		switch by {
		case SortName:
			if !strings.EqualFold(a.Name, b.Name) {
				return strings.ToLower(a.Name) < strings.ToLower(b.Name)
			}
		case SortPriceLow:
			if c := a.Price.Amount.Cmp(b.Price.Amount); c != 0 {
				return c < 0
			}
		case SortPriceHigh:
			if c := a.Price.Amount.Cmp(b.Price.Amount); c != 0 {
				return c > 0
			}
		default:
			if !a.NextPaymentDate.Equal(b.NextPaymentDate) {
				return a.NextPaymentDate.Before(b.NextPaymentDate)
			}
		}
		return a.Name < b.Name
	})
}

// CategoryGroup is one section of a grouped list.
type CategoryGroup struct {
	Category      string
	Subscriptions []Subscription
}

// GroupByCategory splits subs into categories sorted by name, keeping the
// incoming order within each group.
func GroupByCategory(subs []Subscription) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, s := range subs {
		cat := s.Category
		if cat == "" {
			cat = "Other"
		}
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, CategoryGroup{Category: cat})
		}
		groups[i].Subscriptions = append(groups[i].Subscriptions, s)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups
}
