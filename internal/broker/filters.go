package broker

import (
	"cmp"

	"brokerage/internal/domain"
)

// A stop buy fires once the market price has risen to its stop price.
func stopBuyFilter(price int64, o *domain.StopOrder) bool { return o.Price <= price }

// A stop sell fires once the market price has fallen to its stop price.
func stopSellFilter(price int64, o *domain.StopOrder) bool { return o.Price >= price }

// Stop buys dispatch lowest stop price first, stop sells highest first. Ties
// go to the larger order, then the older one.
func stopBuyCompare(a, b *domain.StopOrder) int {
	if c := cmp.Compare(a.Price, b.Price); c != 0 {
		return c
	}
	return marketCompare(&a.Order, &b.Order)
}

func stopSellCompare(a, b *domain.StopOrder) int {
	if c := cmp.Compare(b.Price, a.Price); c != 0 {
		return c
	}
	return marketCompare(&a.Order, &b.Order)
}

func marketCompare(a, b *domain.Order) int {
	if c := cmp.Compare(b.Shares, a.Shares); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
