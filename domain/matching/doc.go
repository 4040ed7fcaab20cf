// Package matching implements price-time priority matching over an
// orderbook.Book.
//
// CreateOrder walks the opposite side best level first and fills resting
// orders in arrival order at their own price. Fill-or-kill orders reserve
// the liquidity they need before any fill is committed. MatchOrders
// uncrosses the book after concurrent price updates.
package matching
