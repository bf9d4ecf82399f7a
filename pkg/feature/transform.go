package feature

import (
	"math"

	"github.com/mchmarny/agepulse/pkg/errs"
)

const auctionIDModulus = 1000

// BuyMountLog is log(1 + q). Negative or non-finite quantities are rejected.
func BuyMountLog(q float64) (float64, error) {
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 {
		return 0, errs.DataQuality("buy_mount must be a non-negative number, got %v", q)
	}
	return math.Log1p(q), nil
}

// AuctionIDLastDigits returns the last three digits of a non-negative auction id.
func AuctionIDLastDigits(id int64) (int64, error) {
	if id < 0 {
		return 0, errs.DataQuality("auction_id must be non-negative, got %d", id)
	}
	return id % auctionIDModulus, nil
}
