package app

import "sort"

// Aggregate folds the window's trades into per-wallet stats. It is a pure
// function of its input: same trades in, same stats out, regardless of
// arrival order. Volume is the sum of trade notionals; markets and
// categories are distinct sets; the sample keeps the newest sampleCap
// trades per wallet.
func Aggregate(trades []TradeEvent, sampleCap int) map[string]*WalletStats {
	stats := make(map[string]*WalletStats)

	for _, t := range trades {
		s, ok := stats[t.Wallet]
		if !ok {
			s = &WalletStats{
				Wallet:     t.Wallet,
				Markets:    make(map[string]struct{}),
				Categories: make(map[string]struct{}),
			}
			stats[t.Wallet] = s
		}

		s.Volume += t.Notional()
		s.TradeCount++
		s.Markets[t.ConditionID] = struct{}{}
		if t.Category != "" {
			s.Categories[t.Category] = struct{}{}
		}
		s.RecentSample = append(s.RecentSample, t)
	}

	for _, s := range stats {
		sortTradesNewestFirst(s.RecentSample)
		if sampleCap > 0 && len(s.RecentSample) > sampleCap {
			s.RecentSample = s.RecentSample[:sampleCap:sampleCap]
		}
	}

	return stats
}

// sortTradesNewestFirst orders trades by timestamp descending, breaking
// ties on the dedup key so the order is stable across runs.
func sortTradesNewestFirst(trades []TradeEvent) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].TimestampMs != trades[j].TimestampMs {
			return trades[i].TimestampMs > trades[j].TimestampMs
		}
		return trades[i].Key() < trades[j].Key()
	})
}
