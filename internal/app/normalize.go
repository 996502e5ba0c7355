package app

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// RawTrade is a trade as reported by an exchange endpoint, before
// normalization. The HTTP and WebSocket feeds disagree on field shapes, so
// Timestamp is left loosely typed and decoded by ParseTimestampMs.
type RawTrade struct {
	Wallet      string
	ConditionID string
	Side        string
	Size        float64
	Price       float64
	Timestamp   json.RawMessage
	Category    string
	Outcome     string
	Title       string
	TxHash      string
}

var (
	// ErrBadTimestamp marks a record whose timestamp could not be decoded.
	ErrBadTimestamp = errors.New("unparseable timestamp")
	// ErrMissingField marks a record lacking a wallet or market identity.
	ErrMissingField = errors.New("missing required field")
)

// secondsCutoff separates second-precision epochs from millisecond ones.
// Anything below ~Nov 2286 in seconds, anything above is milliseconds.
const secondsCutoff = int64(1e10)

// NormalizeTrade converts a raw exchange record into the canonical
// TradeEvent: wallet lower-cased, timestamp in epoch milliseconds, side
// upper-cased with unknowns preserved as such. Records that cannot be
// normalized are rejected, not guessed at.
func NormalizeTrade(r RawTrade) (TradeEvent, error) {
	wallet := strings.ToLower(strings.TrimSpace(r.Wallet))
	if wallet == "" || strings.TrimSpace(r.ConditionID) == "" {
		return TradeEvent{}, ErrMissingField
	}

	ts, err := ParseTimestampMs(r.Timestamp)
	if err != nil {
		return TradeEvent{}, err
	}

	return TradeEvent{
		Wallet:      wallet,
		ConditionID: strings.TrimSpace(r.ConditionID),
		Side:        normalizeSide(r.Side),
		Size:        r.Size,
		Price:       r.Price,
		TimestampMs: ts,
		Category:    r.Category,
		Outcome:     r.Outcome,
		Title:       r.Title,
		TxHash:      strings.ToLower(strings.TrimSpace(r.TxHash)),
	}, nil
}

func normalizeSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideUnknown
	}
}

// ParseTimestampMs decodes a timestamp that may arrive as an integer,
// float, numeric string, or ISO-8601 string. Integer values below 1e10 are
// treated as seconds, everything else as milliseconds.
func ParseTimestampMs(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, ErrBadTimestamp
	}

	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, ErrBadTimestamp
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return 0, ErrBadTimestamp
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToMs(f), nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}

	return 0, ErrBadTimestamp
}

func epochToMs(v float64) int64 {
	if int64(v) < secondsCutoff {
		return int64(v * 1000)
	}
	return int64(v)
}
