package trade

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Candidate field names per logical attribute. Upstream providers do
// not agree on a schema, so we probe in order and take the first
// present, non-null value.
var (
	idKeys        = []string{"id", "tradeID", "tradeId", "trade_id", "hash", "transactionHash", "transaction_hash"}
	tokenKeys     = []string{"tokenID", "tokenId", "marketId", "marketID", "market", "conditionId", "outcome", "assetId", "asset_id"}
	sideKeys      = []string{"side", "takerSide", "makerSide", "direction", "type"}
	priceKeys     = []string{"price", "avgPrice", "executionPrice", "fillPrice", "tradePrice"}
	sizeKeys      = []string{"size", "amount", "quantity", "volume", "tradeSize"}
	timestampKeys = []string{"timestamp", "time", "createdAt", "match_time"}
)

// Normalize converts a raw upstream trade record into a NormalizedTrade.
// It returns nil when any required attribute is missing or invalid: a
// partially populated trade must never reach the signal factory, so
// normalization fails closed instead of guessing.
func Normalize(raw RawRecord) *NormalizedTrade {
	if len(raw) == 0 {
		return nil
	}

	token := firstString(raw, tokenKeys)
	if token == "" {
		return nil
	}

	side, ok := NormalizeSide(firstString(raw, sideKeys))
	if !ok {
		return nil
	}

	price, ok := firstNumber(raw, priceKeys)
	if !ok || !isPositiveFinite(price) {
		return nil
	}

	size, ok := firstNumber(raw, sizeKeys)
	if !ok || !isPositiveFinite(size) {
		return nil
	}

	ts := extractTimestamp(raw)

	t := &NormalizedTrade{
		MarketToken: token,
		Side:        side,
		Price:       price,
		Size:        size,
		Timestamp:   ts,
	}
	t.ID = extractID(raw, t)
	return t
}

// NormalizeSide maps source-specific direction vocabularies onto
// buy/sell. Re-normalizing an already-normalized value is a no-op.
func NormalizeSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "yes":
		return SideBuy, true
	case "sell", "no":
		return SideSell, true
	default:
		return "", false
	}
}

// extractID returns the source-provided trade identifier, or a
// synthesized composite key when the source has none.
func extractID(raw RawRecord, t *NormalizedTrade) string {
	if id := firstString(raw, idKeys); id != "" {
		return id
	}
	return fmt.Sprintf("%s_%d_%s", t.MarketToken, t.Timestamp, strconv.FormatFloat(t.Size, 'f', -1, 64))
}

// extractTimestamp returns the source timestamp in epoch milliseconds,
// defaulting to ingestion time when absent or unparseable.
func extractTimestamp(raw RawRecord) int64 {
	for _, key := range timestampKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := coerceFloat(v); ok && n > 0 {
			return toMillis(int64(n))
		}
		if s, ok := v.(string); ok {
			if ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && ts > 0 {
				return toMillis(ts)
			}
			if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
				return parsed.UnixMilli()
			}
		}
	}
	return time.Now().UnixMilli()
}

// toMillis interprets a bare integer timestamp as seconds or
// milliseconds depending on magnitude.
func toMillis(ts int64) int64 {
	if ts > 1e12 {
		return ts
	}
	return ts * 1000
}

// firstString probes the candidate keys and returns the first value
// coercible to a non-empty string.
func firstString(raw RawRecord, keys []string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return ""
}

// firstNumber probes the candidate keys and returns the first value
// coercible to a float64.
func firstNumber(raw RawRecord, keys []string) (float64, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := coerceFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isPositiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
