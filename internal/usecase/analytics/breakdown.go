package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

// Unspecified is the bucket key for trades without a setup
const Unspecified = "unspecified"

// Bucket is the performance of the closed trades sharing a key
type Bucket struct {
	Key     string
	Trades  int
	Wins    int
	Losses  int
	NetPnL  decimal.Decimal
	WinRate decimal.Decimal
	AvgPnL  decimal.Decimal
}

type keyFunc func(t *domain.Trade) []string

func group(trades []*domain.Trade, keys keyFunc) map[string]*Bucket {
	buckets := make(map[string]*Bucket)
	for _, t := range closedByTime(trades) {
		for _, key := range keys(t) {
			b, ok := buckets[key]
			if !ok {
				b = &Bucket{Key: key}
				buckets[key] = b
			}
			net := t.NetPnL()
			b.Trades++
			b.NetPnL = b.NetPnL.Add(net)
			switch t.Outcome() {
			case domain.OutcomeWin:
				b.Wins++
			case domain.OutcomeLoss:
				b.Losses++
			}
		}
	}
	for _, b := range buckets {
		n := decimal.NewFromInt(int64(b.Trades))
		b.WinRate = decimal.NewFromInt(int64(b.Wins)).Div(n).Mul(hundred).Round(2)
		b.AvgPnL = b.NetPnL.Div(n).Round(8)
	}
	return buckets
}

// byPnL sorts buckets by net P&L descending, then key
func byPnL(m map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].NetPnL.Cmp(out[j].NetPnL); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// inOrder returns the buckets whose keys appear in order, skipping empty ones
func inOrder(m map[string]*Bucket, order []string) []Bucket {
	out := make([]Bucket, 0, len(m))
	for _, key := range order {
		if b, ok := m[key]; ok {
			out = append(out, *b)
		}
	}
	return out
}

// BySymbol groups closed trades by symbol
func BySymbol(trades []*domain.Trade) []Bucket {
	return byPnL(group(trades, func(t *domain.Trade) []string { return []string{t.Symbol} }))
}

// BySide groups closed trades into LONG and SHORT
func BySide(trades []*domain.Trade) []Bucket {
	return byPnL(group(trades, func(t *domain.Trade) []string { return []string{string(t.Side)} }))
}

// BySetup groups closed trades by setup name
func BySetup(trades []*domain.Trade) []Bucket {
	return byPnL(group(trades, func(t *domain.Trade) []string {
		if t.Setup == "" {
			return []string{Unspecified}
		}
		return []string{t.Setup}
	}))
}

// ByTag counts a trade once under each of its tags; untagged trades are skipped
func ByTag(trades []*domain.Trade) []Bucket {
	return byPnL(group(trades, func(t *domain.Trade) []string { return t.Tags }))
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// ByWeekday groups closed trades by the local weekday they were opened, Monday first
func ByWeekday(trades []*domain.Trade, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.UTC
	}
	m := group(trades, func(t *domain.Trade) []string {
		return []string{t.OpenedAt.In(loc).Weekday().String()}
	})
	return inOrder(m, weekdays)
}

var hours = func() []string {
	h := make([]string, 24)
	for i := range h {
		h[i] = fmt.Sprintf("%02d", i)
	}
	return h
}()

// ByHour groups closed trades by the local hour they were opened
func ByHour(trades []*domain.Trade, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.UTC
	}
	m := group(trades, func(t *domain.Trade) []string {
		return []string{fmt.Sprintf("%02d", t.OpenedAt.In(loc).Hour())}
	})
	return inOrder(m, hours)
}

// RMultiples returns the R multiple of every closed trade with a stop, in close order
func RMultiples(trades []*domain.Trade) []decimal.Decimal {
	var out []decimal.Decimal
	for _, t := range closedByTime(trades) {
		if r, ok := t.RMultiple(); ok {
			out = append(out, r.Round(4))
		}
	}
	return out
}

// AverageRMultiple is the mean R over closed trades with a stop; nil when there are none
func AverageRMultiple(trades []*domain.Trade) *decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, t := range trades {
		if !t.IsClosed() {
			continue
		}
		if r, ok := t.RMultiple(); ok {
			sum = sum.Add(r)
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(n))).Round(4)
	return &avg
}
