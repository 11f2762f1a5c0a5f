package lease

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INDEX SERIES - Published index values (collaborator)
// =============================================================================

// IndexSeries looks up published index values.
type IndexSeries interface {
	// IndexValue returns the latest value of the index published on or
	// before the given date.
	IndexValue(index LinkageType, onOrBefore Date) (decimal.Decimal, bool)
}

// IndexPoint is one published figure.
type IndexPoint struct {
	PublishedOn Date            `json:"published_on"`
	Value       decimal.Decimal `json:"value"`
}

// IndexTable is an in-memory IndexSeries. Safe for concurrent use.
type IndexTable struct {
	mu     sync.RWMutex
	series map[LinkageType][]IndexPoint
}

func NewIndexTable() *IndexTable {
	return &IndexTable{series: make(map[LinkageType][]IndexPoint)}
}

// Set records a published value, replacing any value on the same date.
func (t *IndexTable) Set(index LinkageType, p IndexPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	points := t.series[index]
	i := sort.Search(len(points), func(i int) bool {
		return !points[i].PublishedOn.Before(p.PublishedOn)
	})
	if i < len(points) && points[i].PublishedOn.Equal(p.PublishedOn) {
		points[i] = p
		return
	}
	points = append(points, IndexPoint{})
	copy(points[i+1:], points[i:])
	points[i] = p
	t.series[index] = points
}

func (t *IndexTable) IndexValue(index LinkageType, onOrBefore Date) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	points := t.series[index]
	// first point published after the date
	i := sort.Search(len(points), func(i int) bool {
		return points[i].PublishedOn.After(onOrBefore)
	})
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return points[i-1].Value, true
}

// Points returns a copy of the series for index.
func (t *IndexTable) Points(index LinkageType) []IndexPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]IndexPoint(nil), t.series[index]...)
}
