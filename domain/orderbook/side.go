package orderbook

import "github.com/zhangyunhao116/skipmap"

// bookSide is one side of the book: a lock-free skip list from price to
// level, ordered best first.
type bookSide struct {
	side   Side
	levels *skipmap.FuncMap[int64, *PriceLevel]
}

func newBookSide(side Side) *bookSide {
	less := func(a, b int64) bool { return a < b }
	if side == Buy {
		less = func(a, b int64) bool { return a > b }
	}
	return &bookSide{
		side:   side,
		levels: skipmap.NewFunc[int64, *PriceLevel](less),
	}
}

// levelFor returns the level at price, creating it when absent.
func (s *bookSide) levelFor(price int64) *PriceLevel {
	lvl, _ := s.levels.LoadOrStoreLazy(price, func() *PriceLevel {
		return newPriceLevel(s.side, price)
	})
	return lvl
}

func (s *bookSide) find(price int64) (*PriceLevel, bool) {
	return s.levels.Load(price)
}

// best returns the best level that still links at least one order.
func (s *bookSide) best() *PriceLevel {
	var out *PriceLevel
	s.levels.Range(func(_ int64, lvl *PriceLevel) bool {
		if lvl.Empty() {
			return true
		}
		out = lvl
		return false
	})
	return out
}

// walk visits non-empty levels best first until fn returns false.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	s.levels.Range(func(_ int64, lvl *PriceLevel) bool {
		if lvl.Empty() {
			return true
		}
		return fn(lvl)
	})
}

// pruneLocked drops an emptied level. The caller holds lvl.mu.
func (s *bookSide) pruneLocked(lvl *PriceLevel) {
	if lvl.dead || lvl.head != nil {
		return
	}
	lvl.dead = true
	s.levels.Delete(lvl.price)
}

func (s *bookSide) depth() int {
	return s.levels.Len()
}
