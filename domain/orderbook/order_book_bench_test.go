package orderbook

import (
	"testing"

	"github.com/google/uuid"
)

func BenchmarkInsertRemove(b *testing.B) {
	book := NewBook()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := int64(0)
		for pb.Next() {
			o := NewLimit(uuid.New(), Buy, 100+i%16, 1)
			if err := book.Insert(o); err != nil {
				b.Fatal(err)
			}
			if _, err := book.Remove(o.ID); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}

func BenchmarkBestPrice(b *testing.B) {
	book := NewBook()
	for i := int64(0); i < 1000; i++ {
		_ = book.Insert(NewLimit(uuid.New(), Sell, 1000+i, 1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, ok := book.BestPrice(Sell); !ok {
				b.Fatal("empty side")
			}
		}
	})
}
