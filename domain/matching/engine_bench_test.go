package matching

import (
	"testing"

	"github.com/google/uuid"

	"apex/domain/orderbook"
)

func BenchmarkCreateOrder_Crossing(b *testing.B) {
	e := New()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			side := orderbook.Side(i & 1)
			_, _ = e.CreateOrder(orderbook.NewLimit(uuid.New(), side, 100, 1))
			i++
		}
	})
}

func BenchmarkCreateCancel_Resting(b *testing.B) {
	e := New()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := int64(0)
		for pb.Next() {
			o := orderbook.NewLimit(uuid.New(), orderbook.Buy, 90-i%10, 1)
			if _, err := e.CreateOrder(o); err != nil {
				b.Fatal(err)
			}
			if err := e.CancelOrder(o.ID); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}
