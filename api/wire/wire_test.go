package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"apex/domain/matching"
	"apex/domain/orderbook"
)

func TestEventRoundTrip(t *testing.T) {
	ev := orderbook.Event{
		Seq:          42,
		Kind:         orderbook.EventFilled,
		OrderID:      uuid.New(),
		Side:         orderbook.Sell,
		Price:        1000,
		OldPrice:     -5,
		Delta:        3,
		Remaining:    7,
		Quantity:     10,
		Directive:    orderbook.MakerOnly,
		Status:       orderbook.PartiallyFilled,
		Reason:       orderbook.ReasonNone,
		OrderSeq:     9,
		Time:         time.Unix(0, 1_700_000_000_123).UTC(),
		Counterparty: uuid.New(),
		TradeSeq:     4,
		Maker:        true,
	}

	got, err := UnmarshalEvent(MarshalEvent(ev))
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestCreateOrderRequestKeepsZeroSlippage(t *testing.T) {
	in := CreateOrderRequest{
		ID: uuid.New(),
		Terms: orderbook.Terms{
			Side:        orderbook.Buy,
			Type:        orderbook.Market,
			Quantity:    5,
			Directive:   orderbook.TakerOnly,
			TimeInForce: orderbook.FillOrKill,
			Slippage:    orderbook.Bps(0),
		},
	}

	var out CreateOrderRequest
	require.NoError(t, Unmarshal(Marshal(&in), &out))
	require.NotNil(t, out.Terms.Slippage)
	assert.Zero(t, *out.Terms.Slippage)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Terms.TimeInForce, out.Terms.TimeInForce)

	in.Terms.Slippage = nil
	require.NoError(t, Unmarshal(Marshal(&in), &out))
	assert.Nil(t, out.Terms.Slippage)
}

func TestExecutionCarriesTrades(t *testing.T) {
	exec := &matching.Execution{
		OrderID:   uuid.New(),
		Status:    orderbook.Filled,
		Filled:    10,
		Remaining: 0,
		Trades: []orderbook.Trade{
			{Seq: 1, MakerID: uuid.New(), TakerID: uuid.New(), Price: 100, Quantity: 4},
			{Seq: 2, MakerID: uuid.New(), TakerID: uuid.New(), Price: 101, Quantity: 6},
		},
	}

	var out Execution
	require.NoError(t, Unmarshal(Marshal((*Execution)(exec)), &out))
	assert.Equal(t, *exec, matching.Execution(out))
}

func TestTopOfBookLevels(t *testing.T) {
	in := TopOfBook{
		BidPrice: 99, HasBid: true,
		Bids: []orderbook.LevelView{{Price: 99, Quantity: 3, Orders: 1}, {Price: 98, Quantity: 5, Orders: 2}},
	}
	var out TopOfBook
	require.NoError(t, Unmarshal(Marshal(&in), &out))
	assert.Equal(t, in, out)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	id := uuid.New()
	b := Marshal(&OrderRef{ID: id})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, 100, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	var out OrderRef
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, id, out.ID)
}

func TestMalformedInput(t *testing.T) {
	b := Marshal(&UpdateOrderRequest{ID: uuid.New(), Price: 5})

	var out UpdateOrderRequest
	require.Error(t, Unmarshal(b[:3], &out))

	bad := appendBytes(nil, 1, []byte{1, 2, 3})
	require.Error(t, Unmarshal(bad, &out))
}

func TestCodec(t *testing.T) {
	c := Codec{}
	assert.Equal(t, Name, c.Name())

	_, err := c.Marshal("not a message")
	require.Error(t, err)

	b, err := c.Marshal(&UpdateOrderRequest{Price: 7})
	require.NoError(t, err)
	var out UpdateOrderRequest
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, int64(7), out.Price)
}
