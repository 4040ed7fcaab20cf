package orderbook

type Side uint8
type OrderType uint8
type Directive uint8
type TimeInForce uint8
type Status uint8
type Reason uint32

const (
	Buy Side = iota
	Sell
)

const (
	Limit OrderType = iota
	Market
)

const (
	DirectiveNone Directive = iota
	MakerOnly
	TakerOnly
)

const (
	GoodTillCancel TimeInForce = iota
	ImmediateOrCancel
	FillOrKill
)

const (
	Created Status = iota
	Active
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

const (
	ReasonNone Reason = iota
	ReasonInvalidOrder
	ReasonDuplicateOrderID
	ReasonWouldCrossMakerOnly
	ReasonInsufficientLiquidity
	ReasonSlippageExceeded
	ReasonUserCancelled
)

// MaxSlippageBps caps the slippage tolerance of a market order at 50%.
const MaxSlippageBps = 5000

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (t OrderType) String() string {
	if t == Market {
		return "MARKET"
	}
	return "LIMIT"
}

func (d Directive) String() string {
	switch d {
	case MakerOnly:
		return "MAKER_ONLY"
	case TakerOnly:
		return "TAKER_ONLY"
	default:
		return "NONE"
	}
}

func (t TimeInForce) String() string {
	switch t {
	case ImmediateOrCancel:
		return "IOC"
	case FillOrKill:
		return "FOK"
	default:
		return "GTC"
	}
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Resting reports whether an order in state s may sit in a price level.
func (s Status) Resting() bool {
	return s == Active || s == PartiallyFilled
}

func (s Status) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Active:
		return "ACTIVE"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonInvalidOrder:
		return "INVALID_ORDER"
	case ReasonDuplicateOrderID:
		return "DUPLICATE_ORDER_ID"
	case ReasonWouldCrossMakerOnly:
		return "WOULD_CROSS_MAKER_ONLY"
	case ReasonInsufficientLiquidity:
		return "INSUFFICIENT_LIQUIDITY"
	case ReasonSlippageExceeded:
		return "SLIPPAGE_EXCEEDED"
	case ReasonUserCancelled:
		return "USER_CANCELLED"
	default:
		return "UNKNOWN"
	}
}
