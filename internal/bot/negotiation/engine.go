package negotiation

import (
	"fmt"
	"math"
)

// Phase tracks where a negotiation sits in its lifecycle. Accepted and
// ClosedFinal are terminal; re-entry requires a fresh State.
type Phase string

const (
	PhaseNone        Phase = "no_negotiation"
	PhaseActive      Phase = "active"
	PhaseAccepted    Phase = "accepted"
	PhaseClosedFinal Phase = "closed_final"
)

// Outcome tags the result of one processed offer attempt. The tag is consumed
// by the response layer; the engine itself only produces numbers and tags.
type Outcome string

const (
	OutcomeAcceptCustomerOffer Outcome = "accept_customer_offer"
	OutcomeCounterOffer        Outcome = "counter_offer"
	OutcomeFinalOffer          Outcome = "final_offer"
)

// State is the mutable record of one haggling sequence over one product.
// CurrentOffer never increases across offer rounds.
type State struct {
	ProductID          string  `json:"product_id"`
	OriginalPrice      float64 `json:"original_price"`
	CurrentOffer       float64 `json:"current_offer"`
	RoundCount         int     `json:"round_count"`
	MinAcceptablePrice float64 `json:"min_acceptable_price"`
	Active             bool    `json:"is_active"`
	Phase              Phase   `json:"phase"`
}

// Config tunes the engine. Zero values fall back to the defaults below.
type Config struct {
	// DiscountSteps is an ascending schedule of discount fractions applied
	// round by round. The last step is the deepest discount ever offered.
	DiscountSteps []float64
	// PriceStep is the granularity counter-offers are rounded to.
	PriceStep float64
	// MaxDiscountPercent bounds the acceptable price when Start is called
	// without an explicit tenant policy.
	MaxDiscountPercent float64
}

var DefaultDiscountSteps = []float64{0.05, 0.10, 0.15}

const (
	DefaultPriceStep          = 250.0
	DefaultMaxDiscountPercent = 15.0
)

// Engine computes counter-offers. It holds only configuration and is safe for
// concurrent use; all per-conversation data lives in State.
type Engine struct {
	steps              []float64
	priceStep          float64
	maxDiscountPercent float64
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		steps:              cfg.DiscountSteps,
		priceStep:          cfg.PriceStep,
		maxDiscountPercent: cfg.MaxDiscountPercent,
	}
	if len(e.steps) == 0 {
		e.steps = DefaultDiscountSteps
	}
	if e.priceStep <= 0 {
		e.priceStep = DefaultPriceStep
	}
	if e.maxDiscountPercent <= 0 {
		e.maxDiscountPercent = DefaultMaxDiscountPercent
	}
	return e
}

// Start opens a negotiation for a product. maxDiscountPercent <= 0 falls back
// to the engine default. The minimum acceptable price is fixed here and never
// recomputed for the lifetime of the state.
func (e *Engine) Start(productID string, price, maxDiscountPercent float64) State {
	if maxDiscountPercent <= 0 {
		maxDiscountPercent = e.maxDiscountPercent
	}
	return State{
		ProductID:          productID,
		OriginalPrice:      price,
		CurrentOffer:       price,
		MinAcceptablePrice: price * (1 - maxDiscountPercent/100),
		Active:             true,
		Phase:              PhaseActive,
	}
}

// ProcessOffer handles one haggle attempt. customerOffer is nil when the
// customer asked for a lower price without naming a number.
//
// On an inactive state no round is consumed and the standing price is
// returned unchanged; callers must Start a new state to negotiate again.
func (e *Engine) ProcessOffer(st *State, customerOffer *float64) (Outcome, float64) {
	if !st.Active {
		if st.Phase == PhaseAccepted {
			return OutcomeAcceptCustomerOffer, st.CurrentOffer
		}
		return OutcomeFinalOffer, st.CurrentOffer
	}

	st.RoundCount++

	if customerOffer != nil && *customerOffer >= st.MinAcceptablePrice {
		price := *customerOffer
		// The agreed price never exceeds the standing counter-offer.
		if price > st.CurrentOffer {
			price = st.CurrentOffer
		}
		st.CurrentOffer = price
		st.Active = false
		st.Phase = PhaseAccepted
		return OutcomeAcceptCustomerOffer, price
	}

	return e.counterOffer(st)
}

func (e *Engine) counterOffer(st *State) (Outcome, float64) {
	last := len(e.steps) - 1
	idx := st.RoundCount - 1
	if idx > last {
		idx = last
	}

	newPrice := st.OriginalPrice * (1 - e.steps[idx])
	newPrice = math.Round(newPrice/e.priceStep) * e.priceStep
	if newPrice < st.MinAcceptablePrice {
		newPrice = st.MinAcceptablePrice
	}
	if newPrice > st.CurrentOffer {
		newPrice = st.CurrentOffer
	}
	st.CurrentOffer = newPrice

	if idx == last {
		// The deepest discount was already on the table before this round;
		// a repeated rejection closes the negotiation.
		if st.RoundCount-1 > last {
			st.Active = false
			st.Phase = PhaseClosedFinal
		}
		return OutcomeFinalOffer, newPrice
	}
	return OutcomeCounterOffer, newPrice
}

// Instruction maps an outcome to the natural-language directive handed to the
// response model. The engine never generates customer-facing prose itself.
func (e *Engine) Instruction(outcome Outcome, price, original float64) string {
	switch outcome {
	case OutcomeAcceptCustomerOffer:
		return fmt.Sprintf("Accept the customer's price of %.0f enthusiastically and congratulate them on the deal.", price)
	case OutcomeCounterOffer:
		return fmt.Sprintf("The customer wants a discount. Offer %.0f as a goodwill price; the original price was %.0f.", price, original)
	case OutcomeFinalOffer:
		return fmt.Sprintf("State politely that %.0f is the final price and no further discount is possible.", price)
	default:
		return ""
	}
}
