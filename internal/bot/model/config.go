package model

// ================ Config ================

// DispatchConfig sizes the shared queue and worker pool.
type DispatchConfig struct {
	QueueCapacity int    `envconfig:"DISPATCH_QUEUE_CAPACITY" default:"100"`
	Workers       int    `envconfig:"DISPATCH_WORKERS" default:"3"`
	FallbackReply string `envconfig:"DISPATCH_FALLBACK_REPLY" default:"Sorry, something went wrong on our side. Give me a minute and I will get back to you."`
}

// NegotiationConfig tunes the haggling schedule. The discount steps are an
// ascending schedule applied round by round; extending it beyond three steps
// is a pricing-policy decision, not a tuning knob.
type NegotiationConfig struct {
	DiscountSteps      []float64 `envconfig:"NEGOTIATION_DISCOUNT_STEPS" default:"0.05,0.10,0.15"`
	PriceStep          float64   `envconfig:"NEGOTIATION_PRICE_STEP" default:"250"`
	MaxDiscountPercent float64   `envconfig:"NEGOTIATION_MAX_DISCOUNT_PERCENT" default:"15"`
}

// BrainConfig configures the response model of the processing engine.
type BrainConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
	MaxTurns    int     `envconfig:"RESPONSE_MAX_TURNS" default:"10"`
}

// ================ Tenant config ================

// TenantConfig holds the per-business settings a running session operates
// with. Fields are explicit; ad-hoc maps are not accepted.
type TenantConfig struct {
	TenantName         string
	City               string
	MaxDiscountPercent float64
	ShippingByRegion   map[string]int
	PersonaTone        string
}

// TenantConfigPatch is a partial TenantConfig; nil fields are left untouched
// on merge.
type TenantConfigPatch struct {
	TenantName         *string
	City               *string
	MaxDiscountPercent *float64
	ShippingByRegion   map[string]int
	PersonaTone        *string
}

// Apply merges the patch into cfg field by field and returns the result.
func (p TenantConfigPatch) Apply(cfg TenantConfig) TenantConfig {
	if p.TenantName != nil {
		cfg.TenantName = *p.TenantName
	}
	if p.City != nil {
		cfg.City = *p.City
	}
	if p.MaxDiscountPercent != nil {
		cfg.MaxDiscountPercent = *p.MaxDiscountPercent
	}
	if p.ShippingByRegion != nil {
		merged := make(map[string]int, len(cfg.ShippingByRegion)+len(p.ShippingByRegion))
		for k, v := range cfg.ShippingByRegion {
			merged[k] = v
		}
		for k, v := range p.ShippingByRegion {
			merged[k] = v
		}
		cfg.ShippingByRegion = merged
	}
	if p.PersonaTone != nil {
		cfg.PersonaTone = *p.PersonaTone
	}
	return cfg
}

// SessionStatus reports the lifecycle state of a tenant's session.
type SessionStatus struct {
	Running   bool `json:"running"`
	Connected bool `json:"connected"`
}
