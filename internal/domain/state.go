// Package domain holds the pure data model of the warden regulator.
// Nothing in this package depends on infrastructure; the pipeline stages,
// the transport shell and the host adapters all communicate through these
// types.
package domain

// EventKind classifies an EconomicEvent.
type EventKind string

const (
	EventTrade      EventKind = "trade"
	EventMint       EventKind = "mint"
	EventBurn       EventKind = "burn"
	EventTransfer   EventKind = "transfer"
	EventProduce    EventKind = "produce"
	EventConsume    EventKind = "consume"
	EventRoleChange EventKind = "role_change"
	EventEnter      EventKind = "enter"
	EventChurn      EventKind = "churn"
)

// MaxEventMetadataKeys bounds the metadata map on a single event. Events
// exceeding the bound are dropped at ingestion.
const MaxEventMetadataKeys = 50

// EconomicEvent is one observable action inside the host economy.
// Currency defaults to the state's first declared currency when empty.
type EconomicEvent struct {
	Kind         EventKind      `json:"kind"`
	Timestamp    int64          `json:"timestamp"`
	Actor        string         `json:"actor"`
	Role         string         `json:"role,omitempty"`
	Resource     string         `json:"resource,omitempty"`
	Currency     string         `json:"currency,omitempty"`
	Amount       float64        `json:"amount"`
	Price        float64        `json:"price,omitempty"`
	From         string         `json:"from,omitempty"`
	To           string         `json:"to,omitempty"`
	System       string         `json:"system,omitempty"`
	SourceOrSink string         `json:"sourceOrSink,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EconomyState is the raw snapshot the host hands the regulator every tick.
type EconomyState struct {
	Tick               int64                         `json:"tick"`
	Roles              []string                      `json:"roles"`
	Resources          []string                      `json:"resources"`
	Currencies         []string                      `json:"currencies"`
	AgentBalances      map[string]map[string]float64 `json:"agentBalances"`
	AgentRoles         map[string]string             `json:"agentRoles"`
	AgentInventories   map[string]map[string]float64 `json:"agentInventories,omitempty"`
	AgentSatisfaction  map[string]float64            `json:"agentSatisfaction,omitempty"`
	MarketPrices       map[string]map[string]float64 `json:"marketPrices,omitempty"`
	RecentTransactions []EconomicEvent               `json:"recentTransactions,omitempty"`
	PoolSizes          map[string]map[string]float64 `json:"poolSizes,omitempty"`
	Systems            []string                      `json:"systems,omitempty"`
	Sources            []string                      `json:"sources,omitempty"`
	Sinks              []string                      `json:"sinks,omitempty"`
}

// DefaultCurrency returns the currency an event without an explicit currency
// belongs to.
func (s *EconomyState) DefaultCurrency() string {
	if len(s.Currencies) == 0 {
		return ""
	}
	return s.Currencies[0]
}

// EventCurrency resolves the effective currency of an event against the state.
func (s *EconomyState) EventCurrency(ev *EconomicEvent) string {
	if ev.Currency != "" {
		return ev.Currency
	}
	return s.DefaultCurrency()
}
