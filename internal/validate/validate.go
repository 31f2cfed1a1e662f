// Package validate checks host-supplied EconomyState snapshots before they
// reach the pipeline. Violations are structured so transport clients can
// point at the exact offending field.
package validate

import (
	"fmt"

	"github.com/aristath/warden/internal/domain"
)

// Error describes one rejected field.
type Error struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Received string `json:"received"`
	Message  string `json:"message"`
}

// Result is the outcome of a state validation.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []Error  `json:"errors"`
	Warnings []string `json:"warnings"`
}

// State validates a snapshot. A nil state is invalid.
func State(s *domain.EconomyState) Result {
	r := Result{Errors: []Error{}, Warnings: []string{}}
	if s == nil {
		r.fail("state", "object", "null", "state is required")
		return r
	}

	if s.Tick < 0 {
		r.fail("tick", "non-negative integer", fmt.Sprintf("%d", s.Tick), "tick must not be negative")
	}
	if len(s.Roles) == 0 {
		r.fail("roles", "non-empty string array", "empty", "at least one role is required")
	}
	if len(s.Currencies) == 0 {
		r.fail("currencies", "non-empty string array", "empty", "at least one currency is required")
	}

	currencies := map[string]bool{}
	for _, c := range s.Currencies {
		currencies[c] = true
	}
	roles := map[string]bool{}
	for _, role := range s.Roles {
		roles[role] = true
	}

	held := map[string]bool{}
	for id, balances := range s.AgentBalances {
		for cur, v := range balances {
			path := fmt.Sprintf("agentBalances.%s.%s", id, cur)
			if !currencies[cur] {
				r.fail(path, "declared currency", cur, "balance uses an undeclared currency")
			}
			if v < 0 {
				r.fail(path, "non-negative number", fmt.Sprintf("%g", v), "balances cannot be negative")
			}
			held[cur] = true
		}
		if _, ok := s.AgentRoles[id]; !ok {
			r.warn(fmt.Sprintf("agent %s has balances but no role", id))
		}
	}

	for id, role := range s.AgentRoles {
		if !roles[role] {
			r.fail(fmt.Sprintf("agentRoles.%s", id), "declared role", role, "agent has an undeclared role")
		}
	}

	for cur, byRes := range s.MarketPrices {
		if !currencies[cur] {
			r.fail(fmt.Sprintf("marketPrices.%s", cur), "declared currency", cur, "prices use an undeclared currency")
		}
		for res, price := range byRes {
			if price < 0 {
				r.fail(fmt.Sprintf("marketPrices.%s.%s", cur, res), "non-negative number",
					fmt.Sprintf("%g", price), "prices cannot be negative")
			}
		}
	}

	for id, sat := range s.AgentSatisfaction {
		if sat < 0 || sat > 100 {
			r.fail(fmt.Sprintf("agentSatisfaction.%s", id), "number in [0,100]",
				fmt.Sprintf("%g", sat), "satisfaction is a 0..100 score")
		}
	}

	for pool, byCur := range s.PoolSizes {
		for cur, size := range byCur {
			if size < 0 {
				r.fail(fmt.Sprintf("poolSizes.%s.%s", pool, cur), "non-negative number",
					fmt.Sprintf("%g", size), "pool sizes cannot be negative")
			}
		}
	}

	for _, cur := range s.Currencies {
		if !held[cur] {
			r.warn(fmt.Sprintf("currency %s has no holder", cur))
		}
	}
	for i := range s.RecentTransactions {
		ev := &s.RecentTransactions[i]
		if ev.Currency != "" && !currencies[ev.Currency] {
			r.warn(fmt.Sprintf("event %d references unknown currency %s", i, ev.Currency))
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (r *Result) fail(path, expected, received, message string) {
	r.Errors = append(r.Errors, Error{Path: path, Expected: expected, Received: received, Message: message})
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
