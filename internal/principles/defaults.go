package principles

import "github.com/aristath/warden/internal/domain"

// LibraryOptions tunes the default principle set.
type LibraryOptions struct {
	// DominantRoles are exempt from crowding / suppression principles.
	DominantRoles []string
}

// DefaultLibrary returns the stock principle set in canonical registration
// order. Hosts extend or replace it through Diagnoser.Add / Remove.
func DefaultLibrary(opts LibraryOptions) []domain.Principle {
	return []domain.Principle{
		faucetsBalanceSinks(),
		inflationBounded(),
		currencyCirculates(),
		inequalityBounded(),
		profitabilityCompetitive(opts.DominantRoles),
		pricesStable(),
		onePricePerGood(),
		anchorHolds(),
		agentsStay(opts.DominantRoles),
		satisfactionFloor(),
		tradesAreReal(),
		inventoryMoves(),
		resourcesFlow(),
		meanTracksMedian(),
		systemsBalanced(),
	}
}
