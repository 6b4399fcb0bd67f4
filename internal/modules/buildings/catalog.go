package buildings

import "github.com/skourtis/boomtown/internal/domain"

// defaultCatalog is the shipped building catalog. Costs and profits are
// integer minor-units; licensed types carry a per-map cap.
func defaultCatalog() []domain.BuildingType {
	return []domain.BuildingType{
		{ID: "market_stall", Name: "Market Stall", BaseCost: 2_000, BaseProfit: 120, LevelRequired: 1, VisualClass: "small"},
		{ID: "hot_dog_stand", Name: "Hot Dog Stand", BaseCost: 5_000, BaseProfit: 300, LevelRequired: 1, VisualClass: "small",
			Variants: []string{"classic", "chili", "veggie"}},
		{ID: "campsite", Name: "Campsite", BaseCost: 8_000, BaseProfit: 450, LevelRequired: 2, VisualClass: "small"},
		{ID: "shop", Name: "Shop", BaseCost: 15_000, BaseProfit: 800, LevelRequired: 2, VisualClass: "medium",
			Variants: []string{"grocer", "hardware", "clothes"}},
		{ID: "burger_bar", Name: "Burger Bar", BaseCost: 25_000, BaseProfit: 1_400, LevelRequired: 3, VisualClass: "medium"},
		{ID: "motel", Name: "Motel", BaseCost: 60_000, BaseProfit: 3_000, LevelRequired: 4, VisualClass: "medium"},
		{ID: "high_street_store", Name: "High Street Store", BaseCost: 120_000, BaseProfit: 5_500, LevelRequired: 5, VisualClass: "large"},
		{ID: "restaurant", Name: "Restaurant", BaseCost: 180_000, BaseProfit: 8_000, LevelRequired: 5, VisualClass: "large",
			Variants: []string{"bistro", "steakhouse", "seafood"}},
		{ID: "manor", Name: "Manor", BaseCost: 350_000, BaseProfit: 12_000, LevelRequired: 6, VisualClass: "large"},
		{ID: "casino", Name: "Casino", BaseCost: 750_000, BaseProfit: 30_000, LevelRequired: 7, MaxPerMap: 1, VisualClass: "large"},
		{ID: "temple", Name: "Temple", BaseCost: 500_000, BaseProfit: 6_000, LevelRequired: 7, MaxPerMap: 1, VisualClass: "large"},
		{ID: "bank", Name: "Bank", BaseCost: 900_000, BaseProfit: 20_000, LevelRequired: 8, MaxPerMap: 1, VisualClass: "large"},
		{ID: "police_station", Name: "Police Station", BaseCost: 400_000, BaseProfit: 2_000, LevelRequired: 6, MaxPerMap: 1, VisualClass: "large"},

		// Visual-only markers never earn and are replaced freely
		{ID: domain.BuildingDemolished, Name: "Demolished Site", VisualClass: "small", VisualOnly: true},
		{ID: domain.BuildingClaimStake, Name: "Claim Stake", VisualClass: "small", VisualOnly: true},
	}
}
