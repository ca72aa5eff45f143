package aggregate

import (
	"strings"

	"github.com/crudecast/crudecast/internal/core"
)

// themeKeywords is the closed keyword table mapping raw theme tokens to
// categories. Order matters: categories are checked top to bottom and the
// first match wins for a given token.
var themeKeywords = []struct {
	theme    core.Theme
	keywords []string
}{
	{core.ThemeEnergy, []string{"OIL", "ENERGY", "GAS", "PETROLEUM", "FUEL", "MINING", "ECON_ENERGY", "OILPRICE"}},
	{core.ThemeConflict, []string{"WAR", "CONFLICT", "MILITARY", "ARMED", "VIOLENCE", "KILL", "ATTACK", "TERROR"}},
	{core.ThemeSanctions, []string{"SANCTION", "EMBARGO", "BLOCKADE", "RESTRICTION"}},
	{core.ThemeTrade, []string{"TRADE", "EXPORT", "IMPORT", "TARIFF", "COMMERCE"}},
	{core.ThemeEconomy, []string{"ECON_", "ECONOMY", "INFLATION", "CURRENCY", "FINANCE", "MARKET"}},
	{core.ThemePolicy, []string{"GOVERNMENT", "POLICY", "REGULATION", "LAW", "LEGAL"}},
}

// Categorize maps a raw theme token to its category by case-insensitive
// substring match. Tokens outside every keyword list report false.
func Categorize(token string) (core.Theme, bool) {
	upper := strings.ToUpper(token)
	for _, entry := range themeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(upper, kw) {
				return entry.theme, true
			}
		}
	}
	return "", false
}

// categorizeAll returns the set of categories a record's theme tokens map to.
// A record may land in several categories, but each category at most once.
func categorizeAll(tokens []string) map[core.Theme]struct{} {
	var out map[core.Theme]struct{}
	for _, token := range tokens {
		theme, ok := Categorize(token)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[core.Theme]struct{})
		}
		out[theme] = struct{}{}
	}
	return out
}
