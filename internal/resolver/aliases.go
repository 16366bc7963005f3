package resolver

import "github.com/backyonatan-alt/casecount/internal/model"

// Aliases maps a normalized synonym to the canonical record key.
type Aliases map[string]string

// DefaultAliases covers the synonyms users most often type. "britain" is
// intentionally absent: deployments must decide its target in config.
var DefaultAliases = Aliases{
	"usa":                              "usa",
	"us":                               "usa",
	"united states":                    "usa",
	"united states of america":         "usa",
	"america":                          "usa",
	"uk":                               "uk",
	"england":                          "uk",
	"united kingdom":                   "uk",
	"congo":                            "drc",
	"democratic republic of congo":     "drc",
	"democratic republic of the congo": "drc",
}

// Merge returns a normalized copy of base with extra layered on top.
func Merge(base, extra map[string]string) Aliases {
	out := make(Aliases, len(base)+len(extra))
	for _, m := range []map[string]string{base, extra} {
		for alias, target := range m {
			a, t := model.NormalizeKey(alias), model.NormalizeKey(target)
			if a == "" || t == "" {
				continue
			}
			out[a] = t
		}
	}
	return out
}
