package compare

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/network"
)

// Comparator selects how a field's two values are scored.
type Comparator int

const (
	// Exact scores 1 when both values are present and equal.
	Exact Comparator = iota
	// Text scores normalized Jaro-Winkler similarity.
	Text
	// Category scores overlap of two code lists.
	Category
	// TextList averages Text similarity over the cross product of two lists.
	TextList
	// Providers compares organisation lists by name.
	Providers
	// Proximity scores great-circle distance between node points.
	Proximity
	// Length scores numeric closeness within one unit.
	Length
	// Endpoints scores how many span endpoint ids are shared.
	Endpoints
)

var comparatorNames = map[Comparator]string{
	Exact:     "exact",
	Text:      "text",
	Category:  "category",
	TextList:  "text_list",
	Providers: "providers",
	Proximity: "proximity",
	Length:    "length",
	Endpoints: "endpoints",
}

func (c Comparator) String() string {
	if s, ok := comparatorNames[c]; ok {
		return s
	}
	return "unknown"
}

// Field binds a scored field name to its comparator and the property path
// its value is read from. For TextList fields, Each names the attribute
// collected from every element of the list at Path.
type Field struct {
	Name       string
	Comparator Comparator
	Path       string
	Each       string
}

// NodeFields is the scored field table for nodes.
var NodeFields = []Field{
	{Name: "name", Comparator: Text, Path: "name"},
	{Name: "phase/name", Comparator: Text, Path: "phase/name"},
	{Name: "physicalInfrastructureProvider", Comparator: Text, Path: "physicalInfrastructureProvider/name"},
	{Name: "accessPoint", Comparator: Exact, Path: "accessPoint"},
	{Name: "power", Comparator: Exact, Path: "power"},
	{Name: "status", Comparator: Exact, Path: "status"},
	{Name: "coordinates", Comparator: Proximity},
	{Name: "location/address/streetAddress", Comparator: Text, Path: "location/address/streetAddress"},
	{Name: "location/address/locality", Comparator: Text, Path: "location/address/locality"},
	{Name: "location/address/region", Comparator: Text, Path: "location/address/region"},
	{Name: "location/address/postalCode", Comparator: Text, Path: "location/address/postalCode"},
	{Name: "location/address/country", Comparator: Exact, Path: "location/address/country"},
	{Name: "type", Comparator: Category, Path: "type"},
	{Name: "internationalConnections/streetAddress", Comparator: TextList, Path: "internationalConnections", Each: "streetAddress"},
	{Name: "internationalConnections/region", Comparator: TextList, Path: "internationalConnections", Each: "region"},
	{Name: "internationalConnections/locality", Comparator: TextList, Path: "internationalConnections", Each: "locality"},
	{Name: "internationalConnections/postalCode", Comparator: TextList, Path: "internationalConnections", Each: "postalCode"},
	{Name: "internationalConnections/country", Comparator: TextList, Path: "internationalConnections", Each: "country"},
	{Name: "networkProviders", Comparator: Providers, Path: "networkProviders", Each: "name"},
}

// SpanFields is the scored field table for spans.
var SpanFields = []Field{
	{Name: "name", Comparator: Text, Path: "name"},
	{Name: "phase/name", Comparator: Text, Path: "phase/name"},
	{Name: "readyForServiceDate", Comparator: Exact, Path: "readyForServiceDate"},
	{Name: "nodes", Comparator: Endpoints},
	{Name: "physicalInfrastructureProvider", Comparator: Text, Path: "physicalInfrastructureProvider/name"},
	{Name: "supplier", Comparator: Text, Path: "supplier/name"},
	{Name: "transmissionMedium", Comparator: Category, Path: "transmissionMedium"},
	{Name: "deployment", Comparator: Category, Path: "deployment"},
	{Name: "fibreType", Comparator: Exact, Path: "fibreType"},
	{Name: "fibreCount", Comparator: Exact, Path: "fibreCount"},
	{Name: "fibreLength", Comparator: Length, Path: "fibreLength"},
	{Name: "capacity", Comparator: Exact, Path: "capacity"},
	{Name: "countries", Comparator: Category, Path: "countries"},
	{Name: "status", Comparator: Exact, Path: "status"},
	{Name: "networkProviders", Comparator: Providers, Path: "networkProviders", Each: "name"},
}

// Weights maps field names to their weight in the confidence average.
type Weights map[string]float64

var defaultNodeWeights = Weights{
	"name":                                   0.5,
	"phase/name":                             0.75,
	"physicalInfrastructureProvider":         0.75,
	"accessPoint":                            0.6,
	"power":                                  0.5,
	"status":                                 0.2,
	"coordinates":                            1,
	"location/address/streetAddress":         0.9,
	"location/address/locality":              0.75,
	"location/address/region":                0.1,
	"location/address/postalCode":            0.8,
	"location/address/country":               0.1,
	"type":                                   0.75,
	"internationalConnections/streetAddress": 0.1,
	"internationalConnections/region":        0.1,
	"internationalConnections/locality":      0.1,
	"internationalConnections/postalCode":    0.1,
	"internationalConnections/country":       0.2,
	"networkProviders":                       0.75,
}

var defaultSpanWeights = Weights{
	"name":                           0.5,
	"phase/name":                     0.75,
	"readyForServiceDate":            0.75,
	"nodes":                          1,
	"physicalInfrastructureProvider": 0.75,
	"supplier":                       0.75,
	"transmissionMedium":             0.75,
	"deployment":                     0.75,
	"fibreType":                      0.75,
	"fibreCount":                     0.75,
	"fibreLength":                    0.75,
	"capacity":                       0.75,
	"countries":                      0.1,
	"status":                         0.1,
	"networkProviders":               0.5,
}

// FieldsFor returns the field table for a feature kind.
func FieldsFor(kind network.Kind) []Field {
	if kind == network.KindSpan {
		return SpanFields
	}
	return NodeFields
}

// DefaultWeights returns a copy of the default weights for a kind.
func DefaultWeights(kind network.Kind) Weights {
	src := defaultNodeWeights
	if kind == network.KindSpan {
		src = defaultSpanWeights
	}
	out := make(Weights, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ResolveWeights applies overrides on top of the defaults for kind.
// Override keys match field names case-insensitively, since config keys
// arrive lower-cased.
func ResolveWeights(kind network.Kind, overrides map[string]float64) (Weights, error) {
	w := DefaultWeights(kind)
	fields := FieldsFor(kind)

	var unknown []string
	for key, v := range overrides {
		name, ok := fieldName(fields, key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if v < 0 {
			return nil, eris.Errorf("compare: weight for %s %q must not be negative", kind, key)
		}
		w[name] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, eris.Errorf("compare: unknown %s weight fields: %s", kind, strings.Join(unknown, ", "))
	}
	return w, nil
}

func fieldName(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, key) {
			return f.Name, true
		}
	}
	return "", false
}
