package hardware

import (
	"github.com/zclconf/go-cty/cty"
)

// routeType is the cty shape of one routing-table row.
var routeType = cty.Object(map[string]cty.Type{
	"vendor":   cty.String,
	"device":   cty.String,
	"class":    cty.String,
	"subclass": cty.String,
	"command":  cty.String,
	"display":  cty.String,
})

// ToCty renders the result as the hardware module's output value.
func (r Result) ToCty() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"allDrivers":   stringList(r.AllDrivers),
		"routingTable": routeList(r.RoutingTable),
		"extraDaemons": stringList(r.ExtraDaemons),
	})
}

// ResultFromCty decodes a module output produced by ToCty.
func ResultFromCty(val cty.Value) Result {
	var r Result
	r.AllDrivers = toStrings(val.GetAttr("allDrivers"))
	r.ExtraDaemons = toStrings(val.GetAttr("extraDaemons"))
	for it := val.GetAttr("routingTable").ElementIterator(); it.Next(); {
		_, row := it.Element()
		r.RoutingTable = append(r.RoutingTable, Route{
			Match: Match{
				Vendor:   row.GetAttr("vendor").AsString(),
				Device:   row.GetAttr("device").AsString(),
				Class:    row.GetAttr("class").AsString(),
				Subclass: row.GetAttr("subclass").AsString(),
			},
			Command: row.GetAttr("command").AsString(),
			Display: row.GetAttr("display").AsString(),
		})
	}
	return r
}

func stringList(vals []string) cty.Value {
	if len(vals) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	out := make([]cty.Value, 0, len(vals))
	for _, v := range vals {
		out = append(out, cty.StringVal(v))
	}
	return cty.ListVal(out)
}

func toStrings(val cty.Value) []string {
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		out = append(out, v.AsString())
	}
	return out
}

func routeList(routes []Route) cty.Value {
	if len(routes) == 0 {
		return cty.ListValEmpty(routeType)
	}
	out := make([]cty.Value, 0, len(routes))
	for _, r := range routes {
		out = append(out, cty.ObjectVal(map[string]cty.Value{
			"vendor":   cty.StringVal(r.Match.Vendor),
			"device":   cty.StringVal(r.Match.Device),
			"class":    cty.StringVal(r.Match.Class),
			"subclass": cty.StringVal(r.Match.Subclass),
			"command":  cty.StringVal(r.Command),
			"display":  cty.StringVal(r.Display),
		}))
	}
	return cty.ListVal(out)
}
