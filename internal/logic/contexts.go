package logic

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/patrickwarner/inappserve/internal/expr"
	"github.com/patrickwarner/inappserve/internal/models"
)

// Variable prefixes exposed to guard expressions.
const (
	eventAttrPrefix = "e.attr."
	customPrefix    = "c."
	tagPrefix       = "t."
)

// EventContext resolves e.* variables from a signal.
type EventContext struct {
	sig models.Signal
}

// NewEventContext returns the context of sig.
func NewEventContext(sig models.Signal) EventContext {
	return EventContext{sig: sig}
}

func (c EventContext) ResolveVariableNamed(name string) (expr.Value, bool) {
	switch name {
	case "e.name":
		if c.sig.Kind() != models.SignalEvent {
			return expr.Nil(), true
		}
		return expr.String(c.sig.Name()), true
	case "e.label":
		if l, ok := c.sig.Label(); ok {
			return expr.String(l), true
		}
		return expr.Nil(), true
	case "e.kind":
		return expr.String(string(c.sig.Kind())), true
	case "e.tags":
		if d := c.sig.Data(); d != nil {
			return expr.StringSet(d.Tags...), true
		}
		return expr.StringSet(), true
	}
	if key, ok := strings.CutPrefix(name, eventAttrPrefix); ok {
		d := c.sig.Data()
		if d == nil {
			return expr.Value{}, false
		}
		raw, ok := d.Attributes[key]
		if !ok {
			return expr.Value{}, false
		}
		return ValueFromAny(raw)
	}
	return expr.Value{}, false
}

// AttributeContext resolves c.<key> custom attributes and t.<collection>
// tag collections of the current user.
type AttributeContext struct {
	attrs models.UserAttributes
}

// NewAttributeContext returns the context of attrs.
func NewAttributeContext(attrs models.UserAttributes) AttributeContext {
	return AttributeContext{attrs: attrs}
}

func (c AttributeContext) ResolveVariableNamed(name string) (expr.Value, bool) {
	if key, ok := strings.CutPrefix(name, customPrefix); ok {
		raw, found := c.attrs.Attributes[key]
		if !found {
			return expr.Value{}, false
		}
		return ValueFromAny(raw)
	}
	if coll, ok := strings.CutPrefix(name, tagPrefix); ok {
		tags, found := c.attrs.Tags[coll]
		if !found {
			// an unknown collection is an empty one
			return expr.StringSet(), true
		}
		return expr.StringSet(tags...), true
	}
	return expr.Value{}, false
}

// DeviceContext exposes device information as d.* variables.
func DeviceContext(d models.DeviceInfo) expr.MapContext {
	return expr.MapContext{
		"d.api_level":   expr.Double(float64(d.APILevel)),
		"d.os":          expr.String(d.OS),
		"d.os_version":  expr.String(d.OSVersion),
		"d.platform":    expr.String(d.Platform),
		"d.device_type": expr.String(d.DeviceType),
		"d.country":     expr.String(d.Country),
	}
}

// EvaluationContext builds the context for one evaluation pass over sig.
// Event variables shadow user attributes, which shadow device variables.
func EvaluationContext(sig models.Signal, attrs models.UserAttributes, device models.DeviceInfo) *expr.CachingContext {
	return expr.NewCachingContext(expr.NewMetaContext(
		NewEventContext(sig),
		NewAttributeContext(attrs),
		DeviceContext(device),
	))
}

// ValueFromAny converts a decoded JSON value into an expression value. Objects
// and arrays holding anything but strings have no representation.
func ValueFromAny(v any) (expr.Value, bool) {
	switch x := v.(type) {
	case nil:
		return expr.Nil(), true
	case string:
		return expr.String(x), true
	case bool:
		return expr.Bool(x), true
	case float64:
		return expr.Double(x), true
	case float32:
		return expr.Double(float64(x)), true
	case int:
		return expr.Double(float64(x)), true
	case int64:
		return expr.Double(float64(x)), true
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return expr.Value{}, false
		}
		return expr.Double(f), true
	case []string:
		return expr.StringSet(x...), true
	case []any:
		members := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return expr.Value{}, false
			}
			members = append(members, s)
		}
		return expr.StringSet(members...), true
	}
	return expr.Value{}, false
}
