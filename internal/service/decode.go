package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"lobby/internal/model"
)

var (
	errNotAList = errors.New("cached value is not a list")
	errDecode   = errors.New("cannot decode cached order")
)

// shape records which decoding path produced a canonical order.
type shape int

const (
	shapeCanonical shape = iota + 1
	shapeGeneric
)

func (s shape) String() string {
	switch s {
	case shapeCanonical:
		return "canonical"
	case shapeGeneric:
		return "generic"
	}
	return "unknown"
}

// Date-times written without a zone are in the kiosk's local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// decodeOrders turns a cached list into canonical orders sorted by creation.
// Entries that cannot be reconciled, or repeat an id, are dropped and logged.
// Zoneless legacy times are read in zone.
func decodeOrders(raw json.RawMessage, zone *time.Location, logger *log.Logger) ([]model.Order, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errNotAList
	}
	if entries == nil {
		// null on disk
		return nil, errNotAList
	}

	orders := make([]model.Order, 0, len(entries))
	seen := make(map[int64]struct{}, len(entries))
	for i, entry := range entries {
		ord, _, err := decodeEntry(entry, zone)
		if err != nil {
			logger.Printf("Dropping cached entry %d: %v", i, err)
			continue
		}
		if _, dup := seen[ord.ID]; dup {
			logger.Printf("Dropping cached entry %d: duplicate id %d", i, ord.ID)
			continue
		}
		seen[ord.ID] = struct{}{}
		orders = append(orders, ord)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

// decodeEntry tries the canonical schema first and falls back to reading
// fields out of a generic map.
func decodeEntry(raw json.RawMessage, zone *time.Location) (model.Order, shape, error) {
	if ord, ok := decodeCanonical(raw); ok {
		return ord, shapeCanonical, nil
	}
	ord, err := decodeGeneric(raw, zone)
	if err != nil {
		return model.Order{}, 0, err
	}
	return ord, shapeGeneric, nil
}

func decodeCanonical(raw json.RawMessage) (model.Order, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var ord model.Order
	if err := dec.Decode(&ord); err != nil {
		return model.Order{}, false
	}
	if ord.ID <= 0 || !ord.Status.Valid() || !model.ValidCustomerName(ord.CustomerName) || ord.CreatedAt.IsZero() {
		return model.Order{}, false
	}
	return normalize(ord), true
}

func decodeGeneric(raw json.RawMessage, zone *time.Location) (model.Order, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return model.Order{}, fmt.Errorf("%w: not an object", errDecode)
	}

	var ord model.Order

	id, err := toInt64(m["id"])
	if err != nil {
		return model.Order{}, fmt.Errorf("%w: id: %v", errDecode, err)
	}
	if id <= 0 {
		return model.Order{}, fmt.Errorf("%w: id %d is not positive", errDecode, id)
	}
	ord.ID = id

	name, _ := firstOf(m, "customerName", "nomeCliente").(string)
	if !model.ValidCustomerName(name) {
		return model.Order{}, fmt.Errorf("%w: order %d customer name %q must be %d-%d characters",
			errDecode, id, name, model.MinCustomerNameLen, model.MaxCustomerNameLen)
	}
	ord.CustomerName = name

	ord.Status = model.StatusPreparing
	if v := firstOf(m, "status"); v != nil {
		str, ok := v.(string)
		if !ok {
			return model.Order{}, fmt.Errorf("%w: order %d status is %T, not a string", errDecode, id, v)
		}
		status, err := parseStoredStatus(str)
		if err != nil {
			return model.Order{}, fmt.Errorf("%w: order %d: %v", errDecode, id, err)
		}
		ord.Status = status
	}

	if v := firstOf(m, "createdAt", "dataCriacao"); v != nil {
		if ord.CreatedAt, err = toTime(v, zone); err != nil {
			return model.Order{}, fmt.Errorf("%w: order %d createdAt: %v", errDecode, id, err)
		}
	}
	if v := firstOf(m, "updatedAt", "dataAtualizacao"); v != nil {
		if ord.UpdatedAt, err = toTime(v, zone); err != nil {
			return model.Order{}, fmt.Errorf("%w: order %d updatedAt: %v", errDecode, id, err)
		}
	}
	if ord.CreatedAt.IsZero() {
		ord.CreatedAt = ord.UpdatedAt
	}
	if ord.CreatedAt.IsZero() {
		return model.Order{}, fmt.Errorf("%w: order %d has no creation time", errDecode, id)
	}
	return normalize(ord), nil
}

func normalize(ord model.Order) model.Order {
	ord.CreatedAt = ord.CreatedAt.UTC()
	ord.UpdatedAt = ord.UpdatedAt.UTC()
	if ord.UpdatedAt.Before(ord.CreatedAt) {
		ord.UpdatedAt = ord.CreatedAt
	}
	return ord
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// toInt64 accepts every numeric width an id may have been written with.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, errors.New("missing")
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer id", f)
	}
	return int64(f), nil
}

func parseStoredStatus(s string) (model.Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PREPARANDO":
		return model.StatusPreparing, nil
	case "PRONTO":
		return model.StatusReady, nil
	}
	return model.ParseStatus(s)
}

func toTime(v any, zone *time.Location) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), nil
		}
		for _, layout := range localLayouts {
			if ts, err := time.ParseInLocation(layout, s, zone); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	case json.Number:
		ms, err := toInt64(t)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case float64:
		ms, err := floatToInt64(t)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time type %T", v)
}
