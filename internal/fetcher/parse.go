package fetcher

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
	"github.com/sells-group/tariff-sync/internal/surrogate"
)

const (
	unknownName    = "Unknown"
	defaultBoxType = "Box"
)

var hundred = decimal.NewFromInt(100)

// fallbackKeys are the legacy top-level arrays some deployments return
// instead of response.data.warehouseList, in lookup order.
var fallbackKeys = []string{"data", "tariffs", "items"}

// warehouseEntry is one element of warehouseList. Numeric fields arrive as
// comma-decimal strings ("1,5") but numbers are tolerated too.
type warehouseEntry struct {
	BoxDeliveryBase     flexString `json:"boxDeliveryBase"`
	BoxDeliveryCoefExpr flexString `json:"boxDeliveryCoefExpr"`
	BoxDeliveryLiter    flexString `json:"boxDeliveryLiter"`
	BoxStorageBase      flexString `json:"boxStorageBase"`
	GeoName             string     `json:"geoName"`
	WarehouseName       string     `json:"warehouseName"`
}

// legacyItem is an element of a fallback array, already in record shape.
type legacyItem struct {
	NMID          flexString `json:"nmid"`
	BoxTypeName   string     `json:"box_type_name"`
	Size          *string    `json:"size"`
	WarehouseID   flexString `json:"warehouse_id"`
	WarehouseName string     `json:"warehouse_name"`
	Coef          flexString `json:"coef"`
	Amount        flexString `json:"amount"`
	RegionID      flexString `json:"region_id"`
	RegionName    string     `json:"region_name"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return eris.Errorf("expected string or number, got %s", b)
		}
		*f = flexString(n.String())
		return nil
	}
}

// ParseDecimal parses a locale-formatted decimal: comma or dot separator,
// spaces and non-breaking spaces as thousands separators. Empty and "-"
// parse as zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "parse decimal %q", s)
	}
	return d, nil
}

// parseBody decodes a response body into normalized items. A body with no
// usable array is an error so that the caller retries. Any part of the
// response.data.warehouseList path with an unexpected type counts as absent.
func parseBody(body []byte) ([]model.TariffItem, error) {
	top, ok := asObject(body)
	if !ok {
		return nil, eris.New("wb: decode response: top level is not an object")
	}

	log := zap.L().With(zap.String("component", "wb"))

	response, hasResponse := asObject(top["response"])
	data, hasData := asObject(response["data"])
	if raw, ok := asArray(data["warehouseList"]); ok {
		items := normalizeWarehouses(raw)
		log.Info("parsed tariff records",
			zap.Int("received", len(raw)),
			zap.Int("parsed", len(items)),
		)
		return items, nil
	}

	log.Warn("unexpected response structure",
		zap.Bool("has_response", hasResponse),
		zap.Bool("has_data", hasData),
	)

	for _, key := range fallbackKeys {
		raw, ok := asArray(top[key])
		if !ok || len(raw) == 0 {
			continue
		}
		items := normalizeLegacy(raw)
		log.Info("using fallback array", zap.String("key", key), zap.Int("count", len(items)))
		return items, nil
	}

	return nil, eris.New("wb: no warehouseList found in API response")
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func normalizeWarehouses(raw []json.RawMessage) []model.TariffItem {
	items := make([]model.TariffItem, 0, len(raw))
	for i, r := range raw {
		item, err := normalizeWarehouse(r)
		if err != nil {
			metrics.ItemsDropped.Inc()
			zap.L().Warn("wb: failed to parse warehouse item",
				zap.Int("index", i),
				zap.ByteString("item", truncate(r, 300)),
				zap.Error(err),
			)
			continue
		}
		items = append(items, item)
	}
	return items
}

func normalizeWarehouse(raw json.RawMessage) (model.TariffItem, error) {
	var e warehouseEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.TariffItem{}, eris.Wrap(err, "decode warehouse entry")
	}

	coefExpr, err := ParseDecimal(string(e.BoxDeliveryCoefExpr))
	if err != nil {
		return model.TariffItem{}, eris.Wrap(err, "boxDeliveryCoefExpr")
	}
	amount, err := ParseDecimal(string(e.BoxDeliveryBase))
	if err != nil {
		return model.TariffItem{}, eris.Wrap(err, "boxDeliveryBase")
	}

	return model.TariffItem{
		NMID:          0,
		BoxTypeName:   defaultBoxType,
		WarehouseID:   surrogate.WarehouseID(e.WarehouseName),
		WarehouseName: orUnknown(e.WarehouseName),
		Coef:          coefExpr.Div(hundred),
		Amount:        amount,
		RegionID:      surrogate.RegionID(e.GeoName),
		RegionName:    orUnknown(e.GeoName),
	}, nil
}

func normalizeLegacy(raw []json.RawMessage) []model.TariffItem {
	items := make([]model.TariffItem, 0, len(raw))
	for i, r := range raw {
		item, err := normalizeLegacyItem(r)
		if err != nil {
			metrics.ItemsDropped.Inc()
			zap.L().Warn("wb: failed to parse fallback item", zap.Int("index", i), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items
}

func normalizeLegacyItem(raw json.RawMessage) (model.TariffItem, error) {
	var l legacyItem
	if err := json.Unmarshal(raw, &l); err != nil {
		return model.TariffItem{}, eris.Wrap(err, "decode fallback item")
	}

	nmid, err := parseInt(string(l.NMID))
	if err != nil {
		return model.TariffItem{}, eris.Wrap(err, "nmid")
	}
	coef, err := ParseDecimal(string(l.Coef))
	if err != nil {
		return model.TariffItem{}, eris.Wrap(err, "coef")
	}
	amount, err := ParseDecimal(string(l.Amount))
	if err != nil {
		return model.TariffItem{}, eris.Wrap(err, "amount")
	}

	boxType := l.BoxTypeName
	if boxType == "" {
		boxType = defaultBoxType
	}

	return model.TariffItem{
		NMID:          nmid,
		BoxTypeName:   boxType,
		Size:          l.Size,
		WarehouseID:   keepOrDerive(string(l.WarehouseID), l.WarehouseName, surrogate.WarehouseModulus),
		WarehouseName: orUnknown(l.WarehouseName),
		Coef:          coef,
		Amount:        amount,
		RegionID:      keepOrDerive(string(l.RegionID), l.RegionName, surrogate.RegionModulus),
		RegionName:    orUnknown(l.RegionName),
	}, nil
}

// keepOrDerive keeps a supplied id when it parses and lies in [0, modulus),
// otherwise derives it from name.
func keepOrDerive(raw, name string, modulus int) int {
	if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && id >= 0 && id < modulus {
		return id
	}
	return surrogate.ID(name, modulus)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse int %q", s)
	}
	return n, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownName
	}
	return s
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
