// Package surrogate derives stable integer ids for warehouses and regions
// from their names. The tariff API identifies both only by name, but the
// natural key of a stored tariff needs integers.
package surrogate

import (
	"sort"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Moduli bounding the derived ids.
const (
	WarehouseModulus = 10000
	RegionModulus    = 1000
)

// Hash returns the 32-bit string hash (h = 31*h + c over UTF-16 code units,
// wrapping on overflow) of the NFC-normalized, trimmed name.
func Hash(name string) int32 {
	s := norm.NFC.String(strings.TrimSpace(name))
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(c)
	}
	return h
}

// ID maps name into [0, modulus).
func ID(name string, modulus int) int {
	h := int64(Hash(name))
	if h < 0 {
		h = -h
	}
	return int(h % int64(modulus))
}

// WarehouseID returns the surrogate id for a warehouse name.
func WarehouseID(name string) int {
	return ID(name, WarehouseModulus)
}

// RegionID returns the surrogate id for a region name.
func RegionID(name string) int {
	return ID(name, RegionModulus)
}

// Collision lists distinct names that map to the same id.
type Collision struct {
	ID    int      `json:"id"`
	Names []string `json:"names"`
}

// Collisions reports every id in [0, modulus) shared by two or more distinct
// names. Names are compared after normalization, so spelling variants that
// normalize identically are not collisions. Results are sorted by id.
func Collisions(names []string, modulus int) []Collision {
	byID := make(map[int]map[string]struct{})
	for _, n := range names {
		key := norm.NFC.String(strings.TrimSpace(n))
		id := ID(key, modulus)
		if byID[id] == nil {
			byID[id] = make(map[string]struct{})
		}
		byID[id][key] = struct{}{}
	}

	var out []Collision
	for id, set := range byID {
		if len(set) < 2 {
			continue
		}
		c := Collision{ID: id}
		for n := range set {
			c.Names = append(c.Names, n)
		}
		sort.Strings(c.Names)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
