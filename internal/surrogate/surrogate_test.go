package surrogate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_KnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want int32
	}{
		{"", 0},
		{"a", 97},
		{"abc", 96354},
		{"hello", 99162322},
		{"polygenelubricants", -2147483648},
		{"Коледино", -275501085},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Hash(tt.name))
		})
	}
}

func TestWarehouseAndRegionIDs(t *testing.T) {
	assert.Equal(t, 2322, WarehouseID("hello"))
	assert.Equal(t, 322, RegionID("hello"))
	assert.Equal(t, 1085, WarehouseID("Коледино"))
	assert.Equal(t, 534, RegionID("Московская область"))

	// |MinInt32| does not fit in int32 and must not go negative.
	assert.Equal(t, 3648, WarehouseID("polygenelubricants"))
	assert.Equal(t, 648, RegionID("polygenelubricants"))
}

func TestIDs_Bounded(t *testing.T) {
	names := []string{"", "a", "Коледино", "Электросталь", "Казань", "Санкт-Петербург (Уткина Заводь)", "polygenelubricants"}
	for _, n := range names {
		w := WarehouseID(n)
		r := RegionID(n)
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, WarehouseModulus)
		assert.GreaterOrEqual(t, r, 0)
		assert.Less(t, r, RegionModulus)
	}
}

func TestIDs_StableUnderNormalization(t *testing.T) {
	composed := "\u0439"         // й
	decomposed := "\u0438\u0306" // и + combining breve

	assert.Equal(t, WarehouseID(composed), WarehouseID(decomposed))
	assert.Equal(t, WarehouseID("hello"), WarehouseID("  hello "))
}

func TestCollisions(t *testing.T) {
	got := Collisions([]string{"Aa", "BB", "abc", "Aa"}, WarehouseModulus)
	require.Len(t, got, 1)
	assert.Equal(t, 2112, got[0].ID)
	assert.Equal(t, []string{"Aa", "BB"}, got[0].Names)
}

func TestCollisions_SmallModulus(t *testing.T) {
	// 97 and 54 mod 100: distinct.
	got := Collisions([]string{"a", "abc"}, 100)
	assert.Empty(t, got)

	got = Collisions([]string{"hello", "abc", "a"}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].ID)
	assert.Equal(t, []string{"a", "abc", "hello"}, got[0].Names)
}
