package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Run("Exact Key", func(t *testing.T) {
		record := Record{"latitude": "14.6917"}
		got := Resolve(record, []string{"latitude", "lat"}, 0)
		assert.Equal(t, "14.6917", got)
	})

	t.Run("Case And Accent Insensitive", func(t *testing.T) {
		record := Record{"Numéro Appelé": "221771234567"}
		got := Resolve(record, []string{"numero_appele"}, 0)
		assert.Equal(t, "221771234567", got, "folded key should match accented header")
	})

	t.Run("Punctuation Insensitive", func(t *testing.T) {
		record := Record{"IMEI (Caller)": "350000000000001"}
		got := Resolve(record, []string{"imeiCaller"}, 0)
		assert.Equal(t, "350000000000001", got)
	})

	t.Run("Empty String Is Not Found", func(t *testing.T) {
		record := Record{
			"duration": "",
			"details":  map[string]interface{}{"duration": "00:02:30"},
		}
		got := Resolve(record, []string{"duration"}, 0)
		assert.Equal(t, "00:02:30", got, "empty top-level value should fall through to nested object")
	})

	t.Run("Nil Is Not Found", func(t *testing.T) {
		record := Record{"azimut": nil}
		assert.Nil(t, Resolve(record, []string{"azimut"}, 0))
	})

	t.Run("Nested Object", func(t *testing.T) {
		record := Record{
			"cell": map[string]interface{}{
				"position": map[string]interface{}{"lat_bts": "14.70"},
			},
		}
		got := Resolve(record, []string{"lat_bts"}, 0)
		assert.Equal(t, "14.70", got)
	})

	t.Run("Nested Array", func(t *testing.T) {
		record := Record{
			"cells": []interface{}{
				map[string]interface{}{"nom": "DAKAR-PLATEAU"},
			},
		}
		got := Resolve(record, []string{"nom"}, 0)
		assert.Equal(t, "DAKAR-PLATEAU", got)
	})

	t.Run("Depth Bound", func(t *testing.T) {
		record := Record{
			"a": map[string]interface{}{
				"b": map[string]interface{}{
					"c": map[string]interface{}{
						"d": map[string]interface{}{"target": "too-deep"},
					},
				},
			},
		}
		assert.Nil(t, Resolve(record, []string{"target"}, 3))
	})

	t.Run("Cycle Guard", func(t *testing.T) {
		inner := map[string]interface{}{}
		inner["self"] = inner
		record := Record{"loop": inner}
		assert.NotPanics(t, func() {
			assert.Nil(t, Resolve(record, []string{"missing"}, 3))
		})
	})

	t.Run("Candidate Order Wins", func(t *testing.T) {
		record := Record{"caller": "A", "appelant": "B"}
		got := Resolve(record, []string{"caller", "appelant"}, 0)
		assert.Equal(t, "A", got)
	})
}

func TestResolveString(t *testing.T) {
	t.Run("Float Without Fraction", func(t *testing.T) {
		record := Record{"duration": float64(150)}
		assert.Equal(t, "150", ResolveString(record, []string{"duration"}, 0))
	})

	t.Run("Float With Fraction", func(t *testing.T) {
		record := Record{"latitude": 14.6917}
		assert.Equal(t, "14.6917", ResolveString(record, []string{"latitude"}, 0))
	})

	t.Run("Trims Whitespace", func(t *testing.T) {
		record := Record{"nom": "  SITE-01  "}
		assert.Equal(t, "SITE-01", ResolveString(record, []string{"nom"}, 0))
	})

	t.Run("Missing Yields Empty", func(t *testing.T) {
		assert.Equal(t, "", ResolveString(Record{}, []string{"nope"}, 0))
	})
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, "numeroappele", FoldKey("Numéro Appelé"))
	assert.Equal(t, "imeicaller", FoldKey("IMEI_Caller"))
	assert.Equal(t, "latbts", FoldKey("lat-bts"))
	assert.Equal(t, "", FoldKey("---"))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "221771234567", Digits("+221 77 123 45 67"))
	assert.Equal(t, "", Digits("abc"))
}

func TestSameSubscriber(t *testing.T) {
	t.Run("Country Code Tolerant", func(t *testing.T) {
		assert.True(t, SameSubscriber("+221771234567", "771234567"))
	})

	t.Run("Formatting Tolerant", func(t *testing.T) {
		assert.True(t, SameSubscriber("77-123-45-67", "0771234567"))
	})

	t.Run("Distinct Numbers", func(t *testing.T) {
		assert.False(t, SameSubscriber("771234567", "781234567"))
	})

	t.Run("No Digits", func(t *testing.T) {
		assert.False(t, SameSubscriber("", "771234567"))
	})
}
