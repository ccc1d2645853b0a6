package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdentifyDefaultedFieldsFlat(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	sql := `CREATE OR REPLACE TABLE ` + "`my.dest.table`" + ` AS SELECT
  source.id AS id,
  NULL AS name, -- Defaulted name to NULL as no direct source match found.
  source.desc AS description,
  [] AS categories,
  FALSE AS available,
  source.brandName AS brands
FROM ` + "`my.source.table`" + ` AS source`

	got := a.IdentifyDefaultedFields(sql, nil)
	assert.ElementsMatch(t, []string{"name", "categories"}, got)
}

func TestIdentifyDefaultedFieldsNested(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	sql := `SELECT
  source.id AS id,
  STRUCT(
    0 AS price,
    NULL AS currencyCode
  ) AS priceInfo
FROM t`

	got := a.IdentifyDefaultedFields(sql, nil)
	assert.Contains(t, got, "priceInfo.price")
	assert.Contains(t, got, "priceInfo.currencyCode")
}

func TestIdentifyDefaultedFieldsMappedFieldsNotFlagged(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	sql := `SELECT
  source.name AS name,
  source.product_title AS title,
  STRUCT(source.amount AS price, source.ccy AS currencyCode) AS priceInfo
FROM t`

	assert.Empty(t, a.IdentifyDefaultedFields(sql, nil))
}

func TestIdentifyDefaultedFieldsNoFalsePositiveOnNumbers(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	// 10 is not the default literal 0, and source.id ends in "id" but is a
	// real mapping
	sql := `SELECT 10 AS id, STRUCT(250 AS price) AS priceInfo FROM t`
	assert.Empty(t, a.IdentifyDefaultedFields(sql, nil))
}

func TestIdentifyDefaultedFieldsCustomList(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	sql := `SELECT NULL AS sku, NULL AS name FROM t`
	got := a.IdentifyDefaultedFields(sql, []string{"sku"})
	assert.Equal(t, []string{"sku"}, got)
}

func TestIdentifyDefaultedFieldsEmptySQL(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())
	assert.Empty(t, a.IdentifyDefaultedFields("", nil))
}

func TestIdentifyDefaultedFieldsEmptyStringLiterals(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	sql := `SELECT '' AS title, "" AS description FROM t`
	got := a.IdentifyDefaultedFields(sql, nil)
	assert.ElementsMatch(t, []string{"title", "description"}, got)
}

func TestAnalyzeSourceFields(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	fields := []string{"product_ID", "productName", "PriceAmount", "description_text", "stockQty", "categories_list", "brand_name", "image_url"}
	got := a.AnalyzeSourceFields(fields)

	assert.Contains(t, got["id"], "product_ID")
	assert.Contains(t, got["name"], "productName")
	assert.Contains(t, got["price"], "PriceAmount")
	assert.Contains(t, got["description"], "description_text")
	assert.Contains(t, got["category"], "categories_list")
	assert.Contains(t, got["brand"], "brand_name")
	assert.Contains(t, got["image"], "image_url")
}

func TestSelectBestFieldMatchesExact(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	got := a.SelectBestFieldMatches(
		[]string{"ID", "Name", "Description"},
		[]string{"id", "name", "description"})
	assert.Equal(t, "ID", got["id"])
	assert.Equal(t, "Name", got["name"])
	assert.Equal(t, "Description", got["description"])
}

func TestSelectBestFieldMatchesSingularPlural(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	got := a.SelectBestFieldMatches(
		[]string{"brand", "category"},
		[]string{"brands", "categories"})
	assert.Equal(t, "brand", got["brands"])
	assert.Equal(t, "category", got["categories"])
}

func TestSelectBestFieldMatchesConcept(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	got := a.SelectBestFieldMatches(
		[]string{"ProductID", "ItemDesc", "Cost", "MainImageURL", "Vendor"},
		[]string{"id", "description", "priceInfo.price", "images", "brands"})

	assert.Equal(t, "ProductID", got["id"])
	assert.Equal(t, "ItemDesc", got["description"])
	assert.Equal(t, "Cost", got["priceInfo.price"])
	assert.Equal(t, "MainImageURL", got["images"])
	assert.Equal(t, "Vendor", got["brands"])
}

func TestSelectBestFieldMatchesNoMatch(t *testing.T) {
	a := NewFieldAnalyzer(zap.NewNop())

	got := a.SelectBestFieldMatches([]string{"foo", "bar"}, []string{"languageCode"})
	_, ok := got["languageCode"]
	require.False(t, ok)
}
