// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package spldoc

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSPL = `<?xml version="1.0" encoding="UTF-8"?>
<document xmlns="urn:hl7-org:v3">
  <id root="a1b2c3d4-0000-0000-0000-000000000001"/>
  <setId root="f1e2d3c4-0000-0000-0000-000000000099"/>
  <versionNumber value="3"/>
  <effectiveTime value="20240115"/>
  <component>
    <structuredBody>
      <component>
        <section>
          <subject>
            <manufacturedProduct>
              <manufacturedProduct>
                <code code="0002-1200" codeSystem="2.16.840.1.113883.6.69"/>
                <name>Acetazolamide Tablets</name>
                <formCode code="C42998" displayName="TABLET"/>
                <ingredient classCode="ACTIB">
                  <quantity>
                    <numerator value="250" unit="mg"/>
                    <denominator value="1" unit="1"/>
                  </quantity>
                  <ingredientSubstance>
                    <code code="O3FX387QSL"/>
                    <name>ACETAZOLAMIDE</name>
                  </ingredientSubstance>
                </ingredient>
                <consumedIn>
                  <substanceAdministration>
                    <routeCode code="C38288" displayName="ORAL"/>
                  </substanceAdministration>
                </consumedIn>
                <asContent>
                  <containerPackagedProduct>
                    <code code="0002-1200-30" codeSystem="2.16.840.1.113883.6.69"/>
                    <formCode code="C43169" displayName="BOTTLE"/>
                  </containerPackagedProduct>
                </asContent>
              </manufacturedProduct>
              <asEntityWithGeneric>
                <representedOrganization>
                  <name>Example Pharma Inc</name>
                </representedOrganization>
              </asEntityWithGeneric>
            </manufacturedProduct>
          </subject>
          <subject2>
            <marketingAct>
              <statusCode code="active"/>
              <effectiveTime>
                <low value="20240101"/>
              </effectiveTime>
            </marketingAct>
          </subject2>
        </section>
      </component>
    </structuredBody>
  </component>
</document>`

func TestParse_ExtractsScalarFields(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4-0000-0000-0000-000000000001", doc.DocumentID)
	assert.Equal(t, "f1e2d3c4-0000-0000-0000-000000000099", doc.SetID)
	assert.Equal(t, 3, doc.VersionNumber)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), doc.EffectiveTime)
	assert.Equal(t, "doc1.xml", func() string {
		parts := strings.Split(doc.SourceFilename, "/")
		return parts[len(parts)-1]
	}())
}

func TestParse_ExtractsProductFields(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	assert.Equal(t, "Acetazolamide Tablets", doc.ProductName)
	assert.Equal(t, "Example Pharma Inc", doc.ManufacturerName)
	assert.Equal(t, "TABLET", doc.DosageForm)
	assert.Equal(t, "ORAL", doc.RouteOfAdministration)
}

func TestParse_ExtractsDistinctNDCs(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"0002-1200", "0002-1200-30"}, doc.NDCs)
}

func TestParse_ExtractsIngredients(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	require.Len(t, doc.Ingredients, 1)
	ing := doc.Ingredients[0]
	assert.Equal(t, "ACETAZOLAMIDE", ing.Name)
	assert.Equal(t, "O3FX387QSL", ing.SubstanceCode)
	assert.Equal(t, "250", ing.StrengthNumerator)
	assert.Equal(t, "1", ing.StrengthDenominator)
	assert.Equal(t, "mg", ing.UnitOfMeasure)
	assert.True(t, ing.IsActive)
}

func TestParse_ExtractsPackaging(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	require.Len(t, doc.Packaging, 1)
	assert.Equal(t, "0002-1200-30", doc.Packaging[0].PackageNDC)
	assert.Equal(t, "BOTTLE", doc.Packaging[0].PackageType)
}

func TestParse_ExtractsMarketingStatus(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	require.Len(t, doc.MarketingStatus, 1)
	assert.Equal(t, "active", doc.MarketingStatus[0].MarketingCategory)
	require.NotNil(t, doc.MarketingStatus[0].StartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *doc.MarketingStatus[0].StartDate)
	assert.Nil(t, doc.MarketingStatus[0].EndDate)
}

func TestParse_RawPayloadRoundTripsLossless(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSPL), "archive/doc1.xml")
	require.NoError(t, err)

	require.NotNil(t, doc.RawPayload)
	assert.Equal(t, "document", doc.RawPayload.Name)
	assert.Equal(t, HL7Namespace, doc.RawPayload.NS)

	// Every element in the source survives into the tree, in document order.
	ids := doc.RawPayload.childrenNamed("id")
	require.Len(t, ids, 1)
	v, ok := ids[0].attr("root")
	require.True(t, ok)
	assert.Equal(t, "a1b2c3d4-0000-0000-0000-000000000001", v)

	// The canonical JSON form decodes back to an identical tree.
	encoded, err := json.Marshal(doc.RawPayload)
	require.NoError(t, err)
	var decoded Node
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, doc.RawPayload, &decoded)
}

func TestParse_MissingRequiredFieldIsMalformed(t *testing.T) {
	bad := `<document xmlns="urn:hl7-org:v3"><setId root="x"/><versionNumber value="1"/><effectiveTime value="20240101"/></document>`
	_, err := Parse(strings.NewReader(bad), "archive/bad.xml")
	require.Error(t, err)
	var malformed *MalformedDocumentError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Detail, "document_id")
}

func TestParse_NonWellFormedXMLIsMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("<document><unterminated></document>"), "archive/broken.xml")
	require.Error(t, err)
	var malformed *MalformedDocumentError
	require.ErrorAs(t, err, &malformed)
}

func TestParse_ZeroVersionNumberIsRejected(t *testing.T) {
	bad := `<document xmlns="urn:hl7-org:v3">
		<id root="a"/><setId root="b"/><versionNumber value="0"/><effectiveTime value="20240101"/>
	</document>`
	_, err := Parse(strings.NewReader(bad), "archive/bad-version.xml")
	require.Error(t, err)
}

func TestParseHL7Time(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20240115", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"202403", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"20240115123045", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseHL7Time(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseHL7TimeOptional_EmptyIsNil(t *testing.T) {
	assert.Nil(t, parseHL7TimeOptional(""))
	assert.Nil(t, parseHL7TimeOptional("not-a-date"))
	assert.NotNil(t, parseHL7TimeOptional("20240101"))
}

func TestParsePositiveInt_RejectsNonPositive(t *testing.T) {
	_, err := parsePositiveInt("0")
	assert.Error(t, err)
	_, err = parsePositiveInt("-1")
	assert.Error(t, err)
	v, err := parsePositiveInt("5")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}
