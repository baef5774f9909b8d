// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package spldoc implements the streaming SPL XML parser: it
// turns one HL7 Structured Product Labeling document into a ParsedDocument
// under a constant memory ceiling, using encoding/xml's forward-only
// Decoder.Token() rather than a DOM — Go's xml.Decoder already resolves
// element names to namespace URIs (not source prefixes) as it tokenizes, so
// namespace matching by URI falls out of the standard library for free.
//
// See DESIGN.md for the full grounding rationale behind this package's
// design.
package spldoc

import "time"

// HL7Namespace is the HL7 SPL document namespace URI. Elements are matched
// by this URI, never by the source document's (unstable) prefix.
const HL7Namespace = "urn:hl7-org:v3"

// ndcCodeSystemOID identifies the NDC code system within <code codeSystem="...">.
const ndcCodeSystemOID = "2.16.840.1.113883.6.69"

// Active ingredient class codes.
const (
	classActiveIngredientBase     = "ACTIB"
	classActiveMoiety             = "ACTIM"
	classActiveIngredientReformed = "ACTIR"
)

// Ingredient is one <ingredient> element of a ParsedDocument.
type Ingredient struct {
	Name               string
	SubstanceCode      string // UNII, if present
	StrengthNumerator  string
	StrengthDenominator string
	UnitOfMeasure      string
	IsActive           bool
}

// Packaging is one level of a (possibly nested) <containerPackagedProduct>.
type Packaging struct {
	PackageNDC         string
	PackageDescription string
	PackageType        string
}

// MarketingStatus is one <marketingAct> element.
type MarketingStatus struct {
	MarketingCategory string
	StartDate         *time.Time
	EndDate           *time.Time
}

// ParsedDocument is the short-lived, per-file value the parser emits. It
// must not be retained past the Transformer call that consumes it.
type ParsedDocument struct {
	DocumentID             string
	SetID                  string
	VersionNumber          int
	EffectiveTime          time.Time
	ProductName            string
	ManufacturerName       string
	DosageForm             string
	RouteOfAdministration  string
	NDCs                   []string
	Ingredients            []Ingredient
	Packaging              []Packaging
	MarketingStatus        []MarketingStatus
	RawPayload             *Node
	SourceFilename         string
}

// MalformedDocumentError reports that the parser could not extract a valid
// ParsedDocument from path: a well-formedness violation, or a missing
// required field (document_id, set_id, version_number, effective_time).
type MalformedDocumentError struct {
	Path   string
	Detail string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return "malformed document " + e.Path + ": " + e.Detail + ": " + e.Err.Error()
	}
	return "malformed document " + e.Path + ": " + e.Detail
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }
