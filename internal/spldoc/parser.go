// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package spldoc

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// frame is the parser's per-open-element working state. Frames form the
// stack the parser mirrors the event stream with: a StartElement pushes a
// frame, an EndElement pops one and folds it into a *Node attached to its
// parent (or emitted as the document root), releasing the frame itself.
// The frame stack is bounded by document nesting, not size; the *Node tree
// under construction becomes the emitted RawPayload and grows with the
// document's content.
type frame struct {
	name     string
	ns       string
	attrs    []Attr
	text     strings.Builder
	children []*Node
}

type parser struct {
	doc    *ParsedDocument
	stack  []*frame
	ndcSeen map[string]bool
}

// ParseFile streams diskPath as an SPL XML document and returns the
// resulting ParsedDocument. sourceFilename is the archive-relative path
// recorded on the document and reported in errors (it may differ from
// diskPath, which points at a scratch extraction directory).
func ParseFile(diskPath, sourceFilename string) (*ParsedDocument, error) {
	f, err := os.Open(diskPath)
	if err != nil {
		return nil, &MalformedDocumentError{Path: sourceFilename, Detail: "cannot open file", Err: err}
	}
	defer f.Close()
	return Parse(f, sourceFilename)
}

// Parse streams r as an SPL XML document. It never buffers more than the
// current element stack and the payload tree under construction.
func Parse(r io.Reader, sourceFilename string) (*ParsedDocument, error) {
	p := &parser{
		doc:     &ParsedDocument{SourceFilename: sourceFilename},
		ndcSeen: make(map[string]bool),
	}

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedDocumentError{Path: sourceFilename, Detail: "xml well-formedness violation", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			p.startElement(t)
		case xml.CharData:
			p.charData(t)
		case xml.EndElement:
			p.endElement()
		}
	}

	if len(p.stack) != 0 {
		return nil, &MalformedDocumentError{Path: sourceFilename, Detail: "unexpected end of document: unclosed elements"}
	}

	if err := p.validateRequired(); err != nil {
		return nil, &MalformedDocumentError{Path: sourceFilename, Detail: err.Error()}
	}

	return p.doc, nil
}

func (p *parser) startElement(t xml.StartElement) {
	f := &frame{name: t.Name.Local, ns: t.Name.Space}
	for _, a := range t.Attr {
		f.attrs = append(f.attrs, Attr{Name: a.Name.Local, Value: a.Value})
	}
	p.stack = append(p.stack, f)
}

func (p *parser) charData(t xml.CharData) {
	if len(p.stack) == 0 {
		return
	}
	p.stack[len(p.stack)-1].text.Write(t)
}

func (p *parser) endElement() {
	if len(p.stack) == 0 {
		return
	}
	n := len(p.stack) - 1
	f := p.stack[n]
	p.stack = p.stack[:n]

	node := &Node{Name: f.name, NS: f.ns, Attrs: f.attrs, Children: f.children}
	if trimmed := strings.TrimSpace(f.text.String()); trimmed != "" {
		node.Text = &trimmed
	}

	var parentName, grandparentName string
	if len(p.stack) >= 1 {
		parentName = p.stack[len(p.stack)-1].name
	}
	if len(p.stack) >= 2 {
		grandparentName = p.stack[len(p.stack)-2].name
	}

	p.extract(node, parentName, grandparentName)

	if len(p.stack) == 0 {
		// Root element: this is the document's canonical JSON payload.
		p.doc.RawPayload = node
		return
	}
	parent := p.stack[len(p.stack)-1]
	parent.children = append(parent.children, node)
}

// extract applies the field-extraction rules at the moment
// each element closes, using the already-built subtree (for ingredient,
// packaging and marketing-status rows) or the immediate ancestor chain (for
// scalar document fields).
func (p *parser) extract(node *Node, parentName, grandparentName string) {
	if node.NS != HL7Namespace {
		return
	}
	switch node.Name {
	case "id":
		if parentName == "document" {
			if v, ok := node.attr("root"); ok && p.doc.DocumentID == "" {
				p.doc.DocumentID = strings.ToLower(strings.TrimSpace(v))
			}
		}
	case "setId":
		if parentName == "document" {
			if v, ok := node.attr("root"); ok && p.doc.SetID == "" {
				p.doc.SetID = strings.ToLower(strings.TrimSpace(v))
			}
		}
	case "versionNumber":
		if parentName == "document" {
			if v, ok := node.attr("value"); ok {
				if n, err := parsePositiveInt(v); err == nil {
					p.doc.VersionNumber = n
				}
			}
		}
	case "effectiveTime":
		if parentName == "document" {
			if v, ok := node.attr("value"); ok {
				if t, err := parseHL7Time(v); err == nil {
					p.doc.EffectiveTime = t
				}
			}
		}
	case "name":
		switch parentName {
		case "manufacturedProduct":
			if p.doc.ProductName == "" {
				p.doc.ProductName = node.text()
			}
		case "representedOrganization":
			if p.doc.ManufacturerName == "" {
				p.doc.ManufacturerName = node.text()
			}
		}
	case "formCode":
		// manufacturedProduct/formCode/@displayName
		if parentName == "manufacturedProduct" && p.doc.DosageForm == "" {
			if v, ok := node.attr("displayName"); ok {
				p.doc.DosageForm = v
			}
		}
	case "routeCode":
		// consumedIn/substanceAdministration/routeCode/@displayName;
		// collapsed to the first distinct value.
		if parentName == "substanceAdministration" && grandparentName == "consumedIn" && p.doc.RouteOfAdministration == "" {
			if v, ok := node.attr("displayName"); ok {
				p.doc.RouteOfAdministration = v
			}
		}
	case "code":
		if v, ok := node.attr("codeSystem"); ok && v == ndcCodeSystemOID {
			if c, ok2 := node.attr("code"); ok2 {
				c = strings.TrimSpace(c)
				if c != "" && !p.ndcSeen[c] {
					p.ndcSeen[c] = true
					p.doc.NDCs = append(p.doc.NDCs, c)
				}
			}
		}
	case "ingredient":
		p.doc.Ingredients = append(p.doc.Ingredients, buildIngredient(node))
	case "containerPackagedProduct":
		p.doc.Packaging = append(p.doc.Packaging, buildPackaging(node))
	case "marketingAct":
		p.doc.MarketingStatus = append(p.doc.MarketingStatus, buildMarketingStatus(node))
	}
}

func buildIngredient(node *Node) Ingredient {
	classCode, _ := node.attr("classCode")
	isActive := classCode == classActiveIngredientBase ||
		classCode == classActiveMoiety ||
		classCode == classActiveIngredientReformed

	var name, substanceCode string
	if substance := node.child("ingredientSubstance"); substance != nil {
		if n := substance.child("name"); n != nil {
			name = strings.TrimSpace(n.text())
		}
		if c := substance.child("code"); c != nil {
			if v, ok := c.attr("code"); ok {
				substanceCode = v
			}
		}
	}

	var numerator, denominator, unit string
	if qty := node.child("quantity"); qty != nil {
		if num := qty.child("numerator"); num != nil {
			if v, ok := num.attr("value"); ok {
				numerator = v
			}
			if v, ok := num.attr("unit"); ok {
				unit = v
			}
		}
		if den := qty.child("denominator"); den != nil {
			if v, ok := den.attr("value"); ok {
				denominator = v
			}
		}
	}

	return Ingredient{
		Name:                name,
		SubstanceCode:       substanceCode,
		StrengthNumerator:   numerator,
		StrengthDenominator: denominator,
		UnitOfMeasure:       unit,
		IsActive:            isActive,
	}
}

func buildPackaging(node *Node) Packaging {
	var ndc, desc, ptype string
	if c := node.child("code"); c != nil {
		if v, ok := c.attr("code"); ok {
			ndc = v
		}
	}
	if n := node.child("name"); n != nil {
		desc = strings.TrimSpace(n.text())
	}
	if fc := node.child("formCode"); fc != nil {
		if v, ok := fc.attr("displayName"); ok {
			ptype = v
		}
	}
	return Packaging{PackageNDC: ndc, PackageDescription: desc, PackageType: ptype}
}

func buildMarketingStatus(node *Node) MarketingStatus {
	var category string
	if sc := node.child("statusCode"); sc != nil {
		if v, ok := sc.attr("code"); ok {
			category = v
		}
	}
	var start, end *string
	if et := node.child("effectiveTime"); et != nil {
		if low := et.child("low"); low != nil {
			if v, ok := low.attr("value"); ok {
				start = &v
			}
		}
		if high := et.child("high"); high != nil {
			if v, ok := high.attr("value"); ok {
				end = &v
			}
		}
	}
	ms := MarketingStatus{MarketingCategory: category}
	if start != nil {
		ms.StartDate = parseHL7TimeOptional(*start)
	}
	if end != nil {
		ms.EndDate = parseHL7TimeOptional(*end)
	}
	return ms
}

// validateRequired enforces the required-field rule:
// document_id, set_id, version_number and effective_time must all be present.
func (p *parser) validateRequired() error {
	var missing []string
	if p.doc.DocumentID == "" {
		missing = append(missing, "document_id")
	}
	if p.doc.SetID == "" {
		missing = append(missing, "set_id")
	}
	if p.doc.VersionNumber <= 0 {
		missing = append(missing, "version_number")
	}
	if p.doc.EffectiveTime.IsZero() {
		missing = append(missing, "effective_time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
