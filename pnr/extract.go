package pnr

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/wardle/xds-mediator/identifiers"
)

// Category distinguishes the three kinds of identifier occurrence a PnR
// envelope can carry.
type Category int

const (
	Patient Category = iota
	Provider
	Facility
)

func (c Category) String() string {
	switch c {
	case Patient:
		return "patient"
	case Provider:
		return "provider"
	case Facility:
		return "facility"
	default:
		return "unknown"
	}
}

// site is an opaque handle into the parsed DOM sufficient to overwrite the
// identifier value found there once it has been resolved.
type site struct {
	element *etree.Element
	attr    string // empty means overwrite the element's text content
}

func (s site) write(value string) {
	if s.attr != "" {
		s.element.CreateAttr(s.attr, value)
		return
	}
	s.element.SetText(value)
}

// IdentifierOccurrence is a distinct (category, identifier) pair found
// while walking the envelope, bearing every DOM location it was found at so
// a single resolve result can rewrite every occurrence.
type IdentifierOccurrence struct {
	Category     Category
	Identifier   identifiers.Identifier
	FacilityName string                         // populated only when Category == Facility
	ProviderName identifiers.ProviderIdentifier // populated only when Category == Provider
	sites        []site
}

// Key uniquely identifies this occurrence within a ResolutionMap: category
// plus the identifier value/authority triple.
func (o *IdentifierOccurrence) Key() string {
	return fmt.Sprintf("%s|%s", o.Category, o.Identifier)
}

// Extraction is the full set of identifier occurrences found in one PnR
// envelope, deduplicated across SubmissionSet and DocumentEntry locations.
type Extraction struct {
	Occurrences []*IdentifierOccurrence

	// Warnings carries non-fatal problems noticed while extracting, such as
	// a patient identifier whose declared check digit doesn't validate.
	// None of these stop resolution or rewrite; they're surfaced so an
	// operator can see that a source system sent a suspect value.
	Warnings []string
}

// ByCategory returns every occurrence of the given category.
func (e *Extraction) ByCategory(c Category) []*IdentifierOccurrence {
	var out []*IdentifierOccurrence
	for _, o := range e.Occurrences {
		if o.Category == c {
			out = append(out, o)
		}
	}
	return out
}

// Extract walks the parsed envelope and emits every patient, provider and
// facility identifier occurrence, collapsing duplicates (same category and
// identifier) into a single occurrence carrying every DOM site it appeared
// at.
func Extract(env *Envelope) (*Extraction, error) {
	index := make(map[string]*IdentifierOccurrence)
	var order []string
	var warnings []string

	checkPatientID := func(raw string, id identifiers.Identifier, where string) {
		scheme := identifiers.CXCheckDigitScheme(raw)
		if !identifiers.ValidateCheckDigit(scheme, id.Value) {
			warnings = append(warnings, fmt.Sprintf("%s patient id %q fails check-digit validation", where, id.Value))
		}
	}

	add := func(o *IdentifierOccurrence, s site) {
		key := o.Key()
		existing, ok := index[key]
		if !ok {
			o.sites = append(o.sites, s)
			index[key] = o
			order = append(order, key)
			return
		}
		existing.sites = append(existing.sites, s)
	}

	for _, el := range externalIdentifiers(env.SubmissionSet(), schemeSubmissionSetPatientID) {
		raw := el.SelectAttrValue("value", "")
		id, err := identifiers.ParseCX(raw)
		if err != nil {
			return nil, fmt.Errorf("pnr: submission set patient id: %w", err)
		}
		checkPatientID(raw, id, "submission set")
		add(&IdentifierOccurrence{Category: Patient, Identifier: id}, site{element: el, attr: "value"})
	}

	for _, doc := range env.DocumentEntries() {
		for _, el := range externalIdentifiers(doc, schemeDocumentEntryPatientID) {
			raw := el.SelectAttrValue("value", "")
			id, err := identifiers.ParseCX(raw)
			if err != nil {
				return nil, fmt.Errorf("pnr: document entry patient id: %w", err)
			}
			checkPatientID(raw, id, "document entry")
			add(&IdentifierOccurrence{Category: Patient, Identifier: id}, site{element: el, attr: "value"})
		}

		for _, cls := range classificationsByScheme(doc, schemeAuthorPerson) {
			v, ok := slotValue(cls, "authorPerson")
			if !ok {
				continue
			}
			prov, err := identifiers.ParseXCN(v.Text())
			if err != nil {
				continue // an author without a parseable identifier carries no resolvable occurrence
			}
			id := identifiers.Identifier{Value: prov.Value, Authority: prov.Authority}
			add(&IdentifierOccurrence{Category: Provider, Identifier: id, ProviderName: prov}, site{element: v})
		}

		if v, ok := slotValue(doc, slotHealthcareFacilityType); ok {
			f, err := identifiers.ParseXON(v.Text())
			if err == nil {
				id := identifiers.Identifier{Value: f.IDNumber, Authority: f.Authority}
				add(&IdentifierOccurrence{Category: Facility, Identifier: id, FacilityName: f.Name}, site{element: v})
			}
		}
	}

	occurrences := make([]*IdentifierOccurrence, 0, len(order))
	for _, key := range order {
		occurrences = append(occurrences, index[key])
	}
	return &Extraction{Occurrences: occurrences, Warnings: warnings}, nil
}
