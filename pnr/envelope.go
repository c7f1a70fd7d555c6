// Package pnr parses and rewrites IHE XDS.b Provide-and-Register Document
// Set-b envelopes, preserving element order and attribute shape exactly as
// received so that a rewritten envelope remains wire-identical to what a
// downstream XDS registry expects.
package pnr

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// Well-known ebRIM classification/identification scheme UUIDs used to
// locate patient, document and author identifiers within a PnR envelope.
const (
	schemeSubmissionSetPatientID = "urn:uuid:6b5aea1a-874d-4603-a4bc-96a0a7b38446"
	schemeDocumentEntryPatientID = "urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427"
	schemeAuthorPerson           = "urn:uuid:93606bcf-9494-43ec-9b4e-a7748d1a838d"
	slotHealthcareFacilityType   = "urn:ihe:iti:xds-b:2007:healthcareFacilityTypeCode"
)

// ErrMalformed is returned when an envelope cannot be parsed or lacks a
// SubmissionSet registry package.
var ErrMalformed = errors.New("pnr: malformed envelope")

// Envelope wraps a parsed PnR SOAP body, retaining the full DOM so that
// enrichment can rewrite identifier values in place before re-serializing.
type Envelope struct {
	doc             *etree.Document
	submissionSet   *etree.Element
	documentEntries []*etree.Element
}

// ParseEnvelope decodes raw envelope bytes into a DOM and locates the
// SubmissionSet RegistryPackage and every ExtrinsicObject document entry.
// When no RegistryPackage carries the SubmissionSet classification, the
// first RegistryPackage in document order is taken as the SubmissionSet.
// It returns ErrMalformed if the document does not parse or contains no
// RegistryPackage at all.
func ParseEnvelope(data []byte) (*Envelope, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}

	const schemeSubmissionSet = "urn:uuid:aa543740-bdda-424e-8c96-df4873be8500"
	var submissionSet *etree.Element
	var firstRegistryPackage *etree.Element
	var documentEntries []*etree.Element
	walk(doc.Root(), func(el *etree.Element) {
		switch localName(el.Tag) {
		case "RegistryPackage":
			if firstRegistryPackage == nil {
				firstRegistryPackage = el
			}
			if hasClassificationNode(el, schemeSubmissionSet) {
				submissionSet = el
			}
		case "ExtrinsicObject":
			documentEntries = append(documentEntries, el)
		}
	})
	if submissionSet == nil {
		submissionSet = firstRegistryPackage
	}
	if submissionSet == nil {
		return nil, fmt.Errorf("%w: no SubmissionSet RegistryPackage", ErrMalformed)
	}

	return &Envelope{doc: doc, submissionSet: submissionSet, documentEntries: documentEntries}, nil
}

// SubmissionSet returns the RegistryPackage element classified as the XDS
// SubmissionSet, or the first RegistryPackage when none is so classified.
func (e *Envelope) SubmissionSet() *etree.Element {
	return e.submissionSet
}

// DocumentEntries returns every ExtrinsicObject (document entry) found in
// the envelope, in document order.
func (e *Envelope) DocumentEntries() []*etree.Element {
	return e.documentEntries
}

// Bytes serializes the (possibly rewritten) DOM back to bytes. Transport
// headers outside the parsed body are never touched, since ParseEnvelope
// only ever receives the SOAP body subtree handed to it.
func (e *Envelope) Bytes() ([]byte, error) {
	return e.doc.WriteToBytes()
}

func walk(el *etree.Element, visit func(*etree.Element)) {
	visit(el)
	for _, child := range el.ChildElements() {
		walk(child, visit)
	}
}

// localName strips a namespace prefix from an element or attribute tag,
// e.g. "rim:ExtrinsicObject" -> "ExtrinsicObject".
func localName(tag string) string {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}

func hasClassificationNode(el *etree.Element, scheme string) bool {
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == "Classification" && child.SelectAttrValue("classificationScheme", "") == scheme {
			return true
		}
	}
	return false
}

// externalIdentifiers returns every child ExternalIdentifier element of el
// whose identificationScheme matches scheme.
func externalIdentifiers(el *etree.Element, scheme string) []*etree.Element {
	var found []*etree.Element
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == "ExternalIdentifier" && child.SelectAttrValue("identificationScheme", "") == scheme {
			found = append(found, child)
		}
	}
	return found
}

// classificationsByScheme returns every child Classification element of el
// whose classificationScheme matches scheme.
func classificationsByScheme(el *etree.Element, scheme string) []*etree.Element {
	var found []*etree.Element
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == "Classification" && child.SelectAttrValue("classificationScheme", "") == scheme {
			found = append(found, child)
		}
	}
	return found
}

// slotValue returns the first Slot/ValueList/Value descendant element of el
// whose Slot name attribute equals name.
func slotValue(el *etree.Element, name string) (*etree.Element, bool) {
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == "Slot" && child.SelectAttrValue("name", "") == name {
			for _, vl := range child.ChildElements() {
				if localName(vl.Tag) == "ValueList" {
					for _, v := range vl.ChildElements() {
						if localName(v.Tag) == "Value" {
							return v, true
						}
					}
				}
			}
		}
	}
	return nil, false
}
