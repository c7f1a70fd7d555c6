package identifiers

import (
	"fmt"
	"strings"
)

// splitPreserveEmpty splits s on sep without collapsing empty fields. It is
// strings.Split, which already keeps empty and trailing fields (and returns
// a one-element slice when sep is absent); the helper's name records that
// callers depend on that behaviour.
func splitPreserveEmpty(s string, sep string) []string {
	return strings.Split(s, sep)
}

func componentAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

// ParseCX parses an HL7 CX composite identifier of the form
// value^checkDigit^checkDigitScheme^namespace&universalId&universalIdType.
// Empty inner components are preserved rather than collapsed.
func ParseCX(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, fmt.Errorf("identifiers: empty CX value")
	}
	parts := splitPreserveEmpty(s, "^")
	value := componentAt(parts, 0)
	if value == "" {
		return Identifier{}, fmt.Errorf("identifiers: CX missing identifier value in %q", s)
	}
	authority := parseAssigningAuthority(componentAt(parts, 3))
	return Identifier{Value: value, Authority: authority}, nil
}

// ParseAssigningAuthority parses an HL7 HD assigning-authority composite of
// the form namespace&universalId&universalIdType, preserving empty inner
// components.
func ParseAssigningAuthority(s string) AssigningAuthority {
	return parseAssigningAuthority(s)
}

func parseAssigningAuthority(s string) AssigningAuthority {
	parts := splitPreserveEmpty(s, "&")
	return AssigningAuthority{
		NamespaceID:     componentAt(parts, 0),
		UniversalID:     componentAt(parts, 1),
		UniversalIDType: componentAt(parts, 2),
	}
}

// FormatCX renders id in the CX enrichment form used to overwrite a
// resolved identifier in the DOM: value^^^namespace&universalId&type.
func FormatCX(id Identifier) string {
	return fmt.Sprintf("%s^^^%s&%s&%s", id.Value, id.Authority.NamespaceID, id.Authority.UniversalID, id.Authority.UniversalIDType)
}

// CXCheckDigitScheme reports the check-digit scheme a CX composite declares
// in its CX.3 component, the HL7 check-digit-scheme field that travels
// alongside (but is never consumed by) the value in CX.1. An empty CX.3
// means the sending system made no declaration, so there is nothing to
// validate. Any non-empty CX.3 is reported as Modulus11, the only scheme
// this package validates; the declared scheme name itself is not examined.
func CXCheckDigitScheme(s string) CheckDigitScheme {
	parts := splitPreserveEmpty(s, "^")
	if componentAt(parts, 2) == "" {
		return NoCheckDigit
	}
	return Modulus11
}

// ProviderIdentifier is a provider XCN extended composite name: the
// identifying value/authority pair plus the name and qualification
// components that travel with it on the wire, so a rewrite can substitute
// the resolved identifier while leaving the author's name untouched.
type ProviderIdentifier struct {
	Value       string
	Authority   AssigningAuthority
	Family      string
	Given       string
	Further     string
	Suffix      string
	Prefix      string
	Degree      string
	SourceTable string
}

// ParseXCN parses an HL7 XCN extended composite name - XCN shares CX's
// first component and carries its assigning authority at component 9
// (id^family^given^further^suffix^prefix^degree^sourceTable^authority...) -
// retaining the name/qualification components between them.
func ParseXCN(s string) (ProviderIdentifier, error) {
	if s == "" {
		return ProviderIdentifier{}, fmt.Errorf("identifiers: empty XCN value")
	}
	parts := splitPreserveEmpty(s, "^")
	value := componentAt(parts, 0)
	if value == "" {
		return ProviderIdentifier{}, fmt.Errorf("identifiers: XCN missing identifier value in %q", s)
	}
	authority := parseAssigningAuthority(componentAt(parts, 8))
	return ProviderIdentifier{
		Value:       value,
		Authority:   authority,
		Family:      componentAt(parts, 1),
		Given:       componentAt(parts, 2),
		Further:     componentAt(parts, 3),
		Suffix:      componentAt(parts, 4),
		Prefix:      componentAt(parts, 5),
		Degree:      componentAt(parts, 6),
		SourceTable: componentAt(parts, 7),
	}, nil
}

// FormatXCN renders a ProviderIdentifier in the same shape ParseXCN accepts:
// id^family^given^further^suffix^prefix^degree^sourceTable^authority. A
// rewrite that only substitutes Value/Authority and leaves the remaining
// fields as parsed preserves the author's name and qualifications exactly.
func FormatXCN(p ProviderIdentifier) string {
	return fmt.Sprintf("%s^%s^%s^%s^%s^%s^%s^%s^%s",
		p.Value, p.Family, p.Given, p.Further, p.Suffix, p.Prefix, p.Degree, p.SourceTable, p.Authority)
}

// FacilityIdentifier carries the identifying components of an HL7 XON
// extended organization name used for facility slots: the organization name
// from XON.1, the CX-style assigning authority composite from XON.6 and the
// facility's idNumber from XON.10, per the XDS healthcareFacility slot
// rendering.
type FacilityIdentifier struct {
	Name      string
	Authority AssigningAuthority
	IDNumber  string
}

// ParseXON parses a facility occurrence of the form
// name^^^^^&universalId^^^^idNumber, the shape the facility slot value
// carries on the wire: the assigning authority at XON.6 and the idNumber at
// XON.10.
func ParseXON(s string) (FacilityIdentifier, error) {
	if s == "" {
		return FacilityIdentifier{}, fmt.Errorf("identifiers: empty XON value")
	}
	parts := splitPreserveEmpty(s, "^")
	name := componentAt(parts, 0)
	authority := parseAssigningAuthority(componentAt(parts, 5))
	idNumber := componentAt(parts, 9)
	return FacilityIdentifier{Name: name, Authority: authority, IDNumber: idNumber}, nil
}

// FormatXON renders a FacilityIdentifier in the same shape ParseXON accepts.
func FormatXON(f FacilityIdentifier) string {
	return fmt.Sprintf("%s^^^^^&%s^^^^%s", f.Name, f.Authority.UniversalID, f.IDNumber)
}

// RenderPatientErrorContext renders the CX error-message shape used in a
// RegistryError's codeContext for an unresolved patient identifier. This
// shape omits the namespace component that FormatCX includes, per the
// source's own idiosyncratic rendering (see DESIGN NOTES, wire-contract).
func RenderPatientErrorContext(id Identifier) string {
	return fmt.Sprintf("%s^^^&%s&%s", id.Value, id.Authority.UniversalID, id.Authority.UniversalIDType)
}

// RenderProviderErrorContext renders the XCN error-message shape used for an
// unresolved provider identifier.
func RenderProviderErrorContext(id Identifier) string {
	return fmt.Sprintf("%s^^^^^^^^&%s", id.Value, id.Authority.UniversalID)
}

// RenderFacilityErrorContext renders the XON error-message shape used for an
// unresolved facility identifier.
func RenderFacilityErrorContext(f FacilityIdentifier) string {
	return fmt.Sprintf("%s^^^^^&%s^^^^%s", f.Name, f.Authority.UniversalID, f.IDNumber)
}
