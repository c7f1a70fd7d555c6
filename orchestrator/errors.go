package orchestrator

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// The three XDS error codes this mediator ever surfaces.
const (
	CodeUnknownPatientID = "XDSUnknownPatientId"
	CodeRepositoryError  = "XDSRepositoryError"
	CodeRegistryError    = "XDSRegistryError"
)

// RegistryError is one entry in a RegistryErrorList.
type RegistryError struct {
	Code        string
	CodeContext string
	Severity    string // "Error" or "Warning"
}

// BuildFailureResponse renders the Failed-state RegistryResponseType body:
// status Failure plus one RegistryError element per aggregated failure, in
// the ebRIM namespace/prefix shape a downstream XDS registry client expects.
func BuildFailureResponse(errs []RegistryError) []byte {
	doc := etree.NewDocument()
	root := doc.CreateElement("ns3:RegistryResponse")
	root.CreateAttr("xmlns:ns3", "urn:oasis:names:tc:ebxml-regrep:xsd:rs:3.0")
	root.CreateAttr("status", "urn:oasis:names:tc:ebxml-regrep:ResponseStatusType:Failure")
	list := root.CreateElement("ns3:RegistryErrorList")
	for _, e := range errs {
		el := list.CreateElement("ns3:RegistryError")
		el.CreateAttr("errorCode", e.Code)
		el.CreateAttr("codeContext", e.CodeContext)
		severity := e.Severity
		if severity == "" {
			severity = "Error"
		}
		el.CreateAttr("severity", severity)
	}
	b, err := doc.WriteToBytes()
	if err != nil {
		// etree only fails to serialize on a writer error, which WriteToBytes
		// (an in-memory buffer) never produces.
		panic(fmt.Sprintf("orchestrator: unexpected failure serializing RegistryResponse: %v", err))
	}
	return b
}

func unresolvedPatientError(occ *pnr.IdentifierOccurrence) RegistryError {
	return RegistryError{
		Code:        CodeUnknownPatientID,
		CodeContext: "Failed to resolve patient identifier: " + identifiers.RenderPatientErrorContext(occ.Identifier),
		Severity:    "Error",
	}
}

func unresolvedProviderError(occ *pnr.IdentifierOccurrence) RegistryError {
	return RegistryError{
		Code:        CodeRepositoryError,
		CodeContext: "Failed to resolve provider identifier: " + identifiers.RenderProviderErrorContext(occ.Identifier),
		Severity:    "Error",
	}
}

func unresolvedFacilityError(occ *pnr.IdentifierOccurrence) RegistryError {
	f := identifiers.FacilityIdentifier{
		Name:      occ.FacilityName,
		Authority: occ.Identifier.Authority,
		IDNumber:  occ.Identifier.Value,
	}
	return RegistryError{
		Code:        CodeRepositoryError,
		CodeContext: "Failed to resolve facility identifier: " + identifiers.RenderFacilityErrorContext(f),
		Severity:    "Error",
	}
}

// transportError folds a resolver-level transport failure into the
// aggregation; it is used for any category whose resolve call itself
// failed, as opposed to completing with a clean not-found.
func transportError(category pnr.Category, occ *pnr.IdentifierOccurrence, err error) RegistryError {
	return RegistryError{
		Code:        CodeRepositoryError,
		CodeContext: fmt.Sprintf("Failed to resolve %s identifier %s: %s", category, occ.Identifier, safeMessage(err)),
		Severity:    "Error",
	}
}

func timeoutError(msg string) RegistryError {
	return RegistryError{Code: CodeRepositoryError, CodeContext: msg, Severity: "Error"}
}

// genericError covers the truly unexpected conditions reserved for
// XDSRegistryError: a malformed envelope, an internal invariant violation,
// or a misconfigured engine. The message passed here must already be safe
// to put on the wire - no stack traces.
func genericError(msg string) RegistryError {
	return RegistryError{Code: CodeRegistryError, CodeContext: msg, Severity: "Error"}
}

func safeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
