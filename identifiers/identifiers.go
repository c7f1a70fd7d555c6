// Package identifiers models the HL7 assigning-authority / identifier value
// pair used throughout XDS.b metadata, and provides a small registry that
// maps identifier system URIs to human-readable names.
package identifiers

import (
	"fmt"
	"sort"
	"sync"
)

// AssigningAuthority identifies the issuer of an identifier value, per the
// HL7 CX.4 composite. At least one of the three fields is expected to be
// populated; equality is by the triple.
type AssigningAuthority struct {
	NamespaceID     string
	UniversalID     string
	UniversalIDType string
}

// Empty reports whether none of the authority's fields carry a value.
func (a AssigningAuthority) Empty() bool {
	return a.NamespaceID == "" && a.UniversalID == "" && a.UniversalIDType == ""
}

// Equal compares two authorities by their triple.
func (a AssigningAuthority) Equal(b AssigningAuthority) bool {
	return a.NamespaceID == b.NamespaceID && a.UniversalID == b.UniversalID && a.UniversalIDType == b.UniversalIDType
}

func (a AssigningAuthority) String() string {
	return fmt.Sprintf("%s&%s&%s", a.NamespaceID, a.UniversalID, a.UniversalIDType)
}

// Identifier is a value bound to the authority that issued it.
type Identifier struct {
	Value     string
	Authority AssigningAuthority
}

// Equal reports whether two identifiers carry the same value and authority.
func (id Identifier) Equal(other Identifier) bool {
	return id.Value == other.Value && id.Authority.Equal(other.Authority)
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s^%s", id.Value, id.Authority)
}

// Default enterprise authorities named by the resolver configuration (ECID
// for patients, EPID for providers, ELID for facilities). Individual
// deployments are free to override these via OrchestrationConfig.
var (
	DefaultECID = AssigningAuthority{NamespaceID: "ECID", UniversalID: "ECID", UniversalIDType: "ECID"}
	DefaultEPID = AssigningAuthority{NamespaceID: "EPID", UniversalID: "EPID", UniversalIDType: "EPID"}
	DefaultELID = AssigningAuthority{NamespaceID: "ELID", UniversalID: "ELID", UniversalIDType: "ELID"}
)

var (
	systemsMu sync.RWMutex
	systems   = make(map[string]string) // uri -> display name
)

// Register registers a named identifier system with the registry. It exists
// so that extractor/resolver code built against a well-known URI (see
// known.go) can look up a human-readable name for logging and error
// messages.
func Register(name string, uri string) {
	systemsMu.Lock()
	defer systemsMu.Unlock()
	systems[uri] = name
}

// Lookup returns the display name registered for a system URI.
func Lookup(uri string) (string, bool) {
	systemsMu.RLock()
	defer systemsMu.RUnlock()
	name, ok := systems[uri]
	return name, ok
}

// Systems returns the sorted list of registered identifier system URIs.
func Systems() []string {
	systemsMu.RLock()
	defer systemsMu.RUnlock()
	list := make([]string, 0, len(systems))
	for uri := range systems {
		list = append(list, uri)
	}
	sort.Strings(list)
	return list
}

func init() {
	Register("SNOMED CT", SNOMEDCT)
	Register("Read V2", ReadV2)
	Register("Read CTV3", ReadV3)
	Register("GMC - General medical council", GMCNumber)
	Register("NMC - Nursing and midwifery council", NMCPIN)
	Register("ODS code", ODSCode)
	Register("ODS site code", ODSSiteCode)
	Register("Enterprise patient identifier", EnterprisePatientID)
	Register("Enterprise provider identifier", EnterpriseProviderID)
	Register("Enterprise facility identifier", EnterpriseFacilityID)
}
