package identifiers

// list of built-in supported identifier systems, extendable at runtime by
// importing other packages and calling Register.
const (
	SNOMEDCT    = "http://snomed.info/sct"
	ReadV2      = "http://read.info/readv2"
	ReadV3      = "http://read.info/ctv3"
	GMCNumber   = "https://fhir.hl7.org.uk/Id/gmc-number"
	NMCPIN      = "https://fhir.hl7.org.uk/Id/nmc-pin"
	ODSCode     = "https://fhir.nhs.uk/Id/ods-organization-code"
	ODSSiteCode = "https://fhir.nhs.uk/Id/ods-site-code"

	// EnterprisePatientID is the default ECID system URI the FHIR resolver
	// matches when fhir.enterpriseSystem is not configured.
	EnterprisePatientID  = "http://openclientregistry.org/fhir/sourceid"
	EnterpriseProviderID = "http://openclientregistry.org/fhir/provider-sourceid"
	EnterpriseFacilityID = "http://openclientregistry.org/fhir/facility-sourceid"
)
