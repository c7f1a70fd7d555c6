package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/identityfeed"
	"github.com/wardle/xds-mediator/pnr"
	"github.com/wardle/xds-mediator/resolver"
)

// countingResolver wraps an Internal resolver and records how many times
// Resolve was called, per identifier key, so tests can assert dedup and
// category-disable behaviour directly against call counts rather than
// just outcomes.
type countingResolver struct {
	mu    sync.Mutex
	calls []string
	inner *resolver.Internal
}

func newCountingResolver(mappings map[string]identifiers.Identifier) *countingResolver {
	return &countingResolver{inner: resolver.NewInternal(mappings)}
}

func (c *countingResolver) Resolve(ctx context.Context, category pnr.Category, id identifiers.Identifier, target identifiers.AssigningAuthority) resolver.Result {
	c.mu.Lock()
	c.calls = append(c.calls, id.Value)
	c.mu.Unlock()
	return c.inner.Resolve(ctx, category, id, target)
}

func (c *countingResolver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeIdentityFeed registers whatever it is asked to, reporting success
// without changing any resolver's state, and records the call so tests can
// assert it is invoked at most once per transaction.
type fakeIdentityFeed struct {
	mu       sync.Mutex
	calls    int
	lastIDs  []identifiers.Identifier
	lastDemo *identityfeed.Demographics
}

func (f *fakeIdentityFeed) Register(ctx context.Context, ids []identifiers.Identifier, demographics *identityfeed.Demographics) identityfeed.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastIDs = ids
	f.lastDemo = demographics
	return identityfeed.Result{Outcome: identityfeed.Success}
}

const twoDistinctPatientIDsEnvelope = `<?xml version="1.0"?>
<rim:RegistryObjectList xmlns:rim="urn:oasis:names:tc:ebxml-regrep:xsd:rim:3.0">
  <rim:RegistryPackage id="SS1">
    <rim:Classification classificationScheme="urn:uuid:aa543740-bdda-424e-8c96-df4873be8500" classifiedObject="SS1"/>
    <rim:ExternalIdentifier identificationScheme="urn:uuid:6b5aea1a-874d-4603-a4bc-96a0a7b38446" value="76cc765a442f410^^^&amp;1.3.6.1.4.1.21367.2005.3.7&amp;ISO"/>
  </rim:RegistryPackage>
  <rim:ExtrinsicObject id="Doc1" mimeType="text/xml">
    <rim:ExternalIdentifier identificationScheme="urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
  </rim:ExtrinsicObject>
</rim:RegistryObjectList>`

const twoDocumentSamePatientEnvelope = `<?xml version="1.0"?>
<rim:RegistryObjectList xmlns:rim="urn:oasis:names:tc:ebxml-regrep:xsd:rim:3.0">
  <rim:RegistryPackage id="SS1">
    <rim:Classification classificationScheme="urn:uuid:aa543740-bdda-424e-8c96-df4873be8500" classifiedObject="SS1"/>
    <rim:ExternalIdentifier identificationScheme="urn:uuid:6b5aea1a-874d-4603-a4bc-96a0a7b38446" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
  </rim:RegistryPackage>
  <rim:ExtrinsicObject id="Doc1" mimeType="text/xml">
    <rim:ExternalIdentifier identificationScheme="urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
  </rim:ExtrinsicObject>
  <rim:ExtrinsicObject id="Doc2" mimeType="text/xml">
    <rim:ExternalIdentifier identificationScheme="urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
  </rim:ExtrinsicObject>
</rim:RegistryObjectList>`

const withProviderAndFacilityEnvelope = `<?xml version="1.0"?>
<rim:RegistryObjectList xmlns:rim="urn:oasis:names:tc:ebxml-regrep:xsd:rim:3.0">
  <rim:RegistryPackage id="SS1">
    <rim:Classification classificationScheme="urn:uuid:aa543740-bdda-424e-8c96-df4873be8500" classifiedObject="SS1"/>
    <rim:ExternalIdentifier identificationScheme="urn:uuid:6b5aea1a-874d-4603-a4bc-96a0a7b38446" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
  </rim:RegistryPackage>
  <rim:ExtrinsicObject id="Doc1" mimeType="text/xml">
    <rim:ExternalIdentifier identificationScheme="urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
    <rim:Classification classificationScheme="urn:uuid:93606bcf-9494-43ec-9b4e-a7748d1a838d">
      <rim:Slot name="authorPerson"><rim:ValueList><rim:Value>P999^Smith^Jane^^Dr^^MD^^&amp;1.2.3.4&amp;ISO</rim:Value></rim:ValueList></rim:Slot>
    </rim:Classification>
    <rim:Slot name="urn:ihe:iti:xds-b:2007:healthcareFacilityTypeCode">
      <rim:ValueList><rim:Value>Some Hospital^^^^^&amp;1.2.3.4.5.6.7.8.9.1789^^^^45</rim:Value></rim:ValueList>
    </rim:Slot>
  </rim:ExtrinsicObject>
  <rim:ExtrinsicObject id="Doc2" mimeType="text/xml">
    <rim:ExternalIdentifier identificationScheme="urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427" value="1111111111^^^&amp;1.2.3&amp;ISO"/>
    <rim:Slot name="urn:ihe:iti:xds-b:2007:healthcareFacilityTypeCode">
      <rim:ValueList><rim:Value>Some Hospital^^^^^&amp;1.2.3.4.5.6.7.8.9.1789^^^^53</rim:Value></rim:ValueList>
    </rim:Slot>
  </rim:ExtrinsicObject>
</rim:RegistryObjectList>`

func defaultConfig() Config {
	return Config{ProvidersEnrich: true, FacilitiesEnrich: true}
}

func TestDedupIssuesOneResolveCallPerDistinctPatientIdentifier(t *testing.T) {
	r := newCountingResolver(map[string]identifiers.Identifier{
		"1111111111": {Value: "ECID1", Authority: identifiers.DefaultECID},
	})
	e := &Engine{Resolvers: map[pnr.Category]resolver.Resolver{pnr.Patient: r}, Config: Config{}}

	resp, err := e.Process(context.Background(), []byte(twoDocumentSamePatientEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed {
		t.Fatalf("expected success, got failure: %s", resp.Body)
	}
	if got := r.count(); got != 1 {
		t.Errorf("expected exactly one resolve call for the deduped patient identifier, got %d", got)
	}
}

func TestCategoryDisabledIssuesNoResolveCalls(t *testing.T) {
	patientResolver := newCountingResolver(map[string]identifiers.Identifier{
		"1111111111": {Value: "ECID1", Authority: identifiers.DefaultECID},
	})
	providerResolver := newCountingResolver(nil)
	facilityResolver := newCountingResolver(nil)
	e := &Engine{
		Resolvers: map[pnr.Category]resolver.Resolver{
			pnr.Patient:  patientResolver,
			pnr.Provider: providerResolver,
			pnr.Facility: facilityResolver,
		},
		Config: Config{ProvidersEnrich: false, FacilitiesEnrich: false},
	}

	resp, err := e.Process(context.Background(), []byte(withProviderAndFacilityEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed {
		t.Fatalf("expected success, got failure: %s", resp.Body)
	}
	if got := providerResolver.count(); got != 0 {
		t.Errorf("expected zero provider resolve calls when disabled, got %d", got)
	}
	if got := facilityResolver.count(); got != 0 {
		t.Errorf("expected zero facility resolve calls when disabled, got %d", got)
	}
}

func TestEnrichmentRewritesSubmissionSetAndDocumentEntry(t *testing.T) {
	r := resolver.NewInternal(map[string]identifiers.Identifier{
		"76cc765a442f410": {Value: "ECID1", Authority: identifiers.DefaultECID},
		"1111111111":      {Value: "ECID1", Authority: identifiers.DefaultECID},
	})
	e := &Engine{Resolvers: map[pnr.Category]resolver.Resolver{pnr.Patient: r}, Config: Config{}}

	resp, err := e.Process(context.Background(), []byte(twoDistinctPatientIDsEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed {
		t.Fatalf("expected success, got failure: %s", resp.Body)
	}
	body := string(resp.Body)
	want := `value="ECID1^^^ECID&amp;ECID&amp;ECID"`
	if got := strings.Count(body, want); got != 2 {
		t.Errorf("expected enriched ECID1 value on both SubmissionSet and DocumentEntry, found %d in:\n%s", got, body)
	}
}

func TestUnknownPatientBothMissingWithoutAutoRegister(t *testing.T) {
	r := resolver.NewInternal(nil) // everything misses
	e := &Engine{Resolvers: map[pnr.Category]resolver.Resolver{pnr.Patient: r}, Config: Config{}}

	resp, err := e.Process(context.Background(), []byte(twoDistinctPatientIDsEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed {
		t.Fatalf("expected failure, got success")
	}
	body := string(resp.Body)
	for _, want := range []string{
		`codeContext="Failed to resolve patient identifier: 76cc765a442f410^^^&amp;1.3.6.1.4.1.21367.2005.3.7&amp;ISO"`,
		`codeContext="Failed to resolve patient identifier: 1111111111^^^&amp;1.2.3&amp;ISO"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected failure body to contain %q, got:\n%s", want, body)
		}
	}
	if got := strings.Count(body, `errorCode="XDSUnknownPatientId"`); got != 2 {
		t.Errorf("expected exactly one XDSUnknownPatientId entry per missed identifier, got %d", got)
	}
}

func TestFacilityMissSurfacesRepositoryErrors(t *testing.T) {
	patientResolver := resolver.NewInternal(map[string]identifiers.Identifier{
		"1111111111": {Value: "ECID1", Authority: identifiers.DefaultECID},
	})
	providerResolver := resolver.NewInternal(map[string]identifiers.Identifier{
		"P999": {Value: "EPID1", Authority: identifiers.DefaultEPID},
	})
	facilityResolver := resolver.NewInternal(nil) // both facility ids miss
	e := &Engine{
		Resolvers: map[pnr.Category]resolver.Resolver{
			pnr.Patient:  patientResolver,
			pnr.Provider: providerResolver,
			pnr.Facility: facilityResolver,
		},
		Config: defaultConfig(),
	}

	resp, err := e.Process(context.Background(), []byte(withProviderAndFacilityEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed {
		t.Fatalf("expected failure, got success")
	}
	body := string(resp.Body)
	for _, want := range []string{
		`codeContext="Failed to resolve facility identifier: Some Hospital^^^^^&amp;1.2.3.4.5.6.7.8.9.1789^^^^45"`,
		`codeContext="Failed to resolve facility identifier: Some Hospital^^^^^&amp;1.2.3.4.5.6.7.8.9.1789^^^^53"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected failure body to contain %q, got:\n%s", want, body)
		}
	}
	if got := strings.Count(body, `errorCode="XDSRepositoryError"`); got != 2 {
		t.Errorf("expected exactly two XDSRepositoryError entries, got %d", got)
	}
}

func TestProviderRewritePreservesNameComponents(t *testing.T) {
	patientResolver := resolver.NewInternal(map[string]identifiers.Identifier{
		"1111111111": {Value: "ECID1", Authority: identifiers.DefaultECID},
	})
	providerResolver := resolver.NewInternal(map[string]identifiers.Identifier{
		"P999": {Value: "EPID1", Authority: identifiers.DefaultEPID},
	})
	facilityResolver := resolver.NewInternal(map[string]identifiers.Identifier{
		"45": {Value: "ELID1", Authority: identifiers.DefaultELID},
		"53": {Value: "ELID1", Authority: identifiers.DefaultELID},
	})
	e := &Engine{
		Resolvers: map[pnr.Category]resolver.Resolver{
			pnr.Patient:  patientResolver,
			pnr.Provider: providerResolver,
			pnr.Facility: facilityResolver,
		},
		Config: defaultConfig(),
	}

	resp, err := e.Process(context.Background(), []byte(withProviderAndFacilityEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed {
		t.Fatalf("expected success, got failure: %s", resp.Body)
	}
	body := string(resp.Body)
	want := "EPID1^Smith^Jane^^Dr^^MD^^EPID&amp;EPID&amp;EPID"
	if !strings.Contains(body, want) {
		t.Errorf("expected rewritten author to preserve name components, wanted %q in:\n%s", want, body)
	}
}

func TestAutoRegisterInvokedOnceWithCDADemographics(t *testing.T) {
	const cdaHeader = `<?xml version="1.0"?>
<ClinicalDocument xmlns="urn:hl7-org:v3">
  <recordTarget>
    <patientRole>
      <patient>
        <name><given>Jane</given><family>Doe</family></name>
        <administrativeGenderCode code="F"/>
        <birthTime value="19860101"/>
        <telecom value="tel:+27832222222"/>
        <languageCommunication><languageCode code="eng"/></languageCommunication>
      </patient>
    </patientRole>
  </recordTarget>
</ClinicalDocument>`

	r := resolver.NewInternal(nil) // patient always misses
	feed := &fakeIdentityFeed{}
	e := &Engine{
		Resolvers:    map[pnr.Category]resolver.Resolver{pnr.Patient: r},
		IdentityFeed: feed,
		Config:       Config{PatientsAutoRegister: true},
	}

	attachments := identityfeed.Attachments{"Doc1": []byte(cdaHeader)}
	resp, err := e.Process(context.Background(), []byte(twoDistinctPatientIDsEnvelope), attachments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed {
		t.Fatalf("expected failure since the resolver still misses after registration, got success")
	}
	if feed.calls != 1 {
		t.Fatalf("expected identity feed to be invoked exactly once, got %d calls", feed.calls)
	}
	if len(feed.lastIDs) != 2 {
		t.Fatalf("expected both missed patient identifiers batched into one registration call, got %d", len(feed.lastIDs))
	}
	if feed.lastDemo == nil {
		t.Fatalf("expected demographics to be extracted from the CDA header")
	}
	if feed.lastDemo.GivenName != "Jane" || feed.lastDemo.FamilyName != "Doe" || feed.lastDemo.Gender != "F" ||
		feed.lastDemo.BirthDate != "19860101" || feed.lastDemo.Telecom != "tel:+27832222222" || feed.lastDemo.LanguageCommunicationCode != "eng" {
		t.Errorf("unexpected demographics: %+v", feed.lastDemo)
	}
}

func TestAutoRegisterSucceedsOnReResolve(t *testing.T) {
	mappings := map[string]identifiers.Identifier{}
	r := resolver.NewInternal(mappings)
	feed := &registerThenPopulate{mappings: mappings}
	e := &Engine{
		Resolvers:    map[pnr.Category]resolver.Resolver{pnr.Patient: r},
		IdentityFeed: feed,
		Config:       Config{PatientsAutoRegister: true},
	}

	resp, err := e.Process(context.Background(), []byte(twoDocumentSamePatientEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Failed {
		t.Fatalf("expected success after re-resolve, got failure: %s", resp.Body)
	}
	if feed.calls != 1 {
		t.Errorf("expected identity feed invoked exactly once, got %d", feed.calls)
	}
}

// registerThenPopulate simulates a successful registration by populating
// the shared Internal resolver mapping so the ReResolving round succeeds.
type registerThenPopulate struct {
	calls    int
	mappings map[string]identifiers.Identifier
}

func (f *registerThenPopulate) Register(ctx context.Context, ids []identifiers.Identifier, demographics *identityfeed.Demographics) identityfeed.Result {
	f.calls++
	for _, id := range ids {
		f.mappings[id.Value] = identifiers.Identifier{Value: "ECID1", Authority: identifiers.DefaultECID}
	}
	return identityfeed.Result{Outcome: identityfeed.Success}
}

func TestSinglePatientInvariantViolation(t *testing.T) {
	r := resolver.NewInternal(map[string]identifiers.Identifier{
		"76cc765a442f410": {Value: "ECID1", Authority: identifiers.DefaultECID},
		"1111111111":      {Value: "ECID2", Authority: identifiers.DefaultECID},
	})
	e := &Engine{Resolvers: map[pnr.Category]resolver.Resolver{pnr.Patient: r}, Config: Config{}}

	resp, err := e.Process(context.Background(), []byte(twoDistinctPatientIDsEnvelope), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed {
		t.Fatalf("expected failure for conflicting enterprise identifiers, got success")
	}
	if !strings.Contains(string(resp.Body), `errorCode="XDSRegistryError"`) {
		t.Errorf("expected XDSRegistryError for the single-patient invariant violation, got:\n%s", resp.Body)
	}
}
