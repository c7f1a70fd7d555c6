package identifiers

import "testing"

func TestParseCX(t *testing.T) {
	id, err := ParseCX("1111111111^^^&1.2.3&ISO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Value != "1111111111" {
		t.Errorf("value: expected 1111111111, got %s", id.Value)
	}
	if id.Authority.NamespaceID != "" || id.Authority.UniversalID != "1.2.3" || id.Authority.UniversalIDType != "ISO" {
		t.Errorf("unexpected authority: %+v", id.Authority)
	}
}

func TestParseCXPreservesEmptyComponents(t *testing.T) {
	id, err := ParseCX("12345^^^")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !id.Authority.Empty() {
		t.Errorf("expected empty authority, got %+v", id.Authority)
	}
}

func TestParseCXMissingValue(t *testing.T) {
	if _, err := ParseCX("^^^&1.2.3&ISO"); err == nil {
		t.Errorf("expected error for missing identifier value")
	}
}

func TestFormatCX(t *testing.T) {
	id := Identifier{Value: "ECID1", Authority: DefaultECID}
	got := FormatCX(id)
	want := "ECID1^^^ECID&ECID&ECID"
	if got != want {
		t.Errorf("FormatCX: expected %q, got %q", want, got)
	}
}

func TestRenderPatientErrorContext(t *testing.T) {
	id := Identifier{Value: "76cc765a442f410", Authority: AssigningAuthority{UniversalID: "1.3.6.1.4.1.21367.2005.3.7", UniversalIDType: "ISO"}}
	got := RenderPatientErrorContext(id)
	want := "76cc765a442f410^^^&1.3.6.1.4.1.21367.2005.3.7&ISO"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRenderProviderErrorContext(t *testing.T) {
	id := Identifier{Value: "P123", Authority: AssigningAuthority{UniversalID: "1.2.3.4"}}
	got := RenderProviderErrorContext(id)
	want := "P123^^^^^^^^&1.2.3.4"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseXCNPreservesNameComponents(t *testing.T) {
	p, err := ParseXCN("P999^Smith^Jane^^Dr^^MD^^&1.2.3.4&ISO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Value != "P999" || p.Authority.UniversalID != "1.2.3.4" || p.Authority.UniversalIDType != "ISO" {
		t.Errorf("unexpected identifier: %+v", p)
	}
	if p.Family != "Smith" || p.Given != "Jane" || p.Suffix != "Dr" || p.Degree != "MD" {
		t.Errorf("unexpected name components: %+v", p)
	}
}

func TestFormatXCNSubstitutesOnlyIdentifier(t *testing.T) {
	p, err := ParseXCN("P999^Smith^Jane^^Dr^^MD^^&1.2.3.4&ISO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Value = "EPID1"
	p.Authority = DefaultEPID
	got := FormatXCN(p)
	want := "EPID1^Smith^Jane^^Dr^^MD^^EPID&EPID&EPID"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestParseAndRenderXON(t *testing.T) {
	f, err := ParseXON("Some Hospital^^^^^&1.2.3.4.5.6.7.8.9.1789^^^^45")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Name != "Some Hospital" || f.Authority.UniversalID != "1.2.3.4.5.6.7.8.9.1789" || f.IDNumber != "45" {
		t.Errorf("unexpected parse: %+v", f)
	}
	if got, want := RenderFacilityErrorContext(f), "Some Hospital^^^^^&1.2.3.4.5.6.7.8.9.1789^^^^45"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := FormatXON(f); got != "Some Hospital^^^^^&1.2.3.4.5.6.7.8.9.1789^^^^45" {
		t.Errorf("FormatXON roundtrip mismatch: %s", got)
	}
}

func TestCXCheckDigitScheme(t *testing.T) {
	if got := CXCheckDigitScheme("1234567890^^^&1.2.3&ISO"); got != NoCheckDigit {
		t.Errorf("expected NoCheckDigit when CX.3 is empty, got %q", got)
	}
	if got := CXCheckDigitScheme("1234567890^^M11^&1.2.3&ISO"); got != Modulus11 {
		t.Errorf("expected Modulus11 when CX.3 is declared, got %q", got)
	}
}

func TestValidateCheckDigit(t *testing.T) {
	valid := []string{"1111111111", "6328797966", "6148595893", "4865447040", "4823917286"}
	invalid := []string{"4865447041", "1234567890"}
	for _, v := range valid {
		if !ValidateCheckDigit(Modulus11, v) {
			t.Errorf("%s reported as invalid", v)
		}
	}
	for _, v := range invalid {
		if ValidateCheckDigit(Modulus11, v) {
			t.Errorf("%s reported as valid", v)
		}
	}
}

func TestValidateCheckDigitNoScheme(t *testing.T) {
	if !ValidateCheckDigit(NoCheckDigit, "anything") {
		t.Errorf("expected NoCheckDigit to always validate")
	}
}
