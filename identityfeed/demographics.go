// Package identityfeed implements the identity feed client: patient
// registration triggered when a resolver reports a patient identifier as
// not found and auto-registration is enabled, deriving demographics from
// whatever the PnR transaction carries.
package identityfeed

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/wardle/xds-mediator/pnr"
)

// Demographics is the subset of patient detail an identity feed needs to
// register a previously unknown patient.
type Demographics struct {
	GivenName                 string
	FamilyName                string
	Gender                    string
	BirthDate                 string
	Telecom                   string
	LanguageCommunicationCode string
}

// Attachments maps a document entry's id to its raw MTOM-attached content,
// handed to this package already extracted from the SOAP envelope. The
// MTOM adapter itself is out of scope here.
type Attachments map[string][]byte

type fhirPatient struct {
	Name []struct {
		Family string   `json:"family"`
		Given  []string `json:"given"`
	} `json:"name"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birthDate"`
	Telecom   []struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"telecom"`
	Communication []struct {
		Language struct {
			Coding []struct {
				Code string `json:"code"`
			} `json:"coding"`
		} `json:"language"`
	} `json:"communication"`
}

type cdaClinicalDocument struct {
	XMLName      xml.Name `xml:"ClinicalDocument"`
	RecordTarget struct {
		PatientRole struct {
			Patient struct {
				Name struct {
					Given  string `xml:"given"`
					Family string `xml:"family"`
				} `xml:"name"`
				AdministrativeGenderCode struct {
					Code string `xml:"code,attr"`
				} `xml:"administrativeGenderCode"`
				BirthTime struct {
					Value string `xml:"value,attr"`
				} `xml:"birthTime"`
				Telecom struct {
					Value string `xml:"value,attr"`
				} `xml:"telecom"`
				LanguageCommunication struct {
					LanguageCode struct {
						Code string `xml:"code,attr"`
					} `xml:"languageCode"`
				} `xml:"languageCommunication"`
			} `xml:"patient"`
		} `xml:"patientRole"`
	} `xml:"recordTarget"`
}

// Extract prefers an embedded FHIR Patient resource, falls back to the CDA
// Level-2 header of the first document whose attachment carries one with a
// patient name, and otherwise reports
// that no demographics are available (identity feed proceeds with
// identifiers only).
func Extract(env *pnr.Envelope, attachments Attachments) (*Demographics, bool) {
	for _, doc := range env.DocumentEntries() {
		mimeType := doc.SelectAttrValue("mimeType", "")
		content, ok := attachments[doc.SelectAttrValue("id", "")]
		if !ok {
			continue
		}
		if mimeType == "application/fhir+json" {
			if d, err := fromFHIRJSON(content); err == nil {
				return d, true
			}
		}
	}
	for _, doc := range env.DocumentEntries() {
		content, ok := attachments[doc.SelectAttrValue("id", "")]
		if !ok {
			continue
		}
		if d, err := fromCDAHeader(content); err == nil {
			return d, true
		}
	}
	return nil, false
}

func fromFHIRJSON(content []byte) (*Demographics, error) {
	var p fhirPatient
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("identityfeed: decoding fhir patient: %w", err)
	}
	d := &Demographics{Gender: p.Gender, BirthDate: p.BirthDate}
	if len(p.Name) > 0 {
		d.FamilyName = p.Name[0].Family
		if len(p.Name[0].Given) > 0 {
			d.GivenName = p.Name[0].Given[0]
		}
	}
	for _, t := range p.Telecom {
		if t.System == "phone" {
			d.Telecom = "tel:" + t.Value
			break
		}
	}
	if len(p.Communication) > 0 && len(p.Communication[0].Language.Coding) > 0 {
		d.LanguageCommunicationCode = p.Communication[0].Language.Coding[0].Code
	}
	return d, nil
}

func fromCDAHeader(content []byte) (*Demographics, error) {
	var doc cdaClinicalDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("identityfeed: decoding cda header: %w", err)
	}
	patient := doc.RecordTarget.PatientRole.Patient
	if patient.Name.Family == "" && patient.Name.Given == "" {
		return nil, fmt.Errorf("identityfeed: cda header carries no patient name")
	}
	return &Demographics{
		GivenName:                 patient.Name.Given,
		FamilyName:                patient.Name.Family,
		Gender:                    patient.AdministrativeGenderCode.Code,
		BirthDate:                 patient.BirthTime.Value,
		Telecom:                   patient.Telecom.Value,
		LanguageCommunicationCode: patient.LanguageCommunication.LanguageCode.Code,
	}, nil
}
