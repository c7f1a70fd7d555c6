package identityfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/golevel7/hl7"
	"github.com/dshills/golevel7/mllp"

	"github.com/wardle/xds-mediator/identifiers"
)

// Outcome is the result of a patient registration attempt.
type Outcome int

const (
	Success Outcome = iota
	Failed
)

// Result is the outcome of a Register call.
type Result struct {
	Outcome Outcome
	Err     error
}

// Client registers a previously unknown patient, carrying every identifier
// the PnR transaction presented for that patient plus whatever
// demographics could be extracted. demographics may be nil.
type Client interface {
	Register(ctx context.Context, ids []identifiers.Identifier, demographics *Demographics) Result
}

// DefaultCallTimeout mirrors the resolver package's per-call default; the
// identity feed is itself a resolver-adjacent external call.
const DefaultCallTimeout = 60 * time.Second

// Hl7Client registers a patient via an HL7 ADT^A04 (register a patient)
// message sent over MLLP.
type Hl7Client struct {
	Addr               string
	SendingApplication string
	SendingFacility    string
}

// NewHl7Client constructs an Hl7Client dialling addr lazily on each call.
func NewHl7Client(addr, sendingApplication, sendingFacility string) *Hl7Client {
	return &Hl7Client{Addr: addr, SendingApplication: sendingApplication, SendingFacility: sendingFacility}
}

// Register implements Client.
func (c *Hl7Client) Register(ctx context.Context, ids []identifiers.Identifier, demographics *Demographics) Result {
	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	client, err := mllp.NewClient(c.Addr)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: dialling identity feed: %w", err)}
	}
	defer client.Close()

	msg := c.buildADT(ids, demographics)
	resp, err := client.Send(ctx, msg)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: adt^a04 failed: %w", err)}
	}
	ack, err := resp.Get("MSA.1")
	if err != nil || (ack != "AA" && ack != "CA") {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: adt^a04 not accepted (MSA.1=%q)", ack)}
	}
	return Result{Outcome: Success}
}

func (c *Hl7Client) buildADT(ids []identifiers.Identifier, demographics *Demographics) hl7.Message {
	now := time.Now().Format("20060102150405")
	msh := hl7.NewSegment("MSH")
	msh.AddField(hl7.NewField(1, "|"))
	msh.AddField(hl7.NewField(2, `^~\&`))
	msh.AddField(hl7.NewField(3, c.SendingApplication))
	msh.AddField(hl7.NewField(4, c.SendingFacility))
	msh.AddField(hl7.NewField(5, "IDENTITY"))
	msh.AddField(hl7.NewField(6, "FEED"))
	msh.AddField(hl7.NewField(7, now))
	msh.AddField(hl7.NewField(8, ""))
	msh.AddField(hl7.NewField(9, "ADT^A04^ADT_A01"))
	msh.AddField(hl7.NewField(10, now))
	msh.AddField(hl7.NewField(11, "P"))
	msh.AddField(hl7.NewField(12, "2.5"))

	evn := hl7.NewSegment("EVN")
	evn.AddField(hl7.NewField(1, "A04"))
	evn.AddField(hl7.NewField(2, now))

	pid := hl7.NewSegment("PID")
	pid.AddField(hl7.NewField(1, "1"))
	for _, id := range ids {
		pid.AddField(hl7.NewField(3, identifiers.FormatCX(id)))
	}
	if demographics != nil {
		pid.AddField(hl7.NewField(5, fmt.Sprintf("%s^%s", demographics.FamilyName, demographics.GivenName)))
		pid.AddField(hl7.NewField(7, demographics.BirthDate))
		pid.AddField(hl7.NewField(8, demographics.Gender))
		if demographics.Telecom != "" {
			pid.AddField(hl7.NewField(13, demographics.Telecom))
		}
		if demographics.LanguageCommunicationCode != "" {
			pid.AddField(hl7.NewField(15, demographics.LanguageCommunicationCode))
		}
	}

	msg := hl7.NewEmptyMessage()
	msg.AddSegment(msh)
	msg.AddSegment(evn)
	msg.AddSegment(pid)
	return msg
}

// FhirClient registers a patient by POSTing a FHIR Patient resource.
type FhirClient struct {
	BaseURL    string
	ClientName string
	Password   string
	HTTPClient *http.Client
}

// NewFhirClient constructs a FhirClient.
func NewFhirClient(baseURL, clientName, password string) *FhirClient {
	return &FhirClient{BaseURL: baseURL, ClientName: clientName, Password: password, HTTPClient: &http.Client{Timeout: DefaultCallTimeout}}
}

type fhirNewPatient struct {
	ResourceType string `json:"resourceType"`
	Identifier   []struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"identifier"`
	Name []struct {
		Family string   `json:"family"`
		Given  []string `json:"given"`
	} `json:"name"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

// Register implements Client.
func (c *FhirClient) Register(ctx context.Context, ids []identifiers.Identifier, demographics *Demographics) Result {
	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	patient := fhirNewPatient{ResourceType: "Patient"}
	for _, id := range ids {
		patient.Identifier = append(patient.Identifier, struct {
			System string `json:"system"`
			Value  string `json:"value"`
		}{System: id.Authority.UniversalID, Value: id.Value})
	}
	if demographics != nil {
		patient.Gender = demographics.Gender
		patient.BirthDate = demographics.BirthDate
		if demographics.FamilyName != "" || demographics.GivenName != "" {
			patient.Name = append(patient.Name, struct {
				Family string   `json:"family"`
				Given  []string `json:"given"`
			}{Family: demographics.FamilyName, Given: []string{demographics.GivenName}})
		}
	}

	body, err := json.Marshal(patient)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: encoding fhir patient: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/Patient", bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	req.Header.Set("Content-Type", "application/fhir+json")
	req.SetBasicAuth(c.ClientName, c.Password)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: fhir create failed: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Result{Outcome: Failed, Err: fmt.Errorf("identityfeed: fhir create returned status %d", resp.StatusCode)}
	}
	return Result{Outcome: Success}
}
