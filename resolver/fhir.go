package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
)

// Fhir resolves identifiers against a FHIR R4 Patient search endpoint,
// authenticating with HTTP Basic auth. EnterpriseSystem names the
// identifier.system a returned Patient resource must carry for its value
// to be taken as the resolved Enterprise identifier.
type Fhir struct {
	BaseURL          string
	ClientName       string
	Password         string
	EnterpriseSystem string
	HTTPClient       *http.Client
}

// NewFhir constructs a Fhir resolver. clientName/password populate HTTP
// Basic auth in that order: user = clientName, password = password.
func NewFhir(baseURL, clientName, password, enterpriseSystem string) *Fhir {
	return &Fhir{
		BaseURL:          baseURL,
		ClientName:       clientName,
		Password:         password,
		EnterpriseSystem: enterpriseSystem,
		HTTPClient:       &http.Client{Timeout: DefaultCallTimeout},
	}
}

type fhirBundle struct {
	Entry []struct {
		Resource struct {
			Identifier []struct {
				System string `json:"system"`
				Value  string `json:"value"`
			} `json:"identifier"`
		} `json:"resource"`
	} `json:"entry"`
}

// Resolve implements Resolver.
func (r *Fhir) Resolve(ctx context.Context, category pnr.Category, id identifiers.Identifier, target identifiers.AssigningAuthority) Result {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	system := id.Authority.UniversalID
	u := fmt.Sprintf("%s/Patient?identifier=%s", r.BaseURL, url.QueryEscape(fmt.Sprintf("%s|%s", system, id.Value)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{Status: Error, Err: err}
	}
	req.SetBasicAuth(r.ClientName, r.Password)
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return Result{Status: Error, Err: fmt.Errorf("resolver: fhir request failed: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: Error, Err: fmt.Errorf("resolver: fhir search returned status %d", resp.StatusCode)}
	}

	var bundle fhirBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return Result{Status: Error, Err: fmt.Errorf("resolver: decoding fhir bundle: %w", err)}
	}
	for _, entry := range bundle.Entry {
		for _, ident := range entry.Resource.Identifier {
			if ident.System == r.EnterpriseSystem {
				return Result{Status: Resolved, Identifier: identifiers.Identifier{
					Value:     ident.Value,
					Authority: target,
				}}
			}
		}
	}
	return Result{Status: NotFound}
}
