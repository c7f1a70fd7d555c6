/*
Package cmd supports the command-line interface for the xds-mediator utility.

Copyright © 2020 Eldrix Ltd and Mark Wardle (mark@wardle.org)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/identityfeed"
	"github.com/wardle/xds-mediator/orchestrator"
	"github.com/wardle/xds-mediator/pnr"
	"github.com/wardle/xds-mediator/resolver"
)

// orchestrateCmd drives a single Provide-and-Register transaction read from
// disk through the full orchestration engine, printing either the enriched
// envelope or the RegistryResponse failure body to stdout.
var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <envelope.xml>",
	Short: "Run a Provide-and-Register transaction through the orchestration engine",
	Long: `
orchestrate reads a ProvideAndRegisterDocumentSetRequest envelope from a
file, resolves every patient, provider and facility identifier it carries
against the configured MPI/Client Registry, auto-registers unknown patients
when enabled, and writes the enriched envelope (or a RegistryResponse
failure body) to stdout.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		envelopeBytes, err := ioutil.ReadFile(args[0])
		if err != nil {
			log.Fatalf("reading envelope file: %v", err)
		}

		engine := buildEngine()
		var resp *orchestrator.Response
		if viper.GetBool("pnr.sendParseOrchestration") {
			// parse-orchestration mode: the envelope is parsed up front, as
			// a hosting mediator's pre-parse stage would, and the engine is
			// entered with the already-parsed form and its correlation id.
			env, perr := pnr.ParseEnvelope(envelopeBytes)
			if perr != nil {
				log.Fatalf("pre-parsing envelope: %v", perr)
			}
			resp, err = engine.ProcessEnvelope(context.Background(), uuid.New().String(), env, identityfeed.Attachments{})
		} else {
			resp, err = engine.Process(context.Background(), envelopeBytes, identityfeed.Attachments{})
		}
		if err != nil {
			log.Fatalf("orchestration failed: %v", err)
		}

		if resp.Failed {
			fmt.Fprintf(os.Stderr, "transaction %s failed\n", resp.CorrelationID)
		} else {
			fmt.Fprintf(os.Stderr, "transaction %s completed\n", resp.CorrelationID)
		}
		os.Stdout.Write(resp.Body)
	},
}

func init() {
	rootCmd.AddCommand(orchestrateCmd)
}

// buildEngine wires an orchestrator.Engine from viper configuration,
// preferring a fake in-memory resolver over a live MPI when --fake is set.
func buildEngine() *orchestrator.Engine {
	cfg := orchestrator.Config{
		ProvidersEnrich:      viper.GetBool("pnr.providers.enrich"),
		FacilitiesEnrich:     viper.GetBool("pnr.facilities.enrich"),
		PatientsAutoRegister: viper.GetBool("pnr.patients.autoRegister"),
		TargetAuthorities:    requestedAuthorities(),
		PerCallTimeout:       viper.GetDuration("pnr.callTimeout"),
		TransactionTimeout:   viper.GetDuration("pnr.transactionTimeout"),
	}

	resolvers := map[pnr.Category]resolver.Resolver{}
	var idFeed identityfeed.Client

	if viper.GetBool("fake") {
		resolvers[pnr.Patient] = resolver.NewInternal(nil)
		resolvers[pnr.Provider] = resolver.NewInternal(nil)
		resolvers[pnr.Facility] = resolver.NewInternal(nil)
	} else {
		mpiURL := viper.GetString("fhir.mpiUrl")
		if mpiURL != "" {
			enterpriseSystem := viper.GetString("fhir.enterpriseSystem")
			if enterpriseSystem == "" {
				enterpriseSystem = identifiers.EnterprisePatientID
			}
			fhirResolver := resolver.NewFhir(mpiURL, viper.GetString("fhir.mpiClientName"), viper.GetString("fhir.mpiPassword"), enterpriseSystem)
			resolvers[pnr.Patient] = fhirResolver
			idFeed = identityfeed.NewFhirClient(mpiURL, viper.GetString("fhir.mpiClientName"), viper.GetString("fhir.mpiPassword"))
		}
		if host := viper.GetString("pix.manager.host"); host != "" {
			addr := fmt.Sprintf("%s:%d", host, viper.GetInt("pix.manager.port"))
			resolvers[pnr.Patient] = resolver.NewHl7Pix(addr, "XDSMEDIATOR", "XDSMEDIATOR")
			idFeed = identityfeed.NewHl7Client(addr, "XDSMEDIATOR", "XDSMEDIATOR")
		}
	}

	return &orchestrator.Engine{
		Resolvers:    resolvers,
		IdentityFeed: idFeed,
		Config:       cfg,
	}
}

// requestedAuthorities reads the client.requestedAssigningAuthority.* keys,
// each a namespace&universalId&type triple; categories left unconfigured are
// omitted so the engine falls back to the ECID/EPID/ELID defaults.
func requestedAuthorities() map[pnr.Category]identifiers.AssigningAuthority {
	keys := map[pnr.Category]string{
		pnr.Patient:  "client.requestedAssigningAuthority.patient",
		pnr.Provider: "client.requestedAssigningAuthority.provider",
		pnr.Facility: "client.requestedAssigningAuthority.facility",
	}
	configured := map[pnr.Category]identifiers.AssigningAuthority{}
	for cat, key := range keys {
		v := viper.GetString(key)
		if v == "" {
			continue
		}
		configured[cat] = identifiers.ParseAssigningAuthority(v)
	}
	return configured
}
