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
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/wardle/xds-mediator/identifiers"
	"github.com/wardle/xds-mediator/pnr"
	"github.com/wardle/xds-mediator/resolver"
)

// resolveCmd is a single-identifier smoke test against a configured
// resolver, bypassing the PnR envelope entirely.
var resolveCmd = &cobra.Command{
	Use:     "resolve <category> <value> [namespace]",
	Example: `xds-mediator resolve patient 7253698428 https://fhir.nhs.uk/Id/nhs-number`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 || len(args) > 3 {
			return errors.New("requires a category, an identifier value and an optional namespace")
		}
		return nil
	},
	Short: "Test resolution of a single identifier against the configured MPI",
	Run: func(cmd *cobra.Command, args []string) {
		cat, err := parseCategory(args[0])
		if err != nil {
			log.Fatal(err)
		}
		id := identifiers.Identifier{Value: args[1]}
		if len(args) == 3 {
			id.Authority = identifiers.AssigningAuthority{UniversalID: args[2]}
		}

		engine := buildEngine()
		r, ok := engine.Resolvers[cat]
		if !ok {
			log.Fatalf("no resolver configured for category %s", cat)
		}
		target := resolver.TargetAuthority(cat, nil)
		result := r.Resolve(context.Background(), cat, id, target)
		switch result.Status {
		case resolver.Resolved:
			fmt.Printf("resolved: %s\n", result.Identifier)
		case resolver.NotFound:
			fmt.Println("not found")
		case resolver.Error:
			fmt.Printf("error: %v\n", result.Err)
		}
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func parseCategory(s string) (pnr.Category, error) {
	switch s {
	case "patient":
		return pnr.Patient, nil
	case "provider":
		return pnr.Provider, nil
	case "facility":
		return pnr.Facility, nil
	}
	return 0, fmt.Errorf("unknown category %q (expected patient, provider or facility)", s)
}
