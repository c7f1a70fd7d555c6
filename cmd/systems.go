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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wardle/xds-mediator/identifiers"
)

var systemsLookupURI string

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "List the identifier systems this mediator recognises",
	Long: `Lists every identifier system URI registered with the mediator,
alongside its human-readable name. Useful when checking whether an incoming
transaction's assigning authority or coding scheme is one the mediator
knows by name.`,
	Run: func(cmd *cobra.Command, args []string) {
		if systemsLookupURI != "" {
			name, ok := identifiers.Lookup(systemsLookupURI)
			if !ok {
				fmt.Printf("unrecognised system: %s\n", systemsLookupURI)
				return
			}
			fmt.Printf("%s\t%s\n", systemsLookupURI, name)
			return
		}
		for _, uri := range identifiers.Systems() {
			name, _ := identifiers.Lookup(uri)
			fmt.Printf("%s\t%s\n", uri, name)
		}
	},
}

func init() {
	systemsCmd.Flags().StringVar(&systemsLookupURI, "uri", "", "Look up a single system URI instead of listing all")
	rootCmd.AddCommand(systemsCmd)
}
