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
	"log"
	"os"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string
var Version string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xds-mediator",
	Short: "xds-mediator validates, cross-references and enriches IHE XDS.b transactions",
	Long: `
xds-mediator sits between document source clients and an XDS registry and
repository. It parses an incoming Provide-and-Register Document Set-b
transaction, resolves every patient, provider and facility identifier it
carries against a Master Patient Index or Client Registry, auto-registers
previously unknown patients when policy allows, and rewrites the document
set with the resolved Enterprise identifiers before forwarding it on.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		warnIfHTTPProxy()
		if logfile := viper.GetString("log"); logfile != "" {
			f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
			if err != nil {
				log.Fatalf("fatal error: couldn't open log file ('%s'): %s", logfile, err)
			}
			log.SetOutput(f)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.xds-mediator.yaml)")
	rootCmd.PersistentFlags().String("log", "", "Log file to use")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	// pnr.* orchestration policy
	rootCmd.PersistentFlags().Bool("pnr-send-parse-orchestration", false, "Route via the optional pre-parse stage")
	viper.BindPFlag("pnr.sendParseOrchestration", rootCmd.PersistentFlags().Lookup("pnr-send-parse-orchestration"))
	rootCmd.PersistentFlags().Bool("pnr-providers-enrich", false, "Enable provider resolution and rewrite")
	viper.BindPFlag("pnr.providers.enrich", rootCmd.PersistentFlags().Lookup("pnr-providers-enrich"))
	rootCmd.PersistentFlags().Bool("pnr-facilities-enrich", false, "Enable facility resolution and rewrite")
	viper.BindPFlag("pnr.facilities.enrich", rootCmd.PersistentFlags().Lookup("pnr-facilities-enrich"))
	rootCmd.PersistentFlags().Bool("pnr-patients-auto-register", false, "Auto-register a patient on resolver miss")
	viper.BindPFlag("pnr.patients.autoRegister", rootCmd.PersistentFlags().Lookup("pnr-patients-auto-register"))

	// client.requestedAssigningAuthority.* per-category enterprise targets;
	// each takes a namespace&universalId&type triple and falls back to the
	// built-in ECID/EPID/ELID defaults when left empty.
	rootCmd.PersistentFlags().String("requested-authority-patient", "", "Enterprise assigning authority patients resolve into (namespace&universalId&type)")
	viper.BindPFlag("client.requestedAssigningAuthority.patient", rootCmd.PersistentFlags().Lookup("requested-authority-patient"))
	rootCmd.PersistentFlags().String("requested-authority-provider", "", "Enterprise assigning authority providers resolve into (namespace&universalId&type)")
	viper.BindPFlag("client.requestedAssigningAuthority.provider", rootCmd.PersistentFlags().Lookup("requested-authority-provider"))
	rootCmd.PersistentFlags().String("requested-authority-facility", "", "Enterprise assigning authority facilities resolve into (namespace&universalId&type)")
	viper.BindPFlag("client.requestedAssigningAuthority.facility", rootCmd.PersistentFlags().Lookup("requested-authority-facility"))

	// deadlines
	rootCmd.PersistentFlags().Duration("pnr-call-timeout", 0, "Per-call resolver/identity-feed deadline (default 60s)")
	viper.BindPFlag("pnr.callTimeout", rootCmd.PersistentFlags().Lookup("pnr-call-timeout"))
	rootCmd.PersistentFlags().Duration("pnr-transaction-timeout", 0, "Hard deadline for an entire transaction")
	viper.BindPFlag("pnr.transactionTimeout", rootCmd.PersistentFlags().Lookup("pnr-transaction-timeout"))

	// fhir.* MPI endpoint
	rootCmd.PersistentFlags().String("fhir-mpi-url", "", "Base URL of the FHIR MPI/Client Registry")
	viper.BindPFlag("fhir.mpiUrl", rootCmd.PersistentFlags().Lookup("fhir-mpi-url"))
	rootCmd.PersistentFlags().String("fhir-mpi-client-name", "", "HTTP Basic auth username for the FHIR MPI")
	viper.BindPFlag("fhir.mpiClientName", rootCmd.PersistentFlags().Lookup("fhir-mpi-client-name"))
	rootCmd.PersistentFlags().String("fhir-mpi-password", "", "HTTP Basic auth password for the FHIR MPI")
	viper.BindPFlag("fhir.mpiPassword", rootCmd.PersistentFlags().Lookup("fhir-mpi-password"))
	rootCmd.PersistentFlags().String("fhir-enterprise-system", "http://openclientregistry.org/fhir/sourceid", "Enterprise identifier system URI a resolved Patient resource must carry")
	viper.BindPFlag("fhir.enterpriseSystem", rootCmd.PersistentFlags().Lookup("fhir-enterprise-system"))

	// pix.manager.* HL7v2/MLLP endpoint
	rootCmd.PersistentFlags().String("pix-manager-host", "", "Host of the PIX/PDQ manager")
	viper.BindPFlag("pix.manager.host", rootCmd.PersistentFlags().Lookup("pix-manager-host"))
	rootCmd.PersistentFlags().Int("pix-manager-port", 0, "Port of the PIX/PDQ manager")
	viper.BindPFlag("pix.manager.port", rootCmd.PersistentFlags().Lookup("pix-manager-port"))

	rootCmd.PersistentFlags().Bool("fake", false, "Resolve identifiers against an internal in-memory mapping instead of a live MPI")
	viper.BindPFlag("fake", rootCmd.PersistentFlags().Lookup("fake"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".xds-mediator")
	}

	viper.SetEnvPrefix("XDSMEDIATOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// warnIfHTTPProxy logs a warning if a proxy is set, to help debug
// connection errors to the MPI/Client Registry in live use. It reads the
// environment directly rather than through viper, which only looks for
// upper-case variants of a bound key.
func warnIfHTTPProxy() {
	httpProxy, exists := os.LookupEnv("http_proxy")
	if exists {
		log.Printf("warning: http proxy set to %s\n", httpProxy)
	}
	httpsProxy, exists := os.LookupEnv("https_proxy")
	if exists {
		log.Printf("warning: https proxy set to %s\n", httpsProxy)
	}
}
