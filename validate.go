package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/thushan/llamatap/internal/adapter/registry"
	"github.com/thushan/llamatap/internal/adapter/tlspolicy"
	"github.com/thushan/llamatap/internal/app/services"
	"github.com/thushan/llamatap/internal/logger"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the providers and certs files without starting the proxy",
	Long: `Load the config, the providers file and the certs file exactly as serve
would, then print every model identifier that will resolve and the TLS trust
decision for each configured host. Exits non-zero when the providers file
cannot be loaded.

Examples:
  llamatap validate
  llamatap validate --config ./config/prod.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lcfg := loggerConfig(cfg)
	lcfg.FileOutput = false
	_, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer cleanup()

	src, err := services.LoadSources(cmd.Context(), cfg.Providers, styledLogger)
	if err != nil {
		return err
	}
	table, err := registry.Build(src.Providers)
	if err != nil {
		return fmt.Errorf("providers file %s: %w", cfg.Providers.ProvidersFile, err)
	}

	styledLogger.InfoWithCount("Resolvable models", table.ModelCount(), "providers_file", cfg.Providers.ProvidersFile)
	if err := renderModels(table); err != nil {
		return err
	}

	styledLogger.InfoWithCount("Certificate entries", src.Certs.Len(), "certs_file", cfg.Providers.CertsFile)
	return renderTrust(src.Certs)
}

func renderModels(table *registry.Table) error {
	data := [][]string{{"MODEL", "UPSTREAM", "TARGET", "TEMPERATURE", "HEADER RULES"}}
	for _, id := range table.Identifiers() {
		provider, spec, err := table.Lookup(id)
		if err != nil {
			return err
		}
		temperature := "-"
		if spec.HasTemperature() {
			temperature = strconv.FormatFloat(*spec.Temperature, 'f', -1, 64)
		}
		rules := "no"
		if !provider.HeaderRules.IsEmpty() {
			rules = "yes"
		}
		data = append(data, []string{id, spec.ModelName, provider.BaseURL + provider.CompletionsPath, temperature, rules})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderTrust(certs *tlspolicy.CertTable) error {
	if certs.Len() == 0 {
		pterm.Info.Println("No certificate entries, every https upstream is used without verification")
		return nil
	}
	data := [][]string{{"HOST", "CERTIFICATE", "VERIFY"}}
	for _, entry := range certs.Entries() {
		verify := pterm.Yellow("skipped")
		if entry.Pinned() {
			verify = pterm.Green("pinned")
		}
		data = append(data, []string{entry.Hostname, entry.CertPath, verify})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
