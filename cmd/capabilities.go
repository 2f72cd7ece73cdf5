// File: cmd/capabilities.go
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/capability"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

func newCapabilitiesCmd() *cobra.Command {
	var domains []string
	var output string

	capsCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the registered capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := loadCapabilities(cfg.Capabilities, observability.GetLogger())
			if err != nil {
				return err
			}

			caps := registry.ListAll()
			if len(domains) > 0 {
				caps = capability.FilterByPrefix(caps, domainPrefixes(domains)...)
			}
			return writeCapabilities(cmd.OutOrStdout(), output, caps)
		},
	}

	capsCmd.Flags().StringSliceVar(&domains, "domain", nil, "only list capabilities in these domains (e.g. app,window)")
	capsCmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return capsCmd
}

// loadCapabilities builds the registry from the configured catalog, or the
// built-in one when no path is set.
func loadCapabilities(cfg config.CapabilitiesConfig, logger *zap.Logger) (*capability.Registry, error) {
	caps := capability.DefaultCatalog()
	if cfg.CatalogPath != "" {
		path, err := homedir.Expand(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog path %q: %w", cfg.CatalogPath, err)
		}
		if caps, err = capability.LoadCatalog(path); err != nil {
			return nil, err
		}
	}
	registry, err := capability.NewRegistryFromCatalog(logger, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to build capability registry: %w", err)
	}
	return registry, nil
}

// domainPrefixes turns "app" into the id prefix "app.".
func domainPrefixes(domains []string) []string {
	prefixes := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !strings.HasSuffix(d, ".") {
			d += "."
		}
		prefixes = append(prefixes, d)
	}
	return prefixes
}

func writeCapabilities(out io.Writer, format string, caps []schemas.Capability) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(caps, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode capabilities: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "text":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDESCRIPTION")
		for _, c := range caps {
			fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Description)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
