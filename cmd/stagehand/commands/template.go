package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/stagehand/internal/config"
	"github.com/marcus/stagehand/internal/templates"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect configured templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates and their working directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		catalog, err := config.BuildCatalog(cfg)
		if err != nil {
			return err
		}
		return printTemplateList(cmd.OutOrStdout(), catalog)
	},
}

func init() {
	templateCmd.AddCommand(templateListCmd)
	rootCmd.AddCommand(templateCmd)
}

func printTemplateList(out io.Writer, catalog *templates.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPARAMS\tDIR")
	for _, id := range catalog.IDs() {
		t, _ := catalog.Lookup(id)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, orDash(formatParams(t.Params)), catalog.WorkingDir(id))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d template(s) under %s\n", catalog.Len(), catalog.Root())
	return err
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, ",")
}
