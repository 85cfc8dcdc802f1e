package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/output"
)

var catalogueCmd = &cobra.Command{
	Use:     "catalogue",
	Aliases: []string{"metrics"},
	Short:   "List metric definitions, catalogue versions and profile selectors",
	RunE:    runCatalogue,
}

func init() {
	rootCmd.AddCommand(catalogueCmd)
}

type metricView struct {
	Code        string     `json:"code"`
	Group       string     `json:"group"`
	Shape       string     `json:"shape"`
	Method      string     `json:"method"`
	Range       [2]float64 `json:"range"`
	Description string     `json:"description"`
}

type versionView struct {
	Tag      string   `json:"tag"`
	Selector string   `json:"selector"`
	Contexts []string `json:"contexts,omitempty"`
	Active   bool     `json:"active"`
}

type catalogueView struct {
	Metrics   []metricView  `json:"metrics"`
	Versions  []versionView `json:"versions"`
	Selectors []string      `json:"selectors"`
}

func runCatalogue(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	view, err := describeCatalogue(e.reg, e.cfg.Catalogue.Version)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), view)
	}
	renderCatalogue(cmd.OutOrStdout(), view)
	return nil
}

func describeCatalogue(reg *catalogue.Registry, active string) (catalogueView, error) {
	var view catalogueView
	for _, d := range reg.Definitions() {
		view.Metrics = append(view.Metrics, metricView{
			Code:        d.Code,
			Group:       string(d.Group),
			Shape:       string(d.Shape),
			Method:      string(d.Method),
			Range:       d.Range,
			Description: d.Description,
		})
	}
	for _, tag := range reg.VersionTags() {
		v, err := reg.Version(tag)
		if err != nil {
			return catalogueView{}, err
		}
		vv := versionView{Tag: tag, Selector: v.Selector, Active: tag == active}
		for ctx := range v.ByContext {
			vv.Contexts = append(vv.Contexts, string(ctx))
		}
		sort.Strings(vv.Contexts)
		view.Versions = append(view.Versions, vv)
	}
	view.Selectors = reg.SelectorNames()
	return view, nil
}

func renderCatalogue(w io.Writer, v catalogueView) {
	fmt.Fprintln(w, output.Section(fmt.Sprintf("Metrics (%d)", len(v.Metrics))))
	fmt.Fprintln(w)
	t := output.NewTable("Code", "Group", "Shape", "Range")
	for _, m := range v.Metrics {
		rng := "-"
		if m.Range != [2]float64{} {
			rng = fmt.Sprintf("%g..%g", m.Range[0], m.Range[1])
		}
		t.AddRow(m.Code, m.Group, m.Shape, rng)
	}
	t.Fprint(w)

	fmt.Fprintln(w, output.Section("Versions"))
	fmt.Fprintln(w)
	for _, ver := range v.Versions {
		tag := ver.Tag
		if ver.Active {
			tag = output.StyleSuccess.Render(tag + " (active)")
		}
		detail := "selector " + ver.Selector
		if len(ver.Contexts) > 0 {
			detail += ", overrides " + strings.Join(ver.Contexts, ", ")
		}
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render(tag), output.StyleMuted.Render(detail))
	}

	fmt.Fprintln(w, output.Section("Profile Selectors"))
	fmt.Fprintln(w)
	for _, s := range v.Selectors {
		fmt.Fprintf(w, " %s\n", s)
	}
	fmt.Fprintln(w)
}
