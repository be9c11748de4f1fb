package api

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"goboot/domain/boot"
)

// BuildReport renders a stored run as a markdown document: run header,
// inferential summary table, and per-series replicate distributions.
func BuildReport(set *boot.ReplicateSet, summaries []boot.SeriesSummary, profiles map[string]boot.Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Bootstrap Run %s\n\n", set.RunID)
	fmt.Fprintf(&b, "- **Estimator:** %s\n", set.Estimator)
	fmt.Fprintf(&b, "- **Requested:** %d iterations, seed %d\n", set.Requested, set.Seed)
	fmt.Fprintf(&b, "- **Completed:** %d replicates (%d usable, %d missing)\n",
		set.Completed(), set.Usable(), set.MissingCount())
	if set.Partial {
		b.WriteString("- **Partial:** cancelled before all iterations finished\n")
	}
	fmt.Fprintf(&b, "- **Fingerprint:** `%s`\n", set.Fingerprint)
	fmt.Fprintf(&b, "- **Created:** %s\n\n", set.CreatedAt)

	b.WriteString("## Summary\n\n")
	if len(summaries) == 0 {
		b.WriteString("No summary rows are cached for this run.\n\n")
	} else {
		b.WriteString("| Series | Mean | SE | CI Lower | CI Upper | p | Usable | Missing |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, s := range summaries {
			if s.Err != nil {
				fmt.Fprintf(&b, "| %s | n/a | n/a | n/a | n/a | n/a | %d | %d |\n",
					s.Name, s.Usable, s.Missing)
				continue
			}
			fmt.Fprintf(&b, "| %s | %.6g | %.6g | %.6g | %.6g | %.4g | %d | %d |\n",
				s.Name, s.Mean, s.StdError, s.CILower, s.CIUpper, s.PValue, s.Usable, s.Missing)
		}
		b.WriteString("\n")
	}

	if len(profiles) > 0 {
		b.WriteString("## Replicate Distributions\n\n")
		b.WriteString("| Series | Mean | Median | SD | Min | P25 | P75 | Max |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, name := range set.Outputs {
			p, ok := profiles[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "| %s | %.6g | %.6g | %.6g | %.6g | %.6g | %.6g | %.6g |\n",
				name, p.Mean, p.Median, p.SD, p.Min, p.P25, p.P75, p.Max)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML converts a markdown report into a standalone HTML page.
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Bootstrap Run Report",
	})
	return markdown.Render(doc, renderer)
}
