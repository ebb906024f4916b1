package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/fundscout/internal/orchestrator"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/retrieval"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderRoute writes a routed result in reading form.
func renderRoute(w io.Writer, res orchestrator.Result) {
	fmt.Fprintf(w, "%s %s (%.2f)\n", colorize(colorBold, "Intent:"), res.Intent.Label, res.Intent.Confidence)
	switch {
	case res.Research != nil:
		renderResearch(w, res.Research)
	case res.Advice != nil:
		renderAdvice(w, res.Advice)
	}
}

func renderResearch(w io.Writer, r *pipeline.ResearchSummary) {
	if len(r.Companies) == 0 {
		fmt.Fprintln(w, "No matching companies found.")
		return
	}
	for i, c := range r.Companies {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, colorize(colorCyan, c.CompanyName))
		if c.Industry != "" {
			fmt.Fprintf(w, "   Industry: %s\n", c.Industry)
		}
		if c.RelevanceScore != nil {
			fmt.Fprintf(w, "   Relevance: %.2f\n", *c.RelevanceScore)
		}
		fmt.Fprintf(w, "   %s\n", c.Description)
		if !c.Enriched || c.Details == nil {
			fmt.Fprintln(w, colorize(colorDim, "   (not enriched)"))
			continue
		}
		d := c.Details
		if d.Website != "" {
			fmt.Fprintf(w, "   Website: %s\n", d.Website)
		}
		if d.HeadquartersLocation != "" {
			fmt.Fprintf(w, "   HQ: %s\n", d.HeadquartersLocation)
		}
		if d.CompanySize != "" {
			fmt.Fprintf(w, "   Size: %s\n", d.CompanySize)
		}
		if d.FoundedYear > 0 {
			fmt.Fprintf(w, "   Founded: %d\n", d.FoundedYear)
		}
	}
}

func renderAdvice(w io.Writer, a *pipeline.AdviceSummary) {
	if a.Sector != "" {
		fmt.Fprintf(w, "%s %s (%.2f, %s)\n", colorize(colorBold, "Sector:"), a.Sector, a.Confidence, a.Route)
	} else {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Route:"), a.Route)
	}
	if len(a.Advice.Investors) > 0 {
		fmt.Fprintln(w, colorize(colorBold, "\nInvestors:"))
		for _, p := range a.Advice.Investors {
			fmt.Fprintf(w, "  - %s (backed %s)\n", p.Investor, p.Company)
		}
	}
	fmt.Fprintf(w, "\n%s\n", a.Advice.StrategicAdvice)
	if a.Display != nil {
		fmt.Fprintf(w, "\n%s %s, %s\n  %s\n", colorize(colorBold, "Summary:"), a.Display.InvestorName, a.Display.Industry, a.Display.Description)
	}
}

func renderRAG(w io.Writer, a *pipeline.RAGAnswer) {
	fmt.Fprintln(w, a.Answer)
	if len(a.Sources) > 0 {
		fmt.Fprintln(w, colorize(colorBold, "\nSources:"))
		for _, s := range a.Sources {
			fmt.Fprintf(w, "  - %s (%.2f) %s\n", s.CompanyName, s.RelevanceScore, colorize(colorDim, truncate(s.DocumentSnippet, 80)))
		}
	}
	fmt.Fprintf(w, "\n%s %.2f\n", colorize(colorBold, "Confidence:"), a.ConfidenceScore)
}

func renderSearch(w io.Writer, res retrieval.SearchResults) {
	if res.Count == 0 {
		fmt.Fprintln(w, "No documents within the distance threshold.")
		return
	}
	for _, r := range res.Results() {
		fmt.Fprintf(w, "%d. %s %s\n", r.Rank, colorize(colorCyan, r.Document.Metadata.EntityName), colorize(colorDim, fmt.Sprintf("(distance %.4f)", r.Distance)))
		for _, line := range strings.Split(r.Document.Text, "\n") {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
