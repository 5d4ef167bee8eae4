package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gofactor/domain/factor"
)

// Builder renders a study result as a markdown report, and through
// gomarkdown as a standalone HTML page for the web UI.
type Builder struct{}

// NewBuilder creates a report builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Markdown renders the full report.
func (b *Builder) Markdown(result *factor.StudyResult) string {
	var sb strings.Builder

	sb.WriteString("# Factor Structure Report\n\n")
	writeRunHeader(&sb, result)
	writeGroups(&sb, result)
	writeAdequacy(&sb, result)
	writeLoadings(&sb, result)
	writeEigenvalues(&sb, result)
	writeReliability(&sb, result)
	writeBootstrap(&sb, result)
	writeComparisons(&sb, result)
	writeFailures(&sb, result)

	return sb.String()
}

// HTML renders the report as a self-contained page.
func (b *Builder) HTML(result *factor.StudyResult) []byte {
	md := []byte(b.Markdown(result))

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	body := markdown.Render(p.Parse(md), renderer)

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	out.WriteString("<title>Factor Structure Report " + result.RunID.String() + "</title>")
	out.WriteString(`<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 64rem; color: #222; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #bbb; padding: 0.3rem 0.6rem; text-align: left; }
th { background: #f0f0f0; }
code { background: #f5f5f5; padding: 0 0.2rem; }
</style>`)
	out.WriteString("</head><body>\n")
	out.Write(body)
	out.WriteString("\n</body></html>\n")
	return out.Bytes()
}

func writeRunHeader(sb *strings.Builder, result *factor.StudyResult) {
	items := make([]string, len(result.Items))
	for i, item := range result.Items {
		items[i] = item.String()
	}
	cfg := result.Config

	fmt.Fprintf(sb, "- Run: `%s`\n", result.RunID)
	fmt.Fprintf(sb, "- Created: %s\n", result.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(sb, "- Items: %s\n", strings.Join(items, ", "))
	fmt.Fprintf(sb, "- Factors: %d (%s rotation)\n", cfg.FactorCount, cfg.Rotation)
	fmt.Fprintf(sb, "- Association: %s\n", cfg.Association)
	fmt.Fprintf(sb, "- Bootstrap: %d iterations at fraction %.2f, seed %d\n\n",
		cfg.BootstrapIterations, cfg.BootstrapFraction, cfg.Seed)
}

func writeGroups(sb *strings.Builder, result *factor.StudyResult) {
	sb.WriteString("## Groups\n\n")
	sb.WriteString("| Group | Label | Rows | Complete | Status |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, group := range result.Groups {
		status := "ok"
		if group.Failure != nil {
			status = group.Failure.Kind + ": " + group.Failure.Message
		}
		fmt.Fprintf(sb, "| %s | %s | %d | %d | %s |\n",
			group.Key, group.Label, group.RowCount, group.CompleteRows, status)
	}
	sb.WriteString("\n")
}

func writeAdequacy(sb *strings.Builder, result *factor.StudyResult) {
	rows := make([]string, 0, len(result.Groups))
	for _, group := range result.Groups {
		a := group.Adequacy
		if a == nil {
			continue
		}
		supported := "no"
		if a.SphericitySupported() {
			supported = "yes"
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %s |",
			group.Key, f3(a.SphericityChiSquare), a.SphericityDF, fp(a.SphericityPValue),
			supported, f3(a.KMOOverall), factor.KMOBand(a.KMOOverall)))
	}
	if len(rows) == 0 {
		return
	}

	sb.WriteString("## Sampling Adequacy\n\n")
	sb.WriteString("| Group | Chi-Square | df | p | Supported | KMO | Band |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	sb.WriteString(strings.Join(rows, "\n"))
	sb.WriteString("\n\n")
}

func writeLoadings(sb *strings.Builder, result *factor.StudyResult) {
	sb.WriteString("## Factor Loadings\n\n")
	for _, group := range result.Groups {
		fmt.Fprintf(sb, "### %s (%s)\n\n", group.Label, group.Key)
		s := group.Solution
		if s == nil {
			if group.Failure != nil {
				fmt.Fprintf(sb, "No solution: %s: %s\n\n", group.Failure.Kind, group.Failure.Message)
			} else {
				sb.WriteString("No solution.\n\n")
			}
			continue
		}

		if s.RotationConverged {
			fmt.Fprintf(sb, "Rotation converged in %d iterations.\n\n", s.RotationIterations)
		} else {
			fmt.Fprintf(sb, "Rotation did not converge within %d iterations; loadings are the last iterate.\n\n",
				s.RotationIterations)
		}

		sb.WriteString("| Item |")
		for k := 1; k <= s.FactorCount; k++ {
			fmt.Fprintf(sb, " F%d |", k)
		}
		sb.WriteString(" Communality |\n|---|")
		for k := 0; k <= s.FactorCount; k++ {
			sb.WriteString("---|")
		}
		sb.WriteString("\n")

		for i, item := range s.Items {
			fmt.Fprintf(sb, "| %s |", item)
			for k := 0; k < s.FactorCount; k++ {
				fmt.Fprintf(sb, " %s |", f3(s.Loadings[i][k]))
			}
			fmt.Fprintf(sb, " %s |\n", f3(s.Communalities[i]))
		}
		sb.WriteString("\n")
	}
}

func writeEigenvalues(sb *strings.Builder, result *factor.StudyResult) {
	rows := make([]string, 0, len(result.Groups))
	for _, group := range result.Groups {
		s := group.Solution
		if s == nil {
			continue
		}
		spectrum := make([]string, len(s.FullSpectrum))
		for i, ev := range s.FullSpectrum {
			spectrum[i] = f3(ev)
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %d |",
			group.Key, strings.Join(spectrum, ", "), s.FactorCount))
	}
	if len(rows) == 0 {
		return
	}

	sb.WriteString("## Eigenvalues\n\n")
	sb.WriteString("| Group | Spectrum (descending) | Retained |\n")
	sb.WriteString("|---|---|---|\n")
	sb.WriteString(strings.Join(rows, "\n"))
	sb.WriteString("\n\n")
}

func writeReliability(sb *strings.Builder, result *factor.StudyResult) {
	rows := make([]string, 0, len(result.Groups))
	for _, group := range result.Groups {
		r := group.Reliability
		if r == nil {
			continue
		}
		optimal := "no"
		if r.InterItemOptimal() {
			optimal = "yes"
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s |",
			group.Key, f3(r.CronbachAlpha), f3(r.MeanInterItem), optimal))
	}
	if len(rows) == 0 {
		return
	}

	sb.WriteString("## Reliability\n\n")
	sb.WriteString("| Group | Cronbach's Alpha | Mean Inter-Item r | Optimal Range |\n")
	sb.WriteString("|---|---|---|---|\n")
	sb.WriteString(strings.Join(rows, "\n"))
	sb.WriteString("\n\n")
}

func writeBootstrap(sb *strings.Builder, result *factor.StudyResult) {
	if len(result.Bootstrap) == 0 {
		return
	}

	sb.WriteString("## Correlation Stability\n\n")
	sb.WriteString("| Pair | Mean | 95% CI | Iterations | Fraction |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, est := range result.Bootstrap {
		fmt.Fprintf(sb, "| %s | %s | [%s, %s] | %d | %.2f |\n",
			est.Pair, f3(est.Mean), f3(est.CILow), f3(est.CIHigh), est.Iterations, est.Fraction)
	}
	sb.WriteString("\n")
}

func writeComparisons(sb *strings.Builder, result *factor.StudyResult) {
	if len(result.Comparisons) == 0 {
		return
	}

	sb.WriteString("## Group Comparisons\n\n")
	sb.WriteString("| Test | Column | A | B | Statistic | p | Effect |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range result.Comparisons {
		statistic := fmt.Sprintf("U = %s", f1(c.UStatistic))
		effect := "-"
		if c.Kind == factor.ComparisonChiSquare {
			statistic = fmt.Sprintf("Chi2 = %s", f3(c.ChiSquare))
			effect = fmt.Sprintf("Phi = %s (%s)", f3(c.Phi), c.EffectBand)
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			c.Kind, c.Column, c.LabelA, c.LabelB, statistic, fp(c.PValue), effect)
	}
	sb.WriteString("\n")
}

func writeFailures(sb *strings.Builder, result *factor.StudyResult) {
	if len(result.Failures) == 0 {
		return
	}

	sb.WriteString("## Failures\n\n")
	for _, failure := range result.Failures {
		fmt.Fprintf(sb, "- `%s` at %s: %s: %s\n", failure.Unit, failure.Stage, failure.Kind, failure.Message)
	}
	sb.WriteString("\n")
}

func f3(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func f1(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// fp formats p-values; tiny ones report as a bound the way the tables in
// the published write-up do.
func fp(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	if v < 0.0001 {
		return "< 0.0001"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
