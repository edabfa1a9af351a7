// Package observability provides formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/pikflix/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(title))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens a line to fit the box, counting runes.
func truncate(line string) string {
	runes := []rune(line)
	if len(runes) > boxWidth-4 {
		return string(runes[:boxWidth-7]) + "..."
	}
	return line
}

// PrintRecommendations outputs a batched response, one box per movie.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintRecommendations(resp *types.RecommendationResponse) {
	if resp == nil {
		return
	}
	fmt.Fprintf(p.out, "%d recommendations for %q\n", len(resp.Recommendations), resp.Query)
	for _, rec := range resp.Recommendations {
		p.PrintRecommendation(rec)
	}
}

// PrintRecommendation outputs a single recommendation.
func (p *Printer) PrintRecommendation(rec types.Recommendation) {
	title := fmt.Sprintf("#%d %s", rec.Rank, rec.Title)
	if year := rec.ReleaseYear(); year > 0 {
		title = fmt.Sprintf("%s (%d)", title, year)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TMDB id:  %d\n", rec.ID))
	if rec.VoteCount > 0 {
		sb.WriteString(fmt.Sprintf("Rating:   %.1f (%d votes)\n", rec.VoteAverage, rec.VoteCount))
	}
	if rec.Runtime != nil && *rec.Runtime > 0 {
		sb.WriteString(fmt.Sprintf("Runtime:  %d min\n", *rec.Runtime))
	}
	if len(rec.Genres) > 0 {
		names := make([]string, 0, len(rec.Genres))
		for _, g := range rec.Genres {
			names = append(names, g.Name)
		}
		sb.WriteString(fmt.Sprintf("Genres:   %s\n", strings.Join(names, ", ")))
	}
	if rec.Reason != "" {
		sb.WriteString("\n")
		sb.WriteString(wrap(rec.Reason, boxWidth-4))
	}

	p.printBox(title, sb.String())
}

// PrintProviders outputs watch providers for the regions in resp.
func (p *Printer) PrintProviders(resp *types.ProviderResponse) {
	if resp == nil {
		return
	}

	regions := make([]string, 0, len(resp.Results))
	for region := range resp.Results {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	for _, region := range regions {
		avail := resp.Results[region]
		var sb strings.Builder
		writeProviders(&sb, "Stream", avail.Flatrate)
		writeProviders(&sb, "Free", avail.Free)
		writeProviders(&sb, "With ads", avail.Ads)
		writeProviders(&sb, "Rent", avail.Rent)
		writeProviders(&sb, "Buy", avail.Buy)
		if sb.Len() == 0 {
			sb.WriteString("No providers in this region\n")
		}
		if avail.Link != "" {
			sb.WriteString(avail.Link)
		}
		p.printBox(fmt.Sprintf("WATCH PROVIDERS %d / %s", resp.ID, region), sb.String())
	}
}

func writeProviders(sb *strings.Builder, label string, providers []types.WatchProvider) {
	if len(providers) == 0 {
		return
	}
	sorted := make([]types.WatchProvider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DisplayPriority < sorted[j].DisplayPriority })

	count := min(len(sorted), maxItemsToShow)
	names := make([]string, 0, count)
	for _, wp := range sorted[:count] {
		names = append(names, wp.ProviderName)
	}
	line := fmt.Sprintf("%-9s %s", label+":", strings.Join(names, ", "))
	if len(sorted) > maxItemsToShow {
		line += fmt.Sprintf(" and %d more", len(sorted)-maxItemsToShow)
	}
	sb.WriteString(line + "\n")
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) string {
	var sb strings.Builder
	lineLen := 0
	for _, word := range strings.Fields(text) {
		n := len([]rune(word))
		if lineLen > 0 && lineLen+1+n > width {
			sb.WriteString("\n")
			lineLen = 0
		}
		if lineLen > 0 {
			sb.WriteString(" ")
			lineLen++
		}
		sb.WriteString(word)
		lineLen += n
	}
	return sb.String()
}
