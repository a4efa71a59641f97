package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

func printSummary(w io.Writer, result *models.ScraperResult, cfg *config.Config, metrics map[string]interface{}) {
	duration := result.EndTime.Sub(result.StartTime)
	booksPerSec := 0.0
	if duration.Seconds() > 0 {
		booksPerSec = float64(result.BooksScraped) / duration.Seconds()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Scrape complete")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Ids visited", result.IDsVisited},
		{"Books scraped", result.BooksScraped},
		{"Books missing", result.BooksMissing},
		{"Books failed", result.BooksFailed},
		{"Reviews extracted", result.ReviewsFound},
		{"Books written", writtenCount(metrics, "processed_books")},
		{"Reviews written", writtenCount(metrics, "processed_reviews")},
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
	})
	if len(result.FailedIDs) > 0 {
		t.AppendRow(table.Row{"Failed ids", formatIDs(result.FailedIDs, 10)})
	}
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if validation, ok := metrics["validation_errors"].(map[string]int); ok && len(validation) > 0 {
		t.AppendRow(table.Row{"Validation", formatCounts(validation)})
	}
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Duration", duration.Round(time.Millisecond)},
		{"Books/sec", fmt.Sprintf("%.2f", booksPerSec)},
		{"Books output", cfg.BooksOutput},
		{"Reviews output", cfg.ReviewsOutput},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// writtenCount reads a pipeline counter, which only counts rows that passed
// validation and de-duplication.
func writtenCount(metrics map[string]interface{}, key string) int64 {
	n, _ := metrics[key].(int64)
	return n
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func formatIDs(ids []int, limit int) string {
	parts := make([]string, 0, limit+1)
	for i, id := range ids {
		if i == limit {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(ids)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(id))
	}
	return strings.Join(parts, ", ")
}
