package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/poller"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

func progressObserver(w io.Writer) poller.Observer {
	return func(tr poller.Transition) {
		switch tr.To {
		case poller.StateLoading:
			fmt.Fprintf(w, "%s checking for result (attempt %d)\n", faint.Sprint("…"), tr.Attempt)
		case poller.StateNotFoundYet:
			fmt.Fprintf(w, "%s not ready yet\n", yellow.Sprint("!"))
		case poller.StateFound:
			fmt.Fprintf(w, "%s result stored\n", green.Sprint("✓"))
		case poller.StateFailed, poller.StateNotFound, poller.StateError:
			fmt.Fprintf(w, "%s %s: %v\n", red.Sprint("✗"), tr.To, tr.Err)
		case poller.StateCancelled:
			fmt.Fprintf(w, "%s cancelled\n", yellow.Sprint("!"))
		}
	}
}

// formatValue renders an appraised value with two decimals and its currency
func formatValue(value float64, currency string) string {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return decimal.NewFromFloat(value).StringFixed(2) + " " + currency
}

func renderResult(w io.Writer, view *models.AppraisalView, result *models.AppraisalResult) {
	if view != nil {
		d := view.Display()
		fmt.Fprintf(w, "\n%s  (%s)\n", bold.Sprint(d.ItemName), d.ItemCategory)
		fmt.Fprintf(w, "  %s\n", d.ItemDescription)
		if d.ItemHistory != "" {
			fmt.Fprintf(w, "  History: %s\n", d.ItemHistory)
		}
		if d.ImageURL != "" {
			fmt.Fprintf(w, "  Image:   %s\n", d.ImageURL)
		}
	}

	fmt.Fprintf(w, "\nAppraised value: %s\n", green.Sprint(formatValue(result.AppraisedValue, result.Currency)))
	fmt.Fprintf(w, "Quality:         %s\n", bold.Sprint(result.QualityAssessment))
	fmt.Fprintf(w, "  %s\n", result.QualityExplanation)
	fmt.Fprintf(w, "\nMethodology\n  %s\n", result.AppraisalMethodology)
	renderList(w, "Data sources", result.DataSources)
	fmt.Fprintf(w, "\nExpert insights\n  %s\n", result.ExpertInsights)
	renderList(w, "Where to sell or buy", result.SellBuyOptions)
}

func renderList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}

func renderView(w io.Writer, view *models.AppraisalView) {
	status := string(view.Status)
	switch view.Status {
	case models.AppraisalStatusCompleted:
		status = green.Sprint(status)
	case models.AppraisalStatusFailed:
		status = red.Sprint(status)
	default:
		status = yellow.Sprint(status)
	}
	fmt.Fprintf(w, "Request %s: %s\n", view.Request.ID, status)

	if view.Result != nil {
		renderResult(w, view, view.Result)
		return
	}
	d := view.Display()
	fmt.Fprintf(w, "%s  (%s)\n", bold.Sprint(d.ItemName), d.ItemCategory)
	if reason := view.Request.FailureReason; reason != nil && *reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", strings.TrimSpace(*reason))
	}
}
