package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-quotes/internal/catalog"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/quotes"
)

// AuditOptions defines available flags for the audit command.
type AuditOptions struct {
	Path       string
	JSONOutput bool
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// AuditDocument is an offline quote together with the catalog it prices
// against.
type AuditDocument struct {
	Catalog catalog.Snapshot `json:"catalog"`
	Quote   quotes.Payload   `json:"quote"`
}

// AuditSummary is the JSON output of the audit command.
type AuditSummary struct {
	Breakdown pricing.Breakdown  `json:"breakdown"`
	Scenarios []pricing.Scenario `json:"scenarios"`
}

// AuditCommand prices an offline quote and prints its breakdown and the
// what-if table. It exits 10 when the quote margin is red.
func AuditCommand(opts AuditOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	doc, err := readAuditDocument(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return 1
	}

	q := doc.Quote.ToQuote()
	for i := range q.Items {
		if q.Items[i].ID == "" {
			q.Items[i].ID = fmt.Sprintf("line-%d", i+1)
		}
	}
	res := quotes.ValidatePayload(doc.Quote)
	for field, msg := range quotes.Validate(q, doc.Catalog.Items, doc.Catalog.Conditions) {
		res.Add(field, msg)
	}
	if err := res.Err(); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return 1
	}
	ed, err := quotes.NewEditor(q, doc.Catalog)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return 1
	}
	summary := AuditSummary{Breakdown: ed.Breakdown(), Scenarios: ed.WhatIf()}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "audit: encode json: %v\n", err)
			return 1
		}
	} else {
		renderAuditHuman(opts.Stdout, summary)
	}
	if summary.Breakdown.Health == pricing.HealthRed {
		return 10
	}
	return 0
}

func readAuditDocument(opts AuditOptions) (AuditDocument, error) {
	var r io.Reader = opts.Stdin
	if opts.Path != "" && opts.Path != "-" {
		f, err := os.Open(opts.Path)
		if err != nil {
			return AuditDocument{}, err
		}
		defer f.Close()
		r = f
	}
	var doc AuditDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return AuditDocument{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func renderAuditHuman(w io.Writer, s AuditSummary) {
	b := s.Breakdown
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	rows := []struct {
		label string
		value string
	}{
		{"Subtotal", b.Subtotal.StringFixed(2)},
		{"Courtesy", b.CourtesyAmount.StringFixed(2)},
		{"Bonus", b.Bonus.StringFixed(2)},
		{"Projected subtotal", b.ProjectedSubtotal.StringFixed(2)},
		{"Discount", b.DiscountAmount.StringFixed(2)},
		{"Suggested price", b.SuggestedPrice.StringFixed(2)},
		{"Closing price", b.ClosingPrice.StringFixed(2)},
		{"Commission", b.Commission.StringFixed(2)},
		{"Net utility", b.NetUtility.StringFixed(2)},
		{"Margin %", b.MarginPct.StringFixed(2)},
		{"Target %", b.WeightedTargetPct.StringFixed(2)},
		{"Advance", b.Advance.StringFixed(2)},
		{"Deferred", b.Deferred.StringFixed(2)},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t\n", row.label, row.value)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "Health: %s (meets target: %t)\n", b.Health, b.MeetsTarget)

	if len(s.Scenarios) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CONDITION\tPRICE\tMARGIN %\tADVANCE\tHEALTH")
	for _, sc := range s.Scenarios {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sc.Name, sc.SuggestedPrice.StringFixed(2), sc.MarginPct.StringFixed(2), sc.Advance.StringFixed(2), sc.Health)
	}
	_ = tw.Flush()
}
