// Package parser turns the source HTML page into a batch of records.
//
// Every <tr> in the document is a candidate row. A row becomes a record only
// if it has enough <td> cells, a non-empty name after normalization, and a
// name that is not a summary sentinel such as "Total:". Rejected rows are
// counted by reason; one malformed row never fails the parse.
package parser

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/model"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipShortRow  = "short_row"
	SkipEmptyKey  = "empty_key"
	SkipSentinel  = "sentinel"
	SkipDuplicate = "duplicate"
)

// Result is the outcome of parsing one page.
type Result struct {
	Batch    model.Batch
	Rows     int
	Accepted int
	Skipped  map[string]int
}

// Parser extracts records according to a column layout.
type Parser struct {
	minColumns int
	columns    config.Columns
	sentinels  map[string]struct{}
}

func New(cfg config.SourceConfig) *Parser {
	sentinels := make(map[string]struct{}, len(cfg.Sentinels))
	for _, s := range cfg.Sentinels {
		sentinels[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &Parser{
		minColumns: cfg.MinColumns,
		columns:    cfg.Columns,
		sentinels:  sentinels,
	}
}

// Parse reads every table row of body. Records are stamped with observedAt.
func (p *Parser) Parse(body []byte, observedAt time.Time) (Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Result{}, zerr.Wrap(err, "parse html")
	}

	res := Result{
		Batch:   model.Batch{ObservedAt: observedAt},
		Skipped: make(map[string]int),
	}
	seen := make(map[string]struct{})

	for _, row := range findAll(doc, atom.Tr) {
		res.Rows++
		rec, reason := p.parseRow(row, observedAt)
		if reason == "" {
			if _, dup := seen[rec.Key]; dup {
				reason = SkipDuplicate
			}
		}
		if reason != "" {
			res.Skipped[reason]++
			continue
		}
		seen[rec.Key] = struct{}{}
		res.Batch.Records = append(res.Batch.Records, rec)
	}
	res.Accepted = len(res.Batch.Records)

	slog.Debug("parser: page parsed", "rows", res.Rows, "accepted", res.Accepted, "skipped", res.Skipped)
	return res, nil
}

func (p *Parser) parseRow(row *html.Node, observedAt time.Time) (model.Record, string) {
	cells := cellTexts(row)
	if len(cells) < p.minColumns || !p.fits(len(cells)) {
		return model.Record{}, SkipShortRow
	}

	name := cells[p.columns.Name]
	key := model.NormalizeKey(name)
	if key == "" {
		return model.Record{}, SkipEmptyKey
	}
	if _, ok := p.sentinels[strings.ToLower(name)]; ok {
		return model.Record{}, SkipSentinel
	}

	return model.Record{
		Key:         key,
		DisplayName: name,
		Metrics: model.Metrics{
			TotalCases:     cells[p.columns.TotalCases],
			NewCases:       cells[p.columns.NewCases],
			TotalDeaths:    cells[p.columns.TotalDeaths],
			NewDeaths:      cells[p.columns.NewDeaths],
			TotalRecovered: cells[p.columns.TotalRecovered],
		},
		ObservedAt: observedAt,
	}, ""
}

// fits reports whether every configured column index addresses one of n cells.
func (p *Parser) fits(n int) bool {
	c := p.columns
	for _, i := range []int{c.Name, c.TotalCases, c.NewCases, c.TotalDeaths, c.NewDeaths, c.TotalRecovered} {
		if i < 0 || i >= n {
			return false
		}
	}
	return true
}

// findAll returns every element with the given atom, in document order.
func findAll(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// cellTexts returns the text of the direct <td> children of row.
func cellTexts(row *html.Node) []string {
	var cells []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			cells = append(cells, collectText(c))
		}
	}
	return cells
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
