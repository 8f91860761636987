package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"survey-backend/internal/instrument"
	"survey-backend/internal/store"
)

const (
	AggregateCount = "count"
	AggregateSum   = "sum"
	AggregateAvg   = "avg"
)

// keySep joins dimension values into one map key.
const keySep = "\x1f"

// PivotRequest describes a cross tabulation of one round.
type PivotRequest struct {
	RosterID  string   `json:"roster_id"`
	Degree    int      `json:"degree"`
	Rows      []string `json:"rows"`
	Columns   []string `json:"columns"`
	Measure   string   `json:"measure,omitempty"`
	Aggregate string   `json:"aggregate"`
	Filter    string   `json:"filter,omitempty"`
}

func (r *PivotRequest) normalize() error {
	r.Aggregate = strings.ToLower(strings.TrimSpace(r.Aggregate))
	if r.Aggregate == "" {
		r.Aggregate = AggregateCount
	}
	switch r.Aggregate {
	case AggregateCount:
	case AggregateSum, AggregateAvg:
		if r.Measure == "" {
			return fmt.Errorf("aggregate %s needs a measure", r.Aggregate)
		}
	default:
		return fmt.Errorf("unknown aggregate %q", r.Aggregate)
	}
	if len(r.Rows) == 0 && len(r.Columns) == 0 {
		return fmt.Errorf("at least one row or column dimension is required")
	}
	return nil
}

// PivotResult is a dense table: Cells[i][j] belongs to RowKeys[i] and
// ColumnKeys[j]. A nil cell has no contributing records.
type PivotResult struct {
	Rows        []string     `json:"rows"`
	Columns     []string     `json:"columns"`
	Aggregate   string       `json:"aggregate"`
	Measure     string       `json:"measure,omitempty"`
	RowKeys     [][]string   `json:"row_keys"`
	ColumnKeys  [][]string   `json:"column_keys"`
	Cells       [][]*float64 `json:"cells"`
	RowTotals   []*float64   `json:"row_totals"`
	ColTotals   []*float64   `json:"column_totals"`
	GrandTotal  *float64     `json:"grand_total"`
	Records     int          `json:"records"`
	FilterFails int          `json:"filter_failures,omitempty"`
}

type accumulator struct {
	count int
	sum   float64
	n     int
}

func (a *accumulator) add(measure float64, ok bool) {
	a.count++
	if ok {
		a.sum += measure
		a.n++
	}
}

func (a *accumulator) value(aggregate string) *float64 {
	if a == nil {
		return nil
	}
	var v float64
	switch aggregate {
	case AggregateSum:
		v = a.sum
	case AggregateAvg:
		if a.n == 0 {
			return nil
		}
		v = a.sum / float64(a.n)
	default:
		v = float64(a.count)
	}
	return &v
}

// RoundSource lists the records of one round.
type RoundSource interface {
	ListRoundRows(ctx context.Context, rosterID string, degree int) ([]store.RoundRow, error)
}

// Analyzer computes pivots in process over the round records.
type Analyzer struct {
	source  RoundSource
	filters *FilterEvaluator
}

func NewAnalyzer(source RoundSource, filters *FilterEvaluator) *Analyzer {
	if filters == nil {
		filters = NewFilterEvaluator()
	}
	return &Analyzer{source: source, filters: filters}
}

func (a *Analyzer) Pivot(ctx context.Context, req PivotRequest) (*PivotResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "analysis", "pivot")
	defer span.End()
	span.SetEntity("roster", req.RosterID)

	if req.RosterID == "" || req.Degree < 1 {
		span.SetStatus("error")
		return nil, BadRequestError("roster_id and a positive degree are required")
	}
	if err := req.normalize(); err != nil {
		span.SetStatus("error")
		return nil, BadRequestError(err.Error())
	}
	if req.Filter != "" {
		if _, err := a.filters.Compile(req.Filter); err != nil {
			span.SetStatus("error")
			return nil, BadRequestError(err.Error())
		}
	}

	rows, err := a.source.ListRoundRows(ctx, req.RosterID, req.Degree)
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("list round %s/%d: %w", req.RosterID, req.Degree, err)
	}
	attrs := make([]map[string]any, len(rows))
	for i, r := range rows {
		attrs[i] = RowAttributes(r)
	}

	res, err := BuildPivot(attrs, req, a.filters)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	span.SetMetadata("records", res.Records)
	span.SetStatus("ok")
	return res, nil
}

// RowAttributes flattens a round record for analysis: list values, then
// scalar answers (the first form holding a field wins), then the record
// columns status, area_code and respondent_id.
func RowAttributes(r store.RoundRow) map[string]any {
	out := make(map[string]any, len(r.ListValues)+8)
	for k, v := range r.ListValues {
		out[k] = normalizeAttr(v)
	}
	answered := make(map[string]bool)
	for _, form := range r.Answers.Forms() {
		for k, v := range form.Fields {
			if answered[k] {
				continue
			}
			if _, isTable := v.([]any); isTable {
				continue
			}
			answered[k] = true
			out[k] = normalizeAttr(v)
		}
	}
	out["status"] = string(r.Status)
	out["area_code"] = r.AreaCode
	out["respondent_id"] = r.RespondentID
	return out
}

func normalizeAttr(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// BuildPivot aggregates attrs. Rows on which the filter fails to evaluate are
// left out and counted in FilterFails.
func BuildPivot(attrs []map[string]any, req PivotRequest, filters *FilterEvaluator) (*PivotResult, error) {
	if err := req.normalize(); err != nil {
		return nil, BadRequestError(err.Error())
	}
	res := &PivotResult{
		Rows:      nonNilStrings(req.Rows),
		Columns:   nonNilStrings(req.Columns),
		Aggregate: req.Aggregate,
		Measure:   req.Measure,
	}

	cells := make(map[string]map[string]*accumulator)
	rowAcc := make(map[string]*accumulator)
	colAcc := make(map[string]*accumulator)
	grand := &accumulator{}
	rowKeys := make(map[string][]string)
	colKeys := make(map[string][]string)

	for _, row := range attrs {
		if req.Filter != "" {
			ok, err := filters.EvaluateBool(req.Filter, row)
			if err != nil {
				res.FilterFails++
				continue
			}
			if !ok {
				continue
			}
		}
		res.Records++

		rk := dimensionKey(row, req.Rows)
		ck := dimensionKey(row, req.Columns)
		rowKeys[strings.Join(rk, keySep)] = rk
		colKeys[strings.Join(ck, keySep)] = ck
		r, c := strings.Join(rk, keySep), strings.Join(ck, keySep)

		m, mok := measureValue(row, req.Measure)
		if cells[r] == nil {
			cells[r] = make(map[string]*accumulator)
		}
		for _, acc := range []*accumulator{accFor(cells[r], c), accFor(rowAcc, r), accFor(colAcc, c), grand} {
			acc.add(m, mok)
		}
	}

	res.RowKeys = sortedKeys(rowKeys)
	res.ColumnKeys = sortedKeys(colKeys)
	res.Cells = make([][]*float64, len(res.RowKeys))
	res.RowTotals = make([]*float64, len(res.RowKeys))
	for i, rk := range res.RowKeys {
		r := strings.Join(rk, keySep)
		res.Cells[i] = make([]*float64, len(res.ColumnKeys))
		for j, ck := range res.ColumnKeys {
			res.Cells[i][j] = cells[r][strings.Join(ck, keySep)].value(req.Aggregate)
		}
		res.RowTotals[i] = rowAcc[r].value(req.Aggregate)
	}
	res.ColTotals = make([]*float64, len(res.ColumnKeys))
	for j, ck := range res.ColumnKeys {
		res.ColTotals[j] = colAcc[strings.Join(ck, keySep)].value(req.Aggregate)
	}
	if res.Records > 0 {
		res.GrandTotal = grand.value(req.Aggregate)
	}
	return res, nil
}

func accFor(m map[string]*accumulator, k string) *accumulator {
	acc := m[k]
	if acc == nil {
		acc = &accumulator{}
		m[k] = acc
	}
	return acc
}

func dimensionKey(row map[string]any, dims []string) []string {
	key := make([]string, len(dims))
	for i, d := range dims {
		key[i] = attrText(row[d])
	}
	return key
}

func attrText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func measureValue(row map[string]any, measure string) (float64, bool) {
	if measure == "" {
		return 0, false
	}
	switch t := row[measure].(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func sortedKeys(m map[string][]string) [][]string {
	joined := make([]string, 0, len(m))
	for k := range m {
		joined = append(joined, k)
	}
	sort.Strings(joined)
	out := make([][]string, len(joined))
	for i, k := range joined {
		out[i] = m[k]
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
