package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Summary table names.
const (
	SummaryKPIs              = "kpis"
	SummaryHourlySales       = "hourly_sales"
	SummaryDailySales        = "daily_sales"
	SummaryTopVendors        = "top_vendors"
	SummaryTopCustomers      = "top_customers"
	SummaryTopLocations      = "top_locations"
	SummaryTimePeriodSales   = "time_period_sales"
	SummarySubcategorySales  = "subcategory_sales"
	SummarySubcategoryProfit = "subcategory_profit"
	SummaryQuarterlyProfit   = "quarterly_profit"
	SummaryWeeklySales       = "weekly_sales"
)

// KPI metric names and display formats.
const (
	MetricTotalSales        = "Total Sales"
	MetricTotalTransactions = "Total Transactions"
	MetricAverageBasket     = "Average Basket"
	MetricTotalCustomers    = "Total Customers"
	MetricTotalVendors      = "Total Vendors"
	MetricTotalProfit       = "Total Profit"
	MetricProfitMargin      = "Profit Margin"

	FormatCurrency   = "Currency"
	FormatNumber     = "Number"
	FormatPercentage = "Percentage"
)

// Summary columns.
const (
	ColMetric             = "Metric"
	ColValue              = "Value"
	ColFormat             = "Format"
	ColTotalSales         = "TotalSales"
	ColTotalSpent         = "TotalSpent"
	ColTransactionCount   = "TransactionCount"
	ColAvgTransaction     = "AvgTransaction"
	ColAverageTransaction = "AverageTransaction"
	ColTotalProfit        = "TotalProfit"
	ColRevenue            = "Revenue"
	ColCOGS               = "COGS"
	ColProfitMarginPct    = "ProfitMarginPct"
	ColQuarter            = "Quarter"
	ColYearQuarter        = "YearQuarter"
	ColWeekStart          = "WeekStart"
)

// Summaries is an ordered set of named summary tables.
type Summaries struct {
	tables []*Table
	byName map[string]*Table
}

func newSummaries() *Summaries {
	return &Summaries{byName: make(map[string]*Table)}
}

func (s *Summaries) add(t *Table) {
	if t == nil {
		return
	}
	s.tables = append(s.tables, t)
	s.byName[t.Name] = t
}

// Get returns the named summary.
func (s *Summaries) Get(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Tables returns the summaries in production order.
func (s *Summaries) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// Names returns the summary names in production order.
func (s *Summaries) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

// AggregatorConfig sets top-N truncation.
type AggregatorConfig struct {
	TopVendors   int
	TopCustomers int
}

// Aggregator builds summary tables from enriched data.
type Aggregator struct {
	logger       *slog.Logger
	topVendors   int
	topCustomers int
}

// NewAggregator creates an aggregator. Zero limits default to 20 vendors and 50 customers.
func NewAggregator(logger *slog.Logger, config AggregatorConfig) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.TopVendors <= 0 {
		config.TopVendors = 20
	}
	if config.TopCustomers <= 0 {
		config.TopCustomers = 50
	}
	return &Aggregator{
		logger:       logger.With(slog.String("component", "aggregator")),
		topVendors:   config.TopVendors,
		topCustomers: config.TopCustomers,
	}
}

// Summarize produces every summary whose input columns are present.
func (a *Aggregator) Summarize(ctx context.Context, data *Enriched) *Summaries {
	out := newSummaries()
	salesCol, ok := data.Bindings.Column(FieldAdjustedPrice)
	if !ok {
		a.logger.WarnContext(ctx, "no sales column, skipping summaries",
			slog.String("field", string(FieldAdjustedPrice)))
		return out
	}
	t := data.Purchases
	b := data.Bindings

	out.add(a.kpis(t, b, salesCol, data.HasProfit))
	if t.HasColumn(ColHour) {
		out.add(a.hourlySales(t, salesCol))
		out.add(a.dailySales(t, salesCol))
		out.add(a.timePeriodSales(t, salesCol))
	}
	if col, ok := b.Column(FieldVendor); ok {
		out.add(a.buildTopVendors(t, col, salesCol))
	}
	if col, ok := b.Column(FieldCustomer); ok {
		out.add(a.buildTopCustomers(t, col, salesCol))
	}
	if col, ok := b.Column(FieldLocation); ok {
		out.add(a.topLocations(t, col, salesCol))
	}
	if col, ok := b.Column(FieldSubcategory); ok {
		out.add(a.subcategorySales(t, col, salesCol))
		if costCol, ok := b.Column(FieldUnitCost); ok {
			out.add(a.subcategoryProfit(t, col, salesCol, costCol))
		}
	}
	if dateCol, ok := b.Column(FieldPurchaseDate); ok {
		if costCol, ok := b.Column(FieldUnitCost); ok {
			out.add(a.quarterlyProfit(t, dateCol, salesCol, costCol))
		}
		out.add(a.weeklySales(t, dateCol, salesCol))
	}

	a.logger.InfoContext(ctx, "summaries built",
		slog.Int("rows", t.Len()),
		slog.Any("summaries", out.Names()))
	return out
}

func (a *Aggregator) kpis(t *Table, b Bindings, salesCol string, hasProfit bool) *Table {
	rows := allRows(t)
	totalSales := sum(t, rows, salesCol)

	kpi := NewTable(SummaryKPIs, ColMetric, ColValue, ColFormat)
	kpi.mustAppend(String(MetricTotalSales), Number(totalSales), String(FormatCurrency))
	kpi.mustAppend(String(MetricTotalTransactions), Int(t.Len()), String(FormatNumber))
	kpi.mustAppend(String(MetricAverageBasket), mean(t, rows, salesCol), String(FormatCurrency))

	customers, vendors := 0, 0
	if col, ok := b.Column(FieldCustomer); ok {
		customers = distinct(t, rows, col)
	}
	if col, ok := b.Column(FieldVendor); ok {
		vendors = distinct(t, rows, col)
	}
	kpi.mustAppend(String(MetricTotalCustomers), Int(customers), String(FormatNumber))
	kpi.mustAppend(String(MetricTotalVendors), Int(vendors), String(FormatNumber))

	if hasProfit {
		totalProfit := sum(t, rows, ColProfit)
		kpi.mustAppend(String(MetricTotalProfit), Number(totalProfit), String(FormatCurrency))
		kpi.mustAppend(String(MetricProfitMargin), ratioPct(totalProfit, totalSales), String(FormatPercentage))
	}
	return kpi
}

// hourlySales has one row per hour that saw a transaction, ascending.
func (a *Aggregator) hourlySales(t *Table, salesCol string) *Table {
	out := NewTable(SummaryHourlySales, ColHour, ColTotalSales, ColTransactionCount, ColAvgTransaction, ColTimePeriod)
	for _, g := range groupBy(t, ColHour) {
		hour, _ := g.key[0].Float()
		out.mustAppend(g.key[0], Number(sum(t, g.rows, salesCol)), Int(len(g.rows)),
			mean(t, g.rows, salesCol), String(TimePeriod(int(hour))))
	}
	return out
}

// dailySales runs Monday to Sunday.
func (a *Aggregator) dailySales(t *Table, salesCol string) *Table {
	out := NewTable(SummaryDailySales, ColDayOfWeek, ColDayNum, ColTotalSales, ColTransactionCount)
	for _, g := range groupBy(t, ColDayNum, ColDayOfWeek) {
		out.mustAppend(g.key[1], g.key[0], Number(sum(t, g.rows, salesCol)), Int(len(g.rows)))
	}
	return out
}

func (a *Aggregator) timePeriodSales(t *Table, salesCol string) *Table {
	byPeriod := make(map[string]*group)
	for _, g := range groupBy(t, ColTimePeriod) {
		byPeriod[g.key[0].Str] = g
	}
	out := NewTable(SummaryTimePeriodSales, ColTimePeriod, ColTotalSales, ColTransactionCount)
	for _, p := range TimePeriods {
		if g, ok := byPeriod[p]; ok {
			out.mustAppend(String(p), Number(sum(t, g.rows, salesCol)), Int(len(g.rows)))
		}
	}
	return out
}

func (a *Aggregator) buildTopVendors(t *Table, vendorCol, salesCol string) *Table {
	out := NewTable(SummaryTopVendors, vendorCol, ColTotalSales, ColTransactionCount, ColTotalProfit)
	for _, g := range groupBy(t, vendorCol) {
		out.mustAppend(g.key[0], Number(sum(t, g.rows, salesCol)), Int(len(g.rows)), Number(sum(t, g.rows, ColProfit)))
	}
	return sortDesc(out, ColTotalSales).Head(a.topVendors)
}

func (a *Aggregator) buildTopCustomers(t *Table, custCol, salesCol string) *Table {
	out := NewTable(SummaryTopCustomers, custCol, ColTotalSpent, ColTransactionCount)
	for _, g := range groupBy(t, custCol) {
		out.mustAppend(g.key[0], Number(sum(t, g.rows, salesCol)), Int(len(g.rows)))
	}
	return sortDesc(out, ColTotalSpent).Head(a.topCustomers)
}

func (a *Aggregator) topLocations(t *Table, locCol, salesCol string) *Table {
	out := NewTable(SummaryTopLocations, locCol, ColTotalSales, ColTransactionCount)
	for _, g := range groupBy(t, locCol) {
		out.mustAppend(g.key[0], Number(sum(t, g.rows, salesCol)), Int(len(g.rows)))
	}
	return sortDesc(out, ColTotalSales)
}

func (a *Aggregator) subcategorySales(t *Table, subCol, salesCol string) *Table {
	out := NewTable(SummarySubcategorySales, subCol, ColTotalSales, ColTransactionCount, ColAverageTransaction)
	for _, g := range groupBy(t, subCol) {
		total := sum(t, g.rows, salesCol)
		out.mustAppend(g.key[0], Number(total), Int(len(g.rows)), Number(total/float64(len(g.rows))))
	}
	return sortDesc(out, ColTotalSales)
}

func (a *Aggregator) subcategoryProfit(t *Table, subCol, salesCol, costCol string) *Table {
	out := NewTable(SummarySubcategoryProfit, subCol, ColRevenue, ColCOGS, ColProfit, ColProfitMarginPct)
	for _, g := range groupBy(t, subCol) {
		revenue, cogs := sum(t, g.rows, salesCol), sum(t, g.rows, costCol)
		out.mustAppend(g.key[0], Number(revenue), Number(cogs), Number(revenue-cogs),
			roundValue(ratioPct(revenue-cogs, revenue), 1))
	}
	return sortDesc(out, ColProfit)
}

func (a *Aggregator) quarterlyProfit(t *Table, dateCol, salesCol, costCol string) *Table {
	type quarter struct{ year, q int }
	byQuarter := make(map[quarter][]int)
	var order []quarter
	for i := 0; i < t.Len(); i++ {
		ts, ok := t.Get(i, dateCol).TimeValue()
		if !ok {
			continue
		}
		k := quarter{ts.Year(), (int(ts.Month())-1)/3 + 1}
		if _, seen := byQuarter[k]; !seen {
			order = append(order, k)
		}
		byQuarter[k] = append(byQuarter[k], i)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].year != order[j].year {
			return order[i].year < order[j].year
		}
		return order[i].q < order[j].q
	})

	out := NewTable(SummaryQuarterlyProfit, ColYear, ColQuarter, ColYearQuarter, ColRevenue, ColCOGS, ColProfit, ColProfitMarginPct)
	for _, k := range order {
		rows := byQuarter[k]
		revenue, cogs := sum(t, rows, salesCol), sum(t, rows, costCol)
		out.mustAppend(Int(k.year), Int(k.q), String(fmt.Sprintf("%d Q%d", k.year, k.q)),
			Number(revenue), Number(cogs), Number(revenue-cogs), roundValue(ratioPct(revenue-cogs, revenue), 2))
	}
	return out
}

// weeklySales buckets purchases into Monday-started weeks.
func (a *Aggregator) weeklySales(t *Table, dateCol, salesCol string) *Table {
	byWeek := make(map[time.Time][]int)
	var order []time.Time
	for i := 0; i < t.Len(); i++ {
		ts, ok := t.Get(i, dateCol).TimeValue()
		if !ok {
			continue
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
		start := day.AddDate(0, 0, -DayNum(ts.Weekday()))
		if _, seen := byWeek[start]; !seen {
			order = append(order, start)
		}
		byWeek[start] = append(byWeek[start], i)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := NewTable(SummaryWeeklySales, ColWeekStart, ColTotalSales, ColTransactionCount)
	for _, w := range order {
		out.mustAppend(Timestamp(w), Number(sum(t, byWeek[w], salesCol)), Int(len(byWeek[w])))
	}
	return out
}

// sortDesc stably orders t by col, highest first; nulls sink.
func sortDesc(t *Table, col string) *Table {
	c, ok := t.ColumnIndex(col)
	if !ok {
		return t
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		a, okA := t.rows[i][c].Float()
		b, okB := t.rows[j][c].Float()
		if okA != okB {
			return okA
		}
		return a > b
	})
	return t
}

func roundValue(v Value, places int) Value {
	f, ok := v.Float()
	if !ok {
		return v
	}
	scale := math.Pow(10, float64(places))
	return Number(math.Round(f*scale) / scale)
}
