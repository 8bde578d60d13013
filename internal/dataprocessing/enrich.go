package dataprocessing

import (
	"context"
	"log/slog"
	"time"

	"retailcli/internal/errors"
)

// Output table names.
const (
	TablePurchasesEnhanced   = "purchases_enhanced"
	TableCheckinsEnhanced    = "checkins_enhanced"
	TableVendorPerformance   = "vendor_performance"
	TableCustomerPerformance = "customer_performance"
)

// Derived purchase columns.
const (
	ColHour                     = "Hour"
	ColDayOfWeek                = "DayOfWeek"
	ColDayNum                   = "DayNum"
	ColMonth                    = "Month"
	ColYear                     = "Year"
	ColYearMonth                = "YearMonth"
	ColWeek                     = "Week"
	ColTimePeriod               = "TimePeriod"
	ColProfit                   = "Profit"
	ColProfitMargin             = "ProfitMargin"
	ColCustomerTotalSpent       = "CustomerTotalSpent"
	ColCustomerRank             = "CustomerRank"
	ColVendorTotalSales         = "VendorTotalSales"
	ColVendorTransactionCount   = "VendorTransactionCount"
	ColVendorAvgTransaction     = "VendorAvgTransaction"
	ColVendorTotalProfit        = "VendorTotalProfit"
	ColVendorRank               = "VendorRank"
	ColLocationTotalSales       = "LocationTotalSales"
	ColLocationTransactionCount = "LocationTransactionCount"
	ColLocationUniqueCustomers  = "LocationUniqueCustomers"
	ColLocationRank             = "LocationRank"
	ColProductRank              = "ProductRank"
)

// Derived check-in columns.
const (
	ColCheckinHour          = "CheckinHour"
	ColCheckinDayOfWeek     = "CheckinDayOfWeek"
	ColCheckinMonth         = "CheckinMonth"
	ColCheckinYear          = "CheckinYear"
	ColCheckinTimePeriod    = "CheckinTimePeriod"
	ColTotalCheckins        = "TotalCheckins"
	ColCheckinFrequencyRank = "CheckinFrequencyRank"
)

// Time-of-day buckets.
const (
	PeriodMorning   = "Morning"
	PeriodAfternoon = "Afternoon"
	PeriodEvening   = "Evening"
	PeriodNight     = "Night"
)

// TimePeriods lists the buckets in display order.
var TimePeriods = []string{PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodNight}

// TimePeriod buckets an hour: [5,12) Morning, [12,17) Afternoon, [17,21) Evening, else Night.
func TimePeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 17:
		return PeriodAfternoon
	case hour >= 17 && hour < 21:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// DayNum is the weekday index with Monday as 0.
func DayNum(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Enriched is the enricher's output.
type Enriched struct {
	Purchases           *Table
	Checkins            *Table
	VendorPerformance   *Table
	CustomerPerformance *Table

	Bindings        Bindings
	CheckinBindings Bindings

	// HasProfit is set when profit came from a unit cost column rather than
	// defaulting to zero.
	HasProfit bool

	sourceColumns map[string]bool
}

// IsSourceColumn reports whether name came from the input workbook rather
// than being derived here.
func (e *Enriched) IsSourceColumn(name string) bool {
	return e != nil && e.sourceColumns[name]
}

// Enricher derives time buckets, financials and rankings.
type Enricher struct {
	logger *slog.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{logger: logger.With(slog.String("component", "enricher"))}
}

// Enrich derives every purchase and check-in column from the preprocessed
// tables. Inputs are not modified; the result depends only on them.
func (e *Enricher) Enrich(ctx context.Context, purchases, checkins *Table) *Enriched {
	if purchases == nil {
		purchases = NewTable("purchases")
	}
	out := &Enriched{
		Purchases:     purchases.Clone(),
		Bindings:      PurchaseSchema.Resolve(purchases),
		sourceColumns: make(map[string]bool),
	}
	out.Purchases.Name = TablePurchasesEnhanced
	for _, c := range purchases.Columns() {
		out.sourceColumns[c] = true
	}
	if checkins != nil {
		for _, c := range checkins.Columns() {
			out.sourceColumns[c] = true
		}
	}

	for _, f := range out.Bindings.Missing(PurchaseSchema) {
		e.logger.DebugContext(ctx, "purchase field absent",
			slog.String("error", errors.NewMissingColumnError("purchases", string(f)).Error()))
	}

	e.addTimeColumns(out)
	e.addProfit(out)
	e.addCustomerStats(ctx, out)
	e.addVendorStats(ctx, out)
	e.addLocationStats(out)
	e.addProductRank(out)

	out.Checkins, out.CheckinBindings = e.enrichCheckins(ctx, checkins)

	e.logger.InfoContext(ctx, "enrichment complete",
		slog.Int("purchases", out.Purchases.Len()),
		slog.Int("checkins", out.Checkins.Len()),
		slog.Bool("has_profit", out.HasProfit))
	return out
}

func (e *Enricher) addTimeColumns(out *Enriched) {
	dateCol, ok := out.Bindings.Column(FieldPurchaseDate)
	if !ok {
		return
	}
	t := out.Purchases
	n := t.Len()
	hour, dow, dayNum := make([]Value, n), make([]Value, n), make([]Value, n)
	month, year, yearMonth := make([]Value, n), make([]Value, n), make([]Value, n)
	week, period := make([]Value, n), make([]Value, n)

	for i := 0; i < n; i++ {
		ts, ok := t.Get(i, dateCol).TimeValue()
		if !ok {
			period[i] = String(PeriodNight)
			continue
		}
		_, isoWeek := ts.ISOWeek()
		hour[i] = Int(ts.Hour())
		dow[i] = String(ts.Weekday().String())
		dayNum[i] = Int(DayNum(ts.Weekday()))
		month[i] = Int(int(ts.Month()))
		year[i] = Int(ts.Year())
		yearMonth[i] = String(ts.Format("2006-01"))
		week[i] = Int(isoWeek)
		period[i] = String(TimePeriod(ts.Hour()))
	}

	setColumns(t, map[string][]Value{
		ColHour: hour, ColDayOfWeek: dow, ColDayNum: dayNum, ColMonth: month, ColYear: year,
		ColYearMonth: yearMonth, ColWeek: week, ColTimePeriod: period,
	}, ColHour, ColDayOfWeek, ColDayNum, ColMonth, ColYear, ColYearMonth, ColWeek, ColTimePeriod)
}

func (e *Enricher) addProfit(out *Enriched) {
	t := out.Purchases
	n := t.Len()
	profit, margin := make([]Value, n), make([]Value, n)

	salesCol, hasSales := out.Bindings.Column(FieldAdjustedPrice)
	costCol, hasCost := out.Bindings.Column(FieldUnitCost)
	out.HasProfit = hasSales && hasCost

	for i := 0; i < n; i++ {
		if !out.HasProfit {
			profit[i], margin[i] = Int(0), Int(0)
			continue
		}
		price, okPrice := t.Get(i, salesCol).Float()
		cost, okCost := t.Get(i, costCol).Float()
		if okPrice && okCost {
			profit[i] = Number(price - cost)
		}
		if okPrice && price > 0 {
			if p, ok := profit[i].Float(); ok {
				margin[i] = Number(100 * p / price)
			}
		} else {
			margin[i] = Int(0)
		}
	}

	setColumns(t, map[string][]Value{ColProfit: profit, ColProfitMargin: margin}, ColProfit, ColProfitMargin)
}

func (e *Enricher) addCustomerStats(ctx context.Context, out *Enriched) {
	custCol, ok1 := out.Bindings.Column(FieldCustomer)
	salesCol, ok2 := out.Bindings.Column(FieldAdjustedPrice)
	if !ok1 || !ok2 {
		out.CustomerPerformance = NewTable(TableCustomerPerformance)
		return
	}
	t := out.Purchases
	groups := groupBy(t, custCol)

	totals := make([]float64, len(groups))
	for g, grp := range groups {
		totals[g] = sum(t, grp.rows, salesCol)
	}
	ranks := DenseRank(totals)

	perf := NewTable(TableCustomerPerformance, custCol, ColCustomerTotalSpent, ColCustomerRank)
	spent, rank := make([]Value, t.Len()), make([]Value, t.Len())
	for g, grp := range groups {
		perf.mustAppend(grp.key[0], Number(totals[g]), Int(ranks[g]))
		for _, i := range grp.rows {
			spent[i], rank[i] = Number(totals[g]), Int(ranks[g])
		}
	}
	setColumns(t, map[string][]Value{ColCustomerTotalSpent: spent, ColCustomerRank: rank}, ColCustomerTotalSpent, ColCustomerRank)
	out.CustomerPerformance = perf

	e.logger.DebugContext(ctx, "customer totals computed", slog.Int("customers", len(groups)))
}

func (e *Enricher) addVendorStats(ctx context.Context, out *Enriched) {
	vendorCol, ok1 := out.Bindings.Column(FieldVendor)
	salesCol, ok2 := out.Bindings.Column(FieldAdjustedPrice)
	if !ok1 || !ok2 {
		out.VendorPerformance = NewTable(TableVendorPerformance)
		return
	}
	t := out.Purchases
	groups := groupBy(t, vendorCol)

	totals := make([]float64, len(groups))
	for g, grp := range groups {
		totals[g] = sum(t, grp.rows, salesCol)
	}
	ranks := DenseRank(totals)

	perf := NewTable(TableVendorPerformance, vendorCol,
		ColVendorTotalSales, ColVendorTransactionCount, ColVendorAvgTransaction, ColVendorTotalProfit, ColVendorRank)
	cols := map[string][]Value{
		ColVendorTotalSales:       make([]Value, t.Len()),
		ColVendorTransactionCount: make([]Value, t.Len()),
		ColVendorAvgTransaction:   make([]Value, t.Len()),
		ColVendorTotalProfit:      make([]Value, t.Len()),
		ColVendorRank:             make([]Value, t.Len()),
	}
	for g, grp := range groups {
		row := []Value{
			Number(totals[g]),
			Int(len(grp.rows)),
			mean(t, grp.rows, salesCol),
			Number(sum(t, grp.rows, ColProfit)),
			Int(ranks[g]),
		}
		perf.mustAppend(append([]Value{grp.key[0]}, row...)...)
		for _, i := range grp.rows {
			cols[ColVendorTotalSales][i] = row[0]
			cols[ColVendorTransactionCount][i] = row[1]
			cols[ColVendorAvgTransaction][i] = row[2]
			cols[ColVendorTotalProfit][i] = row[3]
			cols[ColVendorRank][i] = row[4]
		}
	}
	setColumns(t, cols, ColVendorTotalSales, ColVendorTransactionCount, ColVendorAvgTransaction, ColVendorTotalProfit, ColVendorRank)
	out.VendorPerformance = perf

	e.logger.DebugContext(ctx, "vendor stats computed", slog.Int("vendors", len(groups)))
}

func (e *Enricher) addLocationStats(out *Enriched) {
	locCol, ok1 := out.Bindings.Column(FieldLocation)
	salesCol, ok2 := out.Bindings.Column(FieldAdjustedPrice)
	if !ok1 || !ok2 {
		return
	}
	custCol, hasCustomer := out.Bindings.Column(FieldCustomer)
	t := out.Purchases
	groups := groupBy(t, locCol)

	totals := make([]float64, len(groups))
	for g, grp := range groups {
		totals[g] = sum(t, grp.rows, salesCol)
	}
	ranks := DenseRank(totals)

	sales, count := make([]Value, t.Len()), make([]Value, t.Len())
	unique, rank := make([]Value, t.Len()), make([]Value, t.Len())
	for g, grp := range groups {
		customers := 0
		if hasCustomer {
			customers = distinct(t, grp.rows, custCol)
		}
		for _, i := range grp.rows {
			sales[i] = Number(totals[g])
			count[i] = Int(len(grp.rows))
			unique[i] = Int(customers)
			rank[i] = Int(ranks[g])
		}
	}
	setColumns(t, map[string][]Value{
		ColLocationTotalSales: sales, ColLocationTransactionCount: count,
		ColLocationUniqueCustomers: unique, ColLocationRank: rank,
	}, ColLocationTotalSales, ColLocationTransactionCount, ColLocationUniqueCustomers, ColLocationRank)
}

// addProductRank ranks (product, vendor) pairs by sales and joins the rank back
// on the same pair, so equally named products of different vendors keep their
// own rank.
func (e *Enricher) addProductRank(out *Enriched) {
	productCol, ok1 := out.Bindings.Column(FieldProduct)
	salesCol, ok2 := out.Bindings.Column(FieldAdjustedPrice)
	if !ok1 || !ok2 {
		return
	}
	keyCols := []string{productCol}
	if vendorCol, ok := out.Bindings.Column(FieldVendor); ok {
		keyCols = append(keyCols, vendorCol)
	}
	t := out.Purchases
	groups := groupBy(t, keyCols...)

	totals := make([]float64, len(groups))
	for g, grp := range groups {
		totals[g] = sum(t, grp.rows, salesCol)
	}
	ranks := DenseRank(totals)

	rank := make([]Value, t.Len())
	for g, grp := range groups {
		for _, i := range grp.rows {
			rank[i] = Int(ranks[g])
		}
	}
	setColumns(t, map[string][]Value{ColProductRank: rank}, ColProductRank)
}

func (e *Enricher) enrichCheckins(ctx context.Context, checkins *Table) (*Table, Bindings) {
	if checkins.IsEmpty() {
		var cols []string
		if checkins != nil {
			cols = checkins.Columns()
		}
		return NewTable(TableCheckinsEnhanced, cols...), Bindings{}
	}

	t := checkins.Clone()
	t.Name = TableCheckinsEnhanced
	b := CheckinSchema.Resolve(t)
	n := t.Len()

	if dateCol, ok := b.Column(FieldCheckinDate); ok {
		hour, dow, month := make([]Value, n), make([]Value, n), make([]Value, n)
		year, period := make([]Value, n), make([]Value, n)
		for i := 0; i < n; i++ {
			ts, ok := t.Get(i, dateCol).TimeValue()
			if !ok {
				period[i] = String(PeriodNight)
				continue
			}
			hour[i] = Int(ts.Hour())
			dow[i] = String(ts.Weekday().String())
			month[i] = Int(int(ts.Month()))
			year[i] = Int(ts.Year())
			period[i] = String(TimePeriod(ts.Hour()))
		}
		setColumns(t, map[string][]Value{
			ColCheckinHour: hour, ColCheckinDayOfWeek: dow, ColCheckinMonth: month,
			ColCheckinYear: year, ColCheckinTimePeriod: period,
		}, ColCheckinHour, ColCheckinDayOfWeek, ColCheckinMonth, ColCheckinYear, ColCheckinTimePeriod)
	}

	if custCol, ok := b.Column(FieldCheckinCustomer); ok {
		groups := groupBy(t, custCol)
		counts := make([]float64, len(groups))
		for g, grp := range groups {
			counts[g] = float64(len(grp.rows))
		}
		ranks := DenseRank(counts)

		total, rank := make([]Value, n), make([]Value, n)
		for g, grp := range groups {
			for _, i := range grp.rows {
				total[i] = Int(len(grp.rows))
				rank[i] = Int(ranks[g])
			}
		}
		setColumns(t, map[string][]Value{ColTotalCheckins: total, ColCheckinFrequencyRank: rank},
			ColTotalCheckins, ColCheckinFrequencyRank)
	}

	e.logger.DebugContext(ctx, "check-ins enriched", slog.Int("rows", n))
	return t, b
}

// setColumns writes cols onto t in the given order. Lengths always match t.
func setColumns(t *Table, cols map[string][]Value, order ...string) {
	for _, name := range order {
		if err := t.SetColumn(name, cols[name]); err != nil {
			panic(err)
		}
	}
}
