// Package dataset provides the deterministic synthetic dataset for the
// benchmark: a fact table of sales joined to a customer dimension table.
package dataset

// Table names used by the format store's naming convention.
const (
	FactTableName = "fact_sales"
	DimTableName  = "dim_customers"
)

// Column names referenced by workload predicates and clustering keys.
const (
	ColSaleID      = "sale_id"
	ColCustomerID  = "customer_id"
	ColQuantity    = "quantity"
	ColAmountCents = "amount_cents"
	ColSaleDay     = "sale_day"
	ColRegion      = "region"
	ColSegment     = "segment"
	ColSignupDay   = "signup_day"
)

// FactRow is a single row of the fact_sales table. Monetary amounts are
// integer cents so that aggregates are exact and order-insensitive.
type FactRow struct {
	SaleID      int64  `parquet:"sale_id"`
	CustomerID  int64  `parquet:"customer_id"`
	Quantity    int32  `parquet:"quantity"`
	AmountCents int64  `parquet:"amount_cents"`
	SaleDay     int32  `parquet:"sale_day"`
	Region      string `parquet:"region,dict"`
}

// DimRow is a single row of the dim_customers table. Every fact row's
// CustomerID resolves to exactly one DimRow.
type DimRow struct {
	CustomerID int64  `parquet:"customer_id"`
	Segment    string `parquet:"segment,dict"`
	Region     string `parquet:"region,dict"`
	SignupDay  int32  `parquet:"signup_day"`
}

// Dataset holds both tables of one generated dataset.
type Dataset struct {
	Seed  int64
	Facts []FactRow
	Dims  []DimRow
}

// Regions is the closed region domain. Filtered-scan selectivity follows
// from the generator drawing regions uniformly.
var Regions = []string{"amer", "emea", "apac", "latam"}

// Segments is the closed customer segment domain.
var Segments = []string{"consumer", "corporate", "home_office", "smb"}
