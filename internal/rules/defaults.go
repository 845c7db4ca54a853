package rules

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/google/uuid"
)

var categoryNamespace = uuid.MustParse("7d2b6c5e-3f0a-4c1e-9a51-5f3c2a9e8b10")

// CategoryID returns the stable id of a built-in category slug.
func CategoryID(slug string) string {
	return uuid.NewSHA1(categoryNamespace, []byte(slug)).String()
}

// Slugs of built-in categories that other components refer to.
const (
	SlugRefunds       = "refunds"
	SlugClearing      = "clearing"
	SlugUncategorized = "uncategorized"
)

// DefaultCategories returns the starter taxonomy the default tables refer to.
// Organizations normally import their own from the category registry.
func DefaultCategories() []model.Category {
	defs := []struct {
		slug, name string
		typ        model.CategoryType
	}{
		{"sales-revenue", "Sales Revenue", model.CategoryTypeRevenue},
		{"service-revenue", "Service Revenue", model.CategoryTypeRevenue},
		{SlugRefunds, "Refunds & Returns", model.CategoryTypeContraRevenue},
		{"inventory", "Inventory Purchases", model.CategoryTypeCOGS},
		{"shipping", "Shipping & Postage", model.CategoryTypeCOGS},
		{"payment-processing-fees", "Payment Processing Fees", model.CategoryTypeOpex},
		{"software", "Software & Subscriptions", model.CategoryTypeOpex},
		{"advertising", "Advertising & Marketing", model.CategoryTypeOpex},
		{"rent", "Rent & Lease", model.CategoryTypeOpex},
		{"hair-services", "Hair Services", model.CategoryTypeOpex},
		{"meals", "Meals & Entertainment", model.CategoryTypeOpex},
		{"travel", "Travel", model.CategoryTypeOpex},
		{"utilities", "Utilities & Telecom", model.CategoryTypeOpex},
		{"payroll", "Payroll", model.CategoryTypeOpex},
		{"bank-fees", "Bank Fees", model.CategoryTypeOpex},
		{"insurance", "Insurance", model.CategoryTypeOpex},
		{"office-supplies", "Office Supplies", model.CategoryTypeOpex},
		{"interest-income", "Interest Income", model.CategoryTypeOtherIncome},
		{"taxes", "Taxes", model.CategoryTypeOtherExpense},
		{SlugClearing, "Processor Clearing", model.CategoryTypeTransfer},
		{"owner-transfer", "Transfers", model.CategoryTypeTransfer},
		{SlugUncategorized, "Uncategorized", model.CategoryTypeUncategorized},
	}

	out := make([]model.Category, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.Category{
			ID:   CategoryID(d.slug),
			Slug: d.slug,
			Name: d.name,
			Type: d.typ,
		})
	}
	return out
}

// DefaultPenalties returns the generic-term penalty table.
func DefaultPenalties() map[string]float64 {
	return map[string]float64{
		"com":       0.15,
		"www":       0.15,
		"payment":   0.12,
		"bill":      0.10,
		"purchase":  0.10,
		"online":    0.08,
		"transfer":  0.08,
		"pos":       0.05,
		"debit":     0.05,
		"card":      0.05,
		"ach":       0.05,
		"store":     0.05,
		"services":  0.05,
		"recurring": 0.05,
		"inc":       0.01,
	}
}

// DefaultTables returns the built-in rule tables.
func DefaultTables() *Tables {
	t, err := New(DefaultSpec())
	if err != nil {
		panic(fmt.Sprintf("built-in rule tables are invalid: %v", err))
	}
	return t
}

// DefaultSpec returns the built-in rules in serializable form.
func DefaultSpec() Spec {
	return Spec{
		Penalties: DefaultPenalties(),
		MCC: []MCCEntry{
			{Code: "7230", Category: "hair-services", Confidence: 0.92, Description: "Barber and beauty shops"},
			{Code: "5734", Category: "software", Confidence: 0.92, Description: "Computer software stores"},
			{Code: "7372", Category: "software", Confidence: 0.90, Description: "Computer programming and data processing"},
			{Code: "5812", Category: "meals", Confidence: 0.93, Description: "Eating places and restaurants"},
			{Code: "5814", Category: "meals", Confidence: 0.93, Description: "Fast food restaurants"},
			{Code: "4511", Category: "travel", Confidence: 0.95, Description: "Airlines"},
			{Code: "7011", Category: "travel", Confidence: 0.93, Description: "Hotels and lodging"},
			{Code: "4121", Category: "travel", Confidence: 0.92, Description: "Taxicabs and rideshare"},
			{Code: "4215", Category: "shipping", Confidence: 0.92, Description: "Courier services"},
			{Code: "9402", Category: "shipping", Confidence: 0.90, Description: "Postal services"},
			{Code: "7311", Category: "advertising", Confidence: 0.93, Description: "Advertising services"},
			{Code: "4900", Category: "utilities", Confidence: 0.93, Description: "Utilities"},
			{Code: "4814", Category: "utilities", Confidence: 0.90, Description: "Telecommunication services"},
			{Code: "5943", Category: "office-supplies", Confidence: 0.90, Description: "Stationery and office supplies"},
			{Code: "5111", Category: "office-supplies", Confidence: 0.90, Description: "Stationery wholesale"},
			{Code: "6300", Category: "insurance", Confidence: 0.92, Description: "Insurance sales and premiums"},
			{Code: "9311", Category: "taxes", Confidence: 0.95, Description: "Tax payments"},
		},
		Vendors: []VendorRule{
			{Pattern: "stripe", Match: MatchContains, Category: SlugClearing, Family: "stripe", Priority: 10, Confidence: 0.85},
			{Pattern: "stripe fee", Match: MatchContains, Category: "payment-processing-fees", Family: "stripe", Priority: 20, Confidence: 0.90},
			{Pattern: "paypal", Match: MatchContains, Category: SlugClearing, Family: "paypal", Priority: 10, Confidence: 0.85},
			{Pattern: "paypal fee", Match: MatchContains, Category: "payment-processing-fees", Family: "paypal", Priority: 20, Confidence: 0.90},
			{Pattern: "shopify payments", Match: MatchContains, Category: SlugClearing, Priority: 10, Confidence: 0.88},
			{Pattern: "square inc", Match: MatchPrefix, Category: SlugClearing, Priority: 10, Confidence: 0.85},
			{Pattern: "adobe", Match: MatchContains, Category: "software", Priority: 10, Confidence: 0.85},
			{Pattern: "github", Match: MatchPrefix, Category: "software", Priority: 10, Confidence: 0.88},
			{Pattern: "amazon web services", Match: MatchContains, Category: "software", Family: "amazon", Priority: 20, Confidence: 0.88},
			{Pattern: "aws", Match: MatchExact, Category: "software", Family: "amazon", Priority: 20, Confidence: 0.90},
			{Pattern: "amazon com", Match: MatchContains, Category: "office-supplies", Family: "amazon", Priority: 5, Confidence: 0.60},
			{Pattern: "google ads", Match: MatchContains, Category: "advertising", Priority: 10, Confidence: 0.90},
			{Pattern: `^(facebook|meta|fb)\s+ads`, Match: MatchRegex, Category: "advertising", Priority: 10, Confidence: 0.90},
			{Pattern: "uber", Match: MatchPrefix, Category: "travel", Priority: 10, Confidence: 0.80},
			{Pattern: "delta air lines", Match: MatchContains, Category: "travel", Priority: 10, Confidence: 0.90},
			{Pattern: "ups", Match: MatchExact, Category: "shipping", Priority: 10, Confidence: 0.88},
			{Pattern: "fedex", Match: MatchContains, Category: "shipping", Priority: 10, Confidence: 0.88},
			{Pattern: "usps", Match: MatchContains, Category: "shipping", Priority: 10, Confidence: 0.88},
			{Pattern: "gusto", Match: MatchContains, Category: "payroll", Priority: 10, Confidence: 0.90},
			{Pattern: "adp", Match: MatchExact, Category: "payroll", Priority: 10, Confidence: 0.90},
			{Pattern: "comcast", Match: MatchContains, Category: "utilities", Priority: 10, Confidence: 0.85},
			{Pattern: "wework", Match: MatchContains, Category: "rent", Priority: 10, Confidence: 0.85},
		},
		Keywords: []KeywordRule{
			{Keywords: []string{"rent"}, ExcludeKeywords: []string{"car", "rental", "equipment"}, Category: "rent", Confidence: 0.70},
			{Keywords: []string{"payroll"}, Category: "payroll", Confidence: 0.75},
			{Keywords: []string{"subscription"}, Category: "software", Confidence: 0.55},
			{Keywords: []string{"interest"}, ExcludeKeywords: []string{"charge", "fee"}, Category: "interest-income", Confidence: 0.70},
			{Keywords: []string{"insurance"}, Category: "insurance", Confidence: 0.75},
			{Keywords: []string{"shipping"}, Category: "shipping", Confidence: 0.70},
			{Keywords: []string{"bill", "payment"}, Category: "utilities", Confidence: 0.50},
			{Keywords: []string{"overdraft"}, Category: "bank-fees", Confidence: 0.80},
			{Keywords: []string{"fee"}, Category: "bank-fees", Confidence: 0.60},
			{Keywords: []string{"refund"}, Category: SlugRefunds, Confidence: 0.75},
			{Keywords: []string{"payout"}, Category: SlugClearing, Confidence: 0.70},
			{Keywords: []string{"invoice"}, Category: "sales-revenue", Confidence: 0.60},
		},
		Patterns: []PatternRule{
			{Name: "Payroll Run", Category: "payroll", Regex: `\b(PAYROLL|SALARY|WAGES)\b`, Priority: 100, Confidence: 0.80},
			{Name: "Interest Income", Category: "interest-income", Regex: `\b(INTEREST\s*PAID|INT\s*EARNED|INT\s*INCOME|DIVIDEND)\b`, Priority: 95, Confidence: 0.85},
			{Name: "Tax Payment", Category: "taxes", Regex: `\b(IRS\s*USATAXPYMT|EFTPS|STATE\s*TAX|SALES\s*TAX)\b`, Priority: 95, Confidence: 0.90},
			{Name: "Processor Payout", Category: SlugClearing, Regex: `\b(PAYOUT|TRANSFER\s*FROM\s*(STRIPE|PAYPAL|SHOPIFY))\b`, Priority: 90, Confidence: 0.85},
			{Name: "Credit/Refund", Category: SlugRefunds, Regex: `\b(REFUND|REIMB|REIMBURSEMENT|CHARGEBACK)\b`, Priority: 90, Confidence: 0.80},
			{Name: "Wire Transfer", Category: "owner-transfer", Regex: `\b(WIRE\s*IN|WIRE\s*OUT|WIRE\s*TRANSFER|WIRE\s*XFER)\b`, Priority: 85, Confidence: 0.85},
			{Name: "Customer Payment", Category: "sales-revenue", Regex: `\b(PAYMENT\s*FROM|CUSTOMER\s*PAY)\b`, Priority: 85, Confidence: 0.70},
			{Name: "Account Transfer", Category: "owner-transfer", Regex: `\b(XFER|TFR|ACCOUNT\s*TO\s*ACCOUNT|TO\s*SAVINGS|FROM\s*SAVINGS)\b`, Priority: 80, Confidence: 0.80},
			{Name: "Bank Fee", Category: "bank-fees", Regex: `\b(SERVICE\s*CHG|MONTHLY\s*FEE|NSF\s*FEE|WIRE\s*FEE)\b`, Priority: 45, Confidence: 0.80},
			{Name: "Subscription", Category: "software", Regex: `\b(SUBSCRIPTION|RECURRING)\b`, Priority: 45, Confidence: 0.60},
		},
		Embeddings: []EmbeddingReference{
			{Text: "cloud hosting compute storage saas software license", Category: "software"},
			{Text: "restaurant cafe coffee lunch dinner catering", Category: "meals"},
			{Text: "airline flight hotel lodging airfare rideshare", Category: "travel"},
			{Text: "ads campaign marketing promotion sponsored", Category: "advertising"},
			{Text: "courier freight postage parcel delivery", Category: "shipping"},
		},
	}
}
