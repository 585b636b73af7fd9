package taxonomy

// Priority field mappings (spec §6.2): for each logical field, an ordered
// list of candidate concept names. The Extractor walks the list in order
// and takes the first concept that reports a value for the period in
// question; it never merges or averages across concepts.

var incomeFields = []fieldMapping{
	{field: "revenue", unit: unitUSD, concepts: []string{
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"SalesRevenueNet",
		"Revenues",
		"RevenueFromContractWithCustomerIncludingAssessedTax",
	}},
	{field: "net_income", unit: unitUSD, concepts: []string{
		"NetIncomeLoss",
		"NetIncomeLossAvailableToCommonStockholdersBasic",
		"ProfitLoss",
	}},
	{field: "operating_income", unit: unitUSD, concepts: []string{
		"OperatingIncomeLoss",
		"IncomeLossFromContinuingOperations",
		"IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest",
	}},
	{field: "shares_basic", unit: unitShares, concepts: []string{
		"WeightedAverageNumberOfSharesOutstandingBasic",
		"CommonStockSharesOutstanding",
	}},
	{field: "shares_diluted", unit: unitShares, concepts: []string{
		"WeightedAverageNumberOfDilutedSharesOutstanding",
		"WeightedAverageNumberOfSharesOutstandingBasic",
	}},
}

var balanceFields = []fieldMapping{
	{field: "total_assets", unit: unitUSD, concepts: []string{
		"Assets",
		"AssetsTotal",
	}},
	{field: "total_debt", unit: unitUSD, concepts: []string{
		"LongTermDebt",
		"DebtAndCapitalLeaseObligations",
		"LongTermDebtAndCapitalLeaseObligations",
	}},
	{field: "total_equity", unit: unitUSD, concepts: []string{
		"StockholdersEquity",
		"ShareholdersEquity",
		"StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest",
	}},
	{field: "cash_and_equivalents", unit: unitUSD, concepts: []string{
		"CashAndCashEquivalentsAtCarryingValue",
		"CashCashEquivalentsAndShortTermInvestments",
		"Cash",
	}},
	{field: "shares_outstanding", unit: unitShares, concepts: []string{
		"CommonStockSharesOutstanding",
		"CommonStockSharesIssued",
		"EntityCommonStockSharesOutstanding", // dei fallback
		"WeightedAverageNumberOfSharesOutstandingBasic",
	}},
}

// Cash-flow fields are quarterly source lines, summed to one TTM row by
// the TTM Derivator (spec §4.10). share_repurchases has no single
// canonical concept in the taxonomy; it is best-effort and commonly absent.
var cashFlowFields = []fieldMapping{
	{field: "operating_cash_flow", unit: unitUSD, concepts: []string{
		"NetCashProvidedByUsedInOperatingActivities",
	}},
	{field: "investing_cash_flow", unit: unitUSD, concepts: []string{
		"NetCashProvidedByUsedInInvestingActivities",
	}},
	{field: "financing_cash_flow", unit: unitUSD, concepts: []string{
		"NetCashProvidedByUsedInFinancingActivities",
	}},
	{field: "net_cash_flow", unit: unitUSD, concepts: []string{
		"CashAndCashEquivalentsPeriodIncreaseDecrease",
	}},
	{field: "depreciation_expense", unit: unitUSD, concepts: []string{
		"DepreciationDepletionAndAmortization",
	}},
	{field: "dividends_paid", unit: unitUSD, magnitude: true, concepts: []string{
		"PaymentsOfDividends",
	}},
	{field: "share_repurchases", unit: unitUSD, concepts: []string{
		"PaymentsForRepurchaseOfCommonStock",
		"PaymentsForRepurchaseOfEquity",
	}},
}

type fieldMapping struct {
	field     string
	unit      string
	magnitude bool // report as an absolute value (spec §6.2: dividends stored as a negative outflow)
	concepts  []string
}
