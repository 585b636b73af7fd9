package taxonomy

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/aristath/equityrefresh/internal/store"
)

const sampleDoc = `{
  "cik": 320193,
  "entityName": "ACME CORP",
  "facts": {
    "us-gaap": {
      "Revenues": {
        "units": {
          "USD": [
            {"start": "2023-10-01", "end": "2023-12-31", "val": 1000, "accn": "0001-23-1", "fy": 2024, "fp": "Q1", "form": "10-Q", "filed": "2024-02-01"},
            {"start": "2023-01-01", "end": "2023-12-31", "val": 5000, "accn": "0001-24-1", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2024-02-15"}
          ]
        }
      },
      "NetIncomeLoss": {
        "units": {
          "USD": [
            {"start": "2023-10-01", "end": "2023-12-31", "val": 100, "accn": "0001-23-1", "fy": 2024, "fp": "Q1", "form": "10-Q", "filed": "2024-02-01"},
            {"start": "2023-10-01", "end": "2023-12-31", "val": 90, "accn": "0001-23-0", "fy": 2024, "fp": "Q1", "form": "10-Q", "filed": "2024-01-20"}
          ]
        }
      },
      "Assets": {
        "units": {
          "USD": [
            {"end": "2023-12-31", "val": 20000, "accn": "0001-23-1", "fy": 2024, "fp": "Q1", "form": "10-Q", "filed": "2024-02-01"}
          ]
        }
      },
      "CommonStockSharesOutstanding": {
        "units": {
          "shares": []
        }
      }
    },
    "dei": {
      "EntityCommonStockSharesOutstanding": {
        "units": {
          "shares": [
            {"end": "2023-12-31", "val": 900, "accn": "0001-23-1", "fy": 2024, "fp": "Q1", "form": "10-Q", "filed": "2024-02-01"}
          ]
        }
      }
    }
  }
}`

func mustDecode(t *testing.T, raw string) *FactsDocument {
	t.Helper()
	var doc FactsDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func TestExtract_PicksMostRecentlyFiledValueOnConflict(t *testing.T) {
	doc := mustDecode(t, sampleDoc)
	extracted, err := Extract(doc)
	require.NoError(t, err)
	require.Len(t, extracted.Income, 2)

	var q1 *store.IncomeStatement
	for i := range extracted.Income {
		if extracted.Income[i].FiscalPeriod == store.Q1 {
			q1 = &extracted.Income[i]
		}
	}
	require.NotNil(t, q1)
	require.NotNil(t, q1.NetIncome)
	require.Equal(t, 100.0, *q1.NetIncome, "later-filed 0001-23-1 must win over earlier 0001-23-0")
}

func TestExtract_AnnualFromTenKFormTag(t *testing.T) {
	doc := mustDecode(t, sampleDoc)
	extracted, err := Extract(doc)
	require.NoError(t, err)

	var annual *store.IncomeStatement
	for i := range extracted.Income {
		if extracted.Income[i].PeriodType == store.Annual {
			annual = &extracted.Income[i]
		}
	}
	require.NotNil(t, annual)
	require.Equal(t, store.NoneFP, annual.FiscalPeriod)
	require.NotNil(t, annual.Revenue)
	require.Equal(t, 5000.0, *annual.Revenue)
}

func TestExtract_SharesOutstandingFallsBackToDEI(t *testing.T) {
	doc := mustDecode(t, sampleDoc)
	extracted, err := Extract(doc)
	require.NoError(t, err)

	var q1 *store.BalanceSheet
	for i := range extracted.Balance {
		if extracted.Balance[i].FiscalPeriod == store.Q1 {
			q1 = &extracted.Balance[i]
		}
	}
	require.NotNil(t, q1)
	require.NotNil(t, q1.SharesOutstanding, "empty us-gaap concept must fall through to dei concept")
	require.Equal(t, 900.0, *q1.SharesOutstanding)
}

func TestExtract_FilingIndexRestrictedToTenKAndTenQ(t *testing.T) {
	doc := mustDecode(t, sampleDoc)
	extracted, err := Extract(doc)
	require.NoError(t, err)
	require.Len(t, extracted.FilingIndex, 3)
	for _, e := range extracted.FilingIndex {
		require.Contains(t, []string{"10-K", "10-Q"}, e.Form)
	}
}

func TestExtract_StatementKindOmittedWhenNoFieldsPopulated(t *testing.T) {
	raw := `{"cik": 1, "entityName": "EMPTY CO", "facts": {"us-gaap": {
		"SomeUnrelatedConcept": {"units": {"USD": [
			{"end": "2023-12-31", "val": 1, "accn": "0001", "fy": 2023, "fp": "FY", "form": "10-K", "filed": "2024-01-01"}
		]}}
	}}}`
	doc := mustDecode(t, raw)
	extracted, err := Extract(doc)
	require.NoError(t, err)
	require.Empty(t, extracted.Income)
	require.Empty(t, extracted.Balance)
	require.Empty(t, extracted.CashFlow)
}

func TestResolvePeriodType_TTMLengthWithoutFiscalPeriodIsDropped(t *testing.T) {
	start := "2023-01-01"
	_, _, ok := resolvePeriodType("", "", &start, "2023-12-30")
	require.False(t, ok)
}

func TestResolvePeriodType_QuarterLengthWithoutFiscalPeriodIsDropped(t *testing.T) {
	start := "2023-10-01"
	_, _, ok := resolvePeriodType("", "", &start, "2023-12-31")
	require.False(t, ok)
}

func TestCollectPeriods_OrderedByFiscalYearThenPeriod(t *testing.T) {
	doc := mustDecode(t, sampleDoc)
	periods := collectPeriods(doc)
	require.Len(t, periods, 2)
	require.Equal(t, 2023, periods[0].fiscalYear)
	require.Equal(t, store.NoneFP, periods[0].fiscalPeriod)
	require.Equal(t, 2024, periods[1].fiscalYear)
	require.Equal(t, store.Q1, periods[1].fiscalPeriod)
}

func TestExtract_Deterministic(t *testing.T) {
	doc1 := mustDecode(t, sampleDoc)
	doc2 := mustDecode(t, sampleDoc)
	a, err := Extract(doc1)
	require.NoError(t, err)
	b, err := Extract(doc2)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("extraction is not deterministic across runs:\n%s", diff)
	}
}
