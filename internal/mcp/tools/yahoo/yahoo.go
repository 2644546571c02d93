// Package yahoo is the endpoint catalogue for the Yahoo Finance RapidAPI
// (yahoo-finance15). Every tool the server exposes is one [tools.Endpoint]
// returned by [Endpoints]; execution is handled by [tools.Invoker].
package yahoo

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/yhfinance/internal/mcp/tools"
)

// Interval is a bar size accepted by the history endpoint.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval2m  Interval = "2m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval60m Interval = "60m"
	Interval90m Interval = "90m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval5d  Interval = "5d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
	Interval3mo Interval = "3mo"
)

// Intervals lists every accepted interval in display order.
var Intervals = []Interval{
	Interval1m, Interval2m, Interval5m, Interval15m, Interval30m, Interval60m,
	Interval90m, Interval1h, Interval1d, Interval5d, Interval1wk, Interval1mo, Interval3mo,
}

// ErrInvalidInterval carries the exact rejection text shown to callers.
var ErrInvalidInterval = errors.New("Invalid interval. Please use one of the following: " + joinIntervals(", "))

// ValidateInterval accepts exactly the values in [Intervals].
func ValidateInterval(v any) error {
	s, ok := v.(string)
	if !ok || !slices.Contains(Intervals, Interval(s)) {
		return ErrInvalidInterval
	}
	return nil
}

func joinIntervals(sep string) string {
	return strings.Join(intervalNames(), sep)
}

func intervalNames() []string {
	names := make([]string, len(Intervals))
	for i, iv := range Intervals {
		names[i] = string(iv)
	}
	return names
}

func symbolParam() tools.Param {
	return tools.Param{
		Name:        "symbol",
		Type:        tools.TypeString,
		Description: "Stock symbol.",
		Required:    true,
	}
}

// quoteModule describes a /yahoo/qu/quote/{symbol}/<module> endpoint.
type quoteModule struct {
	tool, module, description, resultKey, fallback string
	shape                                          tools.Shape
}

var quoteModules = []quoteModule{
	{"get_stock_profile", "asset-profile", "Get stock profile information such as company name, descriptions, website, etc.", "", "Unable to fetch stock profile.", tools.ShapeWhole},
	{"get_stock_financial_data", "financial-data", "Get the financial data of the given stock.", "", "Unable to fetch financial data.", tools.ShapeWhole},
	{"get_stock_key_statistics", "default-key-statistics", "Get stock key statistics data.", "", "Unable to fetch key statistics.", tools.ShapeWhole},
	{"get_stock_balance_sheet", "balance-sheet", "Get stock balance sheet data.", "", "Unable to fetch balance sheet data.", tools.ShapeWhole},
	{"get_stock_insider_holders", "insider-holders", "Get stock insider holders' information.", "", "Unable to fetch insider holders data.", tools.ShapeWhole},
	{"get_stock_sec_filings", "sec-filings", "Get stock SEC filings. First 5 filings are returned.", "data", "Unable to fetch SEC filings.", tools.ShapeListOrWhole},
	{"get_stock_recommendation_trend", "recommendation-trend", "Get stock recommendations and trends.", "", "Unable to fetch recommendation trends.", tools.ShapeWhole},
	{"get_stock_upgrade_downgrade_history", "upgrade-downgrade-history", "Get stock upgrade and downgrade history. First 5 entries are returned.", "history", "Unable to fetch upgrade/downgrade history.", tools.ShapeList},
	{"get_stock_net_share_purchase_activity", "net-share-purchase-activity", "Get net share purchase activity information for a particular stock.", "", "Unable to fetch net share purchase activity.", tools.ShapeWhole},
	{"get_stock_institution_ownership", "institution-ownership", "Get stock institution ownership. First 5 holders are returned.", "ownershipList", "Unable to fetch institution ownership.", tools.ShapeList},
	{"get_stock_index_trend", "index-trend", "Get index trend earnings history information for a particular stock.", "", "Unable to fetch index trend.", tools.ShapeWhole},
	{"get_stock_insider_transactions", "insider-transactions", "Get stock insider transactions history. First 5 transactions are returned.", "transactions", "Unable to fetch insider transactions.", tools.ShapeList},
	{"get_stock_cashflow_statement", "cashflow-statement", "Get stock cash flow statements.", "", "Unable to fetch cash flow statement.", tools.ShapeWhole},
	{"get_stock_calendar_events", "calendar-events", "Get stock calendar events.", "", "Unable to fetch calendar events.", tools.ShapeWhole},
	{"get_stock_earnings_trend", "earnings-trend", "Get earnings trend earnings history information for a particular stock. First 5 entries are returned.", "trend", "Unable to fetch earnings trend.", tools.ShapeList},
	{"get_stock_earnings_history", "earnings-history", "Get earnings history information for a particular stock. First 5 entries are returned.", "history", "Unable to fetch earnings history.", tools.ShapeList},
	{"get_stock_earnings", "earnings", "Get earnings information for a particular stock.", "", "Unable to fetch earnings information.", tools.ShapeWhole},
	{"get_stock_income_statement", "income-statement", "Get stock income statement data.", "", "Unable to fetch income statement.", tools.ShapeWhole},
}

// Endpoints returns the full catalogue in registration order. The returned
// slice is freshly allocated.
func Endpoints() []tools.Endpoint {
	eps := []tools.Endpoint{
		{
			Name:        "search",
			Description: "Search for any stock, ETF, or mutual fund. First 5 results are returned.",
			Path:        "/v1/markets/search",
			Params: []tools.Param{{
				Name:        "query",
				Query:       "search",
				Type:        tools.TypeString,
				Description: "The search query.",
				Required:    true,
			}},
			ResultKey: "results",
			Shape:     tools.ShapeList,
			Fallback:  "Unable to search the ticker for this query.",
		},
		{
			Name:        "get_market_quotes",
			Description: "Get current market quote data for stocks, ETFs, mutual funds, etc.",
			Path:        "/v1/markets/quote",
			Params: []tools.Param{
				{
					Name:        "symbol",
					Query:       "ticker",
					Type:        tools.TypeString,
					Description: "One stock symbol.",
					Required:    true,
				},
				{
					Name:        "instrument_type",
					Query:       "type",
					Type:        tools.TypeString,
					Description: "The type of the instrument, STOCKS/ETF/MUTUALFUNDS.",
					Required:    true,
				},
			},
			Shape:    tools.ShapeWhole,
			Fallback: "Unable to fetch quote data.",
		},
		{
			Name:        "get_market_news",
			Description: "Get recently published stock news in all sectors. First 5 items are returned.",
			Path:        "/v2/markets/news",
			Params: []tools.Param{
				{
					Name:        "tickers",
					Type:        tools.TypeString,
					Description: "List of stock tickers.",
					Required:    true,
				},
				{
					Name:        "type",
					Type:        tools.TypeString,
					Description: "Type of news, ALL/VIDEO/PRESS_RELEASE.",
					Default:     "ALL",
				},
			},
			ResultKey: "items",
			Shape:     tools.ShapeList,
			Fallback:  "Unable to fetch market news.",
		},
		{
			Name:        "get_market_screener",
			Description: "Get trending stocks in today's market. First 5 stocks are returned.",
			Path:        "/v1/markets/screener",
			Params: []tools.Param{{
				Name:  "type",
				Query: "list",
				Type:  tools.TypeString,
				Description: "Type of trends to look for. One of: " +
					"trending (trending tickers in today's market), " +
					"undervalued_growth_stocks (stocks with earnings growth), " +
					"growth_technology_stocks (technology stocks with revenue), " +
					"day_gainers (stocks with the highest gains), " +
					"day_losers (stocks with the highest losses), " +
					"most_actives (stocks by intraday trade volume), " +
					"undervalued_large_caps (undervalued large cap stocks), " +
					"aggressive_small_caps (small-cap stocks with earnings growth), " +
					"small_cap_gainers (small caps with a 1 day price change of 5.0%).",
				Required: true,
			}},
			ResultKey: "quotes",
			Shape:     tools.ShapeList,
			Fallback:  "Unable to fetch trending stocks.",
		},
	}

	for _, m := range quoteModules {
		eps = append(eps, tools.Endpoint{
			Name:        m.tool,
			Description: m.description,
			Path:        "/yahoo/qu/quote/{symbol}/" + m.module,
			Params:      []tools.Param{symbolParam()},
			ResultKey:   m.resultKey,
			Shape:       m.shape,
			Fallback:    m.fallback,
		})
	}

	eps = append(eps,
		tools.Endpoint{
			Name:        "get_stock_history",
			Description: "Get historic data for stocks, ETFs, mutuals funds, etc. The first 5 data points of the series are returned.",
			Path:        "/yahoo/hi/history/{symbol}/{interval}",
			Params: []tools.Param{
				symbolParam(),
				{
					Name:        "interval",
					Type:        tools.TypeString,
					Description: fmt.Sprintf("Time interval (%s).", joinIntervals(", ")),
					Default:     string(Interval1d),
					Enum:        intervalNames(),
					Validate:    ValidateInterval,
				},
			},
			ResultKey: "historical",
			Shape:     tools.ShapeListInPlace,
			Fallback:  "Unable to fetch historical data.",
		},
		tools.Endpoint{
			Name:        "get_options_data",
			Description: "Get options data for a specific symbol and date.",
			Path:        "/v1/markets/options",
			Params: []tools.Param{
				{
					Name:        "symbol",
					Query:       "ticker",
					Type:        tools.TypeString,
					Description: "Stock symbol.",
					Required:    true,
				},
				{
					Name:        "date",
					Type:        tools.TypeString,
					Description: "Expiration date (YYYY-MM-DD format).",
					Required:    true,
				},
			},
			Shape:    tools.ShapeWhole,
			Fallback: "Unable to fetch options data.",
		},
	)
	return eps
}

// Lookup returns the endpoint named name.
func Lookup(name string) (tools.Endpoint, bool) {
	for _, ep := range Endpoints() {
		if ep.Name == name {
			return ep, true
		}
	}
	return tools.Endpoint{}, false
}
