package ticker

// sp500 is a bundled slice of S&P 500 constituents. It is intentionally a
// static table: the extractor only produces planner hints, and a stale or
// partial catalog degrades to fewer hints, never to wrong answers.
var sp500 = []Company{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "GOOGL", Name: "Alphabet Inc."},
	{Symbol: "AMZN", Name: "Amazon.com Inc."},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
	{Symbol: "META", Name: "Meta Platforms Inc."},
	{Symbol: "TSLA", Name: "Tesla Inc."},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Inc."},
	{Symbol: "AVGO", Name: "Broadcom Inc."},
	{Symbol: "LLY", Name: "Eli Lilly and Company"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co."},
	{Symbol: "V", Name: "Visa Inc."},
	{Symbol: "XOM", Name: "Exxon Mobil Corporation"},
	{Symbol: "UNH", Name: "UnitedHealth Group Incorporated"},
	{Symbol: "MA", Name: "Mastercard Incorporated"},
	{Symbol: "JNJ", Name: "Johnson & Johnson"},
	{Symbol: "PG", Name: "Procter & Gamble Company"},
	{Symbol: "HD", Name: "Home Depot Inc."},
	{Symbol: "COST", Name: "Costco Wholesale Corporation"},
	{Symbol: "ORCL", Name: "Oracle Corporation"},
	{Symbol: "MRK", Name: "Merck & Co."},
	{Symbol: "ABBV", Name: "AbbVie Inc."},
	{Symbol: "CVX", Name: "Chevron Corporation"},
	{Symbol: "KO", Name: "Coca-Cola Company"},
	{Symbol: "PEP", Name: "PepsiCo Inc."},
	{Symbol: "BAC", Name: "Bank of America Corporation"},
	{Symbol: "WMT", Name: "Walmart Inc."},
	{Symbol: "CRM", Name: "Salesforce Inc."},
	{Symbol: "AMD", Name: "Advanced Micro Devices Inc."},
	{Symbol: "NFLX", Name: "Netflix Inc."},
	{Symbol: "ADBE", Name: "Adobe Inc."},
	{Symbol: "TMO", Name: "Thermo Fisher Scientific Inc."},
	{Symbol: "MCD", Name: "McDonald's Corporation"},
	{Symbol: "CSCO", Name: "Cisco Systems Inc."},
	{Symbol: "ACN", Name: "Accenture plc"},
	{Symbol: "ABT", Name: "Abbott Laboratories"},
	{Symbol: "LIN", Name: "Linde plc"},
	{Symbol: "INTC", Name: "Intel Corporation"},
	{Symbol: "DIS", Name: "Walt Disney Company"},
	{Symbol: "WFC", Name: "Wells Fargo & Company"},
	{Symbol: "QCOM", Name: "QUALCOMM Incorporated"},
	{Symbol: "IBM", Name: "International Business Machines Corporation"},
	{Symbol: "GE", Name: "General Electric Company"},
	{Symbol: "CAT", Name: "Caterpillar Inc."},
	{Symbol: "TXN", Name: "Texas Instruments Incorporated"},
	{Symbol: "INTU", Name: "Intuit Inc."},
	{Symbol: "AMAT", Name: "Applied Materials Inc."},
	{Symbol: "VZ", Name: "Verizon Communications Inc."},
	{Symbol: "PFE", Name: "Pfizer Inc."},
	{Symbol: "GS", Name: "Goldman Sachs Group Inc."},
	{Symbol: "MS", Name: "Morgan Stanley"},
	{Symbol: "NKE", Name: "NIKE Inc."},
	{Symbol: "UNP", Name: "Union Pacific Corporation"},
	{Symbol: "T", Name: "AT&T Inc."},
	{Symbol: "BA", Name: "Boeing Company"},
	{Symbol: "HON", Name: "Honeywell International Inc."},
	{Symbol: "SBUX", Name: "Starbucks Corporation"},
	{Symbol: "LOW", Name: "Lowe's Companies Inc."},
	{Symbol: "UBER", Name: "Uber Technologies Inc."},
	{Symbol: "PYPL", Name: "PayPal Holdings Inc."},
}
