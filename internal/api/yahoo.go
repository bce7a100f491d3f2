// Package api 封装行情数据源：交易所代码清单 CSV、报价（市值/股本）与分时/日线 K 接口，含请求节流、并发上限与 trace 日志。
package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
)

// 默认接口地址（Yahoo Finance 兼容）
const (
	DefaultListingsURL = "https://raw.githubusercontent.com/datasets/nasdaq-listings/master/data/nasdaq-listed-symbols.csv"
	DefaultQuoteURL    = "https://query1.finance.yahoo.com/v7/finance/quote"
	DefaultChartURL    = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// CSV 中代码列名
const symbolColumn = "Symbol"

// 分时 / 日线请求参数
const (
	intradayRange    = "1d"
	intradayInterval = "1m"
	dailyRange       = "1mo"
	dailyInterval    = "1d"
)

// 报价字段
const (
	fieldMarketCap = "marketCap"
	fieldShares    = "sharesOutstanding"
)

// chart.error.code：代码不存在或无数据
const chartNotFoundCode = "Not Found"

// 请求超时、节流与并发
const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultMaxConcurrent = 10
	maxConcurrentCap     = 32
	defaultAttempts      = 1
	retryDelay           = 500 * time.Millisecond
	retryDelay429        = 5 * time.Second
	maxRespLogLen        = 600
)

const (
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	accept    = "application/json, text/plain, */*"
)

var (
	// ErrNoData 接口返回成功但没有该代码的数据。
	ErrNoData = errors.New("api: no data")
	// ErrFieldMissing 报价中缺少请求的字段（null 或不存在）。
	ErrFieldMissing = errors.New("api: field missing")
)

// Options 客户端参数，零值字段取默认值。
type Options struct {
	ListingsURL   string
	QuoteURL      string
	ChartURL      string
	Timeout       time.Duration
	RequestGap    time.Duration
	JitterMS      int
	MaxConcurrent int
	Attempts      int
	HTTPClient    *http.Client
}

type Client struct {
	httpClient  *http.Client
	listingsURL string
	quoteURL    string
	chartURL    string
	gap         time.Duration
	jitter      int
	attempts    int
	sem         chan struct{}

	lastReqMu sync.Mutex
	lastReq   time.Time
}

func NewClient(opts Options) *Client {
	if opts.ListingsURL == "" {
		opts.ListingsURL = DefaultListingsURL
	}
	if opts.QuoteURL == "" {
		opts.QuoteURL = DefaultQuoteURL
	}
	if opts.ChartURL == "" {
		opts.ChartURL = DefaultChartURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	if opts.RequestGap < 0 {
		opts.RequestGap = 0
	}
	if opts.JitterMS < 0 {
		opts.JitterMS = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxConcurrent > maxConcurrentCap {
		opts.MaxConcurrent = maxConcurrentCap
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		httpClient:  hc,
		listingsURL: opts.ListingsURL,
		quoteURL:    strings.TrimRight(opts.QuoteURL, "/"),
		chartURL:    strings.TrimRight(opts.ChartURL, "/"),
		gap:         opts.RequestGap,
		jitter:      opts.JitterMS,
		attempts:    opts.Attempts,
		sem:         make(chan struct{}, opts.MaxConcurrent),
	}
}

func (c *Client) paceRequest(ctx context.Context) {
	if c.gap <= 0 && c.jitter <= 0 {
		return
	}
	c.lastReqMu.Lock()
	elapsed := time.Since(c.lastReq)
	c.lastReqMu.Unlock()
	d := c.gap - elapsed
	if c.jitter > 0 {
		d += time.Duration(rand.Intn(c.jitter+1)) * time.Millisecond
	}
	if d > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
	c.lastReqMu.Lock()
	c.lastReq = time.Now()
	c.lastReqMu.Unlock()
}

// statusError 非 2xx 响应；4xx 中仅 429 值得重试。
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

// get 发起 GET，返回完整响应体。attempts>1 时对网络错误、5xx 与 429 重试。
// 非 2xx 时同时返回最后一次的响应体，供调用方取错误描述。
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	var lastBody []byte
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			backoff := retryDelay
			var se *statusError
			if errors.As(lastErr, &se) && se.code == http.StatusTooManyRequests {
				backoff = retryDelay429
				trace.Warn(ctx, "api: 429 限流，等待 %s 后重试", backoff)
			} else {
				trace.Debug(ctx, "api: retry %d/%d %s", attempt, c.attempts, rawURL)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		body, err := c.getOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr, lastBody = err, body
		var se *statusError
		if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	trace.Debug(ctx, "api: get fail url=%s err=%v", rawURL, lastErr)
	return lastBody, lastErr
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	c.paceRequest(ctx)
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	trace.Debug(ctx, "api: resp status=%d len=%d url=%s", resp.StatusCode, len(body), rawURL)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &statusError{code: resp.StatusCode, body: truncateForLog(body)}
	}
	return body, nil
}

func truncateForLog(b []byte) string {
	s := string(b)
	if len(b) > maxRespLogLen {
		s = s[:maxRespLogLen] + "..."
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ")
}

// ListedSymbols 下载交易所代码清单 CSV，返回 Symbol 列（保持原顺序，去空白）。
func (c *Client) ListedSymbols(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.listingsURL)
	if err != nil {
		return nil, fmt.Errorf("download listings: %w", err)
	}
	return ParseSymbolsCSV(bytes.NewReader(body))
}

// ParseSymbolsCSV 解析带表头的 CSV，取 Symbol 列。
func ParseSymbolsCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("listings header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == symbolColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("listings: column %q not found in %v", symbolColumn, header)
	}
	var out []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listings row: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if s := strings.TrimSpace(rec[col]); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Client) quoteField(ctx context.Context, symbol, field string) (model.Lookup, error) {
	if strings.TrimSpace(symbol) == "" {
		return model.Missing(), fmt.Errorf("api: empty symbol")
	}
	u := fmt.Sprintf("%s?symbols=%s", c.quoteURL, url.QueryEscape(symbol))
	body, err := c.get(ctx, u)
	if err != nil {
		return model.Missing(), err
	}
	return parseQuoteField(body, symbol, field)
}

func parseQuoteField(body []byte, symbol, field string) (model.Lookup, error) {
	if e := gjson.GetBytes(body, "quoteResponse.error"); e.Exists() && e.Type != gjson.Null {
		return model.Missing(), fmt.Errorf("api: quote %s: %s", symbol, e.Get("description").String())
	}
	results := gjson.GetBytes(body, "quoteResponse.result")
	if !results.IsArray() || len(results.Array()) == 0 {
		return model.Missing(), fmt.Errorf("%w: quote %s", ErrNoData, symbol)
	}
	item := results.Array()[0]
	for _, r := range results.Array() {
		if strings.EqualFold(r.Get("symbol").String(), symbol) {
			item = r
			break
		}
	}
	v := item.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return model.Missing(), fmt.Errorf("%w: %s.%s", ErrFieldMissing, symbol, field)
	}
	if v.Type == gjson.JSON {
		// {"raw": 123, "fmt": "123"} 形式
		v = v.Get("raw")
		if !v.Exists() {
			return model.Missing(), fmt.Errorf("%w: %s.%s", ErrFieldMissing, symbol, field)
		}
	}
	return model.Found(v.Float()), nil
}

// MarketCap 总市值
func (c *Client) MarketCap(ctx context.Context, symbol string) (model.Lookup, error) {
	return c.quoteField(ctx, symbol, fieldMarketCap)
}

// SharesOutstanding 最新流通股本
func (c *Client) SharesOutstanding(ctx context.Context, symbol string) (model.Lookup, error) {
	return c.quoteField(ctx, symbol, fieldShares)
}

// IntradayBars 当日 1 分钟 K，只保留有收盘价的点；成交量缺失按 0。
// 无数据（退市、停牌）返回 ErrNoData。
func (c *Client) IntradayBars(ctx context.Context, symbol string) ([]model.Bar, error) {
	bars, err := c.chart(ctx, symbol, intradayRange, intradayInterval)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if !b.HasClose() {
			continue
		}
		if !b.HasVolume() {
			b.Volume = 0
		}
		out = append(out, b)
	}
	return out, nil
}

// DailyBars 近一月日线，缺失值保留为 NaN，由调用方按字段跳过。
func (c *Client) DailyBars(ctx context.Context, symbol string) ([]model.Bar, error) {
	return c.chart(ctx, symbol, dailyRange, dailyInterval)
}

func (c *Client) chart(ctx context.Context, symbol, rng, interval string) ([]model.Bar, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("api: empty symbol")
	}
	u := fmt.Sprintf("%s/%s?range=%s&interval=%s", c.chartURL, url.PathEscape(symbol), rng, interval)
	body, err := c.get(ctx, u)
	if err != nil {
		var se *statusError
		// 404 且 body 带 chart.error：代码无数据（常见于已退市）
		if errors.As(err, &se) && len(body) > 0 {
			if desc := gjson.GetBytes(body, "chart.error.description"); desc.Exists() {
				if se.code == http.StatusNotFound {
					return nil, fmt.Errorf("%w: chart %s: %s", ErrNoData, symbol, desc.String())
				}
				return nil, fmt.Errorf("api: chart %s: %s", symbol, desc.String())
			}
		}
		return nil, err
	}
	return parseChartGJSON(body, symbol)
}

// parseChartGJSON 解析 chart.result[0]：timestamp 与 indicators.quote[0] 的 open/close/volume 平行数组。
// null 值记为 NaN；收盘价与成交量都为 null 的点直接丢弃。
func parseChartGJSON(body []byte, symbol string) ([]model.Bar, error) {
	if e := gjson.GetBytes(body, "chart.error"); e.Exists() && e.Type != gjson.Null {
		if e.Get("code").String() == chartNotFoundCode {
			return nil, fmt.Errorf("%w: chart %s: %s", ErrNoData, symbol, e.Get("description").String())
		}
		return nil, fmt.Errorf("api: chart %s: %s", symbol, e.Get("description").String())
	}
	res := gjson.GetBytes(body, "chart.result.0")
	if !res.Exists() {
		return nil, fmt.Errorf("%w: chart %s", ErrNoData, symbol)
	}
	ts := res.Get("timestamp").Array()
	q := res.Get("indicators.quote.0")
	opens := q.Get("open").Array()
	closes := q.Get("close").Array()
	vols := q.Get("volume").Array()
	out := make([]model.Bar, 0, len(ts))
	for i := range ts {
		b := model.Bar{
			Time:   time.Unix(ts[i].Int(), 0).UTC(),
			Open:   floatAt(opens, i),
			Close:  floatAt(closes, i),
			Volume: floatAt(vols, i),
		}
		if !b.HasClose() && !b.HasVolume() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// floatAt 越界或 null 返回 NaN
func floatAt(vals []gjson.Result, i int) float64 {
	if i >= len(vals) || vals[i].Type == gjson.Null {
		return math.NaN()
	}
	return vals[i].Float()
}
