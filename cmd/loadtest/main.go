package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerActor          = "X-Actor"
	loadActor            = "loadtest"
	paymentMethodID      = int64(1)
)

type loadMode string

const (
	// modeAllocate нагружает только счётчик серии.
	modeAllocate loadMode = "allocate"
	// modeInvoice проводит заказ до PAID и выдаёт по нему документ.
	modeInvoice loadMode = "invoice"
)

type config struct {
	baseURL      string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	timeout      time.Duration
	mode         loadMode
	documentType string
	seriesCode   string
	currency     string
	amount       decimal.Decimal
	customerTag  string
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// numberReport - проверка выданных номеров: без повторов и без дыр после baseline.
type numberReport struct {
	Series      string  `json:"series"`
	Baseline    int64   `json:"baseline"`
	Issued      int     `json:"issued"`
	Duplicates  []int64 `json:"duplicates,omitempty"`
	Missing     []int64 `json:"missing,omitempty"`
	Consecutive bool    `json:"consecutive"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Numbers           numberReport            `json:"numbers"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
	numbers []int64
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if status >= 200 && status < 300 {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[statusLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) recordNumber(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numbers = append(c.numbers, n)
}

func (c *collector) issuedNumbers() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.numbers...)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func parseConfig(args []string) (config, error) {
	var (
		cfg           config
		modeValue     string
		amountValue   string
		durationValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "billing REST API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeAllocate), "load mode: allocate | invoice")
	fs.StringVar(&cfg.documentType, "document-type", "BILL", "series document type: BILL | INVOICE")
	fs.StringVar(&cfg.seriesCode, "series", "LT01", "series code used by the run")
	fs.StringVar(&cfg.currency, "currency", "PEN", "order currency")
	fs.StringVar(&amountValue, "amount", "100.00", "order item unit price")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	amount, err := decimal.NewFromString(strings.TrimSpace(amountValue))
	if err != nil {
		return cfg, fmt.Errorf("parse amount: %w", err)
	}
	cfg.amount = amount

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.documentType = strings.ToUpper(strings.TrimSpace(cfg.documentType))
	cfg.seriesCode = strings.ToUpper(strings.TrimSpace(cfg.seriesCode))

	if cfg.baseURL == "" {
		return cfg, errors.New("addr is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if !cfg.amount.IsPositive() {
		return cfg, errors.New("amount must be > 0")
	}
	if cfg.documentType != "BILL" && cfg.documentType != "INVOICE" {
		return cfg, fmt.Errorf("unsupported document-type: %s", cfg.documentType)
	}
	if cfg.seriesCode == "" {
		return cfg, errors.New("series is required")
	}
	if strings.TrimSpace(cfg.currency) == "" {
		return cfg, errors.New("currency is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeAllocate:
		return modeAllocate, nil
	case modeInvoice:
		return modeInvoice, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := runLoad(context.Background(), cfg, newAPIClient(cfg.baseURL, cfg.concurrency))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !result.Numbers.Consecutive || len(result.Numbers.Duplicates) > 0 {
		os.Exit(1)
	}
}

// runLoad готовит серию, прогоняет сценарии и сверяет выданные номера.
func runLoad(ctx context.Context, cfg config, client *apiClient) (report, error) {
	series, err := ensureSeries(ctx, client, cfg)
	if err != nil {
		return report{}, fmt.Errorf("prepare series %s/%s: %w", cfg.documentType, cfg.seriesCode, err)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(ctx, client, cfg, series.ID, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	result.Numbers = verifyNumbers(cfg.documentType+"/"+cfg.seriesCode, series.CurrentNumber, col.issuedNumbers())
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	ctx context.Context,
	client *apiClient,
	cfg config,
	seriesID int64,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus)
	}()

	var (
		number int64
		err    error
	)
	switch cfg.mode {
	case modeInvoice:
		number, err = invoiceScenario(ctx, client, cfg, seriesID, index, runID, col)
	default:
		number, err = allocateScenario(ctx, client, cfg, col)
	}
	if err != nil {
		scenarioStatus = errorStatus(err)
		return err
	}
	col.recordNumber(number)
	return nil
}

func allocateScenario(ctx context.Context, client *apiClient, cfg config, col *collector) (int64, error) {
	var resp allocateResponse
	err := client.call(ctx, col, "Allocate", cfg.timeout, http.MethodPost, "/internal/document-series/allocate", "",
		map[string]string{"documentType": cfg.documentType, "code": cfg.seriesCode}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Number, nil
}

func invoiceScenario(
	ctx context.Context,
	client *apiClient,
	cfg config,
	seriesID int64,
	index int,
	runID string,
	col *collector,
) (int64, error) {
	keyPrefix := fmt.Sprintf("lt-%s-%d", runID, index)

	var order orderResponse
	err := client.call(ctx, col, "CreateOrder", cfg.timeout, http.MethodPost, "/api/v1/orders", keyPrefix+"-create",
		map[string]any{
			"orderNumber":  fmt.Sprintf("LT-%s-%d", runID, index),
			"customerId":   fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
			"customerName": "Load Test",
			"currency":     cfg.currency,
			"items": []map[string]any{{
				"variantId": "LT-VARIANT",
				"quantity":  1,
				"unitPrice": cfg.amount,
			}},
			"shippingAddress": map[string]string{"line1": "Av. Carga 1", "city": "Lima", "country": "PE"},
			"shippingCost":    decimal.Zero,
		}, &order)
	if err != nil {
		return 0, err
	}
	orderPath := fmt.Sprintf("/api/v1/orders/%d", order.ID)

	if err := client.call(ctx, col, "Transition", cfg.timeout, http.MethodPost, orderPath+"/transition", keyPrefix+"-await",
		map[string]string{"status": "AWAIT_PAYMENT"}, nil); err != nil {
		return 0, err
	}
	if err := client.call(ctx, col, "RecordPayment", cfg.timeout, http.MethodPost, orderPath+"/payments", keyPrefix+"-pay",
		map[string]any{"paymentMethodId": paymentMethodID, "amount": order.Total, "transactionId": keyPrefix}, nil); err != nil {
		return 0, err
	}
	if err := client.call(ctx, col, "Transition", cfg.timeout, http.MethodPost, orderPath+"/transition", keyPrefix+"-paid",
		map[string]string{"status": "PAID"}, nil); err != nil {
		return 0, err
	}

	var invoice invoiceResponse
	if err := client.call(ctx, col, "IssueInvoice", cfg.timeout, http.MethodPost, "/api/v1/invoices", keyPrefix+"-invoice",
		map[string]any{
			"orderId":       order.ID,
			"invoiceType":   cfg.documentType,
			"seriesId":      seriesID,
			"receiverTaxId": "20100000001",
			"receiverName":  "Load Test SAC",
			"subtotal":      order.Total,
			"taxAmount":     "0.00",
			"totalAmount":   order.Total,
		}, &invoice); err != nil {
		return 0, err
	}

	number, err := strconv.ParseInt(invoice.Number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse invoice number %q: %w", invoice.Number, err)
	}
	return number, nil
}

// ensureSeries создаёт серию или берёт существующую; её текущий номер служит baseline.
func ensureSeries(ctx context.Context, client *apiClient, cfg config) (seriesResponse, error) {
	var created seriesResponse
	err := client.do(ctx, cfg.timeout, http.MethodPost, "/api/v1/document-series", "",
		map[string]string{"documentType": cfg.documentType, "code": cfg.seriesCode}, &created)
	if err == nil {
		return created, nil
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		return seriesResponse{}, err
	}

	var list []seriesResponse
	if err := client.do(ctx, cfg.timeout, http.MethodGet, "/api/v1/document-series", "", nil, &list); err != nil {
		return seriesResponse{}, err
	}
	for _, s := range list {
		if s.DocumentType == cfg.documentType && s.Code == cfg.seriesCode {
			if !s.IsActive {
				return seriesResponse{}, fmt.Errorf("series %s/%s is inactive", s.DocumentType, s.Code)
			}
			return s, nil
		}
	}
	return seriesResponse{}, fmt.Errorf("series %s/%s not found after conflict", cfg.documentType, cfg.seriesCode)
}

// verifyNumbers проверяет, что номера уникальны и идут подряд начиная с baseline+1.
func verifyNumbers(series string, baseline int64, numbers []int64) numberReport {
	result := numberReport{Series: series, Baseline: baseline, Issued: len(numbers)}

	sorted := append([]int64(nil), numbers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	seen := make(map[int64]struct{}, len(sorted))
	for _, n := range sorted {
		if _, ok := seen[n]; ok {
			result.Duplicates = append(result.Duplicates, n)
			continue
		}
		seen[n] = struct{}{}
	}

	if len(sorted) > 0 {
		for n := baseline + 1; n <= sorted[len(sorted)-1]; n++ {
			if _, ok := seen[n]; !ok {
				result.Missing = append(result.Missing, n)
			}
		}
	}
	result.Consecutive = len(result.Duplicates) == 0 && len(result.Missing) == 0
	return result
}

type seriesResponse struct {
	ID            int64  `json:"id"`
	DocumentType  string `json:"documentType"`
	Code          string `json:"code"`
	CurrentNumber int64  `json:"currentNumber"`
	IsActive      bool   `json:"isActive"`
}

type allocateResponse struct {
	Number    int64  `json:"number"`
	Formatted string `json:"formatted"`
}

type orderResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Total  string `json:"total"`
}

type invoiceResponse struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

// apiError - ответ API со статусом вне 2xx.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func errorStatus(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, maxConns int) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = maxConns
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
	}
}

// call выполняет запрос и записывает латентность под именем method.
func (c *apiClient) call(ctx context.Context, col *collector, method string, timeout time.Duration, httpMethod, path, key string, body, out any) error {
	start := time.Now()
	err := c.do(ctx, timeout, httpMethod, path, key, body, out)
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
	}
	col.record(method, time.Since(start), status)
	return err
}

func (c *apiClient) do(ctx context.Context, timeout time.Duration, method, path, key string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerActor, loadActor)
	if key != "" {
		req.Header.Set(headerIdempotencyKey, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)
	_, _ = fmt.Fprintf(w, "series=%s baseline=%d issued=%d duplicates=%d missing=%d consecutive=%t\n",
		result.Numbers.Series,
		result.Numbers.Baseline,
		result.Numbers.Issued,
		len(result.Numbers.Duplicates),
		len(result.Numbers.Missing),
		result.Numbers.Consecutive,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
