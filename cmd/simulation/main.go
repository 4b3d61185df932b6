// Command simulation drives complete exchange lifecycles against a
// running API server: supplier registration, exchange creation, the
// budget/invoice/destination flow, a compensation path and finalization.
// It reports per-route latency statistics at the end.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minExchanges  = 10
	maxExchanges  = 60
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var itemCodes = []string{"PRT-1001", "PRT-1002", "PRT-2040", "PRT-3310", "PRT-4155"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median, 95th and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the exchange API
type simulationClient struct {
	baseURL string
	client  *http.Client
	mu      sync.Mutex
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"supplier":  {name: "Create Supplier"},
			"create":    {name: "Create Exchange"},
			"budget":    {name: "Budget Flow"},
			"invoice":   {name: "Invoice Flow"},
			"destiny":   {name: "Destination Flow"},
			"comp":      {name: "Compensation Flow"},
			"finalize":  {name: "Finalize"},
			"dashboard": {name: "Dashboard"},
		},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one request, records its latency under statKey and
// decodes the response data into out when non-nil.
func (sc *simulationClient) call(statKey, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)

	sc.mu.Lock()
	stats := sc.stats[statKey]
	stats.addDuration(elapsed)
	if err != nil || resp.StatusCode >= 400 {
		stats.failures++
	}
	sc.mu.Unlock()

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

type createdResource struct {
	SupplierID string `json:"supplier_id"`
	ExchangeID string `json:"exchange_id"`
}

// runLifecycle pushes one exchange from creation to resolution.
func (sc *simulationClient) runLifecycle(workerID, seq int, supplierID string) error {
	logger := log.With().Int("worker", workerID).Int("seq", seq).Logger()

	budgetTotal := fmt.Sprintf("%d.00", 50+rand.Intn(950))

	var created createdResource
	err := sc.call("create", http.MethodPost, "/api/v1/exchanges", map[string]interface{}{
		"supplier_id": supplierID,
		"items": []map[string]interface{}{
			{
				"item_code":   itemCodes[rand.Intn(len(itemCodes))],
				"description": "defective unit",
				"quantity":    1 + rand.Intn(5),
				"unit_value":  fmt.Sprintf("%d.50", 10+rand.Intn(90)),
			},
		},
		"budget": map[string]interface{}{
			"total_value":      budgetTotal,
			"sent_to_supplier": true,
		},
	}, &created)
	if err != nil {
		return fmt.Errorf("create exchange: %w", err)
	}

	base := "/api/v1/exchanges/" + created.ExchangeID

	if err := sc.call("budget", http.MethodPost, base+"/budget/approve", nil, nil); err != nil {
		return fmt.Errorf("approve budget: %w", err)
	}

	if err := sc.call("invoice", http.MethodPost, base+"/draft-invoice", map[string]string{
		"draft_number": fmt.Sprintf("DRAFT-%d-%d", workerID, seq),
	}, nil); err != nil {
		return fmt.Errorf("create draft invoice: %w", err)
	}
	if err := sc.call("invoice", http.MethodPost, base+"/draft-invoice/approve", nil, nil); err != nil {
		return fmt.Errorf("approve draft invoice: %w", err)
	}
	if err := sc.call("invoice", http.MethodPost, base+"/return-invoice", map[string]interface{}{
		"invoice_number": fmt.Sprintf("NF-%d-%d", workerID, seq),
		"invoice_value":  budgetTotal,
	}, nil); err != nil {
		return fmt.Errorf("issue return invoice: %w", err)
	}

	if err := sc.call("destiny", http.MethodPost, base+"/disposition/collect", nil, nil); err != nil {
		return fmt.Errorf("set destination: %w", err)
	}
	if err := sc.call("destiny", http.MethodPost, base+"/disposition/collected", nil, nil); err != nil {
		return fmt.Errorf("mark collected: %w", err)
	}

	// Alternate compensation paths
	if seq%2 == 0 {
		if err := sc.call("comp", http.MethodPost, base+"/restock", map[string]interface{}{
			"agreed_value":     budgetTotal,
			"received_value":   budgetTotal,
			"incoming_invoice": fmt.Sprintf("IN-%d-%d", workerID, seq),
		}, nil); err != nil {
			return fmt.Errorf("register restock: %w", err)
		}
	} else {
		if err := sc.call("comp", http.MethodPost, base+"/discount", map[string]interface{}{
			"discount_value": budgetTotal,
		}, nil); err != nil {
			return fmt.Errorf("register discount: %w", err)
		}
		if err := sc.call("comp", http.MethodPost, base+"/discount/apply", nil, nil); err != nil {
			return fmt.Errorf("apply discount: %w", err)
		}
	}

	if err := sc.call("finalize", http.MethodPost, base+"/finalize", nil, nil); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	logger.Debug().Str("exchange_id", created.ExchangeID).Msg("lifecycle completed")
	return nil
}

func main() {
	sc := newSimulationClient()

	var supplier createdResource
	err := sc.call("supplier", http.MethodPost, "/api/v1/suppliers", map[string]string{
		"name":    fmt.Sprintf("Simulation Supplier %d", time.Now().Unix()),
		"email":   "sim@example.com",
		"contact": "Simulation",
	}, &supplier)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create supplier")
	}

	total := minExchanges + rand.Intn(maxExchanges-minExchanges+1)
	log.Info().
		Int("exchanges", total).
		Int("workers", numWorkers).
		Str("supplier_id", supplier.SupplierID).
		Msg("starting simulation")

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for seq := range jobs {
				if err := sc.runLifecycle(workerID, seq, supplier.SupplierID); err != nil {
					log.Error().Err(err).Int("worker", workerID).Int("seq", seq).Msg("lifecycle failed")
				}
			}
		}(w)
	}

	start := time.Now()
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Hit the dashboard rollups once at the end
	if err := sc.call("dashboard", http.MethodGet, "/api/v1/dashboard/stats", nil, nil); err != nil {
		log.Error().Err(err).Msg("dashboard stats failed")
	}
	if err := sc.call("dashboard", http.MethodGet, "/api/v1/dashboard/financial-stats", nil, nil); err != nil {
		log.Error().Err(err).Msg("financial stats failed")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("simulation finished")

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		log.Info().
			Str("route", stats.name).
			Int("calls", stats.totalCalls).
			Int("failures", stats.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Dur("p99", p99).
			Msg("route statistics")
	}
}
