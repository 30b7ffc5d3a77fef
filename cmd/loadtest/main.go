// Команда loadtest гоняет сценарии покупателя против HTTP API витрины и печатает
// сводку по шагам: коды ответов, долю ошибок и перцентили задержек.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const transportErrorCode = "transport_error"

// loadMode задаёт глубину сценария: каждый следующий режим включает шаги предыдущего.
type loadMode string

const (
	modeBrowse   loadMode = "browse"
	modeCart     loadMode = "cart"
	modeCheckout loadMode = "checkout"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	itemID        int64
	size          string
	quantity      int
	paymentMethod domain.PaymentMethod
	clientTag     string
	outputPath    string
}

// exhausted сообщает, что сценарий с номером i запускать уже не нужно.
// В режиме по времени -total ограничивает прогон, только если задан явно.
func (c config) exhausted(i int) bool {
	if c.duration > 0 && !c.totalSet {
		return false
	}
	return i >= c.total
}

// target описывает границу прогона для сводки.
func (c config) target() string {
	switch {
	case c.duration <= 0:
		return fmt.Sprintf("count:%d", c.total)
	case c.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", c.duration, c.total)
	default:
		return fmt.Sprintf("duration:%s", c.duration)
	}
}

func (c config) validate() error {
	checks := []struct {
		failed bool
		msg    string
	}{
		{c.addr == "", "addr is required"},
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 when duration is not set"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when explicitly set with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.connections <= 0, "connections must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.itemID <= 0, "item-id must be > 0"},
		{c.quantity <= 0, "quantity must be > 0"},
		{c.mode != modeBrowse && c.size == "", "size is required for cart scenarios"},
		{strings.TrimSpace(c.clientTag) == "", "client-tag is required"},
	}
	for _, check := range checks {
		if check.failed {
			return errors.New(check.msg)
		}
	}
	if !c.paymentMethod.Valid() {
		return fmt.Errorf("unsupported payment method: %s", c.paymentMethod)
	}
	return nil
}

func parseConfig(args []string) (config, error) {
	var (
		cfg          config
		mode, method string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "storefront base URL")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration only a cap when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "scenarios in flight")
	fs.IntVar(&cfg.connections, "connections", 20, "max idle keep-alive connections to the storefront")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeBrowse), "load mode: browse | cart | checkout")
	fs.Int64Var(&cfg.itemID, "item-id", 1, "catalog item id used by scenarios")
	fs.StringVar(&cfg.size, "size", "M", "size added to the cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity added to the cart")
	fs.StringVar(&method, "payment-method", string(domain.PaymentMethodCard), "payment method for checkout")
	fs.StringVar(&cfg.clientTag, "client-tag", "load", "client id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	parsed, err := parseMode(mode)
	if err != nil {
		return config{}, err
	}
	cfg.mode = parsed
	cfg.addr = strings.TrimRight(strings.TrimSpace(cfg.addr), "/")
	cfg.size = strings.ToUpper(strings.TrimSpace(cfg.size))
	cfg.paymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(method)))

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case modeBrowse, modeCart, modeCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result := run(ctx, cfg, newHTTPClient(cfg))
	stop()

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func newHTTPClient(cfg config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.connections
	transport.MaxIdleConnsPerHost = cfg.connections
	return &http.Client{Transport: transport, Timeout: cfg.timeout}
}

// run запускает сценарии, держа в полёте не больше cfg.concurrency одновременно.
// Отмена ctx или истечение -duration прекращает запуск новых сценариев;
// начатые доигрываются.
func run(ctx context.Context, cfg config, client *http.Client) report {
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	startedAt := time.Now()
	s := &shopper{cfg: cfg, client: client, rec: newRecorder(), runID: uuid.NewString()}

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i := 0; !cfg.exhausted(i) && ctx.Err() == nil; i++ {
		g.Go(func() error {
			s.scenario(i)
			return nil
		})
	}
	_ = g.Wait()

	return s.rec.report(startedAt, time.Since(startedAt))
}

// shopper проходит сценарий от имени отдельного анонимного покупателя.
type shopper struct {
	cfg    config
	client *http.Client
	rec    *recorder
	runID  string
}

type step struct {
	name    string
	method  string
	path    string
	body    any
	headers map[string]string
}

func (s *shopper) steps(index int) []step {
	steps := []step{
		{name: "ListProducts", method: http.MethodGet, path: "/api/products"},
		{name: "GetProduct", method: http.MethodGet, path: "/api/products/" + strconv.FormatInt(s.cfg.itemID, 10)},
	}
	if s.cfg.mode == modeBrowse {
		return steps
	}

	steps = append(steps, step{
		name:   "AddItem",
		method: http.MethodPost,
		path:   "/api/cart/items",
		body:   httpapi.AddItemRequest{ItemID: s.cfg.itemID, Size: s.cfg.size, Quantity: &s.cfg.quantity},
	})
	if s.cfg.mode == modeCart {
		return steps
	}

	return append(steps, step{
		name:   "Checkout",
		method: http.MethodPost,
		path:   "/api/checkout",
		body: httpapi.CheckoutRequest{
			Shipping: domain.ShippingInfo{Address: "Av. Carga 123", Region: "Metropolitana", Commune: "Santiago"},
			Contact: domain.ContactInfo{
				Name:  "Load " + strconv.Itoa(index),
				Email: fmt.Sprintf("load+%d@example.com", index),
				Phone: "+56900000000",
			},
			PaymentMethod: s.cfg.paymentMethod,
		},
		headers: map[string]string{idempotency.HeaderKey: fmt.Sprintf("lt-checkout-%s-%d", s.runID, index)},
	})
}

// scenario проходит шаги по порядку и останавливается на первом неудачном.
func (s *shopper) scenario(index int) {
	start := time.Now()
	clientID := fmt.Sprintf("%s-%s-%d", s.cfg.clientTag, s.runID, index)

	ok := true
	for _, st := range s.steps(index) {
		if err := s.call(clientID, st); err != nil {
			ok = false
			break
		}
	}

	code := "ok"
	if !ok {
		code = "failed"
	}
	s.rec.observe(scenarioStep, time.Since(start), code, ok)
}

func (s *shopper) call(clientID string, st step) error {
	var body io.Reader
	if st.body != nil {
		raw, err := json.Marshal(st.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", st.name, err)
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, st.method, s.cfg.addr+st.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", st.name, err)
	}
	req.Header.Set(httpapi.HeaderClientID, clientID)
	if st.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range st.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.rec.observe(st.name, time.Since(start), transportErrorCode, false)
		return fmt.Errorf("%s: %w", st.name, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	s.rec.observe(st.name, time.Since(start), strconv.Itoa(resp.StatusCode), ok)
	if !ok {
		return fmt.Errorf("%s: unexpected status %d", st.name, resp.StatusCode)
	}
	return nil
}
