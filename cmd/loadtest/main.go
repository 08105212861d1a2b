// Команда loadtest нагружает витрину конкурентными оформлениями одного товара
// и сверяет остаток: распродажа не должна уходить в минус или терять единицы.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/cart"
	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const (
	methodScenario      = "scenario"
	methodListProducts  = "ListProducts"
	methodCheckout      = "Checkout"
	methodCancelOrder   = "CancelOrder"
	methodMarkCompleted = "MarkCompleted"
)

type loadMode string

const (
	modeCheckout         loadMode = "checkout"
	modeCheckoutCancel   loadMode = "checkout-cancel"
	modeCheckoutComplete loadMode = "checkout-complete"
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
	productID     string
	quantity      int64
	buyerTag      string
	adminUser     string
	adminPassword string
	checkStock    bool
	outputPath    string
}

type clients struct {
	storefront canteenv1.StorefrontServiceClient
	admin      canteenv1.AdminServiceClient
}

func parseConfig(args []string) (config, error) {
	var (
		cfg           config
		modeValue     string
		timeoutValue  string
		durationValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent buyers")
	fs.IntVar(&cfg.connections, "connections", 10, "number of gRPC client connections")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-cancel | checkout-complete")
	fs.StringVar(&cfg.productID, "product", "p3", "product every buyer tries to purchase")
	fs.Int64Var(&cfg.quantity, "quantity", 1, "units per checkout")
	fs.StringVar(&cfg.buyerTag, "buyer-tag", "load", "buyer name prefix")
	fs.StringVar(&cfg.adminUser, "admin-user", "admin", "admin user for stock checks and order actions")
	fs.StringVar(&cfg.adminPassword, "admin-password", "1234", "admin password")
	fs.BoolVar(&cfg.checkStock, "check-stock", true, "compare stock before and after the run (requires no other traffic)")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

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

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product is required")
	case strings.TrimSpace(cfg.buyerTag) == "":
		return cfg, errors.New("buyer-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCheckout, modeCheckoutCancel, modeCheckoutComplete:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 1
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	pool := make([]clients, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(stderr, "failed to create grpc client connection: %v\n", dialErr)
			return 1
		}
		conns = append(conns, conn)
		pool = append(pool, clients{
			storefront: canteenv1.NewStorefrontServiceClient(conn),
			admin:      canteenv1.NewAdminServiceClient(conn),
		})
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := execute(cfg, pool)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load test failed: %v\n", err)
		return 1
	}

	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return 1
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && !result.Stock.Consistent) {
		return 1
	}
	return 0
}

// execute прогоняет сценарии на пуле клиентов и сверяет остаток.
func execute(cfg config, pool []clients) (report, error) {
	if len(pool) == 0 {
		return report{}, errors.New("no clients")
	}

	var initialStock int64
	if cfg.checkStock {
		stock, err := readStock(pool[0].admin, cfg)
		if err != nil {
			return report{}, fmt.Errorf("read initial stock: %w", err)
		}
		initialStock = stock
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli clients) {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(cli, cfg, id, runID, col)
			}
		}(pool[workerID%len(pool)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if cfg.checkStock {
		finalStock, err := readStock(pool[0].admin, cfg)
		if err != nil {
			return result, fmt.Errorf("read final stock: %w", err)
		}
		sold := col.soldUnits()
		result.Stock = &stockCheck{
			ProductID:    cfg.productID,
			InitialStock: initialStock,
			FinalStock:   finalStock,
			SoldUnits:    sold,
			Consistent:   finalStock >= 0 && initialStock-finalStock == sold,
		}
	}
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

// runScenario повторяет путь покупателя: витрина, корзина, оформление и, по режиму,
// действие администратора над заказом.
func runScenario(cli clients, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(methodScenario, time.Since(scenarioStart), scenarioCode)
	}()

	stock, err := visibleStock(cli.storefront, cfg, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	shoppingCart := cart.New()
	if err := shoppingCart.Add(cfg.productID, cfg.quantity, stock); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			col.recordSoldOut()
			return nil
		}
		scenarioCode = codes.Internal
		return err
	}

	order, err := callCheckout(cli.storefront, cfg, shoppingCart, index, runID, col)
	if status.Code(err) == codes.FailedPrecondition {
		col.recordSoldOut()
		return nil
	}
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}
	if order == nil || order.ID == "" {
		scenarioCode = codes.Internal
		return errors.New("checkout returned empty order id")
	}
	col.recordUnits(cfg.quantity)

	switch cfg.mode {
	case modeCheckoutCancel:
		if err := callOrderAction(cli.admin.CancelOrder, methodCancelOrder, cfg, order.ID, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
		col.recordUnits(-cfg.quantity)
	case modeCheckoutComplete:
		if err := callOrderAction(cli.admin.MarkCompleted, methodMarkCompleted, cfg, order.ID, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}
	return nil
}

func visibleStock(client canteenv1.StorefrontServiceClient, cfg config, col *collector) (int64, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	resp, err := client.ListProducts(ctx, &canteenv1.ListProductsRequest{})
	col.record(methodListProducts, time.Since(start), grpcCode(err))
	if err != nil {
		return 0, err
	}
	for _, p := range resp.Products {
		if p != nil && p.ID == cfg.productID {
			return p.Stock, nil
		}
	}
	return 0, status.Errorf(codes.NotFound, "product %s is not in the catalog", cfg.productID)
}

func callCheckout(
	client canteenv1.StorefrontServiceClient,
	cfg config,
	shoppingCart *cart.Cart,
	index int,
	runID string,
	col *collector,
) (*canteenv1.Order, error) {
	lines := make([]*canteenv1.CartLine, 0, shoppingCart.Len())
	for _, line := range shoppingCart.Lines() {
		lines = append(lines, &canteenv1.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	ctx = canteenv1.WithIdempotencyKey(ctx, fmt.Sprintf("lt-checkout-%s-%d", runID, index))

	resp, err := client.Checkout(ctx, &canteenv1.CheckoutRequest{
		Buyer: &canteenv1.Buyer{
			Name:    fmt.Sprintf("%s-%d", cfg.buyerTag, index),
			Contact: fmt.Sprintf("load-%s-%d", runID, index),
		},
		Lines: lines,
	})
	col.record(methodCheckout, time.Since(start), grpcCode(err))
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

type orderAction func(ctx context.Context, in *canteenv1.OrderActionRequest, opts ...grpc.CallOption) (*canteenv1.OrderActionResponse, error)

func callOrderAction(action orderAction, method string, cfg config, orderID string, col *collector) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	ctx = canteenv1.WithBasicAuth(ctx, cfg.adminUser, cfg.adminPassword)

	_, err := action(ctx, &canteenv1.OrderActionRequest{OrderID: orderID})
	col.record(method, time.Since(start), grpcCode(err))
	return err
}

func readStock(client canteenv1.AdminServiceClient, cfg config) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	ctx = canteenv1.WithBasicAuth(ctx, cfg.adminUser, cfg.adminPassword)

	stats, err := client.GetStats(ctx, &canteenv1.GetStatsRequest{})
	if err != nil {
		return 0, err
	}
	stock, ok := stats.Stock[cfg.productID]
	if !ok {
		return 0, fmt.Errorf("product %s is not in the catalog", cfg.productID)
	}
	return stock, nil
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
