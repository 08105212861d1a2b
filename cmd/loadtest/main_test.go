package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
	"github.com/vladislavdragonenkov/canteen/internal/service/auth"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/canteen/internal/service/grpc"
	"github.com/vladislavdragonenkov/canteen/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

// startStorefront поднимает витрину на bufconn поверх in-memory хранилища.
func startStorefront(t *testing.T) clients {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "loadtest")

	store := memory.NewStore()
	catalogSvc := catalog.NewService(store.Products(), memory.NewSettingsRepository(),
		catalog.WithLogger(entry), catalog.WithTransactor(store), catalog.WithOutbox(store.Outbox()))
	_, err := catalogSvc.Seed(context.Background(), catalog.DefaultCatalog())
	require.NoError(t, err)

	authenticator, err := auth.New("admin", "1234", "")
	require.NoError(t, err)

	server := grpc.NewServer(grpc.UnaryInterceptor(grpcsvc.AdminAuthInterceptor(authenticator, entry)))
	canteenv1.RegisterStorefrontServiceServer(server, grpcsvc.NewStorefrontService(
		catalogSvc,
		checkout.NewTransactional(store, checkout.WithLogger(entry)),
		store.Orders(),
		memory.NewCheckoutKeyRepository(),
		time.Hour,
		entry,
	))
	canteenv1.RegisterAdminServiceServer(server, grpcsvc.NewAdminService(
		catalogSvc,
		lifecycle.NewTransactional(store, lifecycle.WithLogger(entry)),
		projection.NewViews(store.Products(), store.Orders()),
		entry,
	))

	listener := bufconn.Listen(1024 * 1024)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return clients{
		storefront: canteenv1.NewStorefrontServiceClient(conn),
		admin:      canteenv1.NewAdminServiceClient(conn),
	}
}

func baseConfig() config {
	return config{
		total:         60,
		concurrency:   20,
		connections:   1,
		timeout:       5 * time.Second,
		mode:          modeCheckout,
		productID:     "p3",
		quantity:      1,
		buyerTag:      "load",
		adminUser:     "admin",
		adminPassword: "1234",
		checkStock:    true,
	}
}

func TestParseMode(t *testing.T) {
	for _, value := range []string{"checkout", " checkout-cancel ", "checkout-complete"} {
		_, err := parseMode(value)
		require.NoError(t, err, value)
	}
	_, err := parseMode("create-pay")
	require.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, modeCheckout, cfg.mode)
	require.Equal(t, 400, cfg.total)
	require.False(t, cfg.totalSet)
	require.Equal(t, "p3", cfg.productID)
	require.True(t, cfg.checkStock)

	cfg, err = parseConfig([]string{"-duration=1m", "-total=10", "-mode=checkout-cancel", "-quantity=2", "-check-stock=false"})
	require.NoError(t, err)
	require.Equal(t, time.Minute, cfg.duration)
	require.True(t, cfg.totalSet)
	require.Equal(t, modeCheckoutCancel, cfg.mode)
	require.Equal(t, int64(2), cfg.quantity)
	require.False(t, cfg.checkStock)

	invalid := [][]string{
		{"-timeout=soon"},
		{"-duration=-1s"},
		{"-total=0"},
		{"-duration=1s", "-total=0"},
		{"-concurrency=0"},
		{"-connections=0"},
		{"-timeout=0s"},
		{"-quantity=0"},
		{"-product= "},
		{"-buyer-tag="},
		{"-mode=refund"},
		{"-unknown-flag"},
	}
	for _, args := range invalid {
		_, err := parseConfig(args)
		require.Error(t, err, args)
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)

	jobs = make(chan int, 16)
	dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
	got = got[:0]
	for id := range jobs {
		got = append(got, id)
	}
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestCollectorAndReport(t *testing.T) {
	col := newCollector()
	col.record(methodScenario, 2*time.Millisecond, codes.OK)
	col.record(methodScenario, 4*time.Millisecond, codes.Unavailable)
	col.record(methodCheckout, time.Millisecond, codes.OK)
	col.record(methodCheckout, time.Millisecond, codes.FailedPrecondition)
	col.record(methodCancelOrder, time.Millisecond, codes.FailedPrecondition)
	col.recordSoldOut()
	col.recordUnits(3)
	col.recordUnits(-1)

	result := col.buildReport(time.Now(), time.Second)
	require.Equal(t, int64(2), result.TotalScenarios)
	require.Equal(t, int64(1), result.FailedScenarios)
	require.Equal(t, int64(1), result.SoldOutScenarios)
	require.InDelta(t, 0.5, result.ErrorRate, 1e-9)
	require.InDelta(t, 2.0, result.RPS, 1e-9)
	require.Equal(t, int64(2), result.Methods[methodCheckout].Success, "sold out is an expected checkout outcome")
	require.Equal(t, int64(1), result.Methods[methodCancelOrder].Failed)
	require.Equal(t, int64(2), col.soldUnits())
}

func TestUtilityFunctions(t *testing.T) {
	require.Zero(t, percentile(nil, 50))
	require.Equal(t, 7.0, percentile([]float64{7}, 99))
	require.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)
	require.Zero(t, ratio(1, 0))

	summary := buildLatencySummary([]float64{3, 1, 2})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 3.0, summary.Max)
	require.Equal(t, 2.0, summary.Avg)

	require.Equal(t, "count:5", runTarget(config{total: 5}))
	require.Equal(t, "duration:1s", runTarget(config{duration: time.Second}))
	require.Equal(t, "duration:1s,max-total:5", runTarget(config{duration: time.Second, total: 5, totalSet: true}))
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3}))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, int64(3), decoded.TotalScenarios)

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, report{
		TotalScenarios: 2,
		Methods: map[string]methodReport{
			methodScenario: {Calls: 2},
			methodCheckout: {Calls: 2, Success: 2},
		},
		Stock: &stockCheck{ProductID: "p3", InitialStock: 10, FinalStock: 8, SoldUnits: 2, Consistent: true},
	}, config{mode: modeCheckout, total: 2})

	text := out.String()
	require.Contains(t, text, "mode=checkout run=count:2 total=2")
	require.Contains(t, text, "Checkout: calls=2 success=2")
	require.NotContains(t, text, "scenario: calls")
	require.Contains(t, text, "stock p3: initial=10 final=8 sold=2 check=ok")
}

func TestExecute_NeverOversells(t *testing.T) {
	cli := startStorefront(t)

	result, err := execute(baseConfig(), []clients{cli})
	require.NoError(t, err)

	require.Equal(t, int64(60), result.TotalScenarios)
	require.Zero(t, result.FailedScenarios)
	require.Equal(t, int64(50), result.SoldOutScenarios)
	require.NotNil(t, result.Stock)
	require.True(t, result.Stock.Consistent)
	require.Equal(t, int64(10), result.Stock.InitialStock)
	require.Zero(t, result.Stock.FinalStock)
	require.Equal(t, int64(10), result.Stock.SoldUnits)
}

func TestExecute_CancelRestoresStock(t *testing.T) {
	cli := startStorefront(t)

	cfg := baseConfig()
	cfg.mode = modeCheckoutCancel
	cfg.total = 30
	cfg.quantity = 3

	result, err := execute(cfg, []clients{cli})
	require.NoError(t, err)
	require.Zero(t, result.FailedScenarios)
	require.True(t, result.Stock.Consistent)
	require.Equal(t, result.Stock.InitialStock, result.Stock.FinalStock)
	require.Positive(t, result.Methods[methodCancelOrder].Success)
}

func TestExecute_WrongAdminPassword(t *testing.T) {
	cli := startStorefront(t)

	cfg := baseConfig()
	cfg.adminPassword = "wrong"
	_, err := execute(cfg, []clients{cli})
	require.ErrorContains(t, err, "read initial stock")
}

func TestRun_InvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run([]string{"-mode=nope"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "invalid config")
}
