package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/service/auth"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	hub    *projection.Hub
	server *Server
	http   *httptest.Server
}

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "http-test")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	store := memory.NewStore()

	catalogSvc := catalog.NewService(store.Products(), memory.NewSettingsRepository(), catalog.WithLogger(logger))
	_, err := catalogSvc.Seed(context.Background(), catalog.DefaultCatalog())
	require.NoError(t, err)

	authenticator, err := auth.New("admin", "1234", "")
	require.NoError(t, err)

	views := projection.NewViews(store.Products(), store.Orders())
	hub := projection.NewHub(views, projection.WithLogger(logger), projection.WithRefreshInterval(time.Hour))

	health := healthcheck.NewHandler("test")
	health.RegisterChecker("storage", healthcheck.NewChecker("storage", func(context.Context) error { return nil }))

	server := NewServer(Config{
		Catalog: catalogSvc,
		Views:   views,
		Hub:     hub,
		Health:  health,
		Auth:    authenticator,
		Logger:  logger,
	})
	return &fixture{store: store, hub: hub, server: server, http: httptest.NewServer(server.Router())}
}

func (f *fixture) get(t *testing.T, path string, withAdmin bool) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.http.URL+path, nil)
	require.NoError(t, err)
	if withAdmin {
		req.SetBasicAuth("admin", "1234")
	}
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func placeOrder(t *testing.T, store *memory.Store, id string, status domain.OrderStatus) {
	t.Helper()
	now := time.Now().UTC()
	items := []domain.OrderItem{{ProductID: "p1", Name: "Pandesal (3pcs)", UnitPriceMinor: 1500, Quantity: 2}}
	require.NoError(t, store.Orders().Create(context.Background(), domain.Order{
		ID:         id,
		Buyer:      domain.Buyer{Name: "Lito", Contact: "0917", PaymentMethod: domain.PaymentMethodGCash},
		Items:      items,
		TotalMinor: domain.ItemsTotal(items),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestProducts(t *testing.T) {
	f := newFixture(t)
	defer f.http.Close()

	resp, body := f.get(t, "/api/v1/products?q=tea", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Products []productView `json:"products"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Products, 1)
	require.Equal(t, "p2", list.Products[0].ID)
	require.Equal(t, int64(20), list.Products[0].Stock)

	resp, body = f.get(t, "/api/v1/products/p3", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var product productView
	require.NoError(t, json.Unmarshal(body, &product))
	require.Equal(t, "Beef Burger", product.Name)

	resp, body = f.get(t, "/api/v1/products/missing", false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr errorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	require.Equal(t, "not_found", apiErr.Error)
}

func TestAdminRoutesRequireCredentials(t *testing.T) {
	f := newFixture(t)
	defer f.http.Close()

	resp, _ := f.get(t, "/api/v1/stats", false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/api/v1/orders", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	wrong, err := f.http.Client().Do(req)
	require.NoError(t, err)
	_ = wrong.Body.Close()
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
}

func TestOrdersAndStats(t *testing.T) {
	f := newFixture(t)
	defer f.http.Close()

	placeOrder(t, f.store, "o-pending", domain.OrderStatusPending)
	placeOrder(t, f.store, "o-done", domain.OrderStatusCompleted)
	placeOrder(t, f.store, "o-draft", domain.OrderStatusProvisional)

	resp, body := f.get(t, "/api/v1/orders", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Orders []orderView `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Orders, 2)

	resp, body = f.get(t, "/api/v1/orders?status=Completed", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Orders, 1)
	require.Equal(t, "o-done", list.Orders[0].ID)

	resp, _ = f.get(t, "/api/v1/orders?status=provisional", true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.get(t, "/api/v1/stats", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap projection.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Equal(t, int64(3000), snap.RevenueMinor)
	require.Equal(t, int64(3000), snap.PendingMinor)
	require.Equal(t, 1, snap.OrderCounts[domain.OrderStatusPending])
}

func TestServiceEndpoints(t *testing.T) {
	f := newFixture(t)
	defer f.http.Close()

	resp, body := f.get(t, "/healthz", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"storage"`)

	resp, body = f.get(t, "/readyz", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ready", string(body))

	resp, _ = f.get(t, "/livez", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.get(t, "/metrics", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "go_goroutines")
}

func TestProjectionStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	require.NoError(t, f.hub.Start(context.Background()))

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/projections"
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:1234")))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap projection.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Products, 4)

	_, err = f.store.Products().ApplyStockDelta(context.Background(), "p4", -5)
	require.NoError(t, err)
	f.hub.Invalidate()

	require.Eventually(t, func() bool {
		var next projection.Snapshot
		if err := conn.ReadJSON(&next); err != nil {
			return false
		}
		for _, p := range next.Products {
			if p.ID == "p4" {
				return p.Stock == 10
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	f.hub.Stop()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.server.Wait(ctx))
	f.http.Close()
}
