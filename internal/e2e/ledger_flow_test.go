package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/testing/fixture"
)

// LedgerFlowSuite drives a full period over HTTP: open, receive, transfer, issue, reconcile, close.
type LedgerFlowSuite struct {
	suite.Suite
	world  *fixture.World
	router http.Handler
}

func TestLedgerFlowSuite(t *testing.T) {
	suite.Run(t, new(LedgerFlowSuite))
}

func (s *LedgerFlowSuite) SetupTest() {
	s.world = fixture.New(s.T())
	s.router = app.NewRouter(app.RouterParams{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:   &app.Config{AppEnv: "test", RateLimitPerMinute: 10000, AppRequestTimeout: 5 * time.Second},
		Services: s.world.Services,
	})
}

func (s *LedgerFlowSuite) do(actor shared.Actor, method, path string, body any) (int, map[string]any) {
	s.T().Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor.Valid() {
		req.Header.Set(app.HeaderActorID, strconv.FormatInt(actor.ID, 10))
		req.Header.Set(app.HeaderActorRole, actor.Role)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func id(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func (s *LedgerFlowSuite) openPeriod() int64 {
	start, end := fixture.MonthOf(fixture.Today())
	code, p := s.do(fixture.Admin, http.MethodPost, "/periods", map[string]string{
		"name": "flow", "start_date": start.Format(time.DateOnly), "end_date": end.Format(time.DateOnly),
	})
	s.Require().Equal(http.StatusCreated, code)
	periodID := id(p["id"])

	code, body := s.do(fixture.Admin, http.MethodPost, fmt.Sprintf("/periods/%d/open", periodID), nil)
	s.Require().Equal(http.StatusConflict, code)
	s.Require().Equal(shared.CodePricesIncomplete, body["code"])

	for _, item := range []int64{fixture.Flour, fixture.Sugar, fixture.Oil} {
		s.world.Store.Catalog().SetPrice(periodID, item, fixture.D("2"))
	}
	code, body = s.do(fixture.Admin, http.MethodPost, fmt.Sprintf("/periods/%d/open", periodID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Require().Equal("OPEN", body["status"])
	return periodID
}

func (s *LedgerFlowSuite) TestFullPeriod() {
	periodID := s.openPeriod()
	today := fixture.Today().Format(time.RFC3339)

	code, dl := s.do(fixture.Operator, http.MethodPost, "/deliveries", map[string]any{
		"location_id":   fixture.Central,
		"supplier_ref":  "PO-1",
		"delivery_date": today,
		"lines":         []map[string]any{{"item_id": fixture.Flour, "quantity": "100", "unit_price": "2"}},
	})
	s.Require().Equal(http.StatusCreated, code)
	code, _ = s.do(fixture.Operator, http.MethodPost, fmt.Sprintf("/deliveries/%d/post", id(dl["id"])), nil)
	s.Require().Equal(http.StatusOK, code)

	code, tr := s.do(fixture.Operator, http.MethodPost, "/transfers", map[string]any{
		"from_location_id": fixture.Central,
		"to_location_id":   fixture.Kitchen,
		"lines":            []map[string]any{{"item_id": fixture.Flour, "quantity": "40"}},
	})
	s.Require().Equal(http.StatusCreated, code)
	s.Require().Equal("PENDING_APPROVAL", tr["status"])
	code, tr = s.do(fixture.Supervisor, http.MethodPost, fmt.Sprintf("/transfers/%d/approve", id(tr["id"])), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Require().Equal("COMPLETED", tr["status"])

	code, _ = s.do(fixture.Operator, http.MethodPost, "/issues", map[string]any{
		"location_id": fixture.Kitchen,
		"issue_date":  today,
		"lines":       []map[string]any{{"item_id": fixture.Flour, "quantity": "10"}},
	})
	s.Require().Equal(http.StatusCreated, code)

	code, rec := s.do(fixture.Operator, http.MethodGet, fmt.Sprintf("/periods/%d/locations/%d/reconciliation", periodID, fixture.Kitchen), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("80", rec["transfers_in"])
	s.Equal("20", rec["issues"])
	s.Equal("60", rec["closing_stock"])
	s.Equal("0", rec["variance"])

	code, body := s.do(fixture.Admin, http.MethodPost, fmt.Sprintf("/periods/%d/close", periodID), nil)
	s.Require().Equal(http.StatusConflict, code)
	s.Require().Equal(shared.CodeLocationsNotReady, body["code"])

	for _, loc := range []int64{fixture.Kitchen, fixture.Store, fixture.Central} {
		code, _ = s.do(fixture.Operator, http.MethodPost, fmt.Sprintf("/periods/%d/locations/%d/ready", periodID, loc), nil)
		s.Require().Equal(http.StatusOK, code)
	}
	code, _ = s.do(fixture.Admin, http.MethodPost, fmt.Sprintf("/periods/%d/close", periodID), nil)
	s.Require().Equal(http.StatusAccepted, code)

	code, body = s.do(fixture.Supervisor, http.MethodPost, fmt.Sprintf("/periods/%d/close/approve", periodID), nil)
	s.Require().Equal(http.StatusForbidden, code)

	code, body = s.do(fixture.Admin, http.MethodPost, fmt.Sprintf("/periods/%d/close/approve", periodID), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("CLOSED", body["period"].(map[string]any)["status"])

	code, snap := s.do(fixture.Operator, http.MethodGet, fmt.Sprintf("/periods/%d/locations/%d/snapshot", periodID, fixture.Kitchen), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("60", snap["location_total"])

	var actions []string
	for _, entry := range s.world.Store.Audit().Entries() {
		actions = append(actions, entry.Action)
	}
	s.Contains(actions, "period.close.request")
	s.Contains(actions, "period.close")
	s.Len(s.world.Outbox.Events(shared.EventPeriodClosed), 1)

	code, body = s.do(fixture.Operator, http.MethodPost, "/issues", map[string]any{
		"location_id": fixture.Kitchen,
		"issue_date":  today,
		"lines":       []map[string]any{{"item_id": fixture.Flour, "quantity": "1"}},
	})
	s.Require().Equal(http.StatusConflict, code)
	s.Equal(shared.CodeNoOpenPeriod, body["code"])
}

func (s *LedgerFlowSuite) TestInsufficientIssueReportsEveryLine() {
	s.openPeriod()
	code, body := s.do(fixture.Operator, http.MethodPost, "/issues", map[string]any{
		"location_id": fixture.Kitchen,
		"issue_date":  fixture.Today().Format(time.RFC3339),
		"lines": []map[string]any{
			{"item_id": fixture.Flour, "quantity": "1"},
			{"item_id": fixture.Sugar, "quantity": "1"},
		},
	})
	s.Require().Equal(http.StatusConflict, code)
	s.Equal(shared.CodeInsufficientStock, body["code"])
	s.Len(body["errors"], 2)
}

func (s *LedgerFlowSuite) TestAnonymousCallerIsForbidden() {
	code, body := s.do(shared.Actor{}, http.MethodPost, "/periods", map[string]string{
		"name": "x", "start_date": "2030-01-01", "end_date": "2030-01-31",
	})
	s.Equal(http.StatusForbidden, code)
	s.Equal(shared.CodePermissionDenied, body["code"])
}

func TestMalformedBodyIsRejected(t *testing.T) {
	w := fixture.New(t)
	router := app.NewRouter(app.RouterParams{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:   &app.Config{AppEnv: "test"},
		Services: w.Services,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deliveries", bytes.NewBufferString(`{"location_id":1,"bogus":true}`))
	req.Header.Set(app.HeaderActorID, "3")
	req.Header.Set(app.HeaderActorRole, shared.RoleOperator)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
