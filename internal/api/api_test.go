package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/sledilnik/internal/cache"
	"github.com/erazemk/sledilnik/internal/db"
	"github.com/erazemk/sledilnik/internal/ledger"
	"github.com/erazemk/sledilnik/internal/model"
	"github.com/erazemk/sledilnik/internal/store"
	"github.com/erazemk/sledilnik/internal/tracking"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	tokens map[model.Role]string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServer(t, nil)
}

// newTestServer starts a server whose tracker refreshes sc, when given.
func newTestServer(t *testing.T, sc *cache.StatusCache) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	chain := ledger.NewChain(database)
	var opts []tracking.Option
	if sc != nil {
		opts = append(opts, tracking.WithObservers(sc))
	}
	router := NewRouter(Config{
		DB:        database,
		JWTSecret: testJWTSecret,
		Tracker:   tracking.New(store.NewRepository(database), chain, opts...),
		Chain:     chain,
		Cache:     sc,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ts := &testServer{Server: server, tokens: map[model.Role]string{}}
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	for _, role := range []model.Role{model.RoleAdmin, model.RoleManufacturer, model.RoleShipper, model.RoleRetailer, model.RoleConsumer} {
		name := string(role)
		if _, err := store.CreateUser(ctx, database, name, "ST-"+name, string(hash), role); err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		ts.tokens[role] = ts.login(t, name, "password")
	}
	return ts
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}
	return loginResp.Token
}

// do sends a JSON request and decodes the response into out when given.
func (ts *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (ts *testServer) register(t *testing.T, id, name string) model.Item {
	t.Helper()
	var item model.Item
	code := ts.do(t, "POST", "/api/items", ts.tokens[model.RoleManufacturer], map[string]any{
		"id":       id,
		"name":     name,
		"metadata": map[string]string{"origin": "Colombia"},
	}, &item)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 registering %s, got %d", id, code)
	}
	return item
}

func (ts *testServer) advance(t *testing.T, id string, role model.Role, status model.Status) {
	t.Helper()
	code := ts.do(t, "POST", "/api/items/"+id+"/events", ts.tokens[role], map[string]any{"status": status}, nil)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 moving %s to %s, got %d", id, status, code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.login(t, "shipper", "password")

	if code := ts.do(t, "POST", "/api/auth/logout", token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", code)
	}
	if code := ts.do(t, "POST", "/api/auth/logout", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", code)
	}
}

func TestRegisterItem(t *testing.T) {
	ts := setupTestServer(t)

	item := ts.register(t, "item-001", "Premium Coffee Beans")
	if item.CurrentStatus != model.StatusCreated {
		t.Errorf("expected created, got %q", item.CurrentStatus)
	}

	code := ts.do(t, "POST", "/api/items", ts.tokens[model.RoleShipper], map[string]any{"name": "Not mine"}, nil)
	if code != http.StatusForbidden {
		t.Errorf("expected 403 for shipper registration, got %d", code)
	}

	code = ts.do(t, "POST", "/api/items", ts.tokens[model.RoleManufacturer], map[string]any{"id": "item-001", "name": "Again"}, nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate id, got %d", code)
	}

	code = ts.do(t, "POST", "/api/items", ts.tokens[model.RoleManufacturer], map[string]any{"name": "  "}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty name, got %d", code)
	}

	code = ts.do(t, "POST", "/api/items", "", map[string]any{"name": "Anon"}, nil)
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", code)
	}
}

func TestStatusUpdateFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "item-002", "Organic Cotton T-Shirt")

	for _, s := range []model.Status{model.StatusManufacturing, model.StatusManufactured, model.StatusPackagingStarted, model.StatusPackaged} {
		ts.advance(t, "item-002", model.RoleManufacturer, s)
	}

	var rej rejection
	code := ts.do(t, "POST", "/api/items/item-002/events", ts.tokens[model.RoleShipper],
		map[string]any{"status": model.StatusManufacturing}, &rej)
	if code != http.StatusConflict || rej.Reason != "not_forward_move" {
		t.Errorf("expected 409 not_forward_move, got %d %+v", code, rej)
	}

	code = ts.do(t, "POST", "/api/items/item-002/events", ts.tokens[model.RoleConsumer],
		map[string]any{"status": model.StatusShippingStarted}, &rej)
	if code != http.StatusForbidden || rej.Reason != "not_permitted_for_role" {
		t.Errorf("expected 403 not_permitted_for_role, got %d %+v", code, rej)
	}

	code = ts.do(t, "POST", "/api/items/item-002/events", ts.tokens[model.RoleShipper],
		map[string]any{"status": "teleported"}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", code)
	}

	code = ts.do(t, "POST", "/api/items/item-002/events", ts.tokens[model.RoleShipper],
		map[string]any{"status": model.StatusShippingStarted, "location": map[string]any{"latitude": 120.0, "longitude": 0}}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad latitude, got %d", code)
	}

	var ev model.Event
	code = ts.do(t, "POST", "/api/items/item-002/events", ts.tokens[model.RoleShipper], map[string]any{
		"status":   model.StatusShippingStarted,
		"location": map[string]any{"latitude": 45.5, "longitude": -73.6, "name": "Montreal Port"},
		"notes":    "left the dock",
	}, &ev)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if ev.SettlementRef == "" || ev.Actor.Role != model.RoleShipper || ev.Actor.Address != "ST-shipper" {
		t.Errorf("unexpected event %+v", ev)
	}

	var snap itemSnapshot
	if code := ts.do(t, "GET", "/api/items/item-002", "", nil, &snap); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if snap.Item.CurrentStatus != model.StatusShippingStarted || len(snap.History) != 6 {
		t.Errorf("unexpected snapshot: status=%s events=%d", snap.Item.CurrentStatus, len(snap.History))
	}

	var latest model.Event
	ts.do(t, "GET", "/api/items/item-002/latest", "", nil, &latest)
	if latest.ID != ev.ID || latest.Location == nil || latest.Location.Name != "Montreal Port" {
		t.Errorf("unexpected latest event %+v", latest)
	}

	var status struct {
		Status model.Status `json:"status"`
		Ref    string       `json:"transaction_id"`
	}
	ts.do(t, "GET", "/api/items/item-002/status", "", nil, &status)
	if status.Status != model.StatusShippingStarted || status.Ref != ev.SettlementRef {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestValidateAndTransitions(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "item-003", "Organic Avocados")

	var v validateResponse
	ts.do(t, "POST", "/api/items/item-003/validate", ts.tokens[model.RoleShipper], map[string]any{"status": model.StatusInTransit}, &v)
	if !v.Valid || v.Current != model.StatusCreated {
		t.Errorf("expected shipper to be allowed to skip ahead to in_transit, got %+v", v)
	}
	if code := ts.do(t, "GET", "/api/items/item-003", "", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	ts.do(t, "POST", "/api/items/item-003/validate", ts.tokens[model.RoleManufacturer], map[string]any{"status": model.StatusPackaged}, &v)
	if !v.Valid || v.Reason != "" {
		t.Errorf("expected valid skip-ahead for manufacturer, got %+v", v)
	}

	ts.do(t, "POST", "/api/items/item-003/validate", ts.tokens[model.RoleAdmin], map[string]any{"status": model.StatusCreated}, &v)
	if v.Valid || v.Reason != "not_forward_move" {
		t.Errorf("expected not_forward_move for self transition, got %+v", v)
	}

	var tr transitionsResponse
	ts.do(t, "GET", "/api/items/item-003/transitions", ts.tokens[model.RoleManufacturer], nil, &tr)
	want := []model.Status{model.StatusManufacturing, model.StatusManufactured, model.StatusPackagingStarted, model.StatusPackaged}
	if len(tr.Available) != len(want) {
		t.Fatalf("expected %v, got %v", want, tr.Available)
	}
	for i := range want {
		if tr.Available[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], tr.Available[i])
		}
	}

	ts.do(t, "GET", "/api/items/item-003/transitions", ts.tokens[model.RoleConsumer], nil, &tr)
	if tr.Available == nil || len(tr.Available) != 1 {
		t.Errorf("expected consumer to see received_by_consumer only, got %v", tr.Available)
	}
}

func TestPublicReads(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "item-a", "Coffee Beans")
	ts.register(t, "item-b", "Organic Tea")
	ts.advance(t, "item-b", model.RoleManufacturer, model.StatusManufacturing)

	var items []model.Item
	if code := ts.do(t, "GET", "/api/items", "", nil, &items); code != http.StatusOK || len(items) != 2 {
		t.Fatalf("expected 2 items, got %d (%d)", len(items), code)
	}
	if items[0].ID != "item-b" {
		t.Errorf("expected newest first, got %s", items[0].ID)
	}

	ts.do(t, "GET", "/api/items?q=coffee", "", nil, &items)
	if len(items) != 1 || items[0].ID != "item-a" {
		t.Errorf("unexpected search result %v", items)
	}

	ts.do(t, "GET", "/api/items?status=manufacturing", "", nil, &items)
	if len(items) != 1 || items[0].ID != "item-b" {
		t.Errorf("unexpected status filter result %v", items)
	}

	if code := ts.do(t, "GET", "/api/items?status=lost", "", nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status filter, got %d", code)
	}
	if code := ts.do(t, "GET", "/api/items?sort=random", "", nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown sort, got %d", code)
	}

	if code := ts.do(t, "GET", "/api/items/nope", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing item, got %d", code)
	}

	var statuses []model.StatusInfo
	ts.do(t, "GET", "/api/statuses", "", nil, &statuses)
	if len(statuses) != 12 || statuses[11].Status != model.StatusReceivedByConsumer {
		t.Errorf("unexpected statuses %v", statuses)
	}

	var roles []rolePermissions
	ts.do(t, "GET", "/api/roles", "", nil, &roles)
	if len(roles) != 6 {
		t.Errorf("expected 6 roles, got %d", len(roles))
	}

	var summary tracking.Summary
	ts.do(t, "GET", "/api/dashboard", "", nil, &summary)
	if summary.Total != 2 || summary.ByStatus[model.StatusCreated] != 1 || len(summary.Recent) != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestUsersAdminOnly(t *testing.T) {
	ts := setupTestServer(t)

	if code := ts.do(t, "GET", "/api/users", ts.tokens[model.RoleManufacturer], nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", code)
	}

	var users []model.User
	if code := ts.do(t, "GET", "/api/users", ts.tokens[model.RoleAdmin], nil, &users); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(users) != 5 {
		t.Errorf("expected 5 users, got %d", len(users))
	}

	var created model.User
	code := ts.do(t, "POST", "/api/users", ts.tokens[model.RoleAdmin], map[string]string{
		"username": "retailer2", "password": "longenough", "address": "ST9", "role": "retailer",
	}, &created)
	if code != http.StatusCreated || created.Role != model.RoleRetailer || created.Address != "ST9" {
		t.Errorf("unexpected create result %d %+v", code, created)
	}

	code = ts.do(t, "POST", "/api/users", ts.tokens[model.RoleAdmin], map[string]string{
		"username": "ghost", "password": "longenough", "role": "unknown",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unassignable role, got %d", code)
	}
}

func (ts *testServer) userID(t *testing.T, username string) int64 {
	t.Helper()
	var users []model.User
	ts.do(t, "GET", "/api/users", ts.tokens[model.RoleAdmin], nil, &users)
	for _, u := range users {
		if u.Username == username {
			return u.ID
		}
	}
	t.Fatalf("user %s not found", username)
	return 0
}

func TestUpdateUserKeepsOmittedFields(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.userID(t, "shipper")
	path := fmt.Sprintf("/api/users/%d", id)

	var updated model.User
	code := ts.do(t, "PUT", path, ts.tokens[model.RoleAdmin], map[string]string{"role": "retailer"}, &updated)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if updated.Role != model.RoleRetailer || updated.Address != "ST-shipper" {
		t.Errorf("role-only update changed address: %+v", updated)
	}

	code = ts.do(t, "PUT", path, ts.tokens[model.RoleAdmin], map[string]string{"address": "ST7"}, &updated)
	if code != http.StatusOK || updated.Role != model.RoleRetailer || updated.Address != "ST7" {
		t.Errorf("address-only update: %d %+v", code, updated)
	}

	code = ts.do(t, "PUT", path, ts.tokens[model.RoleAdmin], map[string]string{"role": "unknown"}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unassignable role, got %d", code)
	}
}

func TestTokenFollowsCurrentUser(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "item-d", "Demoted")
	token := ts.tokens[model.RoleManufacturer]
	id := ts.userID(t, "manufacturer")
	path := fmt.Sprintf("/api/users/%d", id)

	if code := ts.do(t, "PUT", path, ts.tokens[model.RoleAdmin], map[string]string{"role": "consumer"}, nil); code != http.StatusOK {
		t.Fatalf("demoting: expected 200, got %d", code)
	}

	var rej rejection
	code := ts.do(t, "POST", "/api/items/item-d/events", token, map[string]any{"status": model.StatusPackaged}, &rej)
	if code != http.StatusForbidden || rej.Reason != "not_permitted_for_role" {
		t.Errorf("demoted token: expected 403 not_permitted_for_role, got %d %+v", code, rej)
	}
	code = ts.do(t, "POST", "/api/items", token, map[string]any{"id": "item-e", "name": "Late"}, nil)
	if code != http.StatusForbidden {
		t.Errorf("demoted token registering: expected 403, got %d", code)
	}

	var validation struct {
		Role model.Role `json:"role"`
	}
	ts.do(t, "POST", "/api/items/item-d/validate", token, map[string]any{"status": model.StatusPackaged}, &validation)
	if validation.Role != model.RoleConsumer {
		t.Errorf("expected validation under consumer, got %q", validation.Role)
	}

	if code := ts.do(t, "DELETE", path, ts.tokens[model.RoleAdmin], nil, nil); code != http.StatusOK {
		t.Fatalf("deleting: expected 200, got %d", code)
	}
	code = ts.do(t, "POST", "/api/items", token, map[string]any{"id": "item-f", "name": "Ghost"}, nil)
	if code != http.StatusUnauthorized {
		t.Errorf("deleted user's token: expected 401, got %d", code)
	}
	if code := ts.do(t, "GET", "/api/items/item-f", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("expected no item from deleted user, got %d", code)
	}
}

func TestStatusReadThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := cache.New(mr.Addr())
	t.Cleanup(func() { rdb.Close() })
	ts := newTestServer(t, cache.NewStatusCache(rdb))

	ts.register(t, "item-c", "Cached")

	get := func() (string, cache.CachedStatus) {
		t.Helper()
		resp, err := http.Get(ts.URL + "/api/items/item-c/status")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var s cache.CachedStatus
		json.NewDecoder(resp.Body).Decode(&s)
		return resp.Header.Get("X-Cache"), s
	}

	if hit, s := get(); hit != "HIT" || s.Status != model.StatusCreated {
		t.Errorf("expected registration to be cached, got %s %+v", hit, s)
	}

	mr.Del("item_status:item-c")
	if hit, s := get(); hit != "MISS" || s.Status != model.StatusCreated {
		t.Errorf("expected MISS after eviction, got %s %+v", hit, s)
	}
	if hit, _ := get(); hit != "HIT" {
		t.Errorf("expected the miss to fill the cache, got %s", hit)
	}

	ts.advance(t, "item-c", model.RoleManufacturer, model.StatusManufacturing)
	if hit, s := get(); hit != "HIT" || s.Status != model.StatusManufacturing || s.SettlementRef == "" {
		t.Errorf("expected the commit to refresh the cache, got %s %+v", hit, s)
	}
}

func TestLedgerVerify(t *testing.T) {
	ts := setupTestServer(t)
	ts.register(t, "item-l", "Ledgered")
	ts.advance(t, "item-l", model.RoleManufacturer, model.StatusManufacturing)

	if code := ts.do(t, "GET", "/api/ledger/verify", ts.tokens[model.RoleShipper], nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", code)
	}

	var report ledger.Report
	ts.do(t, "GET", "/api/ledger/verify", ts.tokens[model.RoleAdmin], nil, &report)
	if !report.Valid || report.Entries != 2 {
		t.Errorf("unexpected report %+v", report)
	}

	var latest model.Event
	ts.do(t, "GET", "/api/items/item-l/latest", "", nil, &latest)

	var entry ledger.Entry
	code := ts.do(t, "GET", "/api/ledger/entries/"+latest.SettlementRef, ts.tokens[model.RoleAdmin], nil, &entry)
	if code != http.StatusOK || entry.Submission.Status != model.StatusManufacturing {
		t.Errorf("unexpected ledger entry %d %+v", code, entry)
	}
}

func TestLiveMissingItem(t *testing.T) {
	ts := setupTestServer(t)
	if code := ts.do(t, "GET", "/api/items/nope/live", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}
