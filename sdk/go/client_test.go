package goalpacesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClaimSendsBearerAndBody(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Claim{Pool: "routines", PeriodKey: "2024-W05", Claimed: true, Level: 2})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	res, err := c.Claim(context.Background(), "routines", "")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Claimed || res.Level != 2 {
		t.Fatalf("unexpected claim %+v", res)
	}
	if gotAuth != "Bearer tok" || gotPath != "/v0/claims" {
		t.Fatalf("unexpected request auth=%q path=%q", gotAuth, gotPath)
	}
	if gotBody["pool"] != "routines" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if _, ok := gotBody["period_key"]; ok {
		t.Fatal("empty period key must be omitted")
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"unknown_category","message":"unknown category: \"knitting\""}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CanPass(context.Background(), "knitting", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "unknown_category" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestEventsPageQuery(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(PaginatedEvents{Items: []Event{{ID: 8, Type: "achievement.claimed"}}, NextCursor: 8})
	}))
	defer srv.Close()

	page, err := New(srv.URL).EventsPage(context.Background(), 7, 10, "achievement.claimed")
	if err != nil {
		t.Fatal(err)
	}
	if page.NextCursor != 8 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if rawQuery != "after=7&limit=10&type=achievement.claimed" {
		t.Fatalf("unexpected query %q", rawQuery)
	}
}
