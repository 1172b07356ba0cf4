package servicetitan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{
		ClientID:     "cid",
		ClientSecret: "secret",
		AppKey:       "app-key",
		TenantID:     "12345",
	}
}

// newAuthServer returns a token endpoint that counts exchanges.
func newAuthServer(t *testing.T, expiresIn int, exchanges *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		exchanges.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", exchanges.Load()),
			"expires_in":   expiresIn,
		})
	}))
}

func TestAccessToken_CachedAcrossRequests(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "app-key", r.Header.Get("ST-App-Key"))
		json.NewEncoder(w).Encode(page[BusinessUnit]{Data: []BusinessUnit{{ID: 1, Name: "HVAC Service"}}})
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	for range 3 {
		_, err := client.ListBusinessUnits(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), exchanges.Load(), "token should be exchanged once and cached")
}

func TestAccessToken_RefreshInsideExpiryBuffer(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	// expires_in below the 60s buffer, so every call needs a fresh token.
	auth := newAuthServer(t, 30, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(page[JobType]{Data: nil})
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	_, err := client.ListJobTypes(context.Background())
	require.NoError(t, err)
	_, err = client.ListJobTypes(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), exchanges.Load())
}

func TestAccessToken_ExchangeFailureIsAuthError(t *testing.T) {
	t.Parallel()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer auth.Close()

	client := NewClient(testCreds(), WithBaseURL("http://127.0.0.1:0"), WithAuthURL(auth.URL))

	_, err := client.ListTechnicians(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestAccessToken_BareHostAuthURLHitsTokenPath(t *testing.T) {
	t.Parallel()

	var gotPath atomic.Value
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 900})
	}))
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(page[JobType]{Data: nil})
	}))
	defer api.Close()

	// A host-only auth URL, as a config would carry it.
	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	_, err := client.ListJobTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/connect/token", gotPath.Load(), "exchange must POST to the token path, not the host root")
}

func TestNormalizeAuthURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://auth.servicetitan.io/connect/token",
		normalizeAuthURL("https://auth.servicetitan.io"))
	assert.Equal(t, "https://auth.servicetitan.io/connect/token",
		normalizeAuthURL("https://auth.servicetitan.io/"))
	assert.Equal(t, "https://auth.servicetitan.io/connect/token",
		normalizeAuthURL("https://auth.servicetitan.io/connect/token"))
}

func TestPaged_WalksAllPages(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/settings/v2/tenant/12345/technicians", r.URL.Path)
		pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
		resp := page[Technician]{
			Page:    pageNum,
			HasMore: pageNum < 3,
			Data:    []Technician{{ID: int64(pageNum), Name: fmt.Sprintf("Tech %d", pageNum), Active: true}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	techs, err := client.ListTechnicians(context.Background())
	require.NoError(t, err)
	require.Len(t, techs, 3)
	assert.Equal(t, int64(1), techs[0].ID)
	assert.Equal(t, int64(3), techs[2].ID)
}

func TestGetJSON_APIErrorCarriesStatusAndEndpoint(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"Not Found"}`))
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	_, err := client.GetBusinessUnit(context.Background(), 42)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "business-units/42", apiErr.Endpoint)
	assert.False(t, IsAuthError(err))
}

func TestGetInvoice_ToleratesNumericTotal(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The accounting API serves total as a bare number on some tenants.
		w.Write([]byte(`{"id":7001,"invoiceNumber":"INV-7001","invoiceDate":"2026-08-01T00:00:00Z","total":480.25}`))
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	inv, err := client.GetInvoice(context.Background(), 7001)
	require.NoError(t, err)
	assert.Equal(t, "INV-7001", inv.Number)
	require.NotNil(t, inv.InvoiceDate)
	assert.Equal(t, 2026, inv.InvoiceDate.Year())
}

func TestGetJSON_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	var calls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Customer{ID: 7, Name: "Pat Doe", Email: "pat@example.com"})
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	cust, err := client.GetCustomer(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Pat Doe", cust.Name)
	assert.Equal(t, int64(2), calls.Load())
}

func TestListCompletedJobs_QueryParams(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jpm/v2/tenant/12345/jobs", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Completed", q.Get("jobStatus"))
		assert.Equal(t, "2025-08-01T00:00:00Z", q.Get("completedOnOrAfter"))
		assert.Equal(t, "2025-08-15T00:00:00Z", q.Get("completedBefore"))
		json.NewEncoder(w).Encode(page[Job]{Data: []Job{{ID: 100, JobNumber: "J-100", JobStatus: "Completed"}}})
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	since := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	jobs, err := client.ListCompletedJobs(context.Background(), since, until)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "J-100", jobs[0].JobNumber)
}

func TestListAssignments_ChunksAppointmentIDs(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int64
	auth := newAuthServer(t, 900, &exchanges)
	defer auth.Close()

	var batches atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dispatch/v2/tenant/12345/appointment-assignments", r.URL.Path)
		batches.Add(1)
		json.NewEncoder(w).Encode(page[Assignment]{Data: []Assignment{{ID: batches.Load(), TechnicianID: 9}}})
	}))
	defer api.Close()

	client := NewClient(testCreds(), WithBaseURL(api.URL), WithAuthURL(auth.URL))

	ids := make([]int64, 120) // 50-per-request chunking => 3 requests
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	assigns, err := client.ListAssignments(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, assigns, 3)
	assert.Equal(t, int64(3), batches.Load())
}

func TestListAssignments_Empty(t *testing.T) {
	t.Parallel()

	client := NewClient(testCreds())
	assigns, err := client.ListAssignments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, assigns)
}

func TestLocation_Address(t *testing.T) {
	t.Parallel()

	loc := Location{Street: "101 Main St", City: "Denton", State: "TX", Zip: "76201"}
	assert.Equal(t, "101 Main St, Denton, TX, 76201", loc.Address())

	assert.Equal(t, "Denton, TX", Location{City: "Denton", State: "TX"}.Address())
	assert.Equal(t, "", Location{}.Address())
}
