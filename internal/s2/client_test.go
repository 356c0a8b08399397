package s2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/matsen/lineage/internal/cache"
)

// testClient builds a client against a test server with no real delays.
func testClient(t *testing.T, srv *httptest.Server, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithBaseURL(srv.URL),
		WithDelay(time.Microsecond),
	}
	c := NewClient(append(base, opts...)...)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func paperJSON(id string, year int) S2Paper {
	return S2Paper{PaperID: id, Title: "Paper " + id, Year: &year}
}

func TestCitationsPagination(t *testing.T) {
	// Two full pages then a short one; the client must stop at the short
	// page, not at a fixed page count.
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		n := PageSize
		if offset >= 2*PageSize {
			n = 7
		}
		var resp citationsResponse
		for i := 0; i < n; i++ {
			resp.Data = append(resp.Data, struct {
				CitingPaper S2Paper `json:"citingPaper"`
			}{paperJSON(fmt.Sprintf("p%d-%d", offset, i), 2020)})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	papers, err := c.Citations(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 3 pages fetched, got %d", calls)
	}
	if len(papers) != 2*PageSize+7 {
		t.Errorf("expected %d papers, got %d", 2*PageSize+7, len(papers))
	}
}

func TestCitationsPartialDegradation(t *testing.T) {
	// First page succeeds, second page 500s: keep the partial set.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset > 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var resp citationsResponse
		for i := 0; i < PageSize; i++ {
			resp.Data = append(resp.Data, struct {
				CitingPaper S2Paper `json:"citingPaper"`
			}{paperJSON(fmt.Sprintf("p%d", i), 2020)})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	papers, err := c.Citations(context.Background(), "abc")
	if err != nil {
		t.Fatalf("partial pagination should degrade gracefully, got %v", err)
	}
	if len(papers) != PageSize {
		t.Errorf("expected %d partial papers, got %d", PageSize, len(papers))
	}
}

func TestCitationsZeroAccumulatedIsHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Citations(context.Background(), "abc"); err == nil {
		t.Fatal("expected hard error when no results accumulated")
	}
}

func TestRateLimitedRetryThenSuccess(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Data: []S2Paper{paperJSON("x", 2021)}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	papers, err := c.Search(context.Background(), "deep learning", 0)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("expected 2 retries before success, got %d calls", calls)
	}
	if len(papers) != 1 || papers[0].ID != "x" {
		t.Errorf("unexpected papers: %+v", papers)
	}
}

func TestRateLimitedExhaustsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Search(context.Background(), "q", 0)
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited error after exhausting retries, got %v", err)
	}
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Search(context.Background(), "q", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-429 status must not be retried, got %d calls", calls)
	}
}

func TestAuthErrorDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Search(context.Background(), "q", 0)
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestCacheHitBypassesNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(searchResponse{Data: []S2Paper{paperJSON("x", 2021)}})
	}))
	defer srv.Close()

	disk, err := cache.Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c := testClient(t, srv, WithCache(disk))

	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), "transformers", 0); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 network call with cache enabled, got %d", calls)
	}
}

func TestResolveIDMemoized(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(searchResponse{Data: []S2Paper{{PaperID: "resolved123", Title: "Attention Is All You Need"}}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	for i := 0; i < 2; i++ {
		id, err := c.ResolveID(context.Background(), "Attention Is All You Need")
		if err != nil {
			t.Fatal(err)
		}
		if id != "resolved123" {
			t.Errorf("got id %q", id)
		}
	}
	if calls != 1 {
		t.Errorf("expected memoized resolution, got %d calls", calls)
	}
}

func TestResolveIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.ResolveID(context.Background(), "No Such Paper")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestMapPapersDropsTitleless(t *testing.T) {
	year := 2020
	papers := MapPapers([]S2Paper{
		{PaperID: "a", Title: "Kept", Year: &year},
		{PaperID: "b", Title: ""},
		{Title: "No ID", Year: &year},
	})
	if len(papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(papers))
	}
	if papers[1].ID != "" || papers[1].Title != "No ID" {
		t.Errorf("titled paper without ID should survive: %+v", papers[1])
	}
}
