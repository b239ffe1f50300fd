package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcherFetchElements(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(ElementPage{
			AnnotationID: "ann1",
			Elements:     []Element{{ID: "e1", Type: KindPoint, Center: []float64{3, 4}}},
		})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL + "/")
	req := PageRequest{Region: rect(0, 10, 100, 200), MinimumSize: 2, Limit: 50}
	els, err := f.FetchElements(context.Background(), "ann1", req)
	if err != nil {
		t.Fatalf("FetchElements: %v", err)
	}
	if len(els) != 1 || els[0].ID != "e1" {
		t.Errorf("unexpected elements %+v", els)
	}
	if gotPath != "/api/annotations/ann1/elements" {
		t.Errorf("unexpected path %q", gotPath)
	}
	want := "bottom=200&left=0&limit=50&minimumSize=2&right=100&top=10"
	if gotQuery != want {
		t.Errorf("expected query %q, got %q", want, gotQuery)
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.URL).ListAnnotations(context.Background(), "item1")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}
