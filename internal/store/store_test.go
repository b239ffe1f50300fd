package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func region(x0, y0, x1, y1 float64) r2.Rect {
	return r2.RectFromPoints(r2.Point{X: x0, Y: y0}, r2.Point{X: x1, Y: y1})
}

func circle(id string, x, y, radius float64) annotation.Element {
	return annotation.Element{ID: id, Type: annotation.KindCircle, Center: []float64{x, y}, Radius: radius, StrokeOpacity: 1}
}

func ids(elements []annotation.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	info, err := s.CreateAnnotation(ctx, annotation.Info{ItemID: "item_1", Name: "Cells"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.ID == "" || info.Created.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", info)
	}
	if _, err := s.CreateAnnotation(ctx, annotation.Info{Name: "orphan"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid without item, got %v", err)
	}

	got, err := s.GetAnnotation(ctx, info.ID)
	if err != nil || got.Name != "Cells" || got.ItemID != "item_1" {
		t.Fatalf("get: %+v, %v", got, err)
	}
	if _, err := s.GetAnnotation(ctx, "ann_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stored, err := s.AddElements(ctx, info.ID, []annotation.Element{
		circle("big", 100, 100, 50),
		circle("small", 110, 110, 2),
		circle("far", 5000, 5000, 40),
		{Type: annotation.KindPoint, Center: []float64{120, 120}},
	})
	if err != nil {
		t.Fatalf("add elements: %v", err)
	}
	if stored[3].ID == "" {
		t.Error("expected an id for the element without one")
	}
	if _, err := s.AddElements(ctx, info.ID, []annotation.Element{{Type: annotation.KindCircle}}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for a bad element, got %v", err)
	}
	if _, err := s.AddElements(ctx, "ann_missing", []annotation.Element{circle("x", 1, 1, 1)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing annotation, got %v", err)
	}

	tests := []struct {
		name string
		req  annotation.PageRequest
		want []string
	}{
		{"everything", annotation.PageRequest{Region: r2.EmptyRect()}, []string{"big", "far", "small", stored[3].ID}},
		{"region", annotation.PageRequest{Region: region(0, 0, 1000, 1000)}, []string{"big", "small", stored[3].ID}},
		{"minimum size", annotation.PageRequest{Region: region(0, 0, 1000, 1000), MinimumSize: 4}, []string{"big", "small"}},
		{"limit", annotation.PageRequest{Region: region(0, 0, 10000, 10000), Limit: 2}, []string{"big", "far"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			els, err := s.QueryElements(ctx, info.ID, tt.req)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if !equalIDs(ids(els), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(els))
			}
		})
	}

	list, err := s.ListAnnotations(ctx, "item_1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v, %v", list, err)
	}

	if err := s.DeleteAnnotation(ctx, info.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteAnnotation(ctx, info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	els, err := s.QueryElements(ctx, info.ID, annotation.PageRequest{Region: r2.EmptyRect()})
	if err != nil || len(els) != 0 {
		t.Errorf("expected elements deleted, got %v (%v)", els, err)
	}
}

func TestSQLite(t *testing.T) {
	testStore(t, openTestSQLite(t))
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestSQLiteRoundTripsElements(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	info, err := s.CreateAnnotation(ctx, annotation.Info{ItemID: "item_1", Name: "Regions"})
	if err != nil {
		t.Fatal(err)
	}

	rect := annotation.Element{
		ID: "r1", Type: annotation.KindRectangle, Center: []float64{10, 20, 0},
		Width: 4, Height: 6, Rotation: 0.5, LineColor: "#ff0000", FillOpacity: 0.3, StrokeOpacity: 0.9,
		User: map[string]any{"score": 0.75},
	}
	if _, err := s.AddElements(ctx, info.ID, []annotation.Element{rect}); err != nil {
		t.Fatal(err)
	}

	els, err := s.QueryElements(ctx, info.ID, annotation.PageRequest{Region: r2.EmptyRect()})
	if err != nil || len(els) != 1 {
		t.Fatalf("query: %v, %v", els, err)
	}
	got := els[0]
	if got.Rotation != 0.5 || got.LineColor != "#ff0000" || got.FillOpacity != 0.3 || got.StrokeOpacity != 0.9 {
		t.Errorf("unexpected element %+v", got)
	}
	if got.User["score"] != 0.75 {
		t.Errorf("expected user data preserved, got %v", got.User)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mongo", "", ""); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}
