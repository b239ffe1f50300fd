package overlay

import (
	"github.com/tilescope/tilescope/backend-go/internal/render"
)

// DefaultSizeLimit is the largest feature, in data items, whose opacity is
// captured for highlighting.
const DefaultSizeLimit = 10000

// Opacity is the original paint of one rendered element.
type Opacity struct {
	ID     string
	Fill   float64
	Stroke float64
}

// OpacityStore keeps, per annotation and feature type, the opacities an
// element had when it was rendered. Feature types with more data than the
// size limit are never stored and so are never highlighted.
type OpacityStore struct {
	limit     int
	snapshots map[string]map[render.FeatureType][]Opacity
}

// NewOpacityStore keeps snapshots of features with at most limit entries.
func NewOpacityStore(limit int) *OpacityStore {
	return &OpacityStore{
		limit:     limit,
		snapshots: make(map[string]map[render.FeatureType][]Opacity),
	}
}

// Limit returns the configured size limit.
func (s *OpacityStore) Limit() int {
	return s.limit
}

// Capture stores entries in order when there are at most Limit of them and
// reports whether it did.
func (s *OpacityStore) Capture(annotationID string, ft render.FeatureType, entries []Opacity) bool {
	if len(entries) > s.limit {
		return false
	}
	byType, ok := s.snapshots[annotationID]
	if !ok {
		byType = make(map[render.FeatureType][]Opacity)
		s.snapshots[annotationID] = byType
	}
	byType[ft] = entries
	return true
}

// Get returns the snapshot for a feature type; false means skip it.
func (s *OpacityStore) Get(annotationID string, ft render.FeatureType) ([]Opacity, bool) {
	entries, ok := s.snapshots[annotationID][ft]
	return entries, ok
}

// Reset discards every snapshot of an annotation ahead of a re-render.
func (s *OpacityStore) Reset(annotationID string) {
	s.snapshots[annotationID] = make(map[render.FeatureType][]Opacity)
}

// Delete forgets an annotation entirely.
func (s *OpacityStore) Delete(annotationID string) {
	delete(s.snapshots, annotationID)
}

// Has reports whether the annotation has a snapshot record, even an empty one.
func (s *OpacityStore) Has(annotationID string) bool {
	_, ok := s.snapshots[annotationID]
	return ok
}

func opacitiesOf(data []render.Datum) []Opacity {
	entries := make([]Opacity, len(data))
	for i, d := range data {
		entries[i] = Opacity{
			ID:     d.ID,
			Fill:   floatProp(d, "fillOpacity"),
			Stroke: floatProp(d, "strokeOpacity"),
		}
	}
	return entries
}

func floatProp(d render.Datum, key string) float64 {
	switch v := d.Properties[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
