// Package store persists annotations and their elements. Elements keep
// their bounding box and size next to the JSON body so a page of elements
// can be selected by region and minimum size.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/typeid"
)

var (
	ErrNotFound = errors.New("annotation not found")
	ErrInvalid  = errors.New("invalid annotation")
)

// Store is implemented by the PostgreSQL and SQLite backends.
type Store interface {
	CreateAnnotation(ctx context.Context, info annotation.Info) (annotation.Info, error)
	GetAnnotation(ctx context.Context, id string) (annotation.Info, error)
	ListAnnotations(ctx context.Context, itemID string) ([]annotation.Info, error)
	DeleteAnnotation(ctx context.Context, id string) error

	// AddElements validates and appends elements, assigning ids where
	// missing, and returns them as stored.
	AddElements(ctx context.Context, annotationID string, elements []annotation.Element) ([]annotation.Element, error)

	// QueryElements returns the elements intersecting req.Region (all when
	// the region is empty) whose size is at least req.MinimumSize, largest
	// first, at most req.Limit of them when positive.
	QueryElements(ctx context.Context, annotationID string, req annotation.PageRequest) ([]annotation.Element, error)

	Close() error
}

// Open selects a backend by driver name.
func Open(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	switch driver {
	case "postgres":
		return OpenPostgres(ctx, databaseURL)
	case "sqlite":
		return OpenSQLite(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

type elementRow struct {
	id                     string
	minX, minY, maxX, maxY float64
	size                   float64
	body                   []byte
}

func prepareInfo(info annotation.Info) (annotation.Info, error) {
	if info.ItemID == "" {
		return info, fmt.Errorf("%w: item id is required", ErrInvalid)
	}
	if info.ID == "" {
		info.ID = typeid.NewAnnotationID()
	}
	if info.Created.IsZero() {
		info.Created = time.Now().UTC()
	}
	return info, nil
}

func prepareElements(elements []annotation.Element) ([]annotation.Element, []elementRow, error) {
	stored := make([]annotation.Element, len(elements))
	rows := make([]elementRow, len(elements))
	for i, el := range elements {
		if err := el.Validate(); err != nil {
			return nil, nil, fmt.Errorf("element %d: %w", i, err)
		}
		if el.ID == "" {
			el.ID = typeid.NewElementID()
		}
		body, err := json.Marshal(el)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal element %s: %w", el.ID, err)
		}
		b := el.Bounds()
		stored[i] = el
		rows[i] = elementRow{
			id:   el.ID,
			minX: b.X.Lo, minY: b.Y.Lo,
			maxX: b.X.Hi, maxY: b.Y.Hi,
			size: el.Size(),
			body: body,
		}
	}
	return stored, rows, nil
}

func decodeElement(body []byte) (annotation.Element, error) {
	var el annotation.Element
	if err := json.Unmarshal(body, &el); err != nil {
		return el, fmt.Errorf("decode element: %w", err)
	}
	return el, nil
}
