package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// ElementPage is the JSON body of the paged elements endpoint.
type ElementPage struct {
	AnnotationID string    `json:"annotationId"`
	Elements     []Element `json:"elements"`
}

// HTTPFetcher fetches pages from the annotation API.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: http.DefaultClient}
}

func (f *HTTPFetcher) FetchElements(ctx context.Context, annotationID string, req PageRequest) ([]Element, error) {
	q := url.Values{}
	q.Set("left", formatFloat(req.Region.X.Lo))
	q.Set("top", formatFloat(req.Region.Y.Lo))
	q.Set("right", formatFloat(req.Region.X.Hi))
	q.Set("bottom", formatFloat(req.Region.Y.Hi))
	q.Set("minimumSize", formatFloat(req.MinimumSize))
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	u := fmt.Sprintf("%s/api/annotations/%s/elements?%s", f.BaseURL, url.PathEscape(annotationID), q.Encode())

	var page ElementPage
	if err := f.getJSON(ctx, u, &page); err != nil {
		return nil, fmt.Errorf("fetch elements: %w", err)
	}
	return page.Elements, nil
}

// ListAnnotations returns the annotations attached to an image item.
func (f *HTTPFetcher) ListAnnotations(ctx context.Context, itemID string) ([]Info, error) {
	u := fmt.Sprintf("%s/api/items/%s/annotations", f.BaseURL, url.PathEscape(itemID))
	var infos []Info
	if err := f.getJSON(ctx, u, &infos); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return infos, nil
}

func (f *HTTPFetcher) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
