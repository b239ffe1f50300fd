//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"syscall/js"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/config"
	"github.com/tilescope/tilescope/backend-go/internal/events"
	"github.com/tilescope/tilescope/backend-go/internal/overlay"
	"github.com/tilescope/tilescope/backend-go/internal/relay"
	"github.com/tilescope/tilescope/backend-go/internal/render"
	"github.com/tilescope/tilescope/backend-go/internal/typeid"
	"github.com/tilescope/tilescope/backend-go/internal/viewer"
)

var (
	bus    = events.NewBus()
	list   = viewer.NewAnnotationList()
	known  = make(map[string]annotation.Annotation) // every loaded annotation, shown or not
	widget *viewer.Widget
	cfg    = config.Default()

	relayCancel context.CancelFunc
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	api := js.Global().Get("Object").New()

	// --- Commands (frontend → viewer) ---
	api.Set("init", js.FuncOf(initViewer))
	api.Set("open", js.FuncOf(openItem))
	api.Set("destroy", js.FuncOf(destroy))
	api.Set("pointerDown", js.FuncOf(pointer(func(x, y float64) { widget.Scene().PointerDown(x, y) })))
	api.Set("pointerMove", js.FuncOf(pointer(func(x, y float64) { widget.Scene().PointerMove(x, y) })))
	api.Set("pointerUp", js.FuncOf(pointer(func(x, y float64) { widget.Scene().PointerUp(x, y) })))
	api.Set("click", js.FuncOf(pointer(func(x, y float64) { widget.Scene().Click(x, y) })))
	api.Set("wheel", js.FuncOf(wheel))
	api.Set("resize", js.FuncOf(resize))
	api.Set("finish", js.FuncOf(finish))
	api.Set("loadSampleAnnotations", js.FuncOf(loadSampleAnnotations))
	api.Set("loadAnnotations", js.FuncOf(loadAnnotations))
	api.Set("addAnnotations", js.FuncOf(addAnnotations))
	api.Set("showAnnotation", js.FuncOf(showAnnotation))
	api.Set("hideAnnotation", js.FuncOf(hideAnnotation))
	api.Set("toggleAnnotation", js.FuncOf(toggleAnnotation))
	api.Set("highlight", js.FuncOf(highlight))
	api.Set("startDrawMode", js.FuncOf(startDrawMode))
	api.Set("stopDrawMode", js.FuncOf(stopDrawMode))
	api.Set("drawRegion", js.FuncOf(drawRegion))
	api.Set("connect", js.FuncOf(connect))
	api.Set("disconnect", js.FuncOf(disconnect))
	api.Set("on", js.FuncOf(on))

	// --- Queries (frontend ← viewer) ---
	api.Set("render", js.FuncOf(renderFrame))
	api.Set("isDirty", js.FuncOf(isDirty))
	api.Set("getState", js.FuncOf(getState))

	js.Global().Set("tilescopeViewer", api)
	js.Global().Set("tilescopeWasmReady", js.ValueOf(true))

	select {}
}

func errorResult(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func okResult() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

// promise runs fn on its own goroutine so it may block on I/O.
func promise(fn func() (interface{}, error)) js.Value {
	var handler js.Func
	handler = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			defer handler.Release()
			v, err := fn()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func rendered() bool {
	return widget != nil && widget.Rendered()
}

// --- Command Handlers ---

// initViewer(metadataJSON, width, height, [optionsJSON])
func initViewer(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult(fmt.Errorf("usage: init(metadata, width, height, [options])"))
	}
	var meta viewer.Metadata
	if err := json.Unmarshal([]byte(args[0].String()), &meta); err != nil {
		return errorResult(fmt.Errorf("decode metadata: %w", err))
	}
	if len(args) > 3 && args[3].Type() == js.TypeString {
		if err := json.Unmarshal([]byte(args[3].String()), cfg); err != nil {
			return errorResult(fmt.Errorf("decode options: %w", err))
		}
	}

	if widget != nil {
		list.SetViewer(nil)
		widget.Destroy()
	}
	widget = viewer.NewWidget(bus, args[1].Float(), args[2].Float(),
		overlay.WithSizeLimit(cfg.HighlightFeatureSizeLimit),
		overlay.WithHoverEvents(cfg.HoverEvents),
	)
	widget.SetMetadata(meta)
	widget.SetToolkitReady()
	widget.Render()
	list.SetViewer(widget)
	return okResult()
}

// openItem(baseURL, itemID, width, height) loads the item's tile metadata
// from the server and renders the viewer once it arrives.
func openItem(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return errorResult(fmt.Errorf("usage: open(baseUrl, itemId, width, height)"))
	}
	metaURL := strings.TrimSuffix(args[0].String(), "/") + "/api/items/" + args[1].String() + "/tiles"
	width, height := args[2].Float(), args[3].Float()

	if widget != nil {
		list.SetViewer(nil)
		widget.Destroy()
	}
	widget = viewer.NewWidget(bus, width, height,
		overlay.WithSizeLimit(cfg.HighlightFeatureSizeLimit),
		overlay.WithHoverEvents(cfg.HoverEvents),
	)
	w := widget
	return promise(func() (interface{}, error) {
		loadMetadata := func(ctx context.Context) (viewer.Metadata, error) {
			return fetchMetadata(ctx, metaURL)
		}
		// The toolkit is this module; it is ready once main has run.
		toolkitReady := func(context.Context) error { return nil }
		if err := w.Initialize(context.Background(), loadMetadata, toolkitReady); err != nil {
			return nil, err
		}
		list.SetViewer(w)
		return okResult(), nil
	})
}

func fetchMetadata(ctx context.Context, url string) (viewer.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return viewer.Metadata{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return viewer.Metadata{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return viewer.Metadata{}, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}
	var meta viewer.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return viewer.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func destroy(this js.Value, args []js.Value) interface{} {
	if widget != nil {
		list.SetViewer(nil)
		widget.Destroy()
		widget = nil
	}
	return nil
}

func pointer(fn func(x, y float64)) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 || !rendered() {
			return nil
		}
		fn(args[0].Float(), args[1].Float())
		return nil
	}
}

func wheel(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 || !rendered() {
		return nil
	}
	widget.Scene().Wheel(args[0].Float(), args[1].Float(), args[2].Float())
	return nil
}

func resize(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || !rendered() {
		return nil
	}
	widget.Scene().Resize(args[0].Float(), args[1].Float())
	return nil
}

func finish(this js.Value, args []js.Value) interface{} {
	if rendered() {
		widget.Scene().Finish()
	}
	return nil
}

func loadSampleAnnotations(this js.Value, args []js.Value) interface{} {
	if !rendered() {
		return errorResult(fmt.Errorf("viewer not rendered"))
	}
	sizeX, sizeY := widget.Scene().Viewport().Size()
	itemID := "item_sample"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		itemID = args[0].String()
	}
	return js.ValueOf(showDocuments(itemID, annotation.SampleDocuments(sizeX, sizeY)))
}

// addAnnotations(itemID, documentsJSON) shows annotation documents held
// only in the page.
func addAnnotations(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: addAnnotations(itemId, documents)"))
	}
	docs, err := annotation.DecodeDocuments(strings.NewReader(args[1].String()))
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(showDocuments(args[0].String(), docs))
}

func showDocuments(itemID string, docs []annotation.Document) []interface{} {
	ids := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		info := annotation.Info{ID: typeid.NewAnnotationID(), ItemID: itemID, Name: doc.Name, Description: doc.Description}
		m := annotation.NewModel(info, doc.Elements)
		known[info.ID] = m
		list.Show(m)
		ids = append(ids, info.ID)
	}
	return ids
}

// loadAnnotations(baseURL, itemID) lists the item's annotations on the
// server and shows each one paged by the visible region.
func loadAnnotations(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: loadAnnotations(baseUrl, itemId)"))
	}
	baseURL, itemID := args[0].String(), args[1].String()
	fetcher := annotation.NewHTTPFetcher(baseURL)
	return promise(func() (interface{}, error) {
		infos, err := fetcher.ListAnnotations(context.Background(), itemID)
		if err != nil {
			return nil, err
		}
		ids := make([]interface{}, 0, len(infos))
		for _, info := range infos {
			p := annotation.NewPaged(info, fetcher, annotation.WithPageLimit(cfg.PageLimit))
			known[info.ID] = p
			list.Show(p)
			ids = append(ids, info.ID)
		}
		return js.ValueOf(ids), nil
	})
}

func withAnnotation(args []js.Value, fn func(a annotation.Annotation) interface{}) interface{} {
	if len(args) < 1 {
		return nil
	}
	a, ok := known[args[0].String()]
	if !ok {
		return errorResult(fmt.Errorf("unknown annotation %s", args[0].String()))
	}
	return fn(a)
}

func showAnnotation(this js.Value, args []js.Value) interface{} {
	return withAnnotation(args, func(a annotation.Annotation) interface{} {
		list.Show(a)
		return okResult()
	})
}

func hideAnnotation(this js.Value, args []js.Value) interface{} {
	return withAnnotation(args, func(a annotation.Annotation) interface{} {
		list.Hide(a)
		return okResult()
	})
}

func toggleAnnotation(this js.Value, args []js.Value) interface{} {
	return withAnnotation(args, func(a annotation.Annotation) interface{} {
		return js.ValueOf(list.Toggle(a))
	})
}

func highlight(this js.Value, args []js.Value) interface{} {
	if widget == nil {
		return nil
	}
	var annID, elID string
	if len(args) > 0 && args[0].Type() == js.TypeString {
		annID = args[0].String()
	}
	if len(args) > 1 && args[1].Type() == js.TypeString {
		elID = args[1].String()
	}
	widget.HighlightAnnotation(annID, elID)
	return nil
}

// startDrawMode(kind) resolves with the drawn element as JSON and rejects
// when the session is abandoned.
func startDrawMode(this js.Value, args []js.Value) interface{} {
	if widget == nil || len(args) < 1 {
		return nil
	}
	future := widget.StartDrawMode(render.ShapeKind(args[0].String()))
	return promise(func() (interface{}, error) {
		res, err := future.Wait(context.Background())
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(res.Element)
		if err != nil {
			return nil, err
		}
		return js.ValueOf(string(data)), nil
	})
}

func stopDrawMode(this js.Value, args []js.Value) interface{} {
	if rendered() {
		widget.Engine().Stop()
	}
	return nil
}

// jsRegion forwards the computed region to a page callback.
type jsRegion struct {
	callback js.Value
}

func (r jsRegion) SetRegion(left, top, width, height int) {
	if r.callback.Type() == js.TypeFunction {
		r.callback.Invoke(left, top, width, height)
	}
}

// drawRegion([callback]) resolves with [left, top, width, height].
func drawRegion(this js.Value, args []js.Value) interface{} {
	if widget == nil {
		return nil
	}
	target := jsRegion{callback: js.Undefined()}
	if len(args) > 0 {
		target.callback = args[0]
	}
	future := widget.DrawRegion(target)
	return promise(func() (interface{}, error) {
		region, err := future.Wait(context.Background())
		if err != nil {
			return nil, err
		}
		v := region.Values()
		return js.ValueOf([]interface{}{v[0], v[1], v[2], v[3]}), nil
	})
}

// connect(baseURL, itemID, targetAnnotationID) joins the item's
// collaboration room.
func connect(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult(fmt.Errorf("usage: connect(baseUrl, itemId, [target])"))
	}
	if relayCancel != nil {
		relayCancel()
	}
	rc := relay.Config{
		URL:       args[0].String(),
		ItemID:    args[1].String(),
		OnChanged: refetch,
	}
	if len(args) > 2 && args[2].Type() == js.TypeString {
		rc.Target = args[2].String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	relayCancel = cancel
	r := relay.New(bus, rc)
	go func() {
		if err := r.Run(ctx); err != nil {
			slog.Error("relay stopped", "item", rc.ItemID, "error", err)
		}
	}()
	return okResult()
}

func disconnect(this js.Value, args []js.Value) interface{} {
	if relayCancel != nil {
		relayCancel()
		relayCancel = nil
	}
	return nil
}

// refetch forces a paged annotation changed on the server to reload.
func refetch(annotationID string) {
	a, ok := known[annotationID]
	if !ok {
		return
	}
	if p, ok := a.(*annotation.Paged); ok {
		p.Refresh()
		if rendered() {
			widget.Engine().SyncView()
		}
	}
}

// on(topic, callback) forwards bus events to the page as JSON.
func on(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || args[1].Type() != js.TypeFunction {
		return nil
	}
	callback := args[1]
	cancel := bus.Subscribe(args[0].String(), func(payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("marshal event", "topic", args[0].String(), "error", err)
			return
		}
		callback.Invoke(string(data))
	})
	return js.FuncOf(func(js.Value, []js.Value) interface{} {
		cancel()
		return nil
	})
}

// --- Query Handlers ---

func renderFrame(this js.Value, args []js.Value) interface{} {
	if !rendered() {
		return js.ValueOf("[]")
	}
	return js.ValueOf(widget.Scene().Render())
}

func isDirty(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(rendered() && widget.Scene().Dirty())
}

func getState(this js.Value, args []js.Value) interface{} {
	state := map[string]interface{}{
		"rendered": rendered(),
		"visible":  list.Visible(),
	}
	if rendered() {
		eng := widget.Engine()
		target := eng.Target()
		state["drawn"] = eng.Annotations()
		state["drawing"] = eng.Drawing()
		state["target"] = map[string]string{"annotationId": target.AnnotationID, "elementId": target.ElementID}
		state["zoom"] = widget.Scene().Zoom()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(string(data))
}
