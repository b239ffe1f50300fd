package overlay

import "github.com/tilescope/tilescope/backend-go/internal/annotation"

// SyncView pushes the viewer's current bounds and zoom to every drawn
// annotation that pages its elements by view.
func (e *Engine) SyncView() {
	list := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		list = append(list, ent)
	}
	e.syncView(list...)
}

func (e *Engine) syncView(list ...*entry) {
	zoom := e.viewer.Zoom()
	bounds := e.viewer.Bounds()
	_, zoomMax := e.viewer.ZoomRange()

	for _, ent := range list {
		if !ent.fetch {
			continue
		}
		if v, ok := ent.annotation.(annotation.Viewable); ok {
			v.SetView(bounds, zoom, zoomMax)
		}
	}
}
