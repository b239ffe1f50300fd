package viewer

import (
	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

// AnnotationList tracks which annotations are shown and carries them over
// when the image viewer is replaced.
type AnnotationList struct {
	viewer  *Widget
	order   []string
	visible map[string]annotation.Annotation
}

func NewAnnotationList() *AnnotationList {
	return &AnnotationList{visible: make(map[string]annotation.Annotation)}
}

// SetViewer moves every shown annotation from the current viewer to w.
func (l *AnnotationList) SetViewer(w *Widget) {
	if l.viewer == w {
		return
	}
	if l.viewer != nil {
		for _, id := range l.order {
			l.viewer.RemoveAnnotation(l.visible[id])
		}
	}
	l.viewer = w
	if w != nil {
		for _, id := range l.order {
			w.DrawAnnotation(l.visible[id])
		}
	}
}

func (l *AnnotationList) Viewer() *Widget {
	return l.viewer
}

// Show draws a and remembers it as visible.
func (l *AnnotationList) Show(a annotation.Annotation) {
	id := a.ID()
	if _, ok := l.visible[id]; !ok {
		l.order = append(l.order, id)
	}
	l.visible[id] = a
	if l.viewer != nil {
		l.viewer.DrawAnnotation(a)
	}
}

// Hide removes a from the viewer.
func (l *AnnotationList) Hide(a annotation.Annotation) {
	id := a.ID()
	if _, ok := l.visible[id]; !ok {
		return
	}
	delete(l.visible, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if l.viewer != nil {
		l.viewer.RemoveAnnotation(a)
	}
}

// Toggle shows a hidden annotation or hides a shown one and reports
// whether it is now visible.
func (l *AnnotationList) Toggle(a annotation.Annotation) bool {
	if _, ok := l.visible[a.ID()]; ok {
		l.Hide(a)
		return false
	}
	l.Show(a)
	return true
}

// Visible returns the ids of shown annotations in the order they were shown.
func (l *AnnotationList) Visible() []string {
	return append([]string(nil), l.order...)
}

// Get returns a shown annotation by id.
func (l *AnnotationList) Get(id string) (annotation.Annotation, bool) {
	a, ok := l.visible[id]
	return a, ok
}
