package editor

import (
	"errors"
	"sync"

	"github.com/congregate/backend/pkg/validation"
)

// Variant is the visual weight of a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is one transient user notification.
type Toast struct {
	Title       string
	Description string
	Variant     Variant
}

// Toaster receives toasts. Fire and forget.
type Toaster interface {
	Toast(t Toast)
}

// ToasterFunc adapts a function to Toaster.
type ToasterFunc func(Toast)

func (f ToasterFunc) Toast(t Toast) { f(t) }

// DiscardToasts drops every toast.
var DiscardToasts Toaster = ToasterFunc(func(Toast) {})

// ToastRecorder keeps every toast it receives.
type ToastRecorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *ToastRecorder) Toast(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

// All returns a copy of the recorded toasts.
func (r *ToastRecorder) All() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Last returns the most recent toast.
func (r *ToastRecorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

// describe turns an error into toast text. Field errors get the generic validation message.
func describe(tr Translator, err error) string {
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		return tr.T("Errors.Validation", nil)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
