package sim

import "sync"

// Editor is the simulated editable document.
type Editor struct {
	mu         sync.Mutex
	text       string
	injections int
	textErr    error
	setErr     error
	panicText  bool
}

// NewEditor returns an editor showing text.
func NewEditor(text string) *Editor {
	return &Editor{text: text}
}

// Text returns the current document text.
func (e *Editor) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panicText {
		panic("editor document inaccessible")
	}
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.text, nil
}

// SetText replaces the document text programmatically.
func (e *Editor) SetText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setErr != nil {
		return e.setErr
	}
	e.text = text
	e.injections++
	return nil
}

// Type replaces the text as if the user edited it.
func (e *Editor) Type(text string) {
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()
}

// Injections counts SetText calls.
func (e *Editor) Injections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.injections
}

// FailText makes Text return err.
func (e *Editor) FailText(err error) {
	e.mu.Lock()
	e.textErr = err
	e.mu.Unlock()
}

// FailSetText makes SetText return err without changing the text.
func (e *Editor) FailSetText(err error) {
	e.mu.Lock()
	e.setErr = err
	e.mu.Unlock()
}

// PanicOnText makes Text panic, like a cross-origin document throwing.
func (e *Editor) PanicOnText() {
	e.mu.Lock()
	e.panicText = true
	e.mu.Unlock()
}
