// Package sim is an in-process stand-in for the embedded editor application.
//
// A sim Target behaves like the real embed: navigation completes after a
// load delay, and the editor only becomes ready once both of its internal
// components (scene and editor) have initialized, in random order, over a
// few ticks. Tests use Manual targets and drive every step by hand.
package sim

import (
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickwarner/embedpool/internal/embed"
	"github.com/patrickwarner/embedpool/internal/models"
)

// SceneParam is the query parameter of a source descriptor naming the scene
// the editor opens.
const SceneParam = "scene"

// ErrNotReady is returned by operations that need a ready editor.
var ErrNotReady = errors.New("editor not ready")

// Resolver resolves blob URIs minted for persisted payloads.
type Resolver interface {
	Resolve(uri string) (string, bool)
}

// Options tunes automatic targets.
type Options struct {
	LoadDelay  time.Duration
	ReadyDelay time.Duration
	ReadyTicks int
	Resolver   Resolver
	// Manual disables timers; callers drive loading with CompleteLoad and
	// InitComponent.
	Manual bool
}

type subscription struct {
	onLoad  func()
	onReady func(embed.Editor)
}

var _ embed.Target = (*Target)(nil)

// Target is a simulated embedded editor.
type Target struct {
	id   models.FrameID
	opts Options

	mu          sync.Mutex
	rng         *rand.Rand
	source      string
	navigation  uint64
	navigations int
	loaded      bool
	components  map[string]bool
	editor      *Editor
	nextSub     int
	subs        map[int]subscription

	rect      models.Rect
	height    float64
	visible   bool
	collapsed bool
}

// NewTarget creates a target for the given frame.
func NewTarget(id models.FrameID, opts Options) *Target {
	if opts.ReadyTicks <= 0 {
		opts.ReadyTicks = 1
	}
	return &Target{
		id:         id,
		opts:       opts,
		rng:        rand.New(rand.NewSource(int64(id) + time.Now().UnixNano())),
		components: make(map[string]bool),
		subs:       make(map[int]subscription),
		collapsed:  true,
	}
}

// Factory returns an embed.Factory producing sim targets with opts.
func Factory(opts Options) embed.Factory {
	return func(id models.FrameID) embed.Target {
		return NewTarget(id, opts)
	}
}

// Navigate starts loading source, discarding the current document.
func (t *Target) Navigate(source string) {
	t.mu.Lock()
	t.source = source
	nav := t.resetLocked()
	t.mu.Unlock()

	if !t.opts.Manual {
		time.AfterFunc(t.opts.LoadDelay, func() { t.autoLoad(nav) })
	}
}

// Reload reloads the current source.
func (t *Target) Reload() {
	t.mu.Lock()
	source := t.source
	t.mu.Unlock()
	t.Navigate(source)
}

func (t *Target) resetLocked() uint64 {
	t.navigation++
	t.navigations++
	t.loaded = false
	t.components = make(map[string]bool)
	t.editor = nil
	return t.navigation
}

// Loaded reports whether the current document finished loading.
func (t *Target) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// OnLoad registers fn for the next load completion.
func (t *Target) OnLoad(fn func()) func() {
	return t.subscribe(subscription{onLoad: fn})
}

// OnReady registers fn for editor readiness, firing at once when already ready.
func (t *Target) OnReady(fn func(embed.Editor)) func() {
	t.mu.Lock()
	if t.editor != nil {
		ed := t.editor
		t.mu.Unlock()
		fn(ed)
		return func() {}
	}
	t.mu.Unlock()
	return t.subscribe(subscription{onReady: fn})
}

func (t *Target) subscribe(s subscription) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = s
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Editor returns the editor once both components have initialized.
func (t *Target) Editor() (embed.Editor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editor == nil {
		return nil, false
	}
	return t.editor, true
}

// Place positions the frame.
func (t *Target) Place(r models.Rect) {
	t.mu.Lock()
	t.rect = r
	t.mu.Unlock()
}

// Show expands the frame to height.
func (t *Target) Show(height float64) {
	t.mu.Lock()
	t.height = height
	t.visible = true
	t.collapsed = false
	t.mu.Unlock()
}

// Collapse squashes the frame to a 1px strip.
func (t *Target) Collapse() {
	t.mu.Lock()
	t.height = 1
	t.visible = false
	t.collapsed = true
	t.mu.Unlock()
}

func (t *Target) autoLoad(nav uint64) {
	if !t.completeLoad(nav, true) {
		return
	}
	// scene and editor initialize independently at random ticks
	for _, name := range []string{"scene", "editor"} {
		name := name
		tick := 1 + t.randIntn(t.opts.ReadyTicks)
		time.AfterFunc(time.Duration(tick)*t.opts.ReadyDelay, func() {
			t.initComponent(nav, name)
		})
	}
}

func (t *Target) randIntn(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Intn(n)
}

// CompleteLoad finishes the current navigation and fires load subscribers.
func (t *Target) CompleteLoad() {
	t.mu.Lock()
	nav := t.navigation
	t.mu.Unlock()
	t.completeLoad(nav, true)
}

// CompleteLoadSilently finishes the current navigation without firing load
// subscribers, like a browser that skips a repeated load event.
func (t *Target) CompleteLoadSilently() {
	t.mu.Lock()
	nav := t.navigation
	t.mu.Unlock()
	t.completeLoad(nav, false)
}

func (t *Target) completeLoad(nav uint64, notify bool) bool {
	t.mu.Lock()
	if nav != t.navigation || t.loaded {
		t.mu.Unlock()
		return false
	}
	t.loaded = true
	var fns []func()
	if notify {
		for id, s := range t.subs {
			if s.onLoad != nil {
				fns = append(fns, s.onLoad)
				delete(t.subs, id)
			}
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true
}

// InitComponent marks one internal component ("scene" or "editor") as
// initialized. The editor becomes ready once both are.
func (t *Target) InitComponent(name string) {
	t.mu.Lock()
	nav := t.navigation
	t.mu.Unlock()
	t.initComponent(nav, name)
}

// BecomeReady initializes both components.
func (t *Target) BecomeReady() {
	t.InitComponent("scene")
	t.InitComponent("editor")
}

func (t *Target) initComponent(nav uint64, name string) {
	t.mu.Lock()
	if nav != t.navigation || !t.loaded || t.editor != nil {
		t.mu.Unlock()
		return
	}
	t.components[name] = true
	if !t.components["scene"] || !t.components["editor"] {
		t.mu.Unlock()
		return
	}
	t.editor = NewEditor(t.initialText(t.source))
	ed := t.editor
	var fns []func(embed.Editor)
	for id, s := range t.subs {
		if s.onReady != nil {
			fns = append(fns, s.onReady)
			delete(t.subs, id)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ed)
	}
}

// initialText is what the editor shows right after loading source: the
// payload behind a blob scene URI, or a stub naming the scene file.
func (t *Target) initialText(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	scene := u.Query().Get(SceneParam)
	if strings.HasPrefix(scene, "blob:") && t.opts.Resolver != nil {
		if text, ok := t.opts.Resolver.Resolve(scene); ok {
			return text
		}
	}
	return "# scene: " + scene + "\n"
}

// Source returns the descriptor of the current document.
func (t *Target) Source() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// Navigations returns how many times the target navigated or reloaded.
func (t *Target) Navigations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.navigations
}

// Visible reports whether the frame is shown at full height.
func (t *Target) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible && !t.collapsed
}

// Rect returns the last position set by Place.
func (t *Target) Rect() models.Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rect
}

// PendingSubscriptions returns the number of registered, unfired callbacks.
func (t *Target) PendingSubscriptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
