// Package registry owns the ordered signboard collection.
//
// Every mutation builds the next snapshot, saves it through the store and
// only then replaces the in-memory state, so a failed save leaves the
// registry unchanged and nothing is acknowledged before it is durable.
// The registry expects a single writer (the dispatcher loop); its lock only
// protects readers on other goroutines such as the metrics endpoint.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/dyluth/signboard/internal/config"
	"github.com/dyluth/signboard/internal/store"
	"github.com/dyluth/signboard/pkg/signboard"
)

// ErrNoTarget is returned when an operation falls back to the current target
// and the collection is empty.
var ErrNoTarget = errors.New("no signboard to target")

// Defaults are the values given to newly created signboards.
type Defaults struct {
	TextColor  signboard.TextColor
	NameFormat string // fmt verb %d receives the 1-based position
	Layout     Layout
}

// DefaultsFrom extracts the registry defaults from a validated config.
func DefaultsFrom(cfg *config.Config) Defaults {
	return Defaults{
		TextColor:  cfg.TextColor(),
		NameFormat: cfg.Defaults.NameFormat,
		Layout:     DefaultLayout(),
	}
}

// Registry is the in-memory collection of signboards plus the active
// target and the global visibility flag.
type Registry struct {
	mu       sync.RWMutex
	store    store.Store
	defaults Defaults

	items    []signboard.Signboard
	activeID string
	visible  bool

	issued map[string]struct{} // every id ever generated or loaded
	newID  func() string
}

// New creates an empty registry on st. Call Load before use.
func New(st store.Store, defaults Defaults) *Registry {
	if defaults.TextColor == "" {
		defaults.TextColor = signboard.DefaultTextColor
	}
	if defaults.NameFormat == "" {
		defaults.NameFormat = config.DefaultNameFormat
	}
	if defaults.Layout == (Layout{}) {
		defaults.Layout = DefaultLayout()
	}
	return &Registry{
		store:    st,
		defaults: defaults,
		items:    []signboard.Signboard{},
		visible:  true,
		issued:   make(map[string]struct{}),
		newID:    signboard.ShortID,
	}
}

// Load replaces the collection with the persisted one. On the first-ever
// launch (no marker in the store) exactly one default signboard is created
// and persisted. The first signboard becomes the active target.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.store.Load(ctx)
	for _, item := range items {
		r.issued[item.ID] = struct{}{}
	}

	if len(items) == 0 && !r.store.Initialized(ctx) {
		seed := []signboard.Signboard{r.makeDefault(0)}
		if err := r.store.Save(ctx, seed); err != nil {
			return fmt.Errorf("failed to persist default signboard: %w", err)
		}
		items = seed
		log.Printf("[Registry] First launch: created %s", seed[0].ID)
	}

	r.items = items
	r.activeID = ""
	if len(items) > 0 {
		r.activeID = items[0].ID
	}
	return nil
}

// Create adds a signboard with text. An empty id is replaced by a fresh
// short id. An id that already exists updates that signboard's text instead;
// the returned bool is true only when a new signboard was appended.
func (r *Registry) Create(ctx context.Context, id, text string) (signboard.Signboard, bool, error) {
	id = strings.TrimSpace(id)
	if text == "" {
		return signboard.Signboard{}, false, signboard.ErrTextRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" && r.indexOf(id) >= 0 {
		item, err := r.mutate(ctx, id, func(s *signboard.Signboard) error {
			s.Text = text
			return nil
		})
		return item, false, err
	}

	if id == "" {
		id = r.generateID()
	}
	item := r.makeSignboard(id, text, len(r.items))
	if err := r.append(ctx, item); err != nil {
		return signboard.Signboard{}, false, err
	}
	r.issued[id] = struct{}{}
	return item, true, nil
}

// CreateDefault appends a signboard named after its position.
func (r *Registry) CreateDefault(ctx context.Context) (signboard.Signboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.makeDefault(len(r.items))
	if err := r.append(ctx, item); err != nil {
		return signboard.Signboard{}, err
	}
	return item, nil
}

// Update replaces the text of the signboard with id.
func (r *Registry) Update(ctx context.Context, id, text string) (signboard.Signboard, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return signboard.Signboard{}, signboard.ErrIDRequired
	}
	if text == "" {
		return signboard.Signboard{}, signboard.ErrTextRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mutate(ctx, id, func(s *signboard.Signboard) error {
		s.Text = text
		return nil
	})
}

// Delete removes the signboard with id. If it was the active target, the
// signboard now at the same position (or the new last one) becomes active.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return signboard.ErrIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return &signboard.NotFoundError{ID: id}
	}

	next := make([]signboard.Signboard, 0, len(r.items)-1)
	next = append(next, r.items[:idx]...)
	next = append(next, r.items[idx+1:]...)
	if err := r.commit(ctx, next); err != nil {
		return err
	}

	if r.activeID == id {
		r.activeID = ""
		if len(next) > 0 {
			r.activeID = next[min(idx, len(next)-1)].ID
		}
	}
	return nil
}

// DeleteAll removes every signboard and returns how many there were.
func (r *Registry) DeleteAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.items)
	if err := r.commit(ctx, []signboard.Signboard{}); err != nil {
		return 0, err
	}
	r.activeID = ""
	return n, nil
}

// SetText changes the text of id, or of the current target when id is empty.
func (r *Registry) SetText(ctx context.Context, id, text string) (signboard.Signboard, error) {
	if text == "" {
		return signboard.Signboard{}, signboard.ErrTextRequired
	}
	return r.mutateTarget(ctx, id, func(s *signboard.Signboard) error {
		s.Text = text
		return nil
	})
}

// SetTextColor changes the text color of id, or of the current target.
func (r *Registry) SetTextColor(ctx context.Context, id string, color signboard.TextColor) (signboard.Signboard, error) {
	if err := color.Validate(); err != nil {
		return signboard.Signboard{}, &signboard.ValidationError{Field: "textColor", Message: err.Error()}
	}
	return r.mutateTarget(ctx, id, func(s *signboard.Signboard) error {
		s.TextColor = color
		return nil
	})
}

// SetOpacity changes the opacity of id, or of the current target.
func (r *Registry) SetOpacity(ctx context.Context, id string, opacity float64) (signboard.Signboard, error) {
	if err := signboard.ValidateOpacity(opacity); err != nil {
		return signboard.Signboard{}, &signboard.ValidationError{Field: "opacity", Message: err.Error()}
	}
	return r.mutateTarget(ctx, id, func(s *signboard.Signboard) error {
		s.Opacity = opacity
		return nil
	})
}

// SetFrame moves or resizes id, or the current target.
func (r *Registry) SetFrame(ctx context.Context, id string, frame signboard.Frame) (signboard.Signboard, error) {
	if err := frame.Validate(); err != nil {
		return signboard.Signboard{}, &signboard.ValidationError{Field: "frame", Message: err.Error()}
	}
	return r.mutateTarget(ctx, id, func(s *signboard.Signboard) error {
		s.Frame = frame
		return nil
	})
}

// SetActive makes id the active target.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = strings.TrimSpace(id)
	if r.indexOf(id) < 0 {
		return &signboard.NotFoundError{ID: id}
	}
	r.activeID = id
	return nil
}

// ActiveID returns the active target's id, or "" when there is none.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// CurrentTarget returns the active signboard, falling back to the first one.
func (r *Registry) CurrentTarget() (signboard.Signboard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.targetIndex()
	if idx < 0 {
		return signboard.Signboard{}, false
	}
	return r.items[idx], true
}

// SetVisible shows or hides every signboard. Visibility is not persisted.
func (r *Registry) SetVisible(visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = visible
}

// Visible reports the global visibility flag.
func (r *Registry) Visible() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visible
}

// List returns one "<id> <text>" line per signboard in collection order,
// with line breaks in the text flattened to spaces.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := make([]string, 0, len(r.items))
	for _, item := range r.items {
		lines = append(lines, signboard.ListLine(item))
	}
	return lines
}

// Get returns the signboard with id.
func (r *Registry) Get(id string) (signboard.Signboard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(strings.TrimSpace(id))
	if idx < 0 {
		return signboard.Signboard{}, false
	}
	return r.items[idx], true
}

// All returns a copy of the collection in order.
func (r *Registry) All() []signboard.Signboard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]signboard.Signboard{}, r.items...)
}

// Len returns the number of signboards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// mutateTarget locks and applies fn to id or, when id is empty, to the
// current target.
func (r *Registry) mutateTarget(ctx context.Context, id string, fn func(*signboard.Signboard) error) (signboard.Signboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = strings.TrimSpace(id)
	if id == "" {
		idx := r.targetIndex()
		if idx < 0 {
			return signboard.Signboard{}, ErrNoTarget
		}
		id = r.items[idx].ID
	}
	return r.mutate(ctx, id, fn)
}

// mutate applies fn to a copy of the signboard with id and commits the
// resulting snapshot. Caller holds mu.
func (r *Registry) mutate(ctx context.Context, id string, fn func(*signboard.Signboard) error) (signboard.Signboard, error) {
	idx := r.indexOf(id)
	if idx < 0 {
		return signboard.Signboard{}, &signboard.NotFoundError{ID: id}
	}

	next := append([]signboard.Signboard{}, r.items...)
	if err := fn(&next[idx]); err != nil {
		return signboard.Signboard{}, err
	}
	if err := r.commit(ctx, next); err != nil {
		return signboard.Signboard{}, err
	}
	return next[idx], nil
}

// append commits the collection with item added at the end. Caller holds mu.
func (r *Registry) append(ctx context.Context, item signboard.Signboard) error {
	next := make([]signboard.Signboard, 0, len(r.items)+1)
	next = append(next, r.items...)
	next = append(next, item)
	return r.commit(ctx, next)
}

// commit persists next and, only if that succeeds, makes it current.
// Caller holds mu.
func (r *Registry) commit(ctx context.Context, next []signboard.Signboard) error {
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist signboards: %w", err)
	}
	r.items = next
	return nil
}

func (r *Registry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, item := range r.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) targetIndex() int {
	if idx := r.indexOf(r.activeID); idx >= 0 {
		return idx
	}
	if len(r.items) > 0 {
		return 0
	}
	return -1
}

// generateID draws short ids until one has never been seen in this process.
func (r *Registry) generateID() string {
	for {
		id := r.newID()
		if _, seen := r.issued[id]; seen {
			continue
		}
		if r.indexOf(id) >= 0 {
			continue
		}
		r.issued[id] = struct{}{}
		return id
	}
}

func (r *Registry) makeDefault(index int) signboard.Signboard {
	return r.makeSignboard(r.generateID(), fmt.Sprintf(r.defaults.NameFormat, index+1), index)
}

func (r *Registry) makeSignboard(id, text string, index int) signboard.Signboard {
	return signboard.Signboard{
		ID:        id,
		Text:      text,
		Frame:     r.defaults.Layout.FrameAt(index),
		Opacity:   DefaultOpacity,
		TextColor: r.defaults.TextColor,
	}
}
