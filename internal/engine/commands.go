package engine

import (
	"fmt"
	"log"

	"whiteboard/internal/domain"
	"whiteboard/internal/viewport"
)

// ── History ─────────────────────────────────────────────────

// Undo reverts the latest entry and reports whether there was one.
func (e *Engine) Undo() bool {
	if !e.alive() {
		return false
	}
	entry := e.History.Undo()
	if entry == nil {
		return false
	}
	e.replay(entry, true)
	return true
}

// Redo reapplies the latest undone entry.
func (e *Engine) Redo() bool {
	if !e.alive() {
		return false
	}
	entry := e.History.Redo()
	if entry == nil {
		return false
	}
	e.replay(entry, false)
	return true
}

func (e *Engine) CanUndo() bool { return e.History.CanUndo() }
func (e *Engine) CanRedo() bool { return e.History.CanRedo() }

// replay applies the states an entry carries for one direction. Batch
// items are applied in recorded order.
func (e *Engine) replay(entry *domain.HistoryEntry, isUndo bool) {
	for _, item := range entry.Items(isUndo) {
		e.applyState(item.ComponentID, item.State)
	}
	e.Selection.Prune()
	e.RequestRender()
}

// applyState makes the stored component match state. A nil state deletes
// it; a state for a missing component re-creates it with the same id.
func (e *Engine) applyState(id string, state *domain.Component) {
	if state == nil {
		e.Components.Delete(id)
		return
	}
	if e.Components.Has(id) {
		e.Components.Update(id, domain.PatchFrom(state))
		return
	}
	cp := state.Clone()
	cp.ID = id
	if _, err := e.Components.Insert(cp); err != nil {
		log.Printf("[ENGINE] restore %s: %v", id, err)
	}
}

// ── Selection ───────────────────────────────────────────────

func (e *Engine) Select(id string, add bool) { e.Selection.Select(id, add) }
func (e *Engine) SelectMany(ids []string) { e.Selection.SelectMany(ids) }
func (e *Engine) ClearSelection() { e.Selection.Clear() }
func (e *Engine) SelectAll() { e.Selection.SelectAll() }
func (e *Engine) SelectedIDs() []string { return e.Selection.IDs() }

// DeleteSelected removes the selection as one undo step.
func (e *Engine) DeleteSelected() int {
	if !e.alive() {
		return 0
	}
	ids := e.Selection.IDs()
	if len(ids) == 0 {
		return 0
	}
	e.History.StartBatch()
	for _, id := range ids {
		if c := e.Components.Get(id); c != nil {
			e.History.Record(domain.ActionDelete, id, c, nil)
		}
	}
	e.History.EndBatch()
	n := e.Components.BatchDelete(ids)
	e.Selection.Clear()
	return n
}

// DuplicateSelected copies the selection as one undo step and selects the
// copies.
func (e *Engine) DuplicateSelected() []*domain.Component {
	if !e.alive() {
		return nil
	}
	ids := e.Selection.IDs()
	if len(ids) == 0 {
		return nil
	}
	copies := e.Components.Duplicate(ids)
	if len(copies) == 0 {
		return nil
	}
	e.History.StartBatch()
	newIDs := make([]string, len(copies))
	for i, c := range copies {
		e.History.Record(domain.ActionCreate, c.ID, nil, c)
		newIDs[i] = c.ID
	}
	e.History.EndBatch()
	e.Selection.SelectMany(newIDs)
	return copies
}

// ── Components ──────────────────────────────────────────────

// AddComponent creates a component on layerID and records it for undo.
// A zero layerID means the active layer.
func (e *Engine) AddComponent(typ domain.ComponentType, layerID int, pos domain.Point, data domain.ComponentData, width, height float64) (*domain.Component, error) {
	if !e.alive() {
		return nil, domain.ErrDestroyed
	}
	if layerID == 0 {
		layerID = e.Layers.ActiveID()
	}
	if e.Layers.IsLocked(layerID) {
		return nil, fmt.Errorf("%w: layer %d is locked", domain.ErrValidation, layerID)
	}
	c, err := e.Components.Create(typ, layerID, pos, data)
	if err != nil {
		return nil, err
	}
	if width > 0 && height > 0 {
		c = e.Components.Update(c.ID, domain.ComponentPatch{Width: &width, Height: &height})
	}
	e.History.Record(domain.ActionCreate, c.ID, nil, c)
	return c, nil
}

// UpdateComponent patches a component and records the change.
func (e *Engine) UpdateComponent(id string, patch domain.ComponentPatch) (*domain.Component, error) {
	if !e.alive() {
		return nil, domain.ErrDestroyed
	}
	prev := e.Components.Get(id)
	if prev == nil {
		return nil, fmt.Errorf("%w: component %s", domain.ErrNotFound, id)
	}
	next := e.Components.Update(id, patch)
	if next == nil {
		return nil, fmt.Errorf("%w: component %s rejected update", domain.ErrValidation, id)
	}
	e.History.Record(domain.ActionUpdate, id, prev, next)
	return next, nil
}

// MoveComponents translates components as one undo step.
func (e *Engine) MoveComponents(ids []string, dx, dy float64) int {
	if !e.alive() {
		return 0
	}
	moved := 0
	e.History.StartBatch()
	for _, id := range ids {
		prev := e.Components.Get(id)
		if prev == nil || prev.Locked || e.Layers.IsLocked(prev.LayerID) {
			continue
		}
		if next := e.Components.Translate(id, dx, dy); next != nil {
			e.History.Record(domain.ActionMove, id, prev, next)
			moved++
		}
	}
	e.History.EndBatch()
	return moved
}

// DeleteComponents removes components as one undo step.
func (e *Engine) DeleteComponents(ids []string) int {
	if !e.alive() {
		return 0
	}
	deleted := 0
	e.History.StartBatch()
	for _, id := range ids {
		prev := e.Components.Get(id)
		if prev == nil {
			continue
		}
		if e.Components.Delete(id) {
			e.History.Record(domain.ActionDelete, id, prev, nil)
			deleted++
		}
	}
	e.History.EndBatch()
	return deleted
}

// ── Layers ──────────────────────────────────────────────────

func (e *Engine) CreateLayer(name string) (*domain.Layer, error) {
	if !e.alive() {
		return nil, domain.ErrDestroyed
	}
	return e.Layers.Create(name, domain.LayerTypeContent)
}

// DeleteLayer removes a layer and its components. The last layer is kept.
func (e *Engine) DeleteLayer(id int) bool {
	if !e.alive() || !e.Layers.Has(id) || e.Layers.Count() <= 1 {
		return false
	}
	e.Components.BatchDelete(e.Components.IDsByLayer(id))
	return e.Layers.Delete(id)
}

// MergeLayers moves every component of source onto target and removes
// source.
func (e *Engine) MergeLayers(source, target int) (*domain.Layer, bool) {
	if !e.alive() || source == target || !e.Layers.Has(source) || !e.Layers.Has(target) {
		return nil, false
	}
	e.Components.MoveToLayer(e.Components.IDsByLayer(source), target)
	return e.Layers.Merge(source, target)
}

func (e *Engine) SetActiveLayer(id int) { e.Layers.SetActive(id) }

func (e *Engine) ActiveLayer() (domain.Layer, bool) { return e.Layers.Active() }

// ── View ────────────────────────────────────────────────────

func (e *Engine) ZoomIn() { e.Viewport.ZoomIn(nil) }
func (e *Engine) ZoomOut() { e.Viewport.ZoomOut(nil) }
func (e *Engine) ZoomTo(level float64) { e.Viewport.Zoom(level, nil) }
func (e *Engine) ResetView() { e.Viewport.Reset() }

func (e *Engine) FitToContent() {
	e.Viewport.FitToContent(e.Components.All(), viewport.DefaultPadding)
}

// ── Tools ───────────────────────────────────────────────────

func (e *Engine) SetTool(kind domain.ToolKind) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	e.input.Lock()
	defer e.input.Unlock()
	return e.Tools.SetActive(kind)
}

func (e *Engine) Tool() domain.ToolKind {
	e.input.Lock()
	defer e.input.Unlock()
	return e.Tools.ActiveKind()
}

// ToolConfig returns the style of the active tool.
func (e *Engine) ToolConfig() domain.ToolConfig {
	e.input.Lock()
	defer e.input.Unlock()
	return e.Tools.Config(e.Tools.ActiveKind())
}

// SetToolConfig patches the style of the active tool.
func (e *Engine) SetToolConfig(patch domain.ToolConfigPatch) domain.ToolConfig {
	e.input.Lock()
	defer e.input.Unlock()
	return e.Tools.UpdateConfig(e.Tools.ActiveKind(), patch)
}
