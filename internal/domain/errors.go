package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrCapacity       = errors.New("capacity exceeded")
	ErrOffline        = errors.New("offline")
	ErrSync           = errors.New("sync failed")
	ErrNotImplemented = errors.New("not implemented")
	ErrConstruction   = errors.New("cannot acquire drawing surface")
	ErrDestroyed      = errors.New("engine destroyed")
)

// CapacityError is returned when a bounded collection is full.
type CapacityError struct {
	Resource string
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: maximum of %d reached", e.Resource, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// RenderError isolates a failure to paint a single component.
type RenderError struct {
	ComponentID string
	Type        ComponentType
	Err         error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %s: %v", e.Type, e.ComponentID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
