// Package exercise tracks the handlers of currently mounted exercises.
// The UI layer mounts a handler per task at startup and unmounts it when
// the task leaves the page; the router and the replay path look handlers
// up by task id. This replaces the original platform's resolution of apply
// functions by string-concatenated name.
package exercise

import (
	"sort"
	"sync"

	"classboard/pkg/interfaces"
)

// Registry maps task ids to their exercise handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]interfaces.ExerciseHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]interfaces.ExerciseHandler),
	}
}

// Mount registers the handler for a task, replacing any previous one.
func (r *Registry) Mount(taskID string, h interfaces.ExerciseHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskID] = h
}

// Unmount removes the task's handler. Unmounting an unknown task is a
// no-op; a late-arriving event for it simply finds no handler.
func (r *Registry) Unmount(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, taskID)
}

// Get returns the handler for a task, or nil if the task is not mounted.
func (r *Registry) Get(taskID string) interfaces.ExerciseHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[taskID]
}

// Tasks returns the mounted task ids in sorted order so that replay
// iterates deterministically.
func (r *Registry) Tasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]string, 0, len(r.handlers))
	for taskID := range r.handlers {
		tasks = append(tasks, taskID)
	}
	sort.Strings(tasks)
	return tasks
}

// Len returns the number of mounted exercises.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
