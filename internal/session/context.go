// Package session holds the per-client identity the router and the answer
// pipeline read: role, own user id, classroom mode, and — for teachers —
// the currently viewed student selection.
package session

import (
	"sync"

	"classboard/pkg/types"
)

// Context is the explicit session state object shared by the router,
// answer pipeline, and viewer. It replaces free module-level state so the
// components can be wired with fakes in tests.
//
// The viewed selection can change while a submit request is in flight, so
// all access goes through the lock.
type Context struct {
	mu     sync.RWMutex
	role   types.Role
	userID int
	mode   types.Mode
	viewed []int
}

// NewContext creates a session context for one connected client.
func NewContext(role types.Role, userID int, mode types.Mode) *Context {
	return &Context{
		role:   role,
		userID: userID,
		mode:   mode,
	}
}

func (c *Context) Role() types.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Context) UserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Context) Mode() types.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetViewedStudent replaces the viewed selection. A single id becomes a
// one-element list; passing several ids keeps their order. The coercion to
// a list happens here and nowhere else, so every reader compares integer
// membership against the same shape.
func (c *Context) SetViewedStudent(ids ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewed = append([]int(nil), ids...)
}

// ClearViewedStudent resets the selection to "no student selected".
func (c *Context) ClearViewedStudent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewed = nil
}

// ViewedStudents returns a copy of the current selection; empty means no
// student is selected.
func (c *Context) ViewedStudents() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.viewed...)
}

// IsViewed reports whether the given student id is in the viewed set.
func (c *Context) IsViewed(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.viewed {
		if v == id {
			return true
		}
	}
	return false
}

// ActingUserID is the user id submissions are persisted under: the viewed
// student when a teacher drives a student's view, otherwise the session's
// own id.
func (c *Context) ActingUserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.role == types.RoleTeacher && len(c.viewed) > 0 {
		return c.viewed[0]
	}
	return c.userID
}
