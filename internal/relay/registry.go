package relay

import (
	"sort"
	"sync"

	"classboard/pkg/types"
)

// classroom is one classroom's live connections: at most one teacher and
// any number of students keyed by id.
type classroom struct {
	teacher  *Conn
	students map[int]*Conn
}

// Registry tracks connections per classroom with thread-safe operations.
// Pure connection bookkeeping; routing decisions live in the hub.
type Registry struct {
	mu         sync.RWMutex
	classrooms map[string]*classroom
}

func NewRegistry() *Registry {
	return &Registry{classrooms: make(map[string]*classroom)}
}

// Register adds a connection, replacing any existing connection for the
// same participant. The replaced connection is closed asynchronously so
// registration never blocks on a peer's shutdown.
func (r *Registry) Register(conn *Conn) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.classrooms[conn.ClassroomID()]
	if room == nil {
		room = &classroom{students: make(map[int]*Conn)}
		r.classrooms[conn.ClassroomID()] = room
	}

	var replaced *Conn
	switch conn.Role() {
	case types.RoleTeacher:
		replaced = room.teacher
		room.teacher = conn
	case types.RoleStudent:
		replaced = room.students[conn.UserID()]
		room.students[conn.UserID()] = conn
	}

	if replaced != nil && replaced != conn {
		go func() { _ = replaced.Close() }()
	}
	return nil
}

// Unregister removes a connection. Idempotent, and guarded by pointer
// identity so an old connection's cleanup cannot evict its replacement.
func (r *Registry) Unregister(conn *Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.classrooms[conn.ClassroomID()]
	if room == nil {
		return
	}

	switch conn.Role() {
	case types.RoleTeacher:
		if room.teacher == conn {
			room.teacher = nil
		}
	case types.RoleStudent:
		if room.students[conn.UserID()] == conn {
			delete(room.students, conn.UserID())
		}
	}

	if room.teacher == nil && len(room.students) == 0 {
		delete(r.classrooms, conn.ClassroomID())
	}
}

// Teacher returns the classroom's teacher connection, nil when absent.
func (r *Registry) Teacher(classroomID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room := r.classrooms[classroomID]; room != nil {
		return room.teacher
	}
	return nil
}

// Student returns one student connection, nil when absent.
func (r *Registry) Student(classroomID string, userID int) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room := r.classrooms[classroomID]; room != nil {
		return room.students[userID]
	}
	return nil
}

// Students returns all student connections in id order.
func (r *Registry) Students(classroomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.classrooms[classroomID]
	if room == nil {
		return nil
	}
	ids := make([]int, 0, len(room.students))
	for id := range room.students {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	conns := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, room.students[id])
	}
	return conns
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := 0
	for _, room := range r.classrooms {
		if room.teacher != nil {
			connections++
		}
		connections += len(room.students)
	}
	return map[string]int{
		"connections": connections,
		"classrooms":  len(r.classrooms),
	}
}
