package history

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store used in test mode.
type Memory struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*Task
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*Task)}
}

func (m *Memory) Create(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("deploy %s already exists", task.ID)
	}
	m.tasks[task.ID] = task.Clone()
	m.order = append(m.order, task.ID)
	return nil
}

func (m *Memory) Update(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, task.ID)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task.Clone(), nil
}

func (m *Memory) Latest(ctx context.Context, target string) (*Task, error) {
	tasks, err := m.List(ctx, target, 1)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return tasks[0], nil
}

func (m *Memory) List(ctx context.Context, target string, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := []*Task{}
	for i := len(m.order) - 1; i >= 0 && len(tasks) < limit; i-- {
		task := m.tasks[m.order[i]]
		if target == "" || task.Target == target {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks, nil
}

func (m *Memory) FailStale(ctx context.Context, target, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	for _, task := range m.tasks {
		if task.Target != target || task.Status.Terminal() {
			continue
		}
		task.Status = StatusFailed
		task.CompletedAt = &now
		if task.ExitCode == nil {
			code := -1
			task.ExitCode = &code
		}
		task.Error = reason
		n++
	}
	return n, nil
}

func (m *Memory) Close() error {
	return nil
}
