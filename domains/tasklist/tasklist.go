// Package tasklist models a to-do list as an event-sourced aggregate: a set
// of task records keyed by task id, with creation, removal, completion and
// due-date changes recorded as events.
package tasklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/streamwright/eventfold/core/es"
	"github.com/streamwright/eventfold/core/es/assert"
)

const AggType = "task_list"

var (
	ErrTaskAlreadyExists   = errors.New("task already exists")
	ErrTaskDoesNotExist    = errors.New("task does not exist")
	ErrTaskAlreadyFinished = errors.New("task already finished")
)

// === Events ===

type (
	TaskAdded struct {
		ID      uint32     `json:"id"`
		Name    string     `json:"name"`
		DueDate *time.Time `json:"due_date,omitempty"`
	}

	TaskRemoved struct {
		ID uint32 `json:"id"`
	}

	AllTasksCleared struct{}

	TaskCompleted struct {
		ID uint32 `json:"id"`
	}

	TaskDueDateChanged struct {
		ID      uint32     `json:"id"`
		DueDate *time.Time `json:"due_date,omitempty"`
	}
)

func (e TaskAdded) Validate() error {
	if e.Name == "" {
		return errors.New("task name is required")
	}
	return nil
}

// === Commands ===

type (
	AddTask struct {
		es.Correlated
		ID      uint32     `json:"id"`
		Name    string     `json:"name"`
		DueDate *time.Time `json:"due_date,omitempty"`
	}

	RemoveTask struct {
		es.Correlated
		ID uint32 `json:"id"`
	}

	ClearAllTasks struct {
		es.Correlated
	}

	CompleteTask struct {
		es.Correlated
		ID uint32 `json:"id"`
	}

	ChangeTaskDueDate struct {
		es.Correlated
		ID      uint32     `json:"id"`
		DueDate *time.Time `json:"due_date,omitempty"`
	}
)

// === Aggregate ===

type Task struct {
	ID         uint32     `json:"id"`
	Name       string     `json:"name"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	IsComplete bool       `json:"is_complete"`
}

// TaskList holds the projected state of one to-do list.
type TaskList struct {
	es.BaseAggregate

	Tasks map[uint32]Task `json:"tasks"`
}

func New(id string) *TaskList {
	l := &TaskList{}
	l.SetID(id)
	return l
}

func (l *TaskList) GetAggType() string { return AggType }

func (l *TaskList) Register(r es.Registrar) {
	es.RegisterEvents(
		r,
		es.Event[TaskAdded](),
		es.Event[TaskRemoved](),
		es.Event[AllTasksCleared](),
		es.Event[TaskCompleted](),
		es.Event[TaskDueDateChanged](),
	)
}

func (l *TaskList) Snapshot() (data []byte, err error) { return json.Marshal(l) }
func (l *TaskList) RestoreSnapshot(data []byte) error  { return json.Unmarshal(data, l) }

func (l *TaskList) has(id uint32) bool {
	_, ok := l.Tasks[id]
	return ok
}

func (l *TaskList) Apply(event any) error {
	if l.Tasks == nil {
		l.Tasks = map[uint32]Task{}
	}

	switch e := event.(type) {
	case *TaskAdded:
		l.Tasks[e.ID] = Task{ID: e.ID, Name: e.Name, DueDate: e.DueDate}
	case *TaskRemoved:
		delete(l.Tasks, e.ID)
	case *AllTasksCleared:
		l.Tasks = map[uint32]Task{}
	case *TaskCompleted:
		task := l.Tasks[e.ID]
		task.IsComplete = true
		l.Tasks[e.ID] = task
	case *TaskDueDateChanged:
		task := l.Tasks[e.ID]
		task.DueDate = e.DueDate
		l.Tasks[e.ID] = task
	default:
		return l.BaseAggregate.Apply(event)
	}
	return nil
}

func (l *TaskList) Decide(cmd es.Command) ([]any, error) {
	switch c := cmd.(type) {
	case *AddTask:
		if err := assert.CheckErr(
			assert.False(l.has(c.ID), "task must not exist"),
			fmt.Errorf("%w: task %d", ErrTaskAlreadyExists, c.ID),
		); err != nil {
			return nil, err
		}
		return []any{&TaskAdded{ID: c.ID, Name: c.Name, DueDate: c.DueDate}}, nil

	case *RemoveTask:
		if err := l.requireTask(c.ID); err != nil {
			return nil, err
		}
		return []any{&TaskRemoved{ID: c.ID}}, nil

	case *ClearAllTasks:
		return []any{&AllTasksCleared{}}, nil

	case *CompleteTask:
		if err := l.requireTask(c.ID); err != nil {
			return nil, err
		}
		if err := l.requireOpen(c.ID); err != nil {
			return nil, err
		}
		return []any{&TaskCompleted{ID: c.ID}}, nil

	case *ChangeTaskDueDate:
		if err := l.requireTask(c.ID); err != nil {
			return nil, err
		}
		if err := l.requireOpen(c.ID); err != nil {
			return nil, err
		}
		return []any{&TaskDueDateChanged{ID: c.ID, DueDate: c.DueDate}}, nil
	}
	return nil, fmt.Errorf("%w: %T", es.ErrUnknownCommand, cmd)
}

func (l *TaskList) requireTask(id uint32) error {
	return assert.CheckErr(
		assert.True(l.has(id), "task must exist"),
		fmt.Errorf("%w: task %d", ErrTaskDoesNotExist, id),
	)
}

func (l *TaskList) requireOpen(id uint32) error {
	return assert.CheckErr(
		assert.False(l.Tasks[id].IsComplete, "task must be open"),
		fmt.Errorf("%w: task %d", ErrTaskAlreadyFinished, id),
	)
}

var (
	_ es.DecidingAggregate = (*TaskList)(nil)
	_ es.Snapshottable     = (*TaskList)(nil)
)
