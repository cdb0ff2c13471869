package domain

import (
	"github.com/atelier/production-backend/pkg/errors"
)

// Workflow is the stage chain a unit follows.
type Workflow string

const (
	WorkflowStandard Workflow = "STANDARD"
	// WorkflowNoAssembly goes straight from sewing to shipping.
	WorkflowNoAssembly Workflow = "NO_ASSEMBLY"
)

var successors = map[Workflow]map[Status]Status{
	WorkflowStandard: {
		StatusToDo:               StatusCuttingTodo,
		StatusCuttingTodo:        StatusCuttingInProgress,
		StatusCuttingInProgress:  StatusSewingTodo,
		StatusSewingTodo:         StatusSewingInProgress,
		StatusSewingInProgress:   StatusAssemblyTodo,
		StatusAssemblyTodo:       StatusAssemblyInProgress,
		StatusAssemblyInProgress: StatusToShip,
		StatusToShip:             StatusShipped,
	},
	WorkflowNoAssembly: {
		StatusToDo:              StatusCuttingTodo,
		StatusCuttingTodo:       StatusCuttingInProgress,
		StatusCuttingInProgress: StatusSewingTodo,
		StatusSewingTodo:        StatusSewingInProgress,
		StatusSewingInProgress:  StatusToShip,
		StatusToShip:            StatusShipped,
	},
}

// ParseWorkflow returns the workflow named by s, defaulting to STANDARD when empty.
func ParseWorkflow(s string) (Workflow, bool) {
	switch Workflow(s) {
	case "", WorkflowStandard:
		return WorkflowStandard, true
	case WorkflowNoAssembly:
		return WorkflowNoAssembly, true
	}
	return "", false
}

// Next returns the successor of from, or false when from is terminal,
// legacy or not part of the workflow.
func (w Workflow) Next(from Status) (Status, bool) {
	chain, ok := successors[w]
	if !ok {
		chain = successors[WorkflowStandard]
	}
	next, ok := chain[from]
	return next, ok
}

// Includes reports whether status is reachable in this workflow.
func (w Workflow) Includes(status Status) bool {
	if status == StatusToDo {
		return true
	}
	chain, ok := successors[w]
	if !ok {
		chain = successors[WorkflowStandard]
	}
	for _, next := range chain {
		if next == status {
			return true
		}
	}
	return false
}

// ValidateTransition accepts only the immediate successor of from.
func ValidateTransition(w Workflow, from, to Status) error {
	next, ok := w.Next(from)
	if !ok || next != to {
		return errors.InvalidTransition(string(from), string(to))
	}
	return nil
}
