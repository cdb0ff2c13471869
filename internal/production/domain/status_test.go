package domain

import (
	"testing"

	"github.com/atelier/production-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"TO_DO", StatusToDo},
		{" cutting_todo ", StatusCuttingTodo},
		{"SHIPPED", StatusShipped},
		{"LEGACY", StatusLegacy},
		{"En attente tissu", StatusLegacy},
		{"", StatusLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}

func TestStatus_ScanValue(t *testing.T) {
	var s Status
	require.NoError(t, s.Scan([]byte("SEWING_TODO")))
	assert.Equal(t, StatusSewingTodo, s)

	require.NoError(t, s.Scan("à recouper"))
	assert.Equal(t, StatusLegacy, s)

	assert.Error(t, s.Scan(42))

	v, err := StatusToShip.Value()
	require.NoError(t, err)
	assert.Equal(t, "TO_SHIP", v)

	_, err = Status("bogus").Value()
	assert.Error(t, err)
}

func TestStatuses_ExcludeLegacy(t *testing.T) {
	assert.Len(t, Statuses, 9)
	assert.NotContains(t, Statuses, StatusLegacy)
	assert.False(t, StatusLegacy.Valid())
}

func TestWorkflow_Next(t *testing.T) {
	next, ok := WorkflowStandard.Next(StatusSewingInProgress)
	require.True(t, ok)
	assert.Equal(t, StatusAssemblyTodo, next)

	next, ok = WorkflowNoAssembly.Next(StatusSewingInProgress)
	require.True(t, ok)
	assert.Equal(t, StatusToShip, next)

	_, ok = WorkflowStandard.Next(StatusShipped)
	assert.False(t, ok)

	_, ok = WorkflowStandard.Next(StatusLegacy)
	assert.False(t, ok)

	assert.False(t, WorkflowNoAssembly.Includes(StatusAssemblyTodo))
	assert.True(t, WorkflowNoAssembly.Includes(StatusToShip))
}

func TestWorkflow_FullChainReachesShipped(t *testing.T) {
	for _, w := range []Workflow{WorkflowStandard, WorkflowNoAssembly} {
		status := StatusToDo
		steps := 0
		for !status.Terminal() {
			next, ok := w.Next(status)
			require.True(t, ok, "%s stuck at %s", w, status)
			require.True(t, next.Valid())
			status = next
			steps++
		}
		assert.Equal(t, StatusShipped, status)
		if w == WorkflowStandard {
			assert.Equal(t, 8, steps)
		} else {
			assert.Equal(t, 6, steps)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(WorkflowStandard, StatusToDo, StatusCuttingTodo))

	err := ValidateTransition(WorkflowStandard, StatusToDo, StatusSewingTodo)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	err = ValidateTransition(WorkflowStandard, StatusShipped, StatusToDo)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	err = ValidateTransition(WorkflowStandard, StatusLegacy, StatusCuttingTodo)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	err = ValidateTransition(WorkflowNoAssembly, StatusSewingInProgress, StatusAssemblyTodo)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestParseWorkflow(t *testing.T) {
	w, ok := ParseWorkflow("")
	assert.True(t, ok)
	assert.Equal(t, WorkflowStandard, w)

	w, ok = ParseWorkflow("NO_ASSEMBLY")
	assert.True(t, ok)
	assert.Equal(t, WorkflowNoAssembly, w)

	_, ok = ParseWorkflow("EXPRESS")
	assert.False(t, ok)
}

func TestDisplayStatus(t *testing.T) {
	label := "En attente tissu"
	u := &ProductionUnit{Status: StatusLegacy, LegacyLabel: &label}
	assert.Equal(t, label, u.DisplayStatus())

	u = &ProductionUnit{Status: StatusToShip}
	assert.Equal(t, "TO_SHIP", u.DisplayStatus())
}

func TestMovementTypeFor(t *testing.T) {
	assert.Equal(t, MovementExpedition, MovementTypeFor(StatusShipped))
	assert.Equal(t, MovementStatusChange, MovementTypeFor(StatusCuttingTodo))
}
