package kanban

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePedidos() Kanban {
	return Kanban{
		ID:   "pedidos",
		Name: "Pedidos",
		States: []State{
			{ID: "novo", Name: "Novo", Type: StateInitial},
			{ID: "em_analise", Name: "Em Analise"},
			{ID: "aprovado", Name: "Aprovado", Type: StateFinal},
		},
		RecommendedTransitions: []Transition{
			{From: "novo", To: "em_analise"},
			{From: "em_analise", To: "aprovado"},
		},
		LinkedForms: []string{"pedidos"},
	}
}

func writeKanban(t *testing.T, dir string, k Kanban) {
	t.Helper()
	registry := NewRegistry(dir)
	require.NoError(t, registry.Register(k, true))
}

func TestLoadAllIndexesByIDAndForm(t *testing.T) {
	dir := t.TempDir()
	writeKanban(t, dir, samplePedidos())

	registry := NewRegistry(dir)
	errs := registry.LoadAll()
	require.Empty(t, errs)

	k, ok := registry.Get("pedidos")
	require.True(t, ok)
	assert.Equal(t, "Pedidos", k.Name)

	byForm, ok := registry.GetByForm("pedidos")
	require.True(t, ok)
	assert.Equal(t, "pedidos", byForm.ID)
}

func TestLoadAllCollectsErrorsWithoutFailingWholeLoad(t *testing.T) {
	dir := t.TempDir()
	writeKanban(t, dir, samplePedidos())

	badPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{not valid json"), 0o644))

	registry := NewRegistry(dir)
	errs := registry.LoadAll()
	require.Len(t, errs, 1)
	assert.Equal(t, "broken.json", errs[0].File)

	_, ok := registry.Get("pedidos")
	assert.True(t, ok)
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	dir := t.TempDir()
	writeKanban(t, dir, samplePedidos())

	registry := NewRegistry(dir)
	require.Empty(t, registry.LoadAll())

	k, _ := registry.Get("pedidos")
	k.States[0].Name = "mutated"

	k2, _ := registry.Get("pedidos")
	assert.Equal(t, "Novo", k2.States[0].Name)
}

func TestClassificationConsistency(t *testing.T) {
	k := samplePedidos()
	k.BlockedTransitions = []BlockedTransition{
		{From: "novo", To: "aprovado", Reason: "skip_review"},
	}

	assert.True(t, IsBlocked(k, "novo", "aprovado"))
	assert.False(t, CanTransition(k, "novo", "aprovado"))

	// absence from every list implies permitted
	assert.False(t, IsBlocked(k, "em_analise", "aprovado"))
	assert.True(t, CanTransition(k, "em_analise", "aprovado"))
}

func TestRegisterRejectsInvalidDefinition(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	bad := Kanban{ID: "x", Name: "X"} // no states
	err := registry.Register(bad, false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestUnregisterRemovesFormMapping(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry(dir)
	require.NoError(t, registry.Register(samplePedidos(), false))

	ok := registry.Unregister("pedidos", false)
	assert.True(t, ok)

	_, found := registry.Get("pedidos")
	assert.False(t, found)
	_, found = registry.GetByForm("pedidos")
	assert.False(t, found)
}

func TestInitialStateResolution(t *testing.T) {
	k := samplePedidos()
	s, ok := k.InitialState()
	require.True(t, ok)
	assert.Equal(t, "novo", s.ID)
}
