package courts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]domain.Court{
		{ID: "cancha_1", Name: "Cancha Monex", CalendarID: "cal-1"},
		{ID: "cancha_2", Name: "Cancha Gocsa", CalendarID: "cal-2"},
		{ID: "cancha_3", Name: "Cancha 3", CalendarID: "cal-3"},
	}, map[string]string{
		"monex":    "cancha_1",
		"gocsa":    "cancha_2",
		"teds":     "cancha_3",
		"woodward": "cancha_4",
	})
	require.NoError(t, err)
	return reg
}

func TestResolveOrder(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		in   string
		want string
	}{
		{"cancha_2", "cancha_2"},
		{"GOCSA", "cancha_2"},
		{" teds ", "cancha_3"},
		{"cancha   monex", "cancha_1"},
		{"Cancha 3", "cancha_3"},
		{"woodward", "cancha_1"},
		{"la del fondo", "cancha_1"},
		{"", "cancha_1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg.Resolve(tt.in).ID, "resolve(%q)", tt.in)
	}
}

func TestLookupReportsMisses(t *testing.T) {
	reg := testRegistry(t)
	_, ok := reg.Lookup("la del fondo")
	assert.False(t, ok)
	_, ok = reg.Lookup("woodward")
	assert.False(t, ok, "alias to an unconfigured court is dropped")
	c, ok := reg.Lookup("Monex")
	assert.True(t, ok)
	assert.Equal(t, "Cancha Monex", c.Name)
}

func TestDefaultCourtIsFirstConfigured(t *testing.T) {
	reg := testRegistry(t)
	assert.Equal(t, "cancha_1", reg.DefaultCourt().ID)
}

func TestAllPreservesOrderAndIsACopy(t *testing.T) {
	reg := testRegistry(t)
	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"cancha_1", "cancha_2", "cancha_3"}, []string{all[0].ID, all[1].ID, all[2].ID})
	all[0].Name = "mutated"
	assert.Equal(t, "Cancha Monex", reg.All()[0].Name)
}

func TestGet(t *testing.T) {
	reg := testRegistry(t)
	c, err := reg.Get("cancha_3")
	require.NoError(t, err)
	assert.Equal(t, "cal-3", c.CalendarID)

	_, err = reg.Get("cancha_9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	assert.Error(t, err)
	_, err = NewRegistry([]domain.Court{{ID: "a"}, {ID: "a"}}, nil)
	assert.Error(t, err)
	_, err = NewRegistry([]domain.Court{{Name: "sin id"}}, nil)
	assert.Error(t, err)
}
