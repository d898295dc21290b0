package components

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScopes() []Scope {
	return []Scope{
		{ID: "global", Label: "Global"},
		{ID: "s1", Label: "Spring"},
		{ID: "s2", Label: "Summer"},
	}
}

func TestNewCarousel(t *testing.T) {
	carousel := NewCarousel()

	require.NotNil(t, carousel)
	assert.NotNil(t, carousel.container)
	assert.Equal(t, -1, carousel.GetCurrentIndex())
	assert.False(t, carousel.HasScopes())
	assert.Equal(t, Scope{}, carousel.GetCurrent())
	assert.Equal(t, tcell.ColorYellow, carousel.highlightColor)
	assert.Contains(t, carousel.currentCard.GetText(false), "No seasons available")
}

func TestCarouselSetScopes(t *testing.T) {
	carousel := NewCarousel()
	carousel.SetScopes(testScopes())

	assert.Equal(t, 3, carousel.Len())
	assert.Equal(t, "global", carousel.GetCurrent().ID)

	text := carousel.currentCard.GetText(true)
	assert.Contains(t, text, "1:Global")
	assert.Contains(t, text, "3:Summer")
	assert.Contains(t, carousel.navIndicator.GetText(true), "1 / 3")

	t.Run("keeps selection when the scope survives", func(t *testing.T) {
		require.True(t, carousel.Select("s2"))
		carousel.SetScopes([]Scope{{ID: "s2"}, {ID: "s3"}})
		assert.Equal(t, 0, carousel.GetCurrentIndex())
		assert.Equal(t, "s2", carousel.GetCurrent().ID)
	})

	t.Run("falls back to the first scope", func(t *testing.T) {
		carousel.SetScopes([]Scope{{ID: "x"}, {ID: "y"}})
		assert.Equal(t, "x", carousel.GetCurrent().ID)
		assert.Contains(t, carousel.currentCard.GetText(true), "1:x")
	})

	t.Run("empty", func(t *testing.T) {
		carousel.SetScopes(nil)
		assert.False(t, carousel.HasScopes())
		assert.False(t, carousel.Next())
	})
}

func TestCarouselNavigation(t *testing.T) {
	var visited []string
	carousel := NewCarouselWithConfig(CarouselConfig{
		OnNavigate: func(index int, scope Scope) {
			visited = append(visited, scope.ID)
		},
	})
	carousel.SetScopes(testScopes())

	assert.True(t, carousel.Next())
	assert.True(t, carousel.Next())
	assert.True(t, carousel.Next())
	assert.Equal(t, "global", carousel.GetCurrent().ID, "next wraps around")

	assert.True(t, carousel.Previous())
	assert.Equal(t, "s2", carousel.GetCurrent().ID, "previous wraps around")

	assert.True(t, carousel.First())
	assert.True(t, carousel.Last())
	assert.False(t, carousel.NavigateTo(7))
	assert.False(t, carousel.Select("missing"))

	assert.Equal(t, []string{"s1", "s2", "global", "s2", "global", "s2"}, visited)
}

func TestCarouselHandleInput(t *testing.T) {
	carousel := NewCarousel()
	carousel.SetScopes(testScopes())

	tests := []struct {
		name     string
		event    *tcell.EventKey
		consumed bool
		expected string
	}{
		{"right arrow", tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), true, "s1"},
		{"left arrow", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), true, "global"},
		{"end", tcell.NewEventKey(tcell.KeyEnd, 0, tcell.ModNone), true, "s2"},
		{"home", tcell.NewEventKey(tcell.KeyHome, 0, tcell.ModNone), true, "global"},
		{"number key", tcell.NewEventKey(tcell.KeyRune, '2', tcell.ModNone), true, "s1"},
		{"number out of range", tcell.NewEventKey(tcell.KeyRune, '9', tcell.ModNone), true, "s1"},
		{"other rune passes through", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone), false, "s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := carousel.handleInput(tt.event)
			if tt.consumed {
				assert.Nil(t, result)
			} else {
				assert.Equal(t, tt.event, result)
			}
			assert.Equal(t, tt.expected, carousel.GetCurrent().ID)
		})
	}
}

func TestCarouselCustomKeyHandler(t *testing.T) {
	carousel := NewCarousel()
	carousel.SetScopes(testScopes())

	called := false
	carousel.AddKeyHandler(tcell.KeyTab, func() bool {
		called = true
		return true
	})

	assert.Nil(t, carousel.handleInput(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)))
	assert.True(t, called)
}

func TestCarouselSingleScopeHidesHint(t *testing.T) {
	carousel := NewCarousel()
	carousel.SetScopes([]Scope{{ID: "global", Label: "Global"}})

	assert.NotContains(t, carousel.navIndicator.GetText(true), "switch table")
	assert.Equal(t, "#ffff00", colorTag(tcell.ColorYellow))
}
