// Package components provides reusable TUI components for the standings viewer.
// This file implements the scope carousel used to step between the global table and
// each season.
package components

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Scope is one table the viewer can show: the global ratings or a season
type Scope struct {
	ID    string
	Label string
}

// Carousel displays a navigable row of scopes with the current one highlighted
type Carousel struct {
	container    *tview.Flex
	currentCard  *tview.TextView
	navIndicator *tview.TextView

	scopes       []Scope
	currentIndex int

	showNumbers    bool
	highlightColor tcell.Color
	normalColor    tcell.Color
	showNavigation bool

	onNavigate  func(index int, scope Scope)
	keyHandlers map[tcell.Key]func() bool
}

// CarouselConfig holds configuration options for the carousel
type CarouselConfig struct {
	ShowNumbers    bool
	HighlightColor tcell.Color
	NormalColor    tcell.Color
	ShowNavigation bool
	OnNavigate     func(index int, scope Scope)
}

// NewCarousel creates a new scope carousel with default configuration
func NewCarousel() *Carousel {
	return NewCarouselWithConfig(CarouselConfig{
		ShowNumbers:    true,
		HighlightColor: tcell.ColorYellow,
		NormalColor:    tcell.ColorWhite,
		ShowNavigation: true,
	})
}

// NewCarouselWithConfig creates a carousel with custom configuration
func NewCarouselWithConfig(config CarouselConfig) *Carousel {
	c := &Carousel{
		container:      tview.NewFlex(),
		currentCard:    tview.NewTextView(),
		navIndicator:   tview.NewTextView(),
		currentIndex:   -1,
		showNumbers:    config.ShowNumbers,
		highlightColor: config.HighlightColor,
		normalColor:    config.NormalColor,
		showNavigation: config.ShowNavigation,
		onNavigate:     config.OnNavigate,
		keyHandlers:    make(map[tcell.Key]func() bool),
	}

	c.setupUI()
	c.setupKeyHandlers()
	c.updateDisplay()
	return c
}

func (c *Carousel) setupUI() {
	c.container.SetDirection(tview.FlexRow)

	c.currentCard.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	c.navIndicator.
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	c.container.AddItem(c.currentCard, 1, 0, false)
	if c.showNavigation {
		c.container.AddItem(c.navIndicator, 1, 0, false)
	}

	c.container.SetInputCapture(c.handleInput)
}

func (c *Carousel) setupKeyHandlers() {
	c.keyHandlers[tcell.KeyLeft] = c.Previous
	c.keyHandlers[tcell.KeyRight] = c.Next
	c.keyHandlers[tcell.KeyHome] = c.First
	c.keyHandlers[tcell.KeyEnd] = c.Last
}

// SetScopes replaces the scopes and keeps the current scope selected when it is still present
func (c *Carousel) SetScopes(scopes []Scope) {
	current := c.GetCurrent()

	c.scopes = make([]Scope, len(scopes))
	copy(c.scopes, scopes)

	c.currentIndex = -1
	if len(c.scopes) > 0 {
		c.currentIndex = 0
	}
	for i, s := range c.scopes {
		if s.ID == current.ID && current.ID != "" {
			c.currentIndex = i
			break
		}
	}

	c.updateDisplay()
}

// GetCurrent returns the selected scope, or the zero Scope when empty
func (c *Carousel) GetCurrent() Scope {
	if !c.HasScopes() {
		return Scope{}
	}
	return c.scopes[c.currentIndex]
}

// GetCurrentIndex returns the current carousel position
func (c *Carousel) GetCurrentIndex() int {
	return c.currentIndex
}

// Len returns the number of scopes
func (c *Carousel) Len() int {
	return len(c.scopes)
}

// HasScopes reports whether a scope is selected
func (c *Carousel) HasScopes() bool {
	return c.currentIndex >= 0 && c.currentIndex < len(c.scopes)
}

// Next moves to the next scope, wrapping around
func (c *Carousel) Next() bool {
	if !c.HasScopes() {
		return false
	}
	return c.NavigateTo((c.currentIndex + 1) % len(c.scopes))
}

// Previous moves to the previous scope, wrapping around
func (c *Carousel) Previous() bool {
	if !c.HasScopes() {
		return false
	}
	index := c.currentIndex - 1
	if index < 0 {
		index = len(c.scopes) - 1
	}
	return c.NavigateTo(index)
}

// First moves to the first scope
func (c *Carousel) First() bool {
	if !c.HasScopes() {
		return false
	}
	return c.NavigateTo(0)
}

// Last moves to the last scope
func (c *Carousel) Last() bool {
	if !c.HasScopes() {
		return false
	}
	return c.NavigateTo(len(c.scopes) - 1)
}

// Select moves to the scope with the given ID
func (c *Carousel) Select(id string) bool {
	for i, s := range c.scopes {
		if s.ID == id {
			return c.NavigateTo(i)
		}
	}
	return false
}

// NavigateTo moves to a specific index and fires the navigation callback
func (c *Carousel) NavigateTo(index int) bool {
	if !c.HasScopes() || index < 0 || index >= len(c.scopes) {
		return false
	}

	c.currentIndex = index
	c.updateDisplay()

	if c.onNavigate != nil {
		c.onNavigate(c.currentIndex, c.GetCurrent())
	}
	return true
}

// SetOnNavigate sets the callback for navigation events
func (c *Carousel) SetOnNavigate(callback func(index int, scope Scope)) {
	c.onNavigate = callback
}

// AddKeyHandler adds a custom key handler
func (c *Carousel) AddKeyHandler(key tcell.Key, handler func() bool) {
	c.keyHandlers[key] = handler
}

// GetPrimitive returns the main container for integration with tview
func (c *Carousel) GetPrimitive() tview.Primitive {
	return c.container
}

func (c *Carousel) handleInput(event *tcell.EventKey) *tcell.EventKey {
	key := event.Key()

	if handler, exists := c.keyHandlers[key]; exists {
		if handler() {
			return nil
		}
	}

	if key == tcell.KeyRune {
		ch := event.Rune()
		if ch >= '1' && ch <= '9' {
			pos := int(ch - '1')
			if pos < len(c.scopes) {
				c.NavigateTo(pos)
			}
			return nil
		}
	}

	return event
}

func (c *Carousel) updateDisplay() {
	if !c.HasScopes() {
		c.currentCard.SetText("[gray]No seasons available[-]")
		if c.showNavigation {
			c.navIndicator.SetText("[gray]0 / 0[-]")
		}
		return
	}

	labels := make([]string, len(c.scopes))
	for i, s := range c.scopes {
		label := s.Label
		if label == "" {
			label = s.ID
		}
		if c.showNumbers && i < 9 {
			label = fmt.Sprintf("%d:%s", i+1, label)
		}
		color := colorTag(c.normalColor)
		if i == c.currentIndex {
			color = colorTag(c.highlightColor) + "::b"
		}
		labels[i] = fmt.Sprintf("[%s]%s[-::-]", color, label)
	}
	c.currentCard.SetText(strings.Join(labels, "  "))

	if c.showNavigation {
		c.updateNavigationIndicator()
	}
}

func (c *Carousel) updateNavigationIndicator() {
	indicator := fmt.Sprintf("[white]%d / %d[-]", c.currentIndex+1, len(c.scopes))
	if len(c.scopes) > 1 {
		indicator += "  [gray]n/p: switch table[-]"
	}
	c.navIndicator.SetText(indicator)
}

func colorTag(color tcell.Color) string {
	return fmt.Sprintf("#%06x", color.Hex())
}
