// Package tui provides the terminal standings viewer.
// It implements the main application structure with screen management, scope
// switching, keyboard shortcuts and export.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui/components"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui/screens"
)

// ErrNoScope is returned when the viewer has no table selected
var ErrNoScope = errors.New("no standings table selected")

// ScreenType represents different screens in the TUI application
type ScreenType int

const (
	ScreenStandings ScreenType = iota
	ScreenHistory
	ScreenHelp
)

// String returns the string representation of ScreenType
func (s ScreenType) String() string {
	switch s {
	case ScreenStandings:
		return "standings"
	case ScreenHistory:
		return "history"
	case ScreenHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Screen interface defines the contract for all TUI screens
type Screen interface {
	// GetPrimitive returns the tview.Primitive for this screen
	GetPrimitive() tview.Primitive

	// OnEnter is called when the screen becomes active
	OnEnter(app any) error

	// OnExit is called when leaving the screen
	OnExit(app any) error

	// GetTitle returns the screen title for display
	GetTitle() string
}

// AppState represents the current application state
type AppState struct {
	mu             sync.RWMutex
	scope          components.Scope
	report         *journal.StandingsReport // last report of scope
	selectedPlayer string
	currentScreen  ScreenType
	previousScreen ScreenType
	isRunning      bool
	lastExportTime *time.Time
	lastExportPath string
}

// App represents the main TUI application
type App struct {
	tviewApp *tview.Application
	pages    *tview.Pages
	header   *tview.TextView
	footer   *tview.TextView
	carousel *components.Carousel
	state    *AppState
	screens  map[ScreenType]Screen

	source    Source
	export    data.ExportConfig
	exportDir string
	exporter  *journal.Exporter

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// KeyBinding represents a keyboard shortcut
type KeyBinding struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func(app *App) error
}

// Global key bindings available across all screens. Rune bindings are suspended while an
// input field has focus.
var globalKeyBindings = []KeyBinding{
	{Key: tcell.KeyCtrlC, Description: "Exit", Handler: (*App).Exit},
	{Key: tcell.KeyRune, Rune: 'n', Description: "Next table", Handler: (*App).NextScope},
	{Key: tcell.KeyRune, Rune: 'p', Description: "Previous table", Handler: (*App).PreviousScope},
	{Key: tcell.KeyRune, Rune: 'g', Description: "Global ratings", Handler: (*App).ShowGlobal},
	{Key: tcell.KeyRune, Rune: 'e', Description: "Export", Handler: (*App).ExportStandings},
	{Key: tcell.KeyRune, Rune: '?', Description: "Help", Handler: (*App).ShowHelp},
}

// NewApp creates a viewer reading from source and exporting into exportDir
func NewApp(source Source, export data.ExportConfig, exportDir string) (*App, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if err := export.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		tviewApp:  tview.NewApplication(),
		pages:     tview.NewPages(),
		header:    tview.NewTextView(),
		footer:    tview.NewTextView(),
		state:     &AppState{currentScreen: ScreenStandings, previousScreen: ScreenStandings},
		screens:   make(map[ScreenType]Screen),
		source:    source,
		export:    export,
		exportDir: exportDir,
		exporter:  journal.NewExporter(),
		ctx:       ctx,
		cancel:    cancel,
	}
	app.carousel = components.NewCarouselWithConfig(components.CarouselConfig{
		ShowNumbers:    true,
		HighlightColor: tcell.ColorYellow,
		NormalColor:    tcell.ColorWhite,
		ShowNavigation: true,
		OnNavigate: func(_ int, scope components.Scope) {
			app.scopeChanged(scope)
		},
	})

	if err := app.setupUI(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup UI: %w", err)
	}

	for screenType, screen := range map[ScreenType]Screen{
		ScreenStandings: screens.NewStandingsScreen(),
		ScreenHistory:   screens.NewHistoryScreen(),
		ScreenHelp:      NewHelpScreen(),
	} {
		if err := app.RegisterScreen(screenType, screen); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) setupUI() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.header.SetBorder(true).
		SetTitle("Beach Kings Standings").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetTextColor(tcell.ColorWhite)

	a.footer.SetBorder(true).
		SetTitle("Keyboard Shortcuts").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkGreen)
	a.footer.SetTextColor(tcell.ColorWhite)

	a.updateFooter()

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow)
	mainLayout.AddItem(a.header, 3, 0, false)
	mainLayout.AddItem(a.carousel.GetPrimitive(), 2, 0, false)
	mainLayout.AddItem(a.pages, 0, 1, true)
	mainLayout.AddItem(a.footer, 3, 0, false)
	mainLayout.SetInputCapture(a.handleGlobalInput)

	a.tviewApp.SetRoot(mainLayout, true)
	a.tviewApp.EnableMouse(true)
	a.tviewApp.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		a.updateHeader()
		return false
	})

	return nil
}

// RegisterScreen registers a screen with the application, replacing any earlier one
func (a *App) RegisterScreen(screenType ScreenType, screen Screen) error {
	if screen == nil {
		return fmt.Errorf("screen cannot be nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.screens[screenType] = screen
	a.pages.AddPage(screenType.String(), screen.GetPrimitive(), true, false)
	return nil
}

// NavigateTo switches to the specified screen. Navigating to the current screen re-enters it.
func (a *App) NavigateTo(screenType ScreenType) error {
	a.mu.RLock()
	screen, exists := a.screens[screenType]
	a.mu.RUnlock()
	if !exists {
		return fmt.Errorf("screen %s not registered", screenType.String())
	}

	a.state.mu.RLock()
	current := a.state.currentScreen
	a.state.mu.RUnlock()

	a.mu.RLock()
	currentScreen, hasCurrentScreen := a.screens[current]
	a.mu.RUnlock()

	if hasCurrentScreen {
		if err := currentScreen.OnExit(a); err != nil {
			return fmt.Errorf("failed to exit screen %s: %w", current.String(), err)
		}
	}

	// screens call back into the app from OnEnter, so no lock is held here
	if err := screen.OnEnter(a); err != nil {
		return fmt.Errorf("failed to enter screen %s: %w", screenType.String(), err)
	}

	a.state.mu.Lock()
	if current != screenType {
		a.state.previousScreen = current
	}
	a.state.currentScreen = screenType
	a.state.mu.Unlock()

	a.pages.SwitchToPage(screenType.String())
	return nil
}

// GoBack returns to the previous screen, or to the standings from anywhere else
func (a *App) GoBack() error {
	a.state.mu.RLock()
	current, previous := a.state.currentScreen, a.state.previousScreen
	a.state.mu.RUnlock()

	if current == ScreenStandings {
		return nil
	}
	if previous == current {
		previous = ScreenStandings
	}
	return a.NavigateTo(previous)
}

// ShowHelp displays the help screen
func (a *App) ShowHelp() error {
	return a.NavigateTo(ScreenHelp)
}

// ShowHistory displays the rating history of a player in the current scope
func (a *App) ShowHistory(playerID string) error {
	a.state.mu.Lock()
	a.state.selectedPlayer = playerID
	a.state.mu.Unlock()
	return a.NavigateTo(ScreenHistory)
}

// LoadScopes refreshes the list of tables from the source
func (a *App) LoadScopes() error {
	scopes, err := a.source.Scopes(a.ctx)
	if err != nil {
		return err
	}
	a.carousel.SetScopes(scopes)

	a.state.mu.Lock()
	a.state.scope = a.carousel.GetCurrent()
	a.state.mu.Unlock()
	return nil
}

// NextScope switches to the next table
func (a *App) NextScope() error {
	if !a.carousel.Next() {
		return ErrNoScope
	}
	return nil
}

// PreviousScope switches to the previous table
func (a *App) PreviousScope() error {
	if !a.carousel.Previous() {
		return ErrNoScope
	}
	return nil
}

// ShowGlobal switches to the global rating table
func (a *App) ShowGlobal() error {
	if !a.carousel.Select(journal.GlobalScope) {
		return ErrNoScope
	}
	return nil
}

// SelectScope switches to the table with the given ID
func (a *App) SelectScope(id string) error {
	if !a.carousel.Select(id) {
		return fmt.Errorf("unknown standings table %q", id)
	}
	return nil
}

func (a *App) scopeChanged(scope components.Scope) {
	a.state.mu.Lock()
	a.state.scope = scope
	a.state.report = nil
	a.state.mu.Unlock()

	if err := a.NavigateTo(ScreenStandings); err != nil {
		a.showErrorDialog("Load Error", err.Error())
	}
}

// CurrentScope returns the selected table
func (a *App) CurrentScope() components.Scope {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.scope
}

// CurrentReport loads the standings of the selected table
func (a *App) CurrentReport() (*journal.StandingsReport, error) {
	scope := a.CurrentScope()
	if scope.ID == "" {
		return nil, ErrNoScope
	}

	report, err := a.source.Report(a.ctx, scope.ID)
	if err != nil {
		return nil, err
	}

	a.state.mu.Lock()
	a.state.report = report
	a.state.mu.Unlock()
	return report, nil
}

// SelectedPlayer returns the player whose history was last requested and their name
func (a *App) SelectedPlayer() (string, string) {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()

	id := a.state.selectedPlayer
	if a.state.report == nil {
		return id, ""
	}
	return id, a.state.report.Names[id]
}

// PlayerHistory returns a player's rating changes in the selected table
func (a *App) PlayerHistory(playerID string) ([]data.RatingChange, error) {
	scope := a.CurrentScope()
	if scope.ID == "" {
		return nil, ErrNoScope
	}
	return a.source.History(a.ctx, playerID, scope.ID)
}

// SetFocus moves keyboard focus to p
func (a *App) SetFocus(p tview.Primitive) {
	a.tviewApp.SetFocus(p)
}

// ExportStandings writes the selected table to the export directory
func (a *App) ExportStandings() error {
	report, err := a.CurrentReport()
	if err != nil {
		return err
	}

	options := journal.OptionsFromConfig(a.export)
	now := time.Now()
	path := filepath.Join(a.exportDir, journal.ExportFileName(report.Scope, options.Format, now))
	if err := a.exporter.ExportToFile(report, path, options); err != nil {
		return fmt.Errorf("failed to export standings: %w", err)
	}

	a.state.mu.Lock()
	a.state.lastExportTime = &now
	a.state.lastExportPath = path
	a.state.mu.Unlock()

	a.updateHeader()
	return nil
}

// LastExport returns the path and time of the last successful export
func (a *App) LastExport() (string, *time.Time) {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.lastExportPath, a.state.lastExportTime
}

// Exit stops the application
func (a *App) Exit() error {
	a.state.mu.Lock()
	a.state.isRunning = false
	a.state.mu.Unlock()

	a.cancel()
	a.tviewApp.Stop()
	return nil
}

// Run loads the tables, shows the first one and runs the event loop
func (a *App) Run() error {
	if err := a.LoadScopes(); err != nil {
		return fmt.Errorf("failed to load standings tables: %w", err)
	}
	if err := a.NavigateTo(ScreenStandings); err != nil {
		return fmt.Errorf("failed to show standings: %w", err)
	}

	a.state.mu.Lock()
	a.state.isRunning = true
	a.state.mu.Unlock()

	return a.tviewApp.Run()
}

// Stop gracefully stops the application
func (a *App) Stop() {
	if a.IsRunning() {
		_ = a.Exit()
	}
}

// IsRunning returns whether the application is currently running
func (a *App) IsRunning() bool {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.isRunning
}

// GetCurrentScreen returns the current screen type
func (a *App) GetCurrentScreen() ScreenType {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.currentScreen
}

// handleGlobalInput runs global shortcuts on the event loop and reports failures in a dialog
func (a *App) handleGlobalInput(event *tcell.EventKey) *tcell.EventKey {
	_, typing := a.tviewApp.GetFocus().(*tview.InputField)

	for _, binding := range globalKeyBindings {
		matched := (binding.Key != tcell.KeyRune && event.Key() == binding.Key) ||
			(binding.Key == tcell.KeyRune && event.Key() == tcell.KeyRune && event.Rune() == binding.Rune && !typing)
		if !matched {
			continue
		}
		if err := binding.Handler(a); err != nil {
			a.showErrorDialog(binding.Description, err.Error())
		}
		return nil
	}

	return event
}

func (a *App) updateHeader() {
	a.state.mu.RLock()
	current := a.state.currentScreen
	scope := a.state.scope
	lastExport := a.state.lastExportTime
	a.state.mu.RUnlock()

	a.mu.RLock()
	screen, exists := a.screens[current]
	a.mu.RUnlock()
	if !exists {
		return
	}

	scopeInfo := ""
	if scope.ID != "" {
		scopeInfo = fmt.Sprintf(" | Table: %s", scope.Label)
	}

	exportStatus := " | Not exported yet"
	if lastExport != nil {
		elapsed := time.Since(*lastExport)
		switch {
		case elapsed < time.Minute:
			exportStatus = fmt.Sprintf(" | Last exported: %ds ago", int(elapsed.Seconds()))
		case elapsed < time.Hour:
			exportStatus = fmt.Sprintf(" | Last exported: %dm ago", int(elapsed.Minutes()))
		default:
			exportStatus = fmt.Sprintf(" | Last exported: %s", lastExport.Format("15:04"))
		}
	}

	a.header.SetText(fmt.Sprintf("Screen: %s%s%s", screen.GetTitle(), scopeInfo, exportStatus))
}

// showErrorDialog displays an error message in a modal dialog
func (a *App) showErrorDialog(title, message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			a.pages.RemovePage("error-dialog")
		})

	modal.SetTitle(title).
		SetBorder(true).
		SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("error-dialog", modal, true, true)
}

func (a *App) updateFooter() {
	a.footer.SetText(bindingSummary(" | "))
}

func bindingSummary(separator string) string {
	text := ""
	for i, binding := range globalKeyBindings {
		if i > 0 {
			text += separator
		}
		text += fmt.Sprintf("%s: %s", bindingKey(binding), binding.Description)
	}
	return text
}

func bindingKey(binding KeyBinding) string {
	if binding.Key != tcell.KeyRune {
		return tcell.KeyNames[binding.Key]
	}
	return string(binding.Rune)
}
