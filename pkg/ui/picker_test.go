package ui_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/ui"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/uitest"
	"github.com/macropower/dotup/pkg/updater"
)

// fakeRunner satisfies [ui.Runner] without touching any package manager.
type fakeRunner struct {
	err        error
	errs       map[string]error
	result     *updater.RunResult
	configured []updater.RunnerOpt
	packages   []manager.Package
}

func (f *fakeRunner) Configure(opts ...updater.RunnerOpt) error {
	f.configured = append(f.configured, opts...)

	return nil
}

func (f *fakeRunner) Outdated(_ context.Context) ([]manager.Package, map[string]error, error) {
	return f.packages, f.errs, f.err
}

func (f *fakeRunner) Run() *updater.RunResult {
	return f.result
}

func (f *fakeRunner) Cancel() {}

func (f *fakeRunner) Subscribe(_ chan<- updater.Event) {}

func (f *fakeRunner) String() string {
	return "dotup update"
}

func testPackages() []manager.Package {
	return []manager.Package{
		{Name: "git", Current: "2.44.0", Latest: "2.45.1", Manager: "brew"},
		{Name: "curl", Current: "8.6.0", Latest: "8.8.0", Manager: "brew"},
		{Name: "7zip", Current: "23.01", Latest: "24.05", Manager: "winget"},
	}
}

func newTestPicker(t *testing.T, packages []manager.Package, errs map[string]error) (ui.PickerModel, *ui.CommonModel) {
	t.Helper()

	kb := ui.NewKeyBinds()
	cm := &ui.CommonModel{
		Cmd:      &fakeRunner{},
		Theme:    theme.Default,
		KeyBinds: kb.Common,
	}

	m := ui.NewPickerModel(ui.PickerConfig{
		CommonModel: cm,
		KeyBinds:    kb.Picker,
	})
	m.SetSize(80, 24)

	if packages != nil || errs != nil {
		m, _ = m.Update(ui.PackagesLoadedMsg{Packages: packages, Errors: errs})
	}

	return m, cm
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPickerModel_LoadingState(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, nil, nil)

	assert.True(t, m.IsLoading())
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "Checking for updates...")

	m, _ = m.Update(ui.PackagesLoadedMsg{Packages: testPackages()})

	assert.False(t, m.IsLoading())
}

func TestPickerModel_EmptyStates(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	tcs := map[string]struct {
		errs     map[string]error
		packages []manager.Package
		expected string
	}{
		"everything up to date": {
			packages: []manager.Package{},
			expected: "Everything is up to date.",
		},
		"manager errors are listed": {
			packages: []manager.Package{},
			errs:     map[string]error{"apt": errors.New("lock held")},
			expected: "apt: lock held",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, _ := newTestPicker(t, tc.packages, tc.errs)

			uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, tc.expected)
		})
	}
}

func TestPickerModel_View(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, testPackages(), nil)

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "3 packages")
	v.ContainsPlainText(t, "0 selected")
	v.ContainsPlainText(t, "git")
	v.ContainsPlainText(t, "curl")
	v.ContainsPlainText(t, "7zip")
	v.ContainsPlainText(t, "brew · 2.44.0 → 2.45.1")
	v.ContainsPlainText(t, "dotup update")
	v.ContainsPlainText(t, "1/1")
}

func TestPickerModel_CompactView(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	kb := ui.NewKeyBinds()
	cm := &ui.CommonModel{
		Cmd:      &fakeRunner{},
		Theme:    theme.Default,
		KeyBinds: kb.Common,
	}

	m := ui.NewPickerModel(ui.PickerConfig{
		CommonModel: cm,
		KeyBinds:    kb.Picker,
		Compact:     true,
	})
	m.SetSize(80, 24)
	m, _ = m.Update(ui.PackagesLoadedMsg{Packages: testPackages()})

	// Compact mode puts the title and description on one line.
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "git  brew · 2.44.0 → 2.45.1")
}

func TestPickerModel_Selection(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, cm := newTestPicker(t, testPackages(), nil)

	// Toggle the package under the cursor.
	m, _ = m.Update(keyRunes(" "))

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "1 selected")
	v.ContainsPlainText(t, "[x]")

	// Toggle it back off.
	m, _ = m.Update(keyRunes(" "))
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "0 selected")

	// Select all, then none.
	m, _ = m.Update(keyRunes("a"))
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "3 selected")

	m, _ = m.Update(keyRunes("A"))
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "0 selected")

	assert.False(t, cm.ShowStatusMessage)
}

func TestPickerModel_Confirm(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, testPackages(), nil)

	m, _ = m.Update(keyRunes("a"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, ui.PickerConfirmedMsg{}, msg)

	confirmed, ok := msg.(ui.PickerConfirmedMsg)
	require.True(t, ok)

	// Names come back in listing order.
	assert.Equal(t, []string{"git", "curl", "7zip"}, confirmed.Packages)
}

func TestPickerModel_ConfirmWithoutSelection(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, cm := newTestPicker(t, testPackages(), nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	assert.True(t, cm.ShowStatusMessage)
	assert.Equal(t, "no packages selected", cm.StatusMessage.Message)
}

func TestPickerModel_Filter(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, testPackages(), nil)

	// Start filtering and type a query.
	m, _ = m.Update(keyRunes("/"))
	assert.Equal(t, ui.Filtering, m.FilterState)

	m, _ = m.Update(keyRunes("gi"))

	cmd := ui.FilterPackages(m)
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, ui.FilteredPackagesMsg{}, msg)

	filtered, ok := msg.(ui.FilteredPackagesMsg)
	require.True(t, ok)
	assert.Len(t, filtered, 1)

	m, _ = m.Update(msg)

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "git")

	// Apply the filter.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ui.FilterApplied, m.FilterState)
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "1 “gi”")

	// Esc clears the applied filter.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ui.Unfiltered, m.FilterState)
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "3 packages")
}

func TestPickerModel_FilterSelectionScope(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, testPackages(), nil)

	// Filter down to one package, apply, then select all.
	m, _ = m.Update(keyRunes("/"))
	m, _ = m.Update(keyRunes("gi"))

	msg := ui.FilterPackages(m)()
	m, _ = m.Update(msg)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ui.FilterApplied, m.FilterState)

	// Select all only checks the filtered set.
	m, _ = m.Update(keyRunes("a"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	confirmed, ok := cmd().(ui.PickerConfirmedMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"git"}, confirmed.Packages)
}

func TestPickerModel_Pagination(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	packages := make([]manager.Package, 0, 10)
	for _, name := range []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"} {
		packages = append(packages, manager.Package{Name: name, Manager: "brew"})
	}

	m, _ := newTestPicker(t, packages, nil)

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "1/2")
	v.ContainsPlainText(t, "•")
	v.ContainsPlainText(t, "◦")
}

func TestPickerModel_ToggleHelp(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestPicker(t, testPackages(), nil)
	require.False(t, m.ShowHelp)

	m, _ = m.Update(keyRunes("?"))
	assert.True(t, m.ShowHelp)

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "toggle package")
	v.ContainsPlainText(t, "run update")

	m, _ = m.Update(keyRunes("?"))
	assert.False(t, m.ShowHelp)
}
