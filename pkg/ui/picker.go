package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/dotup/pkg/keys"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/ui/statusbar"
	"github.com/macropower/dotup/pkg/ui/theme"
)

const (
	pickerIndent                = 1
	pickerViewTopPadding        = 1 // Padding at the top of the picker view.
	pickerViewBottomPadding     = 6 // Pagination and gaps, but not help.
	pickerViewHorizontalPadding = 6
)

type (
	// PackagesLoadedMsg delivers the outdated package listing.
	PackagesLoadedMsg struct {
		Errors   map[string]error
		Packages []manager.Package
	}

	// FilteredPackagesMsg delivers fuzzy filter results.
	FilteredPackagesMsg []*pickerItem

	// PickerConfirmedMsg carries the package names chosen for the run.
	PickerConfirmedMsg struct {
		Packages []string
	}
)

// FilterState is the current filtering state in the package listing.
type FilterState int

const (
	Unfiltered    FilterState = iota // No filter set.
	Filtering                        // User is actively setting a filter.
	FilterApplied                    // A filter is applied and user is not editing filter.
)

// pickerItem is one selectable package row.
type pickerItem struct {
	pkg         manager.Package
	filterValue string
	selected    bool
}

func (it *pickerItem) title() string {
	return it.pkg.Name
}

func (it *pickerItem) desc() string {
	parts := []string{}
	if it.pkg.Manager != "" {
		parts = append(parts, it.pkg.Manager)
	}
	if it.pkg.Current != "" || it.pkg.Latest != "" {
		parts = append(parts, fmt.Sprintf("%s → %s", it.pkg.Current, it.pkg.Latest))
	}

	return strings.Join(parts, " · ")
}

func (it *pickerItem) buildFilterValue() {
	it.filterValue = it.pkg.Name + " " + it.pkg.Manager
}

// PickerModel is the package selection view.
type PickerModel struct {
	cm           *CommonModel
	helpRenderer *statusbar.HelpRenderer
	keyHandler   *pickerKeyHandler
	managerErrs  map[string]error

	// The master set of packages we're working with.
	packages []*pickerItem

	// Packages we're currently displaying. Filtering alters this slice, so it
	// should be considered ephemeral.
	filteredPackages []*pickerItem

	filterInput textinput.Model
	spinner     spinner.Model
	paginator   paginator.Model
	cursor      int

	FilterState FilterState
	helpHeight  int
	ShowHelp    bool
	compact     bool
}

type PickerConfig struct {
	CommonModel *CommonModel
	KeyBinds    *PickerKeyBinds
	Compact     bool
}

func NewPickerModel(c PickerConfig) PickerModel {
	si := textinput.New()
	si.Prompt = "Find:"
	si.PromptStyle = c.CommonModel.Theme.FilterStyle.MarginRight(1)
	si.Cursor.Style = c.CommonModel.Theme.CursorStyle.MarginRight(1)
	si.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = c.CommonModel.Theme.SubtleStyle

	ckb := c.CommonModel.KeyBinds
	kb := c.KeyBinds
	kbr := &keys.KeyBindRenderer{}
	kbr.AddColumn(
		*ckb.Up,
		*ckb.Down,
		*kb.Toggle,
	)
	kbr.AddColumn(
		*kb.All,
		*kb.None,
		*kb.Confirm,
		*kb.Filter,
	)
	kbr.AddColumn(
		*ckb.Help,
		*ckb.Quit,
	)

	m := PickerModel{
		cm:           c.CommonModel,
		filterInput:  si,
		spinner:      sp,
		paginator:    newPickerPaginator(c.CommonModel.Theme),
		helpRenderer: statusbar.NewHelpRenderer(c.CommonModel.Theme, kbr),
		keyHandler:   newPickerKeyHandler(kb, ckb),
		compact:      c.Compact,
	}

	return m
}

func newPickerPaginator(t *theme.Theme) paginator.Model {
	p := paginator.New()
	p.Type = paginator.Dots
	p.ActiveDot = t.SelectedStyle.Render("•")
	p.InactiveDot = t.SubtleStyle.Render("◦")
	p.KeyMap = paginator.KeyMap{}

	return p
}

func (m PickerModel) Update(msg tea.Msg) (PickerModel, tea.Cmd) {
	var cmds []tea.Cmd

	isFiltering := m.FilterState == Filtering

	if isFiltering {
		var cmd tea.Cmd

		m, cmd = m.keyHandler.HandleFilteringMode(m, msg)
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if isFiltering {
			// Don't re-handle filter keys.
			break
		}

		var cmd tea.Cmd

		m, cmd = m.keyHandler.HandleBrowsing(m, msg)
		cmds = append(cmds, cmd)

	case PackagesLoadedMsg:
		m.setPackages(msg)

	case FilteredPackagesMsg:
		m.filteredPackages = msg
		m.setCursor(0)

		return m, nil

	case spinner.TickMsg:
		if m.IsLoading() {
			var cmd tea.Cmd

			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m PickerModel) View() string {
	top := lipgloss.JoinVertical(
		lipgloss.Top,
		m.headerView(),
		m.packageListView(),
	)
	availableHeight := m.cm.Height - lipgloss.Height(top)
	if !m.ShowHelp {
		availableHeight++
	}

	bottom := lipgloss.PlaceVertical(
		availableHeight,
		lipgloss.Bottom,
		lipgloss.JoinVertical(
			lipgloss.Top,
			lipgloss.PlaceHorizontal(
				m.cm.Width,
				lipgloss.Left,
				m.paginationView(),
			),
			m.statusBarView(),
			m.helpView(),
		),
	)

	return lipgloss.JoinVertical(lipgloss.Top, top, bottom)
}

// setPackages replaces the package listing with fresh results.
func (m *PickerModel) setPackages(msg PackagesLoadedMsg) {
	m.packages = nil
	for _, pkg := range msg.Packages {
		m.packages = append(m.packages, &pickerItem{pkg: pkg})
	}

	m.managerErrs = msg.Errors
	m.cm.Loaded = true

	m.setCursor(0)
	m.updatePagination()
}

// Whether or not the spinner should be spinning.
func (m PickerModel) IsLoading() bool {
	return !m.cm.Loaded
}

func (m PickerModel) FilterApplied() bool {
	return m.FilterState != Unfiltered
}

func (m *PickerModel) SetSize(width, height int) {
	m.cm.Width = width
	m.cm.Height = height

	// Calculate help height if needed.
	if m.ShowHelp && m.helpHeight == 0 {
		m.helpHeight = m.helpRenderer.CalculateHelpHeight()
	}

	m.filterInput.Width = width - pickerViewHorizontalPadding*2 - ansi.PrintableRuneWidth(
		m.filterInput.Prompt,
	)

	m.updatePagination()
}

func (m *PickerModel) toggleHelp() {
	m.ShowHelp = !m.ShowHelp
	m.SetSize(m.cm.Width, m.cm.Height)
}

func (m *PickerModel) ResetFiltering() {
	m.FilterState = Unfiltered
	m.filterInput.Reset()

	m.filteredPackages = nil

	m.updatePagination()
}

// Update pagination according to the amount of packages for the current
// state.
func (m *PickerModel) updatePagination() {
	helpHeight := 0
	if m.ShowHelp {
		helpHeight = m.helpHeight + 1
	}

	availableHeight := m.cm.Height -
		helpHeight -
		pickerViewTopPadding -
		pickerViewBottomPadding

	if !m.compact {
		availableHeight++
	}

	m.paginator.PerPage = max(1, availableHeight/m.itemHeight())

	if pages := len(m.getVisiblePackages()); pages < 1 {
		m.paginator.SetTotalPages(1)
	} else {
		m.paginator.SetTotalPages(pages)
	}

	// Make sure the page stays in bounds.
	if m.paginator.Page >= m.paginator.TotalPages-1 {
		m.paginator.Page = max(0, m.paginator.TotalPages-1)
	}
}

func (m PickerModel) itemHeight() int {
	if m.compact {
		return 1 // Compact mode uses a single line per package.
	}

	return 3
}

// packageIndex returns the index of the item under the cursor within the
// visible set.
func (m PickerModel) packageIndex() int {
	return m.paginator.Page*m.paginator.PerPage + m.cursor
}

// selectedItem returns the item currently under the cursor.
func (m PickerModel) selectedItem() *pickerItem {
	i := m.packageIndex()

	items := m.getVisiblePackages()
	if i < 0 || len(items) == 0 || len(items) <= i {
		return nil
	}

	return items[i]
}

// getVisiblePackages returns the packages that should be currently shown.
func (m PickerModel) getVisiblePackages() []*pickerItem {
	if m.FilterState != Unfiltered {
		return m.filteredPackages
	}

	return m.packages
}

// selectedNames returns the names of all checked packages, in listing order.
func (m PickerModel) selectedNames() []string {
	names := []string{}
	for _, it := range m.packages {
		if it.selected {
			names = append(names, it.pkg.Name)
		}
	}

	return names
}

func (m PickerModel) selectedCount() int {
	return len(m.selectedNames())
}

// setSelection checks or unchecks the visible, possibly filtered, set.
func (m *PickerModel) setSelection(selected bool) {
	for _, it := range m.getVisiblePackages() {
		it.selected = selected
	}
}

func (m *PickerModel) itemsOnPage() int {
	return m.paginator.ItemsOnPage(len(m.getVisiblePackages()))
}

func (m *PickerModel) setCursor(i int) {
	m.cursor = i
}

func (m *PickerModel) moveCursorUp() {
	m.setCursor(m.cursor - 1)
	if m.cursor < 0 && m.paginator.Page == 0 {
		// Stop.
		m.setCursor(0)

		return
	}

	if m.cursor >= 0 {
		return
	}

	// Go to previous page.
	m.paginator.PrevPage()

	m.setCursor(m.itemsOnPage() - 1)
}

func (m *PickerModel) moveCursorDown() {
	itemsOnPage := m.itemsOnPage()

	m.setCursor(m.cursor + 1)
	if m.cursor < itemsOnPage {
		return
	}

	if !m.paginator.OnLastPage() {
		m.paginator.NextPage()
		m.setCursor(0)

		return
	}

	// During filtering the cursor position can exceed the number of
	// itemsOnPage. It's more intuitive to start the cursor at the
	// topmost position when moving it down in this scenario.
	if m.cursor > itemsOnPage {
		m.setCursor(0)

		return
	}

	m.setCursor(itemsOnPage - 1)
}

func (m *PickerModel) enforcePaginationBounds() {
	itemsOnPage := m.itemsOnPage()
	if m.cursor > itemsOnPage-1 {
		m.setCursor(max(0, itemsOnPage-1))
	}
}

// startFiltering initializes the filtering mode.
func (m *PickerModel) startFiltering() tea.Cmd {
	// Build values we'll filter against.
	for _, it := range m.packages {
		it.buildFilterValue()
	}

	m.filteredPackages = m.packages
	m.paginator.Page = 0
	m.setCursor(0)

	m.FilterState = Filtering
	m.filterInput.CursorEnd()
	m.filterInput.Focus()

	return textinput.Blink
}

// FilterPackages performs a fuzzy match against the package listing.
func FilterPackages(m PickerModel) tea.Cmd {
	return func() tea.Msg {
		if m.filterInput.Value() == "" || !m.FilterApplied() {
			return FilteredPackagesMsg(m.packages) // Return everything.
		}

		term, err := normalize(m.filterInput.Value())
		if err != nil {
			term = m.filterInput.Value()
		}

		targets := []string{}
		for _, it := range m.packages {
			target, err := normalize(it.filterValue)
			if err != nil {
				target = it.filterValue
			}

			targets = append(targets, target)
		}

		ranks := fuzzy.Find(term, targets)
		sort.Stable(ranks)

		filtered := []*pickerItem{}
		for _, r := range ranks {
			filtered = append(filtered, m.packages[r.Index])
		}

		return FilteredPackagesMsg(filtered)
	}
}

// VIEW COMPONENTS.

func (m PickerModel) headerView() string {
	var header string

	divider := m.cm.Theme.SubtleStyle.SetString(" • ").String()

	if m.FilterState == Filtering {
		header = m.cm.Theme.GenericTextStyle.Render(m.filterInput.View())
	} else {
		sections := []string{
			m.cm.Theme.SubtleStyle.Render(fmt.Sprintf("%d packages", len(m.packages))),
		}

		if n := m.selectedCount(); n > 0 {
			sections = append(sections, m.cm.Theme.SelectedStyle.Render(fmt.Sprintf("%d selected", n)))
		} else {
			sections = append(sections, m.cm.Theme.SubtleStyle.Render("0 selected"))
		}

		if m.FilterState == FilterApplied {
			sections = append(sections,
				m.cm.Theme.SubtleStyle.Render(
					fmt.Sprintf("%d “%s”", len(m.filteredPackages), m.filterInput.Value()),
				))
		}

		header = strings.Join(sections, divider)
	}

	return lipgloss.NewStyle().
		Padding(pickerViewTopPadding, pickerIndent+2, 1).
		Render(header)
}

func (m PickerModel) packageListView() string {
	var b strings.Builder

	items := m.getVisiblePackages()

	// Handle empty states.
	if len(items) == 0 {
		f := func(s string) {
			b.WriteString("  " + m.cm.Theme.SubtleStyle.Render(s))
		}

		switch {
		case m.FilterState == Filtering:
			f("No results.")
		case m.cm.Loaded && len(m.managerErrs) > 0:
			m.renderManagerErrs(&b)
		case m.cm.Loaded:
			f("Everything is up to date.")
		default:
			b.WriteString("  " + m.spinner.View() + " " +
				m.cm.Theme.SubtleStyle.Render("Checking for updates..."))
		}
	}

	if len(items) > 0 {
		start, end := m.paginator.GetSliceBounds(len(items))
		pageItems := items[start:end]

		for i, it := range pageItems {
			m.itemView(&b, i, it)
			if i != len(pageItems)-1 {
				b.WriteString("\n")
				if !m.compact {
					b.WriteString("\n")
				}
			}
		}
	}

	return indentLines(b.String(), pickerIndent)
}

// renderManagerErrs lists managers that failed to report packages.
func (m PickerModel) renderManagerErrs(b *strings.Builder) {
	names := make([]string, 0, len(m.managerErrs))
	for name := range m.managerErrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		fmt.Fprintf(b, "  %s %s",
			m.cm.Theme.ErrorTextStyle.Render(theme.IconFail),
			m.cm.Theme.SubtleStyle.Render(fmt.Sprintf("%s: %v", name, m.managerErrs[name])),
		)
		if i != len(names)-1 {
			b.WriteString("\n")
		}
	}
}

func (m PickerModel) paginationView() string {
	pagination := "\n"
	if m.paginator.TotalPages > 1 {
		pagination = m.cm.Theme.SubtleStyle.
			PaddingLeft(2).
			PaddingBottom(1).
			Render(m.paginator.View())
	}

	return pagination
}

func (m PickerModel) helpView() string {
	var help string
	if m.ShowHelp {
		help = m.helpRenderer.Render(m.cm.Width)
	}

	return help
}

func (m PickerModel) statusBarView() string {
	title := m.cm.Cmd.String()

	// Show progress based on pagination.
	progress := fmt.Sprintf("%d/%d", m.paginator.Page+1, m.paginator.TotalPages)

	return m.cm.GetStatusBar().RenderWithNote(title, progress)
}

// pickerItemDisplay represents the visual state of a package row.
type pickerItemDisplay struct {
	gutter   string
	checkbox string
	title    string
	desc     string
}

func (m PickerModel) itemView(b *strings.Builder, index int, it *pickerItem) {
	var (
		// Calculate truncation width based on available space.
		truncateTo = uint(max(0, m.cm.Width-pickerViewHorizontalPadding*2)) //nolint:gosec // Uses max.

		title = truncate.StringWithTail(it.title(), truncateTo, m.cm.Theme.Ellipsis)
		desc  = truncate.StringWithTail(it.desc(), truncateTo, m.cm.Theme.Ellipsis)

		isCursor           = index == m.cursor
		isFiltering        = m.FilterState == Filtering
		filterValue        = m.filterInput.Value()
		singleFilteredItem = isFiltering && len(m.getVisiblePackages()) == 1

		// If there are multiple items being filtered don't highlight a selected
		// item in the results. If we've filtered down to one item, however,
		// highlight it since applying the filter will land on it.
		shouldHighlight = (isCursor && !isFiltering) || singleFilteredItem
	)

	var state pickerItemDisplay
	if shouldHighlight {
		state = m.applySelectedStyling(title, desc, filterValue)
	} else {
		state = m.applyUnselectedStyling(title, desc, isFiltering, filterValue)
	}

	state.checkbox = m.checkboxView(it)

	if m.compact {
		fmt.Fprintf(b, "%s %s %s  %s", state.gutter, state.checkbox, state.title, state.desc)
	} else {
		fmt.Fprintf(b, "%s %s %s\n", state.gutter, state.checkbox, state.title)
		fmt.Fprintf(b, "%s     %s", state.gutter, state.desc)
	}
}

func (m PickerModel) checkboxView(it *pickerItem) string {
	if it.selected {
		return m.cm.Theme.SuccessTextStyle.Render("[x]")
	}

	return m.cm.Theme.SubtleStyle.Render("[ ]")
}

func (m PickerModel) applySelectedStyling(title, desc, filterValue string) pickerItemDisplay {
	t := m.cm.Theme

	state := pickerItemDisplay{
		gutter: t.SelectedStyle.Render("│"),
	}

	if filterValue != "" {
		state.title = styleFilteredText(title, filterValue, t.SelectedStyle, t.SelectedStyle.Underline(true))
		state.desc = styleFilteredText(desc, filterValue, t.SelectedSubtleStyle, t.SelectedSubtleStyle.Underline(true))
	} else {
		state.title = t.SelectedStyle.Render(title)
		state.desc = t.SelectedSubtleStyle.Render(desc)
	}

	return state
}

func (m PickerModel) applyUnselectedStyling(title, desc string, isFiltering bool, filterValue string) pickerItemDisplay {
	t := m.cm.Theme

	state := pickerItemDisplay{
		gutter: " ",
	}

	if isFiltering && filterValue == "" {
		// Dimmed styling when filtering with empty input.
		state.title = t.SubtleStyle.Render(title)
		state.desc = t.SubtleStyle.Render(desc)
	} else {
		state.title = styleFilteredText(title, filterValue, t.GenericTextStyle, t.GenericTextStyle.Underline(true))
		state.desc = styleFilteredText(desc, filterValue, t.SubtleStyle, t.SubtleStyle.Underline(true))
	}

	return state
}

func styleFilteredText(haystack, needles string, defaultStyle, matchedStyle lipgloss.Style) string {
	if needles == "" {
		return defaultStyle.Render(haystack)
	}

	matches := fuzzy.Find(needles, []string{haystack})
	if len(matches) == 0 {
		return defaultStyle.Render(haystack)
	}

	b := strings.Builder{}

	match := matches[0] // Only one match exists.
	for i, r := range []rune(haystack) {
		styled := false
		for _, mi := range match.MatchedIndexes {
			if i == mi {
				b.WriteString(matchedStyle.Render(string(r)))
				styled = true
			}
		}
		if !styled {
			b.WriteString(defaultStyle.Render(string(r)))
		}
	}

	return b.String()
}

// Lightweight version of reflow's indent function.
func indentLines(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}

	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}

	return b.String()
}

// KEY HANDLING.

// pickerKeyHandler provides key handling for the picker view.
type pickerKeyHandler struct {
	kb  *PickerKeyBinds
	ckb *CommonKeyBinds
}

func newPickerKeyHandler(kb *PickerKeyBinds, ckb *CommonKeyBinds) *pickerKeyHandler {
	return &pickerKeyHandler{
		kb:  kb,
		ckb: ckb,
	}
}

// HandleBrowsing handles key events while browsing the package listing.
func (h *pickerKeyHandler) HandleBrowsing(m PickerModel, msg tea.KeyMsg) (PickerModel, tea.Cmd) {
	key := msg.String()

	switch {
	case h.ckb.Up.Match(key):
		m.moveCursorUp()

	case h.ckb.Down.Match(key):
		m.moveCursorDown()

	case h.kb.Toggle.Match(key):
		if it := m.selectedItem(); it != nil {
			it.selected = !it.selected
		}

	case h.kb.All.Match(key):
		m.setSelection(true)

	case h.kb.None.Match(key):
		m.setSelection(false)

	case h.kb.Confirm.Match(key):
		names := m.selectedNames()
		if len(names) == 0 {
			return m, m.cm.SendStatusMessage("no packages selected", statusbar.StyleError)
		}

		return m, func() tea.Msg {
			return PickerConfirmedMsg{Packages: names}
		}

	case h.kb.Filter.Match(key):
		cmd := m.startFiltering()

		return m, cmd

	case key == "esc":
		// Esc always clears an applied filter.
		if m.FilterState == FilterApplied {
			m.ResetFiltering()
		}

	case h.ckb.Help.Match(key):
		m.toggleHelp()
	}

	return m, nil
}

// HandleFilteringMode handles events when in filtering mode.
func (h *pickerKeyHandler) HandleFilteringMode(m PickerModel, msg tea.Msg) (PickerModel, tea.Cmd) {
	var cmds []tea.Cmd

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		var cmd tea.Cmd

		m, cmd = h.handleFilterKeys(m, keyMsg.String())
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	// Update the filter input component.
	m, inputCmd := h.updateFilterInput(m, msg)
	cmds = append(cmds, inputCmd)

	// Update pagination.
	m.updatePagination()

	return m, tea.Batch(cmds...)
}

// handleFilterKeys handles key events specific to filtering mode.
func (h *pickerKeyHandler) handleFilterKeys(m PickerModel, key string) (PickerModel, tea.Cmd) {
	switch {
	case key == "esc":
		// Esc always cancels filtering.
		m.ResetFiltering()

	case h.ckb.Up.Match(key),
		h.ckb.Down.Match(key),
		h.kb.Confirm.Match(key):
		// Apply filter.
		if len(m.packages) == 0 {
			return m, nil
		}

		visible := m.getVisiblePackages()

		// If we've filtered down to nothing, clear the filter.
		if len(visible) == 0 {
			m.ResetFiltering()

			return m, nil
		}

		m.filterInput.Blur()

		m.FilterState = FilterApplied
		if m.filterInput.Value() == "" {
			m.ResetFiltering()
		}

		m.enforcePaginationBounds()
	}

	return m, nil
}

// updateFilterInput updates the filter input component and handles value changes.
func (h *pickerKeyHandler) updateFilterInput(m PickerModel, msg tea.Msg) (PickerModel, tea.Cmd) {
	var cmds []tea.Cmd

	newFilterInputModel, inputCmd := m.filterInput.Update(msg)
	currentFilterVal := m.filterInput.Value()
	newFilterVal := newFilterInputModel.Value()
	m.filterInput = newFilterInputModel
	cmds = append(cmds, inputCmd)

	// If the filtering input has changed, request updated filtering.
	if newFilterVal != currentFilterVal {
		cmds = append(cmds, FilterPackages(m))
	}

	return m, tea.Batch(cmds...)
}
