package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/gerardojimenezvelasco74-arch/listacompartida/listsync"
)

const DefaultUrl = "ws://localhost:4040/sync"

const createdAtFormat = "02/01/2006 15:04"

// sectionRow adapts a section entry to bubbles/list.Item
type sectionRow struct {
	Entry listsync.Entry[listsync.Section]
}

func (r sectionRow) Title() string       { return r.Entry.Value.Name }
func (r sectionRow) Description() string { return "" }
func (r sectionRow) FilterValue() string { return r.Entry.Value.Name }

type itemRow struct {
	Entry listsync.Entry[listsync.Item]
}

func (r itemRow) Title() string       { return r.Entry.Value.Name }
func (r itemRow) Description() string { return "" }
func (r itemRow) FilterValue() string { return r.Entry.Value.Name }

// fired when the sections subscription has a fresh snapshot to read
type sectionsChangedMsg struct{}

// fired when the items subscription has a fresh snapshot to read
type itemsChangedMsg struct{}

type mutationDoneMsg struct {
	err error
}

type sectionDelegate struct{}

func (d sectionDelegate) Height() int                               { return 1 }
func (d sectionDelegate) Spacing() int                              { return 0 }
func (d sectionDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d sectionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, _ := item.(sectionRow)
	line := fmt.Sprintf("%s  %s", row.Entry.Value.Name,
		mutedStyle.Render(row.Entry.Value.CreatedAt))
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, _ := item.(itemRow)
	line := row.Entry.Value.Name
	if row.Entry.Value.Quantity != "" {
		line += mutedStyle.Render("  x" + row.Entry.Value.Quantity)
	}
	if row.Entry.Value.Price != "" {
		line += accentStyle.Render("  " + row.Entry.Value.Price)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

type inputMode int

const (
	inputNone inputMode = iota
	inputAddSection
	inputRenameSection
	inputAddItem
	inputEditItem
)

type modelTUI struct {
	ctx    context.Context
	engine *listsync.SyncEngine

	sectionsSub    *listsync.SectionSubscription
	sectionsNotify <-chan struct{}
	sections       list.Model

	// set while a section is open
	sectionId   string
	sectionName string
	itemsSub    *listsync.ItemSubscription
	itemsNotify <-chan struct{}
	items       list.Model

	mode    inputMode
	ti      textinput.Model
	editId  string
	inputEr string

	width  int
	height int

	syncErr error
	status  string
}

func newModelTUI(ctx context.Context, engine *listsync.SyncEngine, sub *listsync.SectionSubscription) modelTUI {
	sections := list.New(nil, sectionDelegate{}, 0, 0)
	sections.Title = titleStyle.Render("Listas")
	sections.SetShowHelp(true)
	sections.SetShowStatusBar(true)
	sections.SetFilteringEnabled(true)
	sections.Styles.Title = titleStyle
	sections.Styles.HelpStyle = helpStyle
	sections.Styles.PaginationStyle = helpStyle
	sections.SetStatusBarItemName("lista", "listas")

	addBind := key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind := key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "rename"))
	deleteBind := key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	openBind := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open"))
	sections.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{openBind, addBind, editBind, deleteBind}
	}
	sections.AdditionalFullHelpKeys = sections.AdditionalShortHelpKeys

	m := modelTUI{
		ctx:         ctx,
		engine:      engine,
		sectionsSub: sub,
	}
	m.sections = sections

	m.ti = textinput.New()
	m.ti.Prompt = "> "
	m.ti.CharLimit = 200

	// capture the notify channel before the first read so no update is lost
	m.sectionsNotify = sub.NotifyChannel()
	if sub.Ready() {
		m.readSections()
	}
	return m
}

// waitNotify blocks on a previously captured notify channel. The channel is
// re-captured before every snapshot read, so an update racing the read only
// produces one extra redundant message, never a missed one.
func waitNotify(notify <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		<-notify
		return msg
	}
}

func (m *modelTUI) readSections() {
	entries := m.sectionsSub.Snapshot()
	rows := make([]list.Item, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, sectionRow{Entry: entry})
	}
	m.sections.SetItems(rows)
	if m.sectionId != "" {
		// keep the open section title current across a concurrent rename
		for _, entry := range entries {
			if entry.Id == m.sectionId {
				m.sectionName = entry.Value.Name
			}
		}
	}
}

func (m *modelTUI) readItems() {
	entries := m.itemsSub.Snapshot()
	rows := make([]list.Item, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, itemRow{Entry: entry})
	}
	m.items.SetItems(rows)
	m.items.Title = fmt.Sprintf("%s   %s %g",
		titleStyle.Render(m.sectionName),
		accentStyle.Render("Total"),
		listsync.TotalSpentOfEntries(entries),
	)
}

func (m *modelTUI) openSection(entry listsync.Entry[listsync.Section]) (tea.Cmd, error) {
	sub, err := m.engine.SubscribeItems(entry.Id)
	if err != nil {
		return nil, err
	}

	items := list.New(nil, itemDelegate{}, 0, 0)
	items.SetShowHelp(true)
	items.SetShowStatusBar(true)
	items.SetFilteringEnabled(true)
	items.Styles.Title = titleStyle
	items.Styles.HelpStyle = helpStyle
	items.Styles.PaginationStyle = helpStyle
	items.SetStatusBarItemName("producto", "productos")

	addBind := key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind := key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	deleteBind := key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	backBind := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back"))
	items.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{addBind, editBind, deleteBind, backBind}
	}
	items.AdditionalFullHelpKeys = items.AdditionalShortHelpKeys

	m.sectionId = entry.Id
	m.sectionName = entry.Value.Name
	m.itemsSub = sub
	m.items = items

	m.itemsNotify = sub.NotifyChannel()
	if sub.Ready() {
		m.readItems()
	} else {
		m.items.Title = titleStyle.Render(m.sectionName)
	}
	m.resize()
	return waitNotify(m.itemsNotify, itemsChangedMsg{}), nil
}

func (m *modelTUI) closeSection() {
	if m.itemsSub != nil {
		m.itemsSub.Close()
	}
	m.itemsSub = nil
	m.sectionId = ""
	m.sectionName = ""
}

func (m *modelTUI) resize() {
	if m.width == 0 {
		return
	}
	listHeight := m.height - 4
	if m.mode != inputNone {
		listHeight = m.height - 7
	}
	m.sections.SetSize(m.width-4, listHeight)
	if m.itemsSub != nil {
		m.items.SetSize(m.width-4, listHeight)
	}
}

func (m modelTUI) mutate(f func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return mutationDoneMsg{err: f(ctx)}
	}
}

func (m modelTUI) Init() tea.Cmd {
	return waitNotify(m.sectionsNotify, sectionsChangedMsg{})
}

func (m modelTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case sectionsChangedMsg:
		m.sectionsNotify = m.sectionsSub.NotifyChannel()
		if err := m.sectionsSub.Err(); err != nil {
			m.syncErr = err
			return m, tea.Quit
		}
		m.readSections()
		return m, waitNotify(m.sectionsNotify, sectionsChangedMsg{})

	case itemsChangedMsg:
		if m.itemsSub == nil {
			return m, nil
		}
		m.itemsNotify = m.itemsSub.NotifyChannel()
		if err := m.itemsSub.Err(); err != nil {
			m.syncErr = err
			return m, tea.Quit
		}
		m.readItems()
		return m, waitNotify(m.itemsNotify, itemsChangedMsg{})

	case mutationDoneMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = ""
		}
		return m, nil
	}

	if m.mode != inputNone {
		return m.updateInput(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if m.itemsSub != nil {
			return m.updateItemsView(keyMsg)
		}
		return m.updateSectionsView(keyMsg)
	}

	var cmd tea.Cmd
	if m.itemsSub != nil {
		m.items, cmd = m.items.Update(msg)
	} else {
		m.sections, cmd = m.sections.Update(msg)
	}
	return m, cmd
}

func (m modelTUI) updateSectionsView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.sections.FilterState() != list.Filtering {
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "enter":
			if row, ok := m.sections.SelectedItem().(sectionRow); ok {
				cmd, err := m.openSection(row.Entry)
				if err != nil {
					m.status = errorStyle.Render(err.Error())
					return m, nil
				}
				return m, cmd
			}
			return m, nil
		case "a":
			m.mode = inputAddSection
			m.ti.SetValue("")
			m.ti.Placeholder = "Nombre de la lista..."
			m.ti.Focus()
			m.resize()
			return m, nil
		case "e":
			if row, ok := m.sections.SelectedItem().(sectionRow); ok {
				m.mode = inputRenameSection
				m.editId = row.Entry.Id
				m.ti.SetValue(row.Entry.Value.Name)
				m.ti.CursorEnd()
				m.ti.Placeholder = "Nombre de la lista..."
				m.ti.Focus()
				m.resize()
			}
			return m, nil
		case "d":
			if row, ok := m.sections.SelectedItem().(sectionRow); ok {
				sectionId := row.Entry.Id
				return m, m.mutate(func(ctx context.Context) error {
					return m.engine.DeleteSection(ctx, sectionId)
				})
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.sections, cmd = m.sections.Update(msg)
	return m, cmd
}

func (m modelTUI) updateItemsView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.items.FilterState() != list.Filtering {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc":
			m.closeSection()
			m.resize()
			return m, nil
		case "a":
			m.mode = inputAddItem
			m.ti.SetValue("")
			m.ti.Placeholder = "producto, cantidad, precio"
			m.ti.Focus()
			m.resize()
			return m, nil
		case "e":
			if row, ok := m.items.SelectedItem().(itemRow); ok {
				m.mode = inputEditItem
				m.editId = row.Entry.Id
				m.ti.SetValue(formatItemInput(row.Entry.Value))
				m.ti.CursorEnd()
				m.ti.Placeholder = "producto, cantidad, precio"
				m.ti.Focus()
				m.resize()
			}
			return m, nil
		case "d":
			if row, ok := m.items.SelectedItem().(itemRow); ok {
				sectionId := m.sectionId
				itemId := row.Entry.Id
				return m, m.mutate(func(ctx context.Context) error {
					return m.engine.DeleteItem(ctx, sectionId, itemId)
				})
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.items, cmd = m.items.Update(msg)
	return m, cmd
}

func (m modelTUI) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			return m.submitInput()
		case "esc":
			m.mode = inputNone
			m.inputEr = ""
			m.ti.SetValue("")
			m.ti.Blur()
			m.resize()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m modelTUI) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.ti.Value())

	var cmd tea.Cmd
	switch m.mode {
	case inputAddSection:
		if value == "" {
			m.inputEr = "el nombre no puede estar vacío"
			return m, nil
		}
		createdAt := time.Now().Format(createdAtFormat)
		cmd = m.mutate(func(ctx context.Context) error {
			_, err := m.engine.CreateSection(ctx, value, createdAt)
			return err
		})
	case inputRenameSection:
		if value == "" {
			m.inputEr = "el nombre no puede estar vacío"
			return m, nil
		}
		sectionId := m.editId
		cmd = m.mutate(func(ctx context.Context) error {
			return m.engine.RenameSection(ctx, sectionId, value)
		})
	case inputAddItem, inputEditItem:
		item := parseItemInput(value)
		if item.Name == "" {
			m.inputEr = "el producto no puede estar vacío"
			return m, nil
		}
		sectionId := m.sectionId
		existingId := ""
		if m.mode == inputEditItem {
			existingId = m.editId
		}
		cmd = m.mutate(func(ctx context.Context) error {
			_, err := m.engine.UpsertItem(ctx, sectionId, item, existingId)
			return err
		})
	}

	m.mode = inputNone
	m.inputEr = ""
	m.editId = ""
	m.ti.SetValue("")
	m.ti.Blur()
	m.resize()
	return m, cmd
}

func (m modelTUI) View() string {
	var content string
	if m.itemsSub != nil {
		content = m.items.View()
	} else {
		content = m.sections.View()
	}

	if m.mode != inputNone {
		title := ""
		switch m.mode {
		case inputAddSection:
			title = "Nueva lista"
		case inputRenameSection:
			title = "Renombrar lista"
		case inputAddItem:
			title = "Nuevo producto"
		case inputEditItem:
			title = "Editar producto"
		}
		content += "\n" + inputBar(title, m.inputEr, m.ti.View())
	} else if m.status != "" {
		content += "\n" + m.status
	}
	return panelString(content)
}

// parseItemInput splits "producto, cantidad, precio" with trailing parts
// optional
func parseItemInput(value string) listsync.Item {
	parts := strings.SplitN(value, ",", 3)
	item := listsync.Item{}
	item.Name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		item.Quantity = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		item.Price = strings.TrimSpace(parts[2])
	}
	return item
}

func formatItemInput(item listsync.Item) string {
	if item.Price != "" {
		return fmt.Sprintf("%s, %s, %s", item.Name, item.Quantity, item.Price)
	}
	if item.Quantity != "" {
		return fmt.Sprintf("%s, %s", item.Name, item.Quantity)
	}
	return item.Name
}

func main() {
	// optional env file
	godotenv.Load()

	url := os.Getenv("LISTSYNC_URL")
	if url == "" {
		url = DefaultUrl
	}
	root := os.Getenv("LISTSYNC_ROOT")
	if root == "" {
		root = listsync.DefaultRootPath
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := listsync.NewWsTreeClientWithDefaults(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", url, err)
		os.Exit(1)
	}
	defer client.Close()

	settings := listsync.DefaultSyncEngineSettings()
	settings.RootPath = root
	engine := listsync.NewSyncEngine(ctx, client, settings)

	sub, err := engine.SubscribeSections()
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	m := newModelTUI(ctx, engine, sub)
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if fm, ok := finalModel.(modelTUI); ok && fm.syncErr != nil {
		fmt.Fprintf(os.Stderr, "subscription terminated: %v\n", fm.syncErr)
		os.Exit(1)
	}
}
