package adapter

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"eocd/internal/eocderr"
)

type chooserItem struct {
	inst Instance
}

func (i chooserItem) Title() string { return i.inst.Profile.Name }
func (i chooserItem) Description() string {
	return fmt.Sprintf("bus %d addr %d serial %q", i.inst.Bus, i.inst.Address, i.inst.Serial)
}
func (i chooserItem) FilterValue() string { return i.inst.Profile.Name }

var chosenStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

type chooserModel struct {
	list     list.Model
	chosen   *Instance
	quit     bool
	quitting bool
}

func (m chooserModel) Init() tea.Cmd { return nil }

func (m chooserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if it, ok := m.list.SelectedItem().(chooserItem); ok {
				inst := it.inst
				m.chosen = &inst
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m chooserModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Choose runs an interactive terminal list for the user to pick among
// several connected adapters matching the same criteria. It is only
// invoked when selection is ambiguous and the caller hasn't opted into
// non-interactive mode. Aborting the picker (ctrl-c/esc/q, or quitting
// without selecting anything) leaves the selection exactly as ambiguous
// as it was before the picker ran, so it fails with the same
// {MultipleAdaptersMatch} kind non-interactive mode would have, carrying
// the same candidate list.
func Choose(candidates []Instance) (Instance, error) {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = chooserItem{inst: c}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Multiple debug adapters found, choose one"
	l.Styles.Title = chosenStyle

	m := chooserModel{list: l}
	program := tea.NewProgram(m)
	res, err := program.Run()
	if err != nil {
		return Instance{}, eocderr.Wrap(eocderr.AdapterOpenFailed, "interactive adapter chooser failed", err)
	}

	final := res.(chooserModel)
	if final.chosen == nil {
		return Instance{}, &eocderr.Error{
			Kind:       eocderr.MultipleAdaptersMatch,
			Message:    multipleAdapterMsg(candidates),
			Candidates: candidateLines(candidates),
		}
	}
	return *final.chosen, nil
}

func candidateLines(candidates []Instance) []string {
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = c.String()
	}
	return lines
}
