// Package browser is the interactive terminal view over stored memory. It
// lists every block across tiers and shows the full content of the selected
// one.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sandevgo/membank/internal/core"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	detailStyle = lipgloss.NewStyle().PaddingLeft(2)
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type item struct {
	block *core.MemoryBlock
}

func (i item) Title() string {
	return firstLine(i.block.Content)
}

func (i item) Description() string {
	desc := string(i.block.Tier)
	if len(i.block.Metadata.Tags) > 0 {
		desc += " [" + strings.Join(i.block.Metadata.Tags, ", ") + "]"
	}
	return desc
}

func (i item) FilterValue() string {
	return i.block.Content + " " + strings.Join(i.block.Metadata.Tags, " ")
}

type model struct {
	list     list.Model
	selected *core.MemoryBlock
	width    int
	height   int
}

func newModel(blocks []*core.MemoryBlock) model {
	items := make([]list.Item, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, item{block: b})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Memory Blocks"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return model{list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.selected != nil {
				m.selected = nil
				return m, nil
			}
			if m.list.FilterState() != list.Filtering {
				return m, tea.Quit
			}
		case "enter":
			if m.list.FilterState() != list.Filtering {
				if i, ok := m.list.SelectedItem().(item); ok {
					m.selected = i.block
				}
				return m, nil
			}
		case "esc":
			if m.selected != nil {
				m.selected = nil
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.selected != nil {
		b := m.selected
		var sb strings.Builder
		sb.WriteString(titleStyle.Render(b.ID) + "\n\n")
		sb.WriteString(detailStyle.Render(b.Content) + "\n\n")
		sb.WriteString(metaStyle.Render(fmt.Sprintf(
			"tier: %s  score: %.2f  accesses: %d\ncreated: %s\nupdated: %s",
			b.Tier, b.Metadata.RelevanceScore, b.Metadata.AccessCount,
			b.Metadata.Created.Format("2006-01-02 15:04"),
			b.Metadata.Updated.Format("2006-01-02 15:04"),
		)))
		if len(b.Metadata.Tags) > 0 {
			sb.WriteString(metaStyle.Render("\ntags: " + strings.Join(b.Metadata.Tags, ", ")))
		}
		sb.WriteString(metaStyle.Render("\n\nesc to go back, q to quit"))
		return sb.String()
	}
	return m.list.View()
}

// Run loads every block and takes over the terminal until the user quits.
func Run(ctx context.Context, store core.BlockStore) error {
	blocks, err := core.ListAll(ctx, store)
	if err != nil {
		return fmt.Errorf("load blocks for browser: %w", err)
	}

	_, err = tea.NewProgram(newModel(blocks), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
