// Package tui renders the new-post form in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/blacktop/newpost/internal/postform"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	focusTitle = iota
	focusImage
	focusContent
	focusCount
)

// Styles used by the form.
var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	buttonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Padding(0, 3)
	AlertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type submitDoneMsg struct{ err error }

// Model is the bubbletea model for the new-post form.
type Model struct {
	ctx    context.Context
	form   *postform.Form
	bridge *Bridge
	load   func(string) (postform.Image, error)

	title   textinput.Model
	image   textinput.Model
	content textarea.Model
	spinner spinner.Model

	focus      int
	imagePath  string
	alert      string
	submitting bool
	created    bool
	quitting   bool
}

// Options configures New.
type Options struct {
	Title     string
	Content   string
	ImagePath string
	// LoadImage defaults to postform.LoadImage.
	LoadImage func(string) (postform.Image, error)
}

// New builds a form model. bridge must be the form's Alerter and Navigator.
func New(ctx context.Context, form *postform.Form, bridge *Bridge, opts Options) Model {
	title := textinput.New()
	title.Placeholder = "Title"
	title.Prompt = ""
	title.SetValue(opts.Title)

	image := textinput.New()
	image.Placeholder = "path/to/image.png"
	image.Prompt = ""
	image.SetValue(opts.ImagePath)

	content := textarea.New()
	content.Placeholder = "Content"
	content.ShowLineNumbers = false
	content.SetHeight(10)
	content.SetValue(opts.Content)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	load := opts.LoadImage
	if load == nil {
		load = postform.LoadImage
	}

	m := Model{
		ctx:     ctx,
		form:    form,
		bridge:  bridge,
		load:    load,
		title:   title,
		image:   image,
		content: content,
		spinner: sp,
	}
	m.title.Focus()
	if opts.ImagePath != "" {
		m.commitImage()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Created reports whether the backend accepted the post.
func (m Model) Created() bool { return m.created }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width < 20 {
			width = 20
		}
		m.title.Width = width
		m.image.Width = width
		m.content.SetWidth(width)
		return m, nil

	case submitDoneMsg:
		m.submitting = false
		alerts, dest := m.bridge.Drain()
		if len(alerts) > 0 {
			m.alert = alerts[len(alerts)-1]
		}
		if msg.err == nil && dest == postform.HomePath {
			m.created = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+s":
			return m.submit()
		case "tab":
			return m.moveFocus(1)
		case "shift+tab":
			return m.moveFocus(-1)
		case "enter":
			if m.focus != focusContent {
				return m.moveFocus(1)
			}
		}
	}

	return m.updateFocused(msg)
}

func (m Model) busy() bool {
	return m.submitting || m.form.Loading()
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusTitle:
		m.title, cmd = m.title.Update(msg)
	case focusImage:
		m.image, cmd = m.image.Update(msg)
	case focusContent:
		m.content, cmd = m.content.Update(msg)
	}
	return m, cmd
}

func (m Model) moveFocus(delta int) (tea.Model, tea.Cmd) {
	if m.focus == focusImage {
		m.commitImage()
	}

	m.title.Blur()
	m.image.Blur()
	m.content.Blur()

	m.focus = (m.focus + delta + focusCount) % focusCount
	var cmd tea.Cmd
	switch m.focus {
	case focusTitle:
		cmd = m.title.Focus()
	case focusImage:
		cmd = m.image.Focus()
	case focusContent:
		cmd = m.content.Focus()
	}
	return m, cmd
}

// commitImage is the file input's change event: a new path replaces the
// pending image. A path that fails to load clears the selection so the
// field never shows one file while another would be uploaded.
func (m *Model) commitImage() {
	path := strings.TrimSpace(m.image.Value())
	if path == "" || path == m.imagePath {
		return
	}

	img, err := m.load(path)
	if err != nil {
		m.imagePath = ""
		m.form.Reset()
		m.alert = err.Error()
		return
	}
	m.imagePath = path
	m.alert = ""
	m.form.SelectImage(img)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy() {
		return m, nil
	}
	if m.focus == focusImage {
		m.commitImage()
	}

	m.form.SetFields(postform.Values{
		TitleText:   m.title.Value(),
		ContentText: m.content.Value(),
	})
	m.alert = ""
	m.submitting = true

	form, ctx := m.form, m.ctx
	return m, tea.Batch(
		func() tea.Msg { return submitDoneMsg{err: form.Submit(ctx)} },
		m.spinner.Tick,
	)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.form.Ready() {
		return "Loading...\n"
	}

	var b strings.Builder
	if user, ok := m.form.User(); ok && user.Name != "" {
		b.WriteString(hintStyle.Render(fmt.Sprintf("posting as %s", user.Name)))
		b.WriteString("\n\n")
	}

	b.WriteString(labelStyle.Render("Title") + "\n")
	b.WriteString(m.title.View() + "\n\n")

	b.WriteString(labelStyle.Render("Image") + "\n")
	b.WriteString(m.image.View() + "\n")
	if img, ok := m.form.PendingImage(); ok {
		b.WriteString(hintStyle.Render(fmt.Sprintf("selected: %s (%s, %d bytes)", img.Name, img.ContentType, len(img.Data))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Content") + "\n")
	b.WriteString(m.content.View() + "\n\n")

	if m.busy() {
		b.WriteString(m.spinner.View() + " Submitting, please wait...\n")
	} else {
		b.WriteString(buttonStyle.Render("Create") + " " + hintStyle.Render("ctrl+s") + "\n")
	}

	if m.alert != "" {
		b.WriteString("\n" + AlertStyle.Render(m.alert) + "\n")
	}

	b.WriteString("\n" + hintStyle.Render("tab: next field • shift+tab: previous • esc: quit") + "\n")
	return b.String()
}
