package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/auth"
	"github.com/yolodolo42/dagent/internal/ui"
	"golang.org/x/term"
)

// WizardStep represents the current step in the wizard
type WizardStep int

const (
	StepWelcome WizardStep = iota
	StepMethod
	StepEmail
	StepPassword
	StepSigningIn
	StepOAuthWaiting
	StepComplete
)

const totalSteps = 2 // Sign in, Ready

const (
	methodPassword = "password"
	methodGoogle   = api.OAuthGoogle
	methodGitHub   = api.OAuthGitHub
)

// Authenticator signs the user in against the server.
type Authenticator interface {
	Login(ctx context.Context, email, password string, remember bool) error
	LoginOAuth(ctx context.Context, provider string, remember bool) error
}

// SetupResult contains the result of the setup wizard
type SetupResult struct {
	Method    string
	Cancelled bool
}

// WizardModel is the main wizard Bubbletea model
type WizardModel struct {
	step     WizardStep
	status   *SetupStatus
	authn    Authenticator
	server   string
	quitting bool

	methodSelector ui.Selector
	method         string

	emailInput    textinput.Model
	passwordInput textinput.Model
	remember      bool
	formError     string

	spinner  spinner.Model
	progress progress.Model

	result *SetupResult
}

// signInMsg reports the outcome of a sign-in attempt
type signInMsg struct {
	err error
}

func methodItems() []ui.SelectorItem {
	return []ui.SelectorItem{
		{ID: methodPassword, Label: "Email and password", Description: "recommended"},
		{ID: methodGoogle, Label: "Google", Description: "opens your browser"},
		{ID: methodGitHub, Label: "GitHub", Description: "opens your browser"},
	}
}

// NewWizard creates a new wizard model
func NewWizard(status *SetupStatus, authn Authenticator, server string) *WizardModel {
	if status == nil {
		status = &SetupStatus{}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	emailInput := textinput.New()
	emailInput.Prompt = ""
	emailInput.Placeholder = "you@example.com"
	emailInput.CharLimit = 254
	emailInput.Width = 40

	passInput := textinput.New()
	passInput.Prompt = ""
	passInput.Placeholder = "Password"
	passInput.EchoMode = textinput.EchoPassword
	passInput.EchoCharacter = '•'
	passInput.CharLimit = 100
	passInput.Width = 40

	m := &WizardModel{
		step:           StepWelcome,
		status:         status,
		authn:          authn,
		server:         server,
		methodSelector: ui.NewSelector("How do you want to sign in?", methodItems()),
		emailInput:     emailInput,
		passwordInput:  passInput,
		remember:       true,
		spinner:        sp,
		progress:       prog,
	}

	if status.IsComplete {
		m.step = StepComplete
	}
	return m
}

// Init initializes the wizard
func (m WizardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

// Update handles messages
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global keys (don't swallow Esc; selectors use it).
		if msg.Type == tea.KeyCtrlC {
			m.result = &SetupResult{Cancelled: true}
			m.quitting = true
			return m, tea.Quit
		}

		switch m.step {
		case StepWelcome:
			if msg.Type == tea.KeyEnter {
				m.step = StepMethod
			}
			return m, nil

		case StepMethod:
			return m.updateMethod(msg)

		case StepEmail:
			switch msg.Type {
			case tea.KeyEsc:
				m.emailInput.Blur()
				m.formError = ""
				m.step = StepMethod
				m.methodSelector.Reset()
				return m, nil
			case tea.KeyEnter:
				return m.updateEmail()
			}
			// Fall through to let input update happen

		case StepPassword:
			switch msg.Type {
			case tea.KeyEsc:
				m.passwordInput.Blur()
				m.passwordInput.Reset()
				m.formError = ""
				m.step = StepEmail
				cmd := m.emailInput.Focus()
				return m, cmd
			case tea.KeyTab:
				m.remember = !m.remember
				return m, nil
			case tea.KeyEnter:
				return m.updatePassword()
			}
			// Fall through to let input update happen

		case StepSigningIn, StepOAuthWaiting:
			// Sign-in is in progress, just wait
			return m, nil

		case StepComplete:
			if msg.Type == tea.KeyEnter {
				m.result = &SetupResult{Method: m.method}
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.progress.Width = min(40, msg.Width-20)
		m.methodSelector.SetWidth(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case signInMsg:
		if msg.err != nil {
			m.formError = formatSignInError(msg.err)
			if m.method == methodPassword {
				m.step = StepPassword
				m.passwordInput.Reset()
				cmd := m.passwordInput.Focus()
				return m, cmd
			}
			m.step = StepMethod
			m.methodSelector.Reset()
			return m, nil
		}
		m.formError = ""
		m.status.LoggedIn = true
		m.status.IsComplete = true
		m.step = StepComplete
		return m, nil
	}

	// Update text inputs
	switch m.step {
	case StepEmail:
		var cmd tea.Cmd
		m.emailInput, cmd = m.emailInput.Update(msg)
		cmds = append(cmds, cmd)
	case StepPassword:
		var cmd tea.Cmd
		m.passwordInput, cmd = m.passwordInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// formatSignInError returns a user-friendly error message
func formatSignInError(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	errStr := err.Error()

	// Network errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") {
		return "Cannot reach the server. Check the server setting and try again."
	}

	// Truncate long errors
	if len(errStr) > 60 {
		return errStr[:57] + "..."
	}

	return errStr
}

func (m WizardModel) updateMethod(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.methodSelector.Update(msg)

	if m.methodSelector.Active() {
		return m, nil
	}

	if m.methodSelector.Cancelled() {
		m.step = StepWelcome
		m.methodSelector.Reset()
		return m, nil
	}

	m.method = m.methodSelector.Selected()
	m.formError = ""
	if m.method == methodPassword {
		m.step = StepEmail
		cmd := m.emailInput.Focus()
		return m, cmd
	}

	m.step = StepOAuthWaiting
	return m, m.signInOAuth()
}

func (m WizardModel) updateEmail() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.emailInput.Value())
	if err := auth.ValidateEmail(email); err != nil {
		m.formError = err.Error()
		return m, nil
	}
	m.formError = ""
	m.emailInput.Blur()
	m.step = StepPassword
	cmd := m.passwordInput.Focus()
	return m, cmd
}

func (m WizardModel) updatePassword() (tea.Model, tea.Cmd) {
	if m.passwordInput.Value() == "" {
		m.formError = "password is required"
		return m, nil
	}
	m.formError = ""
	m.passwordInput.Blur()
	m.step = StepSigningIn
	return m, m.signIn()
}

func (m WizardModel) signIn() tea.Cmd {
	authn := m.authn
	email := strings.TrimSpace(m.emailInput.Value())
	password := m.passwordInput.Value()
	remember := m.remember
	return func() tea.Msg {
		if authn == nil {
			return signInMsg{err: errors.New("sign-in is not available")}
		}
		return signInMsg{err: authn.Login(context.Background(), email, password, remember)}
	}
}

func (m WizardModel) signInOAuth() tea.Cmd {
	authn := m.authn
	provider := m.method
	remember := m.remember
	return func() tea.Msg {
		if authn == nil {
			return signInMsg{err: errors.New("sign-in is not available")}
		}
		return signInMsg{err: authn.LoginOAuth(context.Background(), provider, remember)}
	}
}

// View renders the wizard
func (m WizardModel) View() string {
	if m.quitting {
		if m.result != nil && m.result.Cancelled {
			return DimStyle.Render("\n  Setup cancelled.\n\n")
		}
		return ""
	}

	var b strings.Builder

	// Add progress bar for all steps except welcome and complete
	if m.step > StepWelcome && m.step < StepComplete {
		b.WriteString("\n")
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
	}

	switch m.step {
	case StepWelcome:
		b.WriteString(m.viewWelcome())
	case StepMethod:
		b.WriteString(m.viewMethod())
	case StepEmail, StepPassword, StepSigningIn:
		b.WriteString(m.viewCredentials())
	case StepOAuthWaiting:
		b.WriteString(m.viewOAuthWaiting())
	case StepComplete:
		b.WriteString(m.viewComplete())
	}

	return b.String()
}

func (m WizardModel) renderProgress() string {
	currentStep := 1
	if m.step == StepComplete {
		currentStep = 2
	}

	percent := float64(currentStep) / float64(totalSteps)
	bar := m.progress.ViewAs(percent)

	labels := "  Sign in                 Ready"
	return fmt.Sprintf("  %s\n%s", bar, DimStyle.Render(labels))
}

func (m WizardModel) viewWelcome() string {
	var b strings.Builder
	b.WriteString("\n\n")

	box := BoxStyle.Render(
		TitleStyle.Render("Welcome to dagent") + "\n" +
			SubtitleStyle.Render("Talk to your databases from the terminal") + "\n\n" +
			fmt.Sprintf("Server: %s", m.server) + "\n" +
			"Sign in to get started.",
	)
	b.WriteString(box)
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render("  Press Enter to continue..."))
	return b.String()
}

func (m WizardModel) viewMethod() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.methodSelector.View())
	if m.formError != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", ErrorStyle.Render("✗ "+m.formError)))
	}
	return b.String()
}

func (m WizardModel) viewCredentials() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("  Sign in with email"))
	b.WriteString("\n\n")

	if m.step == StepEmail {
		b.WriteString("  Email:    ")
		b.WriteString(m.emailInput.View())
		b.WriteString("\n")
	} else {
		b.WriteString(fmt.Sprintf("  Email:    %s\n\n", SuccessStyle.Render(strings.TrimSpace(m.emailInput.Value()))))
		b.WriteString("  Password: ")
		b.WriteString(m.passwordInput.View())
		b.WriteString("\n")
		remember := "no"
		if m.remember {
			remember = "yes"
		}
		b.WriteString(DimStyle.Render(fmt.Sprintf("\n  Remember me: %s (tab to toggle)\n", remember)))
	}

	if m.step == StepSigningIn {
		b.WriteString(fmt.Sprintf("\n  %s Signing in...\n", m.spinner.View()))
	} else if m.formError != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", ErrorStyle.Render("✗ "+m.formError)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("  Enter to continue • Esc back"))
	return b.String()
}

func (m WizardModel) viewOAuthWaiting() string {
	var b strings.Builder
	b.WriteString("\n")

	b.WriteString(TitleStyle.Render(fmt.Sprintf("  Signing in with %s", m.methodLabel())))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s Opening browser for authentication...\n\n", m.spinner.View()))
	b.WriteString(DimStyle.Render("  Complete the login in your browser.\n"))
	b.WriteString(DimStyle.Render(fmt.Sprintf("  Waiting for callback... (timeout: %v)\n", auth.OAuthTimeout)))
	return b.String()
}

func (m WizardModel) viewComplete() string {
	var b strings.Builder
	b.WriteString("\n\n")

	who := m.status.Username
	if who == "" {
		who = strings.TrimSpace(m.emailInput.Value())
	}
	if who == "" {
		who = "signed in"
	}

	content := fmt.Sprintf(
		"%s\n\n"+
			"Account: %s\n"+
			"Server:  %s\n\n"+
			"%s\n"+
			"  %s\n"+
			"  %s",
		TitleStyle.Render("✨ You're all set!"),
		who,
		m.server,
		DimStyle.Render("Try these:"),
		"\"Type @ to pick a table\"",
		"\"How many rows are in @orders?\"",
	)

	b.WriteString(BoxStyle.Render(content))
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render("  Press Enter to start dagent..."))
	return b.String()
}

func (m WizardModel) methodLabel() string {
	for _, it := range methodItems() {
		if it.ID == m.method {
			return it.Label
		}
	}
	return m.method
}

// RunWizard runs the setup wizard and returns the result
func RunWizard(dataDir, server string, authn Authenticator) (*SetupResult, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	status, _ := DetectSetupStatus(dataDir)
	if status.IsComplete {
		return &SetupResult{}, nil
	}

	p := tea.NewProgram(NewWizard(status, authn, server), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	return finalModel.(WizardModel).result, nil
}

// PrintEnvInstructions prints sign-in instructions for non-interactive environments
func PrintEnvInstructions() {
	fmt.Println("dagent needs a signed-in session to talk to the server.")
	fmt.Println("")
	fmt.Println("Either run `dagent login` in a terminal, or set:")
	fmt.Printf("  %s=<access token>\n", auth.EnvAccessToken)
	fmt.Println("")
	fmt.Println("The server address is read from DAGENT_SERVER or config.yaml.")
}

// IsInteractive returns true if running in a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
