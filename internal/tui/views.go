package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/banktalk/internal/cli"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/transfer"
)

var stepTitles = map[transfer.Step]string{
	transfer.StepSelectAccount:     "Choose the account to send from",
	transfer.StepSelectBeneficiary: "Choose who to pay",
	transfer.StepEnterAmount:       "Enter the amount",
	transfer.StepConfirm:           "Review and confirm",
	transfer.StepOTPPending:        "Enter the one-time code",
	transfer.StepSuccess:           "Transfer sent",
}

var stepHints = map[transfer.Step]string{
	transfer.StepSelectAccount:     "/account <id>",
	transfer.StepSelectBeneficiary: "/search <term>  /pick <id>  /back",
	transfer.StepEnterAmount:       "/amount <value> [on YYYY-MM-DD] [notes]  /back",
	transfer.StepConfirm:           "/confirm  /back",
	transfer.StepOTPPending:        "/otp <6 digits>  /otp to clear  /back",
	transfer.StepSuccess:           "/reset to start another transfer",
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("banktalk")
	if m.config.UserName != "" {
		title += m.theme.Subtitle.Render("  " + m.config.UserName)
	}

	mode := m.theme.ModeStandard.Render("standard")
	if m.conv.SmartMode() {
		mode = m.theme.ModeSmart.Render("smart")
	}

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(mode), 1)
	return title + strings.Repeat(" ", gap) + mode
}

func (m Model) renderFooter() string {
	var status string
	switch {
	case m.lastError != nil:
		status = m.theme.StatusError.Render(m.lastError.Error())
	case m.status != "":
		status = m.theme.StatusInfo.Render(m.status)
	default:
		status = m.theme.StatusPending.Render(" ")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.input.View(),
		status,
		m.help.View(m.keymap),
	)
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return m.theme.StatusPending.Render("Say hello to get started.")
	}
	parts := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg model.Message) string {
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 20))
	stamp := ""
	if !msg.Timestamp.IsZero() {
		stamp = " " + m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	}

	if msg.IsUser {
		return m.theme.UserLabel.Render("You") + stamp + "\n" + wrap.Render(msg.Text)
	}

	label := m.theme.BankLabel.Render("Bank")
	if msg.SmartMode {
		label += " " + m.theme.Italic.Render("smart")
	}
	lines := []string{label + stamp}

	switch {
	case msg.Loading:
		lines = append(lines, m.spinner.View()+" "+m.theme.StatusPending.Render("Thinking..."))
	case msg.Error != "":
		lines = append(lines, m.theme.StatusError.Render(wrap.Render(msg.Error)))
		if msg.Resolution != nil && msg.Resolution.Config["showRetry"] == true {
			lines = append(lines, m.theme.StatusPending.Render("Send your message again to retry."))
		}
	default:
		// Resolved messages echo the utterance in Text.
		if msg.Text != "" && msg.Resolution == nil {
			lines = append(lines, wrap.Render(msg.Text))
		}
		if msg.SmartResponse != nil && msg.SmartResponse.Content != "" {
			lines = append(lines, wrap.Render(msg.SmartResponse.Content))
		}
		if msg.Resolution != nil {
			lines = append(lines, m.renderResolution(*msg.Resolution))
		}
	}

	if msg.TransferSessionID != "" {
		if s, ok := m.sessions[msg.TransferSessionID]; ok {
			lines = append(lines, m.renderTransfer(s))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderResolution(res model.Resolution) string {
	if res.IsError() {
		msg, _ := res.Config["message"].(string)
		if msg == "" {
			msg = "Something went wrong."
		}
		out := m.theme.StatusError.Render(msg)
		if res.Config["showRetry"] == true {
			out += "\n" + m.theme.StatusPending.Render("Send your message again to retry.")
		}
		return out
	}

	line := m.theme.Component.Render(string(res.Component))
	if title, ok := res.Config["title"].(string); ok && title != "" {
		line += " " + m.theme.Bold.Render(title)
	}
	if len(res.MissingParameters) == 0 {
		return line
	}

	examples := make([]string, 0, len(res.MissingParameters))
	for _, p := range res.MissingParameters {
		examples = append(examples, p+"=...")
	}
	return line + "\n" + m.theme.StatusWarning.Render(
		"Missing "+strings.Join(res.MissingParameters, ", ")+". Reply with /set "+strings.Join(examples, " "))
}

func (m Model) renderTransfer(s *transfer.Session) string {
	lines := []string{m.theme.Bold.Render("Transfer: " + stepTitles[s.Step])}

	switch s.Step {
	case transfer.StepSelectAccount:
		if s.AccountsError != "" {
			lines = append(lines, m.theme.StatusError.Render(s.AccountsError))
		}
		for _, acc := range s.Accounts {
			lines = append(lines, fmt.Sprintf("  %s  %s  %s", acc.ID, accountName(acc), cli.FormatMoney(acc.Balance, acc.Currency)))
		}
	case transfer.StepSelectBeneficiary:
		if acc, ok := s.Account(); ok {
			lines = append(lines, "  From "+accountName(acc))
		}
		if s.BeneficiariesError != "" {
			lines = append(lines, m.theme.StatusError.Render(s.BeneficiariesError))
		}
		for _, b := range s.Beneficiaries {
			row := fmt.Sprintf("  %s  %s", b.ID, b.Name)
			if b.Nickname != "" {
				row += " (" + b.Nickname + ")"
			}
			if b.ID == s.SelectedBeneficiaryID {
				row = m.theme.Highlighted.Render(row)
			}
			lines = append(lines, row)
		}
	case transfer.StepEnterAmount, transfer.StepConfirm, transfer.StepOTPPending:
		lines = append(lines, m.transferSummary(s)...)
		if s.OTPError != "" {
			lines = append(lines, m.theme.StatusError.Render(s.OTPError))
		}
	case transfer.StepSuccess:
		if s.Receipt != nil {
			r := s.Receipt
			lines = append(lines,
				m.theme.StatusSuccess.Render(fmt.Sprintf("  %s %s", cli.FormatMoney(r.Amount, r.Currency), r.Status)),
				fmt.Sprintf("  Reference %s  Transfer %s", r.Reference, r.TransferID))
		}
	}

	if s.LastError != "" {
		lines = append(lines, m.theme.StatusError.Render(s.LastError))
	}
	if hint := stepHints[s.Step]; hint != "" {
		lines = append(lines, m.theme.StatusPending.Render(hint))
	}
	return m.theme.RoundedBox.Render(strings.Join(lines, "\n"))
}

func (m Model) transferSummary(s *transfer.Session) []string {
	var lines []string
	if acc, ok := s.Account(); ok {
		lines = append(lines, "  From "+accountName(acc))
	}
	if b, ok := s.Beneficiary(); ok {
		lines = append(lines, "  To   "+b.Name+" "+b.AccountNumber)
	}
	if s.HasAmount() {
		lines = append(lines, "  "+cli.FormatMoney(s.Amount, s.Currency))
	}
	if s.ScheduledDate != nil {
		lines = append(lines, "  On   "+s.ScheduledDate.Format("2006-01-02"))
	}
	if s.Notes != "" {
		lines = append(lines, "  Note "+s.Notes)
	}
	return lines
}

func accountName(acc model.Account) string {
	name := acc.AccountTypeName
	if name == "" {
		name = acc.AccountType
	}
	return name + " " + acc.AccountNumber
}
