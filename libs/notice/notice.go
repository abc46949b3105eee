package notice

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Kinds of alert message.
const (
	KindFailing   = "failing"
	KindRecovered = "recovered"
)

// Message represents an alert email to send.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string

	// Source and Kind identify the alert for providers that tag or log it.
	Source string
	Kind   string
}

// SendResult contains the response from the provider.
type SendResult struct {
	ProviderMessageID string
}

// Provider sends emails via a specific backend.
type Provider interface {
	Name() string
	Send(msg Message) (SendResult, error)
}

// Alert describes the health of a complaint source at one point in time.
type Alert struct {
	Source    string
	Failures  int
	LastError string
	Since     time.Time
	Recovered bool
}

// Notifier renders alerts and hands them to a Provider.
type Notifier struct {
	provider    Provider
	fromAddress string
	recipients  []string
}

// New creates a Notifier. Alerts are dropped when recipients is empty.
func New(provider Provider, fromAddress string, recipients []string) *Notifier {
	cleaned := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &Notifier{provider: provider, fromAddress: fromAddress, recipients: cleaned}
}

// Enabled reports whether alerts have anywhere to go.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.recipients) > 0
}

// ProviderName returns the name of the configured provider.
func (n *Notifier) ProviderName() string {
	return n.provider.Name()
}

// Send delivers msg, filling in the default sender and recipients.
func (n *Notifier) Send(msg Message) (SendResult, error) {
	if msg.From == "" {
		msg.From = n.fromAddress
	}
	if len(msg.To) == 0 {
		msg.To = n.recipients
	}
	if len(msg.To) == 0 {
		return SendResult{}, fmt.Errorf("notice: no recipients configured")
	}
	return n.provider.Send(msg)
}

// Alert renders and sends a source health alert.
func (n *Notifier) Alert(a Alert) (SendResult, error) {
	return n.Send(Render(a))
}

// Render builds the email for an alert.
func Render(a Alert) Message {
	since := a.Since.UTC().Format(time.RFC3339)
	if a.Recovered {
		text := fmt.Sprintf("Complaint source %q is reachable again after %d failed fetches (failing since %s).", a.Source, a.Failures, since)
		return Message{
			Subject: fmt.Sprintf("[complaint map] %s recovered", a.Source),
			Text:    text,
			HTML:    "<p>" + html.EscapeString(text) + "</p>",
			Source:  a.Source,
			Kind:    KindRecovered,
		}
	}

	summary := fmt.Sprintf("Complaint source %q failed %d consecutive fetches since %s.", a.Source, a.Failures, since)
	var body strings.Builder
	body.WriteString("<p>")
	body.WriteString(html.EscapeString(summary))
	body.WriteString("</p><p>Last error:</p><pre>")
	body.WriteString(html.EscapeString(a.LastError))
	body.WriteString("</pre><p>Map sessions keep showing the last loaded data until a fetch succeeds.</p>")
	return Message{
		Subject: fmt.Sprintf("[complaint map] %s failing (%d errors)", a.Source, a.Failures),
		Text:    summary + "\nLast error: " + a.LastError,
		HTML:    body.String(),
		Source:  a.Source,
		Kind:    KindFailing,
	}
}
