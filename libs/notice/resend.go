package notice

import (
	"fmt"
	"regexp"

	"github.com/resend/resend-go/v2"
)

var tagValuePattern = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ResendProvider mails alerts through the Resend API, tagged with the alert
// source and kind.
type ResendProvider struct {
	client *resend.Client
}

func NewResendProvider(apiKey string) *ResendProvider {
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (r *ResendProvider) Name() string {
	return "resend"
}

func (r *ResendProvider) Send(msg Message) (SendResult, error) {
	sent, err := r.client.Emails.Send(resendRequest(msg))
	if err != nil {
		return SendResult{}, fmt.Errorf("resend %s alert for %s: %w", msg.Kind, msg.Source, err)
	}
	return SendResult{ProviderMessageID: sent.Id}, nil
}

func resendRequest(msg Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	if msg.Kind != "" {
		req.Tags = append(req.Tags, resend.Tag{Name: "alert_kind", Value: tagValue(msg.Kind)})
	}
	if msg.Source != "" {
		req.Tags = append(req.Tags, resend.Tag{Name: "alert_source", Value: tagValue(msg.Source)})
	}
	return req
}

// tagValue keeps only the characters Resend accepts in tag values.
func tagValue(s string) string {
	return tagValuePattern.ReplaceAllString(s, "_")
}
