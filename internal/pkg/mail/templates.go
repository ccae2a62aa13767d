package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

const confirmationSubject = "Confirm your Brain Game subscription"

const confirmationHTMLTpl = `<h1>Welcome to Brain Game!</h1>
<p>Thanks for joining our waitlist. Please confirm your email address by clicking the link below:</p>
<a href="{{.ConfirmationLink}}" style="display:inline-block;padding:12px 24px;background:#0074D9;color:white;text-decoration:none;border-radius:4px;">Confirm Email</a>
<p>If you didn't sign up for Brain Game, you can safely ignore this email.</p>`

const confirmationTextTpl = `Welcome to Brain Game!

Thanks for joining our waitlist. Please confirm your email address by visiting:
{{.ConfirmationLink}}

If you didn't sign up for Brain Game, you can safely ignore this email.`

const welcomeSubject = "Welcome to Brain Game!"

const welcomeHTMLTpl = `<h1>You're in!</h1>
<p>Welcome to the Brain Game waitlist, {{.Email}}!</p>
<p>We'll keep you updated on our progress and let you know as soon as we launch.</p>
<p>In the meantime, follow us on social media for updates!</p>`

const welcomeTextTpl = `You're in!

Welcome to the Brain Game waitlist, {{.Email}}!
We'll keep you updated on our progress and let you know as soon as we launch.

In the meantime, follow us on social media for updates!`

const updateHTMLTpl = `<h1>{{.Title}}</h1>
{{.Content}}
<hr>
<p style="font-size:12px;color:#666;">
You're receiving this email because you signed up for Brain Game updates.
<a href="{{.UnsubscribeLink}}">Unsubscribe</a>
</p>`

const updateTextTpl = `{{.Title}}

{{.TextContent}}

---
You're receiving this email because you signed up for Brain Game updates.
Unsubscribe: {{.UnsubscribeLink}}`

var (
	confirmationHTML = template.Must(template.New("confirmation_html").Parse(confirmationHTMLTpl))
	confirmationText = template.Must(template.New("confirmation_text").Parse(confirmationTextTpl))
	welcomeHTML      = template.Must(template.New("welcome_html").Parse(welcomeHTMLTpl))
	welcomeText      = template.Must(template.New("welcome_text").Parse(welcomeTextTpl))
	updateHTML       = template.Must(template.New("update_html").Parse(updateHTMLTpl))
	updateText       = template.Must(template.New("update_text").Parse(updateTextTpl))
)

// SubscriptionMailer renders and sends the confirmation workflow emails.
// baseURL is the public server URL; the confirmation link points back at the
// confirm endpoint with the token as a query parameter.
type SubscriptionMailer struct {
	sender  *Sender
	baseURL string
}

func NewSubscriptionMailer(sender *Sender, baseURL string) *SubscriptionMailer {
	return &SubscriptionMailer{sender: sender, baseURL: baseURL}
}

// SendConfirmation mails the confirm link for a freshly issued token.
func (m *SubscriptionMailer) SendConfirmation(email, token string) error {
	link, err := m.buildConfirmURL(token)
	if err != nil {
		return err
	}
	data := struct{ ConfirmationLink string }{ConfirmationLink: link}

	htmlBody, err := render(confirmationHTML, data)
	if err != nil {
		return err
	}
	textBody, err := render(confirmationText, data)
	if err != nil {
		return err
	}
	return m.sender.Send(Message{
		To:      []string{email},
		Subject: confirmationSubject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// SendWelcome mails the post-confirmation welcome.
func (m *SubscriptionMailer) SendWelcome(email string) error {
	data := struct{ Email string }{Email: email}

	htmlBody, err := render(welcomeHTML, data)
	if err != nil {
		return err
	}
	textBody, err := render(welcomeText, data)
	if err != nil {
		return err
	}
	return m.sender.Send(Message{
		To:      []string{email},
		Subject: welcomeSubject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// SendUpdate mails one product update to a subscriber, with an unsubscribe
// link pointing back at the unsubscribe endpoint.
func (m *SubscriptionMailer) SendUpdate(email, title string, content template.HTML, textContent string) error {
	link, err := m.buildUnsubscribeURL(email)
	if err != nil {
		return err
	}
	data := struct {
		Title           string
		Content         template.HTML
		TextContent     string
		UnsubscribeLink string
	}{Title: title, Content: content, TextContent: textContent, UnsubscribeLink: link}

	htmlBody, err := render(updateHTML, data)
	if err != nil {
		return err
	}
	textBody, err := render(updateText, data)
	if err != nil {
		return err
	}
	return m.sender.Send(Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Brain Game Update: %s", title),
		HTML:    htmlBody,
		Text:    textBody,
	})
}

func (m *SubscriptionMailer) buildConfirmURL(token string) (string, error) {
	return m.buildLink("/api/v1/subscribe/confirm", "token", token)
}

func (m *SubscriptionMailer) buildUnsubscribeURL(email string) (string, error) {
	return m.buildLink("/api/v1/subscribe/unsubscribe", "email", email)
}

func (m *SubscriptionMailer) buildLink(path, param, value string) (string, error) {
	base := strings.TrimSpace(m.baseURL)
	if base == "" {
		return "", fmt.Errorf("mail base url is not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid mail base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
