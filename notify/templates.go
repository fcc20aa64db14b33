package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template names accepted by SendNotification.
const (
	TemplateAccountConfirmation = "auth/email/account_confirmation"
	TemplateChangeEmail         = "auth/email/change_email"
	TemplatePasswordReset       = "auth/email/request_password_reset"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "auth/email/account_confirmation"}}Dear {{.Username}},

Welcome to Chat!

To confirm your account use this token:

{{.Token}}

or open {{.Link}}

Sincerely,
The Chat Team
{{end}}

{{define "auth/email/change_email"}}Dear {{.Username}},

To confirm your new email address use this token:

{{.Token}}

or open {{.Link}}

Sincerely,
The Chat Team
{{end}}

{{define "auth/email/request_password_reset"}}Dear {{.Username}},

To reset your password use this token:

{{.Token}}

If you have not requested a password reset simply ignore this message.

Sincerely,
The Chat Team
{{end}}
`))

// Data is what mail templates can refer to.
type Data struct {
	Username string
	Token    string
	Link     string
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
