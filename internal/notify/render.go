package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed mail.tmpl
var mailTemplate string

var mailBody = template.Must(template.New("mail").Option("missingkey=error").Parse(mailTemplate))

// Subject is the one-line summary used for mail.
func Subject(ev Event) string {
	return fmt.Sprintf("ALERT: CPU Usage %d%% > Threshold %d%%", ev.Value, ev.Threshold)
}

// RenderBody renders the human-readable message for ev.
func RenderBody(ev Event) (string, error) {
	var b strings.Builder
	if err := mailBody.Execute(&b, ev); err != nil {
		return "", fmt.Errorf("render mail body: %w", err)
	}
	return b.String(), nil
}
