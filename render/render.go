// Package render turns appointment data into the (subject, html, text)
// triple the pipeline queues for delivery. The pipeline treats the result
// as opaque; swapping the renderer never touches delivery semantics.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"torramel/notify-relay/pipeline"
)

type Email struct {
	Subject string
	Html    string
	Text    string
}

type Renderer interface {
	AppointmentNotification(sub *pipeline.Subscription, appts []pipeline.Appointment) (Email, error)
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>New appointment slots are available</h2>
  <p>Good news! The following appointments just opened up:</p>
  <ul>
  {{- range .Appointments }}
    <li><strong>{{ .Date }}</strong>: {{ join .Times ", " }}</li>
  {{- end }}
  </ul>
  <p>Book quickly; slots are usually taken within minutes.</p>
  <p style="color: #666; font-size: 12px;">
    This is notification {{ .Count }} of {{ .Max }} for your subscription.
    {{- if .UnsubscribeURL }}
    <br><a href="{{ .UnsubscribeURL }}">Unsubscribe</a>
    {{- end }}
  </p>
</body>
</html>
`

type templateRenderer struct {
	tmpl    *template.Template
	baseURL string
}

func NewTemplateRenderer(baseURL string) (Renderer, error) {
	tmpl, err := template.New("appointment").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("render: error parsing appointment template: %w", err)
	}

	return &templateRenderer{
		tmpl:    tmpl,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (r *templateRenderer) AppointmentNotification(sub *pipeline.Subscription, appts []pipeline.Appointment) (Email, error) {
	var unsubscribeURL string
	if r.baseURL != "" && sub.UnsubscribeToken != "" {
		unsubscribeURL = fmt.Sprintf("%s/unsubscribe?token=%s", r.baseURL, sub.UnsubscribeToken)
	}

	data := struct {
		Appointments   []pipeline.Appointment
		Count          int
		Max            int
		UnsubscribeURL string
	}{
		Appointments:   appts,
		Count:          sub.NotificationCount + 1,
		Max:            sub.MaxNotifications,
		UnsubscribeURL: unsubscribeURL,
	}

	var html bytes.Buffer
	if err := r.tmpl.Execute(&html, data); err != nil {
		return Email{}, fmt.Errorf("render: error executing appointment template: %w", err)
	}

	return Email{
		Subject: subject(appts),
		Html:    html.String(),
		Text:    plainText(data.Appointments, data.Count, data.Max, unsubscribeURL),
	}, nil
}

func subject(appts []pipeline.Appointment) string {
	if len(appts) == 1 {
		return fmt.Sprintf("New appointment slots on %s", appts[0].Date)
	}
	return fmt.Sprintf("New appointment slots available (%d days)", len(appts))
}

func plainText(appts []pipeline.Appointment, count, max int, unsubscribeURL string) string {
	var b strings.Builder
	b.WriteString("New appointment slots are available:\n\n")
	for _, a := range appts {
		fmt.Fprintf(&b, "- %s: %s\n", a.Date, strings.Join(a.Times, ", "))
	}
	fmt.Fprintf(&b, "\nBook quickly; slots are usually taken within minutes.\n")
	fmt.Fprintf(&b, "\nThis is notification %d of %d for your subscription.\n", count, max)
	if unsubscribeURL != "" {
		fmt.Fprintf(&b, "Unsubscribe: %s\n", unsubscribeURL)
	}

	return b.String()
}
