// Package notify turns consultation events into emails.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	EventRequested = "consultation.requested.v1"
	EventConfirmed = "consultation.confirmed.v1"
	EventCancelled = "consultation.cancelled.v1"
	EventCompleted = "consultation.completed.v1"
)

// Topics lists the events this service consumes.
var Topics = []string{EventRequested, EventConfirmed, EventCancelled}

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ConsultationEvent is the payload of the api-service consultation.*.v1 events.
type ConsultationEvent struct {
	ConsultationID string    `json:"consultation_id"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Topic          string    `json:"topic"`
	Farmer         Party     `json:"farmer"`
	Agronomist     Party     `json:"agronomist"`
	CancelReason   string    `json:"cancel_reason"`
	CancelledBy    string    `json:"cancelled_by"`
}

type Email struct {
	Template  string
	Recipient Party
	Subject   string
	Body      string
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var funcs = template.FuncMap{
	"when": func(start, end time.Time) string {
		start, end = start.UTC(), end.UTC()
		return fmt.Sprintf("%s %s-%s UTC", start.Format("Mon 2 Jan 2006"), start.Format("15:04"), end.Format("15:04"))
	},
	"date": func(t time.Time) string { return t.UTC().Format("Mon 2 Jan") },
}

type Renderer struct {
	appURL    string
	templates map[string]*template.Template
}

func NewRenderer(appURL string) (*Renderer, error) {
	r := &Renderer{appURL: strings.TrimRight(appURL, "/"), templates: map[string]*template.Template{}}
	for _, name := range []string{"consultation_requested", "consultation_confirmed", "consultation_cancelled"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

type view struct {
	ConsultationEvent
	Recipient       Party
	AppURL          string
	CancelledByName string
}

// Render returns the emails for eventType: the agronomist hears about new
// requests, the farmer about confirmations and both parties about
// cancellations. Other events render nothing.
func (r *Renderer) Render(eventType string, evt ConsultationEvent) ([]Email, error) {
	var name string
	var to []Party
	switch eventType {
	case EventRequested:
		name, to = "consultation_requested", []Party{evt.Agronomist}
	case EventConfirmed:
		name, to = "consultation_confirmed", []Party{evt.Farmer}
	case EventCancelled:
		name, to = "consultation_cancelled", []Party{evt.Farmer, evt.Agronomist}
	default:
		return nil, nil
	}

	v := view{ConsultationEvent: evt, AppURL: r.appURL}
	switch evt.CancelledBy {
	case evt.Farmer.ID:
		v.CancelledByName = evt.Farmer.Name
	case evt.Agronomist.ID:
		v.CancelledByName = evt.Agronomist.Name
	case "":
	default:
		v.CancelledByName = "AgriBeta support"
	}

	out := make([]Email, 0, len(to))
	for _, p := range to {
		v.Recipient = p
		subject, err := r.exec(name, "subject", v)
		if err != nil {
			return nil, err
		}
		body, err := r.exec(name, "body", v)
		if err != nil {
			return nil, err
		}
		out = append(out, Email{Template: name, Recipient: p, Subject: strings.TrimSpace(subject), Body: body})
	}
	return out, nil
}

func (r *Renderer) exec(name, block string, v view) (string, error) {
	var buf bytes.Buffer
	if err := r.templates[name].ExecuteTemplate(&buf, block, v); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", name, block, err)
	}
	return buf.String(), nil
}
