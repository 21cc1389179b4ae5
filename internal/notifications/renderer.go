package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":          titleCase,
		"upper":          strings.ToUpper,
		"lower":          strings.ToLower,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"statusEmoji":    statusEmoji,
		"roleLabel":      roleLabel,
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		funcMap:   funcMap,
	}

	// Load all templates
	channels := []Channel{ChannelEmail, ChannelChat}
	kinds := []MessageKind{
		MessageKindCreated,
		MessageKindFieldChanged,
		MessageKindRoleChanged,
		MessageKindDailySummary,
	}

	for _, channel := range channels {
		for _, kind := range kinds {
			name := fmt.Sprintf("%s_%s", channel, kind)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders message data for the specified channel.
// Returns subject and body.
func (r *Renderer) Render(channel Channel, data MessageData) (subject, body string, err error) {
	subject = r.renderSubject(data)

	templateName := fmt.Sprintf("%s_%s", channel, data.Kind)
	tmpl, ok := r.templates[templateName]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", templateName, err)
	}

	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

// renderSubject generates the notification subject line.
func (r *Renderer) renderSubject(data MessageData) string {
	switch data.Kind {
	case MessageKindCreated:
		return fmt.Sprintf("[Incident] %s", data.Incident.Title)
	case MessageKindFieldChanged:
		return fmt.Sprintf("[Update] %s", data.Incident.Title)
	case MessageKindRoleChanged:
		return fmt.Sprintf("[Role Change] %s", data.Incident.Title)
	case MessageKindDailySummary:
		if data.Summary != nil {
			return fmt.Sprintf("[Daily Summary] %s", data.Summary.Date)
		}
		return "[Daily Summary]"
	default:
		return fmt.Sprintf("[Notification] %s", data.Incident.Title)
	}
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// roleLabel turns a role name like "ops_lead" into "Ops Lead".
func roleLabel(role string) string {
	return titleCaser.String(strings.ReplaceAll(role, "_", " "))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func statusEmoji(status string) string {
	switch strings.ToLower(status) {
	case "active":
		return "🔴"
	case "stable":
		return "🟡"
	case "closed":
		return "✅"
	default:
		return "📋"
	}
}
