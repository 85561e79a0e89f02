package domain

// EmailMessage is built per send and discarded after dispatch.
type EmailMessage struct {
	To           string
	Subject      string
	TemplateName string
	Variables    map[string]any
	HTMLBody     string
}
