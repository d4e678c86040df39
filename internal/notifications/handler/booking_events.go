package handler

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"text/template"

	"staybook/internal/notifications/mailer"
	"staybook/pkg/kafka"
	"staybook/pkg/logger"
	"staybook/pkg/model"
)

type notification struct {
	to      string
	subject string
	text    string
	html    string
}

type emailData struct {
	Name      string
	Property  string
	City      string
	BookingID string
	CheckIn   string
	CheckOut  string
	Guests    int
	RoomType  string
	Amount    float64
	Status    string
	Customer  string
	Requests  string
}

var (
	textTemplates = template.Must(template.New("email").Parse(`
{{define "customer_created"}}Hi {{.Name}},

We received your booking request for {{.Property}} ({{.City}}).
Stay: {{.CheckIn}} to {{.CheckOut}}, {{.Guests}} guest(s), {{.RoomType}} room.
Total: {{printf "%.2f" .Amount}}
Status: {{.Status}}

Booking reference: {{.BookingID}}
{{end}}
{{define "owner_created"}}Hi {{.Name}},

{{.Customer}} requested a booking at {{.Property}}.
Stay: {{.CheckIn}} to {{.CheckOut}}, {{.Guests}} guest(s), {{.RoomType}} room.
Total: {{printf "%.2f" .Amount}}
{{if .Requests}}Special requests: {{.Requests}}
{{end}}
Booking reference: {{.BookingID}}
{{end}}
{{define "customer_status"}}Hi {{.Name}},

Your booking at {{.Property}} for {{.CheckIn}} to {{.CheckOut}} is now {{.Status}}.

Booking reference: {{.BookingID}}
{{end}}`))

	htmlTemplates = htmltemplate.Must(htmltemplate.New("email").Parse(`
{{define "customer_created"}}<p>Hi {{.Name}},</p><p>We received your booking request for <strong>{{.Property}}</strong> ({{.City}}) from {{.CheckIn}} to {{.CheckOut}}.</p><p>Status: {{.Status}}. Reference: {{.BookingID}}</p>{{end}}
{{define "owner_created"}}<p>Hi {{.Name}},</p><p>{{.Customer}} requested a booking at <strong>{{.Property}}</strong> from {{.CheckIn}} to {{.CheckOut}}.</p>{{if .Requests}}<p>Special requests: {{.Requests}}</p>{{end}}<p>Reference: {{.BookingID}}</p>{{end}}
{{define "customer_status"}}<p>Hi {{.Name}},</p><p>Your booking at <strong>{{.Property}}</strong> for {{.CheckIn}} to {{.CheckOut}} is now {{.Status}}.</p><p>Reference: {{.BookingID}}</p>{{end}}`))
)

var statusSubjects = map[string]string{
	"booking.confirmed": "Your booking is confirmed",
	"booking.cancelled": "Your booking was cancelled",
	"booking.completed": "Thanks for staying with us",
}

// BookingEventHandler emails the parties of a booking when it is created or
// changes status.
type BookingEventHandler struct {
	sender mailer.Sender
	log    *logger.Logger
}

func NewBookingEventHandler(sender mailer.Sender, log *logger.Logger) *BookingEventHandler {
	return &BookingEventHandler{
		sender: sender,
		log:    log,
	}
}

// Handle is a kafka.MessageHandler. Decoding problems are permanent, send
// failures keep the transient classification of the sender.
func (h *BookingEventHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return err
	}
	if event.Booking == nil {
		return kafka.NewPermanentError("booking event has no booking", nil).
			WithDetail("event_id", msg.GetEventID())
	}

	eventType := msg.GetEventType()
	if eventType == "" {
		eventType = event.EventType
	}

	notifications, err := h.compose(eventType, &event)
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		h.log.Debug("No notification for booking event", "event_type", eventType, "booking_id", event.Booking.ID)
		return nil
	}

	for _, n := range notifications {
		if err := h.sender.Send(ctx, n.to, n.subject, n.text, n.html); err != nil {
			return err
		}
	}

	h.log.Info("Booking notifications sent",
		"event_id", msg.GetEventID(),
		"event_type", eventType,
		"booking_id", event.Booking.ID,
		"count", len(notifications),
	)
	return nil
}

func (h *BookingEventHandler) compose(eventType string, event *model.BookingEvent) ([]notification, error) {
	var out []notification

	switch {
	case eventType == model.BookingEventCreated:
		if n, ok, err := h.render(event, event.Customer, "customer_created", "Booking request received"); err != nil {
			return nil, err
		} else if ok {
			out = append(out, n)
		}
		if n, ok, err := h.render(event, event.Owner, "owner_created", "New booking request"); err != nil {
			return nil, err
		} else if ok {
			out = append(out, n)
		}
	case statusSubjects[eventType] != "":
		if n, ok, err := h.render(event, event.Customer, "customer_status", statusSubjects[eventType]); err != nil {
			return nil, err
		} else if ok {
			out = append(out, n)
		}
	}

	return out, nil
}

func (h *BookingEventHandler) render(event *model.BookingEvent, recipient *model.UserSummary, name, subject string) (notification, bool, error) {
	if recipient == nil || recipient.Email == "" {
		h.log.Warn("Booking event has no recipient email",
			"template", name,
			"booking_id", event.Booking.ID,
		)
		return notification{}, false, nil
	}

	data := newEmailData(event, recipient)
	if data.Property != "" {
		subject += ": " + data.Property
	}

	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name, data); err != nil {
		return notification{}, false, kafka.NewPermanentError("failed to render email", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name, data); err != nil {
		return notification{}, false, kafka.NewPermanentError("failed to render email", err)
	}

	return notification{
		to:      recipient.Email,
		subject: subject,
		text:    text.String(),
		html:    html.String(),
	}, true, nil
}

func newEmailData(event *model.BookingEvent, recipient *model.UserSummary) emailData {
	b := event.Booking
	data := emailData{
		Name:      recipient.Name,
		BookingID: b.ID,
		CheckIn:   b.CheckIn.Format(model.DateLayout),
		CheckOut:  b.CheckOut.Format(model.DateLayout),
		Guests:    b.NumberOfGuests,
		RoomType:  b.RoomType,
		Amount:    b.TotalAmount,
		Status:    b.Status.String(),
		Requests:  b.SpecialRequests,
	}
	if event.Property != nil {
		data.Property = event.Property.Title
		data.City = event.Property.City
	}
	if event.Customer != nil {
		data.Customer = event.Customer.Name
	}
	return data
}
