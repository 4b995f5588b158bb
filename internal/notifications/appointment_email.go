package notifications

import (
	"bytes"
	"html/template"

	"citas-backend/internal/models"
)

const confirmationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hola {{.Name}},</p>
  <p>Tu cita ha sido confirmada. Estos son los detalles:</p>
  <ul>
    <li>Fecha: {{.Date}}</li>
    <li>Hora: {{.Start}} - {{.End}}</li>
    <li>Modalidad: {{.TypeLabel}}</li>
    <li>Número de cita: {{.AppointmentID}}</li>
  </ul>
  <p>Si necesitas cambiar o cancelar la cita, hazlo con al menos 24 horas de antelación.</p>
  <p>Un saludo.</p>
</body>
</html>`

const cancellationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hola {{.Name}},</p>
  <p>Tu cita del {{.Date}} a las {{.Start}} ha sido cancelada.</p>
  {{if .Reason}}<p>Motivo: {{.Reason}}</p>{{end}}
  <p>Puedes reservar una nueva cita cuando quieras desde el portal.</p>
  <p>Un saludo.</p>
</body>
</html>`

const cancellationNoticeTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Se ha cancelado una cita:</p>
  <ul>
    <li>Paciente: {{.Name}}</li>
    <li>Fecha: {{.Date}}</li>
    <li>Hora: {{.Start}} - {{.End}}</li>
    {{if .Reason}}<li>Motivo: {{.Reason}}</li>{{end}}
    <li>Cancelada por: {{.CancelledByLabel}}</li>
  </ul>
  <p>El hueco vuelve a estar disponible para reservas.</p>
</body>
</html>`

var (
	confirmationTmpl       = template.Must(template.New("appointment_confirmation").Parse(confirmationTemplate))
	cancellationTmpl       = template.Must(template.New("appointment_cancellation").Parse(cancellationTemplate))
	cancellationNoticeTmpl = template.Must(template.New("appointment_cancellation_notice").Parse(cancellationNoticeTemplate))
)

type appointmentEmailData struct {
	Name             string
	Date             string
	Start            string
	End              string
	TypeLabel        string
	Reason           string
	CancelledByLabel string
	AppointmentID    string
}

func emailData(appointment models.Appointment, patient models.Patient) appointmentEmailData {
	return appointmentEmailData{
		Name:             patient.FullName,
		Date:             appointment.Date,
		Start:            appointment.Start,
		End:              appointment.End,
		TypeLabel:        sessionTypeLabel(appointment.Type),
		Reason:           appointment.CancellationReason,
		CancelledByLabel: cancelledByLabel(appointment.CancelledBy),
		AppointmentID:    appointment.ID,
	}
}

func buildConfirmationHTML(appointment models.Appointment, patient models.Patient) (string, error) {
	return renderTemplate(confirmationTmpl, emailData(appointment, patient))
}

func buildCancellationHTML(appointment models.Appointment, patient models.Patient) (string, error) {
	return renderTemplate(cancellationTmpl, emailData(appointment, patient))
}

func buildCancellationNoticeHTML(appointment models.Appointment, patient models.Patient) (string, error) {
	return renderTemplate(cancellationNoticeTmpl, emailData(appointment, patient))
}

func renderTemplate(tmpl *template.Template, data appointmentEmailData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sessionTypeLabel(value string) string {
	switch value {
	case models.SessionVirtual:
		return "Online"
	case models.SessionInPerson:
		return "Presencial"
	default:
		return value
	}
}

func cancelledByLabel(value string) string {
	switch value {
	case models.CancelledByPatient:
		return "Paciente"
	case models.CancelledByPsychologist:
		return "Psicóloga"
	default:
		return value
	}
}
