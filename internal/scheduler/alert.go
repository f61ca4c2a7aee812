package scheduler

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"time"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/notify"
)

// DefaultAlertFactor is the multiple of the predicted ratio an actual ratio
// must exceed to raise an alert.
const DefaultAlertFactor = 1.2

// thresholdDecimals absorbs float noise in predicted×factor so that an
// actual ratio equal to the threshold never alerts.
const thresholdDecimals = 9

// AlertEvent is one file whose error ratio exceeded its predicted baseline.
type AlertEvent struct {
	ID             string    `json:"id"`
	CycleID        string    `json:"cycle_id"`
	FileName       string    `json:"file_name"`
	SessionCount   int       `json:"session_count"`
	ErrorCount     int       `json:"error_count"`
	ActualRatio    float64   `json:"actual_ratio"`
	PredictedRatio float64   `json:"predicted_ratio"`
	Timestamp      time.Time `json:"timestamp"`
	Delivered      bool      `json:"delivered"`
	DeliveryError  string    `json:"delivery_error,omitempty"`
}

// IsAnomalous reports whether actual strictly exceeds predicted×factor.
func IsAnomalous(actual, predicted, factor float64) bool {
	return actual > analytics.Round(predicted*factor, thresholdDecimals)
}

var alertTemplate = template.Must(template.New("alert").Parse(`<html>
<body>
<h2>Error ratio alert</h2>
<p>The error ratio of <strong>{{.FileName}}</strong> is above its predicted baseline.</p>
<table>
<tr><td>Sessions</td><td>{{.SessionCount}}</td></tr>
<tr><td>Errors</td><td>{{.ErrorCount}}</td></tr>
<tr><td>Actual error ratio</td><td>{{.Actual}}</td></tr>
<tr><td>Predicted error ratio</td><td>{{.Predicted}}</td></tr>
<tr><td>Detected at</td><td>{{.Timestamp}}</td></tr>
</table>
</body>
</html>
`))

type alertView struct {
	FileName     string
	SessionCount int
	ErrorCount   int
	Actual       string
	Predicted    string
	Timestamp    string
}

// RenderAlert turns an event into the message handed to a Sender. Ratios
// are shown as percentages with two decimals.
func RenderAlert(event AlertEvent) notify.Message {
	view := alertView{
		FileName:     event.FileName,
		SessionCount: event.SessionCount,
		ErrorCount:   event.ErrorCount,
		Actual:       percent(event.ActualRatio),
		Predicted:    percent(event.PredictedRatio),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, view); err != nil {
		buf.Reset()
		buf.WriteString("<p>")
		buf.WriteString(html.EscapeString(fmt.Sprintf(
			"%s: %d sessions, %d errors, actual %s, predicted %s",
			view.FileName, view.SessionCount, view.ErrorCount, view.Actual, view.Predicted,
		)))
		buf.WriteString("</p>")
	}

	return notify.Message{
		Subject: "Error ratio alert: " + event.FileName,
		Body:    buf.String(),
	}
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
