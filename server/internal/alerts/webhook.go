package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends a webhook notification about a to all configured targets.
// event is one of raised | escalated | resolved. Errors are logged but do not
// affect the caller.
func (t *Tracker) deliver(a Alert, event string) {
	for _, wh := range t.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = t.sendSlack(url, a, event)
		case "teams":
			err = t.sendTeams(url, a, event)
		case "http":
			err = t.sendHTTP(url, a, event)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"alert", a.ID,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"alert", a.ID,
				"event", event,
			)
		}
	}
}

// message is the one-line human summary used by chat targets.
func (t *Tracker) message(a Alert, event string) string {
	msg := fmt.Sprintf("%s %s: %s at %.0f kWh, %+d%% against baseline %.0f kWh",
		a.Display().Badge, event, a.BuildingID, a.Current, a.Variance, a.Baseline)
	if a.EstimatedCost > 0 {
		msg += fmt.Sprintf(", estimated waste %.2f %s", a.EstimatedCost, t.currency)
	}
	if event == "resolved" && a.ResolvedBy != "" {
		msg += ", resolved by " + a.ResolvedBy
	}
	return msg
}

func (t *Tracker) sendSlack(url string, a Alert, event string) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("%s *%s*", a.Display().Icon, t.message(a, event)),
	})
	return t.post(url, body)
}

func (t *Tracker) sendTeams(url string, a Alert, event string) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a),
		"summary":    a.BuildingID,
		"title":      fmt.Sprintf("Wattboard alert %s: %s", event, a.BuildingID),
		"text":       t.message(a, event),
	}
	body, _ := json.Marshal(payload)
	return t.post(url, body)
}

func (t *Tracker) sendHTTP(url string, a Alert, event string) error {
	body, _ := json.Marshal(map[string]interface{}{"event": event, "alert": a})
	return t.post(url, body)
}

func (t *Tracker) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityColor(a Alert) string {
	if !a.Active() {
		return "22C55E"
	}
	switch a.Display().Tone {
	case "danger":
		return "EF4444"
	case "warning":
		return "F59E0B"
	default:
		return "3B82F6"
	}
}
