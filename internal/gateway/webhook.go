package gateway

import (
	"encoding/json"
	"net/url"
	"strings"
)

// flexID принимает идентификатор и как JSON-строку, и как число:
// платёжная система использует обе формы в разных типах уведомлений.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

// String возвращает идентификатор в строковом виде.
func (f flexID) String() string {
	return string(f)
}

type webhookNotification struct {
	Type string `json:"type"`
	ID   flexID `json:"id"`
	Data struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// ExtractPaymentID извлекает идентификатор платежа из webhook-уведомления.
// Поддерживаются обе формы доставки: параметры запроса (topic/type + id/resource)
// и JSON-тело (data.id или id). Пустая строка означает, что уведомление не
// содержит платежа и его следует подтвердить без дальнейших действий.
func ExtractPaymentID(query url.Values, body []byte) string {
	topic := query.Get("topic")
	if topic == "" {
		topic = query.Get("type")
	}

	id := query.Get("resource")
	if topic == "payment" {
		id = query.Get("id")
	}

	if id == "" && len(body) > 0 {
		var n webhookNotification
		if err := json.Unmarshal(body, &n); err == nil {
			id = n.Data.ID.String()
			if id == "" {
				id = n.ID.String()
			}
		}
	}

	// Часть уведомлений присылает ссылку вида /v1/payments/{id}.
	if strings.Contains(id, "/") {
		parts := strings.Split(id, "/")
		id = parts[len(parts)-1]
	}

	return id
}
