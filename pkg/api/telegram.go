package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowbotio/flowbot/pkg/models"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// telegramWebhook authenticates the vendor's secret-token header against
// the registry, converts the update into an event, and dispatches it. After
// authentication the response is always 200 "OK" — the vendor must not
// retry a well-formed update even if downstream processing fails.
func (s *Server) telegramWebhook(c *gin.Context) {
	bind, ok := s.secrets.Resolve(c.GetHeader(telegramSecretHeader))
	if !ok {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Error("webhook body read failed", "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	var update map[string]any
	if err := json.Unmarshal(body, &update); err != nil {
		c.String(http.StatusBadRequest, "Bad request")
		return
	}

	if ev, ok := updateToEvent(update, bind); ok {
		s.dispatch(ev)
	}
	c.String(http.StatusOK, "OK")
}

// updateToEvent flattens a chat-vendor update into the engine's event shape.
// Unsupported update kinds are dropped, not failed.
func updateToEvent(update map[string]any, bind binding) (models.Event, bool) {
	system := map[string]any{
		"tenant_id": bind.TenantID,
		"bot_id":    bind.BotID,
		"source":    models.SourceWebhook,
	}

	if cb, ok := update["callback_query"].(map[string]any); ok {
		ev := models.Event{
			"system":     system,
			"event_type": models.EventTypeCallback,
		}
		if data, ok := cb["data"].(string); ok {
			ev["callback_data"] = data
		}
		if from, ok := cb["from"].(map[string]any); ok {
			ev["user_id"] = asID(from["id"])
		}
		if msg, ok := cb["message"].(map[string]any); ok {
			applyChat(ev, msg)
		}
		return ev, true
	}

	msg, ok := update["message"].(map[string]any)
	if !ok {
		return nil, false
	}

	ev := models.Event{"system": system}
	applyChat(ev, msg)
	if from, ok := msg["from"].(map[string]any); ok {
		ev["user_id"] = asID(from["id"])
		if name, ok := from["first_name"].(string); ok {
			ev["user_name"] = name
		}
	}

	if members, ok := msg["new_chat_members"].([]any); ok && len(members) > 0 {
		ev["event_type"] = models.EventTypeNewMember
		if member, ok := members[0].(map[string]any); ok {
			ev["new_member_id"] = asID(member["id"])
		}
		if from, ok := msg["from"].(map[string]any); ok {
			ev["initiator_id"] = asID(from["id"])
		}
		return ev, true
	}

	text, ok := msg["text"].(string)
	if !ok {
		return nil, false
	}
	ev["event_type"] = models.EventTypeText
	ev["event_text"] = text
	return ev, true
}

func applyChat(ev models.Event, msg map[string]any) {
	chat, ok := msg["chat"].(map[string]any)
	if !ok {
		return
	}
	ev["chat_id"] = asID(chat["id"])
	if chatType, ok := chat["type"].(string); ok {
		ev["chat_type"] = chatType
	}
}

// asID keeps vendor ids integral; JSON numbers decode as float64.
func asID(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
