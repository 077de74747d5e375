package actions

import (
	"context"
	"time"

	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/chat"
	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/tenant"
	"github.com/flowbotio/flowbot/pkg/userstate"
)

// BuiltinDeps carries the collaborators the built-in actions wrap.
type BuiltinDeps struct {
	Chat    chat.Client
	Cache   *cache.Manager
	States  *userstate.Manager
	Tenants *tenant.Directory
}

func intProp() *Property    { return &Property{Types: []string{TypeInt}} }
func stringProp() *Property { return &Property{Types: []string{TypeString}} }

func optional(p *Property) *Property {
	p.Optional = true
	return p
}

// RegisterBuiltins installs the built-in action set on the hub.
func RegisterBuiltins(h *Hub, deps BuiltinDeps) error {
	builtins := map[string]Action{
		"chat.send_message":      sendMessageAction(deps),
		"chat.restrict_member":   restrictMemberAction(deps),
		"state.set_user_state":   setUserStateAction(deps),
		"state.clear_user_state": clearUserStateAction(deps),
		"cache.set":              cacheSetAction(deps),
		"cache.delete":           cacheDeleteAction(deps),
	}
	for name, a := range builtins {
		if err := h.Register(name, a); err != nil {
			return err
		}
	}
	return nil
}

func sendMessageAction(deps BuiltinDeps) Action {
	minLen := 1
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"chat_id":      intProp(),
			"text":         &Property{Types: []string{TypeString}, MinLength: &minLen},
			"parse_mode":   optional(&Property{Types: []string{TypeString}, Enum: []any{"HTML", "Markdown", "MarkdownV2"}}),
			"bot_token":    optional(&Property{Types: []string{TypeString}, FromConfig: true}),
			"reply_markup": optional(&Property{Types: []string{TypeObject, TypeList}}),
		}},
		Handler: func(ctx context.Context, data map[string]any) models.Envelope {
			token, _ := data["bot_token"].(string)
			if token == "" {
				return models.Failure(models.CodeConfigError, "bot_token not configured", nil)
			}
			chatID, _ := asInt64(data["chat_id"])
			parseMode, _ := data["parse_mode"].(string)
			resp, err := deps.Chat.SendMessage(ctx, token, chat.Message{
				ChatID:      chatID,
				Text:        data["text"].(string),
				ParseMode:   parseMode,
				ReplyMarkup: data["reply_markup"],
			})
			if err != nil {
				return models.Failure(models.CodeAPIError, "send_message failed", err.Error())
			}
			return models.Success(resp)
		},
	}
}

func restrictMemberAction(deps BuiltinDeps) Action {
	zero := float64(0)
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"chat_id":          intProp(),
			"user_id":          intProp(),
			"duration_seconds": optional(&Property{Types: []string{TypeInt}, Min: &zero}),
			"bot_token":        optional(&Property{Types: []string{TypeString}, FromConfig: true}),
			"permissions":      optional(&Property{Types: []string{TypeObject}}),
		}},
		Handler: func(ctx context.Context, data map[string]any) models.Envelope {
			token, _ := data["bot_token"].(string)
			if token == "" {
				return models.Failure(models.CodeConfigError, "bot_token not configured", nil)
			}
			chatID, _ := asInt64(data["chat_id"])
			userID, _ := asInt64(data["user_id"])
			seconds, _ := asInt64(data["duration_seconds"])

			perms := map[string]bool{}
			if raw, ok := data["permissions"].(map[string]any); ok {
				for k, v := range raw {
					b, _ := v.(bool)
					perms[k] = b
				}
			}

			err := deps.Chat.RestrictMember(ctx, token, chat.Restriction{
				ChatID:      chatID,
				UserID:      userID,
				Until:       time.Now().Add(time.Duration(seconds) * time.Second),
				Permissions: perms,
			})
			if err != nil {
				return models.Failure(models.CodeAPIError, "restrict_member failed", err.Error())
			}
			return models.Success(map[string]any{"restricted_user_id": userID})
		},
	}
}

func setUserStateAction(deps BuiltinDeps) Action {
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"tenant_id":   stringProp(),
			"user_id":     intProp(),
			"state_type":  stringProp(),
			"state_data":  optional(&Property{Types: []string{TypeObject}}),
			"ttl_seconds": optional(intProp()),
		}},
		Handler: func(ctx context.Context, data map[string]any) models.Envelope {
			userID, _ := asInt64(data["user_id"])
			seconds, _ := asInt64(data["ttl_seconds"])
			stateData, _ := data["state_data"].(map[string]any)

			err := deps.States.Set(ctx,
				data["tenant_id"].(string), userID,
				data["state_type"].(string), stateData,
				time.Duration(seconds)*time.Second)
			if err != nil {
				return models.Failure(models.CodeSyncError, "set_user_state failed", err.Error())
			}
			return models.Success(map[string]any{"state_type": data["state_type"]})
		},
	}
}

func clearUserStateAction(deps BuiltinDeps) Action {
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"tenant_id": stringProp(),
			"user_id":   intProp(),
		}},
		Handler: func(ctx context.Context, data map[string]any) models.Envelope {
			userID, _ := asInt64(data["user_id"])
			if err := deps.States.Clear(ctx, data["tenant_id"].(string), userID); err != nil {
				return models.Failure(models.CodeSyncError, "clear_user_state failed", err.Error())
			}
			return models.Success(nil)
		},
	}
}

func cacheSetAction(deps BuiltinDeps) Action {
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"key":         &Property{Types: []string{TypeString}, MinLength: intPtr(1)},
			"value":       optional(&Property{Types: []string{TypeString, TypeInt, TypeFloat, TypeBool, TypeList, TypeObject}}),
			"ttl_seconds": optional(intProp()),
		}},
		Handler: func(_ context.Context, data map[string]any) models.Envelope {
			key := data["key"].(string)
			if seconds, ok := asInt64(data["ttl_seconds"]); ok && seconds > 0 {
				deps.Cache.Set(key, data["value"], time.Duration(seconds)*time.Second)
			} else {
				deps.Cache.Set(key, data["value"])
			}
			return models.Success(map[string]any{"key": key})
		},
	}
}

func cacheDeleteAction(deps BuiltinDeps) Action {
	return Action{
		Schema: &Schema{Properties: map[string]*Property{
			"key": &Property{Types: []string{TypeString}, MinLength: intPtr(1)},
		}},
		Handler: func(_ context.Context, data map[string]any) models.Envelope {
			key := data["key"].(string)
			return models.Success(map[string]any{
				"key":     key,
				"deleted": deps.Cache.Delete(key),
			})
		},
	}
}

func intPtr(n int) *int { return &n }

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
