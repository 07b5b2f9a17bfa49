package dsl

import (
	"strconv"

	"alerthub/internal/domain"
	"alerthub/internal/metrics"
)

// builtins binds the five callable names exposed to expressions.
// Params: none (closed over the run state).
// Returns: name-to-function map for the evaluator namespace.
func (e *run) builtins() map[string]any {
	return map[string]any{
		"log_info": func(args ...any) any {
			for _, arg := range args {
				e.log.Info("pipeline log", "value", arg)
			}
			return nil
		},
		"notify":       e.notifyBuiltin,
		"send_message": e.sendMessageBuiltin,
		"mute_time": func() any {
			return e.matcher.MuteTime(e.schedule)
		},
		"maintenance": func() any {
			return e.matcher.MaintenanceMatch(e.context.Alert, e.schedule.GroupID, e.windows)
		},
	}
}

// notifyBuiltin fans one alert out to every person on the active
// schedule over each of their enabled channels.
// Params: up to three positional template ids (telegram, ntfy, apprise);
// a nonzero id loads the stored template into the run's template map.
// Returns: a list of {channel, ok, user} delivery outcomes, or nil when
// there is nothing to deliver.
func (e *run) notifyBuiltin(args ...any) any {
	if e.context.Alert == nil {
		e.log.Error("notify: no alert in context")
		return nil
	}

	channelKeys := []string{"telegram", "ntfy", "apprise"}
	for i, key := range channelKeys {
		if i >= len(args) {
			break
		}
		id, ok := toInt(args[i])
		if !ok || id == 0 {
			continue
		}
		template, err := e.store.GetTemplate(e.ctx, id)
		if err != nil {
			e.log.Warn("notify: template lookup failed", "channel", key, "id", id, "error", err)
			continue
		}
		e.context.Templates[key] = template.Template
	}

	if len(e.schedule.People) == 0 {
		e.log.Info("notify: nobody to notify")
		return nil
	}

	results := make([]any, 0, len(e.schedule.People))
	for _, person := range e.schedule.People {
		for _, channel := range person.Notifiers {
			switch channel {
			case domain.ChannelNone:
				e.log.Info("notify: no channels for person", "person", person.Name)
			case domain.ChannelTelegram:
				if len(person.TelegramID) <= 6 {
					e.log.Error("notify: missing or short telegram chat id", "person", person.Name)
					continue
				}
				outcome, aborted := e.deliver(channel, person.Name, person.TelegramID, "telegram")
				if aborted {
					// TODO: continue with the next person instead of
					// aborting the remaining fan-out.
					return nil
				}
				results = append(results, outcome)
			case domain.ChannelNtfy:
				if len(person.Ntfy) <= 3 {
					e.log.Error("notify: missing or short ntfy topic", "person", person.Name)
					continue
				}
				outcome, aborted := e.deliver(channel, person.Name, person.Ntfy, "ntfy")
				if aborted {
					return nil
				}
				results = append(results, outcome)
			case domain.ChannelApprise:
				if len(person.Apprise) <= 6 {
					e.log.Error("notify: missing or short apprise uri", "person", person.Name)
					continue
				}
				outcome, aborted := e.deliver(channel, person.Name, person.Apprise, "apprise")
				if aborted {
					return nil
				}
				results = append(results, outcome)
			}
		}
	}
	return results
}

// deliver renders and sends one alert notification to one person over
// one channel.
// Params: channel, person name, delivery target, template key.
// Returns: the {channel, ok, user} outcome, and whether the fan-out must
// abort because the alert copy lacks its timestamps.
func (e *run) deliver(channel domain.NotifyChannel, personName, target, templateKey string) (map[string]any, bool) {
	record, ok := e.humanizedAlert()
	if !ok {
		e.log.Error("notify: alert is missing startsAt/endsAt", "person", personName)
		return nil, true
	}
	templateText, _ := e.context.Templates[templateKey].(string)

	sender, ok := e.senders.Sender(channel)
	if !ok {
		e.log.Error("notify: channel is not configured", "channel", channel.String())
		return map[string]any{"channel": int(channel), "ok": false, "user": personName}, false
	}

	e.log.Info("notify: sending",
		"channel", channel.String(),
		"person", personName,
		"alert_id", e.context.Alert["alert_id"],
		"status", e.context.Alert["status"])
	err := sender.SendAlert(e.ctx, target, templateText, record)
	if err != nil {
		e.log.Error("notify: delivery failed", "channel", channel.String(), "person", personName, "error", err)
	}
	metrics.NotificationsTotal.WithLabelValues(channel.String(), deliveryResult(err)).Inc()
	return map[string]any{"channel": int(channel), "ok": err == nil, "user": personName}, false
}

// humanizedAlert copies the alert record with its epoch timestamps
// reformatted for message rendering.
// Params: none.
// Returns: alert copy and false when startsAt or endsAt is absent.
func (e *run) humanizedAlert() (map[string]any, bool) {
	startsAt, okStart := toEpoch(e.context.Alert["startsAt"])
	endsAt, okEnd := toEpoch(e.context.Alert["endsAt"])
	if !okStart || !okEnd {
		return nil, false
	}

	record := make(map[string]any, len(e.context.Alert))
	for key, value := range e.context.Alert {
		record[key] = value
	}
	record["startsAt"] = domain.FormatHumanTime(startsAt, e.loc)
	record["endsAt"] = domain.FormatHumanTime(endsAt, e.loc)
	if updatedAt, ok := toEpoch(e.context.Alert["updatedAt"]); ok {
		record["updatedAt"] = domain.FormatHumanTime(updatedAt, e.loc)
	}
	return record, true
}

// sendMessageBuiltin delivers one raw message to one channel target,
// bypassing templates.
// Params: channel id, target, message text.
// Returns: a one-element outcome list, or nil on invalid input.
func (e *run) sendMessageBuiltin(args ...any) any {
	if len(args) != 3 {
		e.log.Error("send_message: expected channel_id, target, text")
		return nil
	}
	channelID, ok := toInt(args[0])
	if !ok {
		e.log.Error("send_message: channel_id must be an integer")
		return nil
	}
	text, _ := args[2].(string)

	channel := domain.NotifyChannel(channelID)
	var target string
	switch channel {
	case domain.ChannelTelegram:
		// Telegram targets are numeric chat ids.
		chatID, ok := toInt(args[1])
		if !ok {
			e.log.Error("send_message: telegram target must be a number")
			return nil
		}
		target = strconv.FormatInt(chatID, 10)
	case domain.ChannelNtfy, domain.ChannelApprise:
		target, ok = args[1].(string)
		if !ok {
			e.log.Error("send_message: target must be a string")
			return nil
		}
	default:
		e.log.Error("send_message: unknown channel", "channel_id", channelID)
		return nil
	}

	sender, ok := e.senders.Sender(channel)
	if !ok {
		e.log.Error("send_message: channel is not configured", "channel", channel.String())
		return nil
	}
	err := sender.SendRaw(e.ctx, target, text)
	if err != nil {
		e.log.Error("send_message: delivery failed", "channel", channel.String(), "target", target, "error", err)
	}
	metrics.NotificationsTotal.WithLabelValues(channel.String(), deliveryResult(err)).Inc()
	return []any{map[string]any{"channel": int(channel), "ok": err == nil, "user": args[1]}}
}

func deliveryResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// toInt accepts the integer shapes the evaluator produces.
func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// toEpoch accepts the numeric shapes an alert timestamp can take.
func toEpoch(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
