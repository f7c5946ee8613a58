package bus

import (
	"strings"
)

// RoutingKey joins a channel and chat id into the "channel:chatId" form used
// as the session identity key.
func RoutingKey(channel Channel, chatId string) string {
	if chatId == "" {
		return string(channel)
	}

	return string(channel) + ":" + chatId
}

// ParseRoutingKey splits a routing key into channel and chat ID.
// Chat ids may themselves contain ':'; only the first one separates.
func ParseRoutingKey(key string) (channel Channel, chatId string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return Channel(key[:i]), key[i+1:]
	}

	return Channel(key), ""
}
