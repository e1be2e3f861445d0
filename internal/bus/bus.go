// Package bus is the publish/subscribe transport connecting modules by
// address string.
package bus

import "strings"

// Handler receives messages delivered on a subscribed address.
type Handler interface {
	Handle(msg []byte, address string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg []byte, address string)

func (f HandlerFunc) Handle(msg []byte, address string) { f(msg, address) }

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
}

// Bus publishes JSON-encoded messages and delivers them to subscribers.
// Publish is fire-and-forget: no acknowledgement is modelled.
type Bus interface {
	Publish(address string, v any) error
	Subscribe(address string, h Handler) (Subscription, error)
	Close()
}

// Address joins parts into a dot-separated address, sanitising each part
// into a valid subject token.
func Address(parts ...string) string {
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, subjectToken(p))
	}
	return strings.Join(tokens, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
