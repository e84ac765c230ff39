package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const etx = '\x03'

const defaultShowDxCount = 25
const maxShowDxCount = 50

var helpText = strings.Join([]string{
	"",
	"WOTA Cluster Commands:",
	strings.Repeat("-", 40),
	"sh/dx [n]     Show last n spots (default 25, max 50)",
	"sh/users      Show connected users",
	"ping1         Send keepalive every 1 minute",
	"ping5         Send keepalive every 5 minutes",
	"ping10        Send keepalive every 10 minutes",
	"ping15        Send keepalive every 15 minutes",
	"bye / quit    Disconnect from cluster",
	"help          Show this help message",
	"",
	"Spots are broadcast automatically when they arrive.",
	"",
}, "\r\n")

// Commands executes interactive commands against a session, the spot cache
// and the session registry.
type Commands struct {
	cache    *Cache
	registry *Registry
}

func NewCommands(cache *Cache, registry *Registry) *Commands {
	return &Commands{cache: cache, registry: registry}
}

// Execute runs one inbound line for an authenticated session. It reports
// whether the session asked to disconnect. Every other branch ends with the
// session's prompt.
func (c *Commands) Execute(sess *Session, input string) (disconnect bool) {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "" {
		sess.Prompt()
		return false
	}

	parts := strings.Fields(trimmed)
	command := parts[0]
	args := parts[1:]

	switch command {
	case "sh/dx", "show/dx":
		c.showDx(sess, args)
	case "sh/users", "show/users":
		c.showUsers(sess)
	case "ping1":
		c.setPing(sess, 1)
	case "ping5":
		c.setPing(sess, 5)
	case "ping10":
		c.setPing(sess, 10)
	case "ping15":
		c.setPing(sess, 15)
	case "help", "?":
		sess.Send(helpText)
	case "bye", "quit", "exit", string(etx):
		sess.Send(farewell)
		return true
	default:
		sess.Send("Unknown command: " + command + ". Type \"help\" for available commands.\r\n")
	}

	sess.Prompt()
	return false
}

func (c *Commands) showDx(sess *Session, args []string) {
	count := defaultShowDxCount
	if len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil && parsed > 0 {
			count = parsed
			if count > maxShowDxCount {
				count = maxShowDxCount
			}
		}
	}

	sess.Send(FormatSpotList(c.cache.Recent(count, 0)))
}

func (c *Commands) showUsers(sess *Session) {
	users := c.registry.Authenticated()
	if len(users) == 0 {
		sess.Send("No users currently connected.\r\n")
		return
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].ConnectedAt.Before(users[j].ConnectedAt)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "\r\nConnected users (%d):\r\n", len(users))
	b.WriteString(strings.Repeat("-", 40) + "\r\n")
	for _, u := range users {
		minutes := int(time.Since(u.ConnectedAt).Minutes())
		fmt.Fprintf(&b, "%-12s connected for %d mins\r\n", u.Callsign(), minutes)
	}
	b.WriteString("\r\n")
	sess.Send(b.String())
}

func (c *Commands) setPing(sess *Session, minutes int) {
	if minutes < 1 {
		sess.Send("Invalid ping interval. Use ping1, ping5, ping10, etc.\r\n")
		return
	}

	sess.SetKeepalive(minutes)
	plural := ""
	if minutes > 1 {
		plural = "s"
	}
	sess.Send(fmt.Sprintf("Keepalive set to %d minute%s.\r\n", minutes, plural))
}
