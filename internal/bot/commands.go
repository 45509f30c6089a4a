package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/EgorLis/apbot/internal/progress"
)

// сплит с поддержкой кавычек: !bot missing "10"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

const defaultListLimit = 10

// commander отвечает на команды "!bot ..." из чата комнаты. Только читает Store.
type commander struct {
	store     *progress.Store
	id        Identity
	itemNames map[int64]string
}

func (c *commander) Handle(text string) (string, error) {
	fields := splitArgs(text)
	if len(fields) == 0 || strings.ToLower(fields[0]) != "!bot" {
		return "", nil
	}
	sub := "help"
	if len(fields) >= 2 {
		sub = strings.ToLower(fields[1])
	}

	switch sub {
	case "help":
		return strings.Join([]string{
			"!bot status",
			"!bot missing [n]",
			"!bot items [n]",
		}, " | "), nil

	case "status":
		v := c.store.View()
		state := "in progress"
		if v.GoalReported {
			state = "done"
		}
		return fmt.Sprintf("%s: %d/%d locations checked, %d items received, goal %s",
			c.id.SlotName, v.CheckedInMap(), v.Total(), v.Items, state), nil

	case "missing":
		n, err := limitArg(fields)
		if err != nil {
			return "", err
		}
		missing := c.store.Missing()
		if len(missing) == 0 {
			return "missing: (none)", nil
		}
		names := make([]string, 0, min(n, len(missing)))
		for _, id := range missing[:min(n, len(missing))] {
			names = append(names, c.locationName(id))
		}
		return fmt.Sprintf("missing %d: %s%s", len(missing), strings.Join(names, ", "), more(len(missing), n)), nil

	case "items":
		n, err := limitArg(fields)
		if err != nil {
			return "", err
		}
		items := c.store.Items()
		if len(items) == 0 {
			return "items: (none)", nil
		}
		// последние n, новые в конце
		from := max(0, len(items)-n)
		names := make([]string, 0, len(items)-from)
		for _, it := range items[from:] {
			names = append(names, c.itemName(it.Item))
		}
		return fmt.Sprintf("items %d: %s", len(items), strings.Join(names, ", ")), nil

	default:
		return "", fmt.Errorf("unknown command. try !bot help")
	}
}

func (c *commander) locationName(id int64) string {
	if name, ok := c.store.LocationName(id); ok {
		return name
	}
	return "#" + strconv.FormatInt(id, 10)
}

func (c *commander) itemName(id int64) string {
	if name, ok := c.itemNames[id]; ok {
		return name
	}
	return "#" + strconv.FormatInt(id, 10)
}

func limitArg(fields []string) (int, error) {
	if len(fields) < 3 {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad count %q", fields[2])
	}
	return n, nil
}

func more(total, shown int) string {
	if total <= shown {
		return ""
	}
	return fmt.Sprintf(" (+%d more)", total-shown)
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}
