package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"worldsmith.dev/internal/input"
	"worldsmith.dev/internal/protocol"
	"worldsmith.dev/internal/resource"
)

// Console is a UI over a line-based terminal. Output queued by the game is
// written on Render, once per tick. Lines starting with "/" are commands;
// anything else is chat.
type Console struct {
	out   io.Writer
	hooks Hooks
	now   func() time.Time

	pending   []string
	resources []protocol.Resource
	inspected *string
	entity    string
	comps     []protocol.ComponentInfo
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out, now: time.Now}
}

func (c *Console) SetHooks(h Hooks) { c.hooks = h }

func (c *Console) printf(format string, args ...any) {
	c.pending = append(c.pending, fmt.Sprintf(format, args...))
}

func (c *Console) AddChatMessage(message string) {
	c.printf("[chat] %s", message)
}

func (c *Console) SetResourceList(resources []protocol.Resource) {
	c.resources = append([]protocol.Resource(nil), resources...)
	c.printf("[resources] %d available", len(resources))
	for _, r := range resources {
		added := time.UnixMilli(int64(r.Time))
		c.printf("  %s %-7s %q by %s, %s", r.ID, r.Type, r.Name, r.Creator, humanize.RelTime(added, c.now(), "ago", "from now"))
	}
}

func (c *Console) Resources() []protocol.Resource {
	return append([]protocol.Resource(nil), c.resources...)
}

func (c *Console) SetEntityData(components []protocol.ComponentInfo, entityID string) {
	c.entity = entityID
	c.comps = append([]protocol.ComponentInfo(nil), components...)
	c.printf("[inspect] entity %s: %d components", entityID, len(components))
	for _, comp := range components {
		c.printf("  %s %s", comp.ID, comp.Name)
		for _, opt := range comp.Options {
			c.printf("    %s (%s) = %s", opt.Name, opt.Type, opt.Value)
		}
	}
}

func (c *Console) Inspect(entityID *string) {
	c.inspected = entityID
	if entityID == nil {
		c.entity = ""
		c.comps = nil
		c.printf("[inspect] cleared")
		return
	}
	c.printf("[inspect] %s", *entityID)
}

// Inspected returns the entity currently being inspected, if any.
func (c *Console) Inspected() (string, bool) {
	if c.inspected == nil {
		return "", false
	}
	return *c.inspected, true
}

// Render writes queued output.
func (c *Console) Render() {
	if len(c.pending) == 0 {
		return
	}
	w := bufio.NewWriter(c.out)
	for _, line := range c.pending {
		_, _ = w.WriteString(line)
		_ = w.WriteByte('\n')
	}
	_ = w.Flush()
	c.pending = c.pending[:0]
}

var errUsage = errors.New("usage")

// HandleLine interprets one line of user input. Errors are printed on the
// next Render and also returned.
func (c *Console) HandleLine(line string) error {
	err := c.handleLine(strings.TrimSpace(line))
	if err != nil {
		c.printf("[error] %v", err)
	}
	return err
}

func (c *Console) handleLine(line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if c.hooks.OnPlayerMessageEntry != nil {
			c.hooks.OnPlayerMessageEntry(line)
		}
		return nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help":
		c.printf("commands: /tool place|erase|edit|none, /prefab ID, /upload PATH... [-r ID], /delete ID,")
		c.printf("  /run RESOURCE [ENTITY] -- ARGS, /meta RESOURCE PROP VALUE, /cmeta COMPONENT PROP VALUE,")
		c.printf("  /enable COMPONENT true|false, /rmcomp COMPONENT")
	case "tool":
		if len(args) != 1 {
			return fmt.Errorf("%w: /tool place|erase|edit|none", errUsage)
		}
		t, ok := input.ParseTool(args[0])
		if !ok {
			return fmt.Errorf("unknown tool %q", args[0])
		}
		if c.hooks.OnToolChange != nil {
			c.hooks.OnToolChange(t)
		}
	case "prefab":
		if len(args) != 1 {
			return fmt.Errorf("%w: /prefab ID", errUsage)
		}
		if c.hooks.OnPrefabSelect != nil {
			c.hooks.OnPrefabSelect(args[0])
		}
	case "upload":
		paths, resourceID := args, ""
		if n := len(args); n >= 2 && args[n-2] == "-r" {
			paths, resourceID = args[:n-2], args[n-1]
		}
		if len(paths) == 0 {
			return fmt.Errorf("%w: /upload PATH... [-r ID]", errUsage)
		}
		files, err := resource.LoadFiles(paths...)
		if err != nil {
			return err
		}
		if c.hooks.OnResourceUpload != nil {
			c.hooks.OnResourceUpload(files, resourceID)
		}
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("%w: /delete ID", errUsage)
		}
		if c.hooks.OnResourceDelete != nil {
			c.hooks.OnResourceDelete(args[0])
		}
	case "run":
		rest := strings.TrimSpace(line[1:])
		return c.runScript(strings.TrimSpace(rest[len(cmd):]))
	case "meta", "cmeta":
		if len(args) < 3 {
			return fmt.Errorf("%w: /%s ID PROP VALUE", errUsage, cmd)
		}
		value := strings.Join(args[2:], " ")
		if cmd == "meta" {
			if c.hooks.OnResourceInfoModify != nil {
				c.hooks.OnResourceInfoModify(args[0], args[1], value)
			}
		} else if c.hooks.OnComponentInfoModify != nil {
			c.hooks.OnComponentInfoModify(args[0], args[1], value)
		}
	case "enable":
		if len(args) != 2 {
			return fmt.Errorf("%w: /enable COMPONENT true|false", errUsage)
		}
		on, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		if c.hooks.OnComponentEnableState != nil {
			c.hooks.OnComponentEnableState(args[0], on)
		}
	case "rmcomp":
		if len(args) != 1 {
			return fmt.Errorf("%w: /rmcomp COMPONENT", errUsage)
		}
		if c.hooks.OnComponentDelete != nil {
			c.hooks.OnComponentDelete(args[0])
		}
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd)
	}
	return nil
}

// runScript parses "RESOURCE [ENTITY] [-- ARGS...]", the text after /run.
// Script args are passed through as one raw string.
func (c *Console) runScript(rest string) error {
	var fields []string
	argStr := ""
	pos := 0
	for _, tok := range strings.Fields(rest) {
		at := pos + strings.Index(rest[pos:], tok)
		if tok == "--" {
			argStr = rest[at+len(tok):]
			break
		}
		fields = append(fields, tok)
		pos = at + len(tok)
	}
	if len(fields) < 1 || len(fields) > 2 {
		return fmt.Errorf("%w: /run RESOURCE [ENTITY] -- ARGS", errUsage)
	}
	var entityID *string
	if len(fields) == 2 {
		e := fields[1]
		entityID = &e
	}
	if c.hooks.OnScriptRun != nil {
		c.hooks.OnScriptRun(fields[0], strings.TrimSpace(argStr), entityID)
	}
	return nil
}

// ReadLines scans r and posts each line to exec as a HandleLine turn until
// r is exhausted or ctx is done.
func (c *Console) ReadLines(ctx context.Context, r io.Reader, exec interface{ Post(func()) }) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Text()
		exec.Post(func() { _ = c.HandleLine(line) })
	}
	return sc.Err()
}
