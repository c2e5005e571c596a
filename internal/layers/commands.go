package layers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
)

// DefaultCommandsFile is used when the manifest declares no COMMANDS domain.
const DefaultCommandsFile = "commands"

var (
	starCommand   = regexp.MustCompile(`(?i)\*[a-z][\w-]*`)
	commandHeader = regexp.MustCompile(`^\[\*([\w-]+)\]\s*COMMAND:\s*(.*)$`)
	numberedLine  = regexp.MustCompile(`^\d+\.\s*(.+)$`)
)

// Commands is L7. It resolves *command mentions in the prompt against the
// commands file. Unknown commands are dropped.
type Commands struct{}

func (Commands) Name() string           { return "star-command" }
func (Commands) Index() int             { return LayerCommands }
func (Commands) Timeout() time.Duration { return 5 * time.Millisecond }

func (Commands) Process(lc *Context) (*Result, error) {
	mentioned := ParseStarCommands(lc.Prompt)
	if len(mentioned) == 0 {
		return nil, nil
	}

	path := resolve(lc.SynapseRoot, DefaultCommandsFile)
	if d := lc.Manifest.Domain(CommandsDomain); d != nil {
		if !d.Active() {
			return nil, nil
		}
		path = resolve(lc.SynapseRoot, d.File)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read commands file: %w", err)
	}
	blocks := ParseCommandBlocks(string(data))

	var resolved, rules []string
	for _, name := range mentioned {
		lines, ok := blocks[name]
		if !ok || len(lines) == 0 {
			continue
		}
		resolved = append(resolved, name)
		rules = append(rules, lines...)
	}
	if len(resolved) == 0 {
		return nil, nil
	}

	return &Result{
		Layer: LayerCommands,
		Name:  "star-command",
		Rules: rules,
		Metadata: map[string]any{
			MetaSource:   "commands_file",
			MetaCommands: resolved,
			MetaFiles:    []string{path},
		},
	}, nil
}

// ParseStarCommands returns the distinct *commands mentioned in text,
// lower-cased and without the star, in first-mention order.
func ParseStarCommands(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range starCommand.FindAllString(text, -1) {
		name := strings.ToLower(strings.TrimPrefix(m, "*"))
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ParseCommandBlocks parses "[*name] COMMAND:" blocks followed by numbered
// content lines. Inline content on the header line is kept as the first line.
func ParseCommandBlocks(text string) map[string][]string {
	blocks := make(map[string][]string)
	current := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if m := commandHeader.FindStringSubmatch(line); m != nil {
			current = strings.ToLower(m[1])
			if _, ok := blocks[current]; !ok {
				blocks[current] = nil
			}
			if inline := strings.TrimSpace(m[2]); inline != "" {
				blocks[current] = append(blocks[current], inline)
			}
			continue
		}
		if current == "" {
			continue
		}
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			blocks[current] = append(blocks[current], strings.TrimSpace(m[1]))
		}
	}
	return blocks
}
