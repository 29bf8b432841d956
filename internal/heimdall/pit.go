package heimdall

import (
	"context"
	"strconv"
	"strings"

	"github.com/danmuck/devctl/internal/classify"
)

// PitEntry is one partition of a partition information table.
type PitEntry struct {
	Index         int
	BinaryType    int
	DeviceType    int
	Identifier    int
	Attributes    int
	BlockOffset   int
	BlockCount    int
	PartitionName string
	FlashFilename string
	FotaFilename  string
}

// PrintPit reads the partition table from file, or from the device when
// file is empty.
func (c *Client) PrintPit(ctx context.Context, file string) ([]PitEntry, error) {
	op := []string{"print-pit"}
	if file != "" {
		op = append(op, "--file", file)
	}
	out, err := c.tool.Exec(ctx, op...)
	if err != nil {
		return nil, err
	}
	entries := parsePit(out)
	if len(entries) == 0 {
		return nil, classify.Unexpected(Name, out)
	}
	return entries, nil
}

func parsePit(out string) []PitEntry {
	var (
		entries []PitEntry
		cur     *PitEntry
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "--- Entry #"); ok {
			entries = append(entries, PitEntry{Index: leadingInt(strings.TrimSuffix(rest, "---"))})
			cur = &entries[len(entries)-1]
			continue
		}
		if cur == nil {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Binary Type":
			cur.BinaryType = leadingInt(value)
		case "Device Type":
			cur.DeviceType = leadingInt(value)
		case "Identifier":
			cur.Identifier = leadingInt(value)
		case "Attributes":
			cur.Attributes = leadingInt(value)
		case "Partition Block Size/Offset":
			cur.BlockOffset = leadingInt(value)
		case "Partition Block Count":
			cur.BlockCount = leadingInt(value)
		case "Partition Name":
			cur.PartitionName = value
		case "Flash Filename":
			cur.FlashFilename = value
		case "FOTA Filename":
			cur.FotaFilename = value
		}
	}
	return entries
}

// leadingInt parses values such as "2 (MMC)".
func leadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(fields[0])
	return n
}
