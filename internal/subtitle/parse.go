package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// matches both SRT (00:00:01,000) and VTT (00:01.000 or 00:00:01.000) cue
// timings
var cueTimingRegex = regexp.MustCompile(
	`^((?:\d+:)?\d{2}:\d{2}[.,]\d{3})\s*-->\s*((?:\d+:)?\d{2}:\d{2}[.,]\d{3})`,
)

// Open parses a subtitle file, picking the format from its extension.
func Open(path string) (*Subtitle, error) {
	format, ok := FormatFromExtension(path)
	if !ok {
		return nil, fmt.Errorf("unsupported subtitle format: %s", filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	return Parse(file, format)
}

// Parse reads a subtitle track of the given format.
func Parse(r io.Reader, format Format) (*Subtitle, error) {
	var (
		entries []Entry
		err     error
	)
	switch format {
	case FormatSRT, FormatVTT:
		entries, err = parseCues(r)
	case FormatASS:
		entries, err = parseASS(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s file: %w", strings.ToUpper(string(format)), err)
	}
	return &Subtitle{Entries: entries, Format: format}, nil
}

// parseCues handles SRT and WebVTT. A cue is a timing line followed by text
// up to the next blank line; numeric or named cue identifiers, the WEBVTT
// header and NOTE/STYLE/REGION blocks are skipped.
func parseCues(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)

	var (
		entries   []Entry
		current   *Entry
		textLines []string
		skipBlock bool
		lineNum   int
	)

	flush := func() {
		if current != nil {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, *current)
		}
		current = nil
		textLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}
		if current == nil && isVTTMetaBlock(trimmed) {
			skipBlock = true
			continue
		}

		if m := cueTimingRegex.FindStringSubmatch(trimmed); m != nil {
			flush()
			start, err := parseTimestamp(m[1])
			if err != nil {
				return nil, fmt.Errorf("invalid start timestamp at line %d: %w", lineNum, err)
			}
			end, err := parseTimestamp(m[2])
			if err != nil {
				return nil, fmt.Errorf("invalid end timestamp at line %d: %w", lineNum, err)
			}
			current = &Entry{
				Index:     len(entries) + 1,
				StartTime: start,
				EndTime:   end,
			}
			continue
		}

		if current != nil {
			textLines = append(textLines, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func isVTTMetaBlock(line string) bool {
	if strings.HasPrefix(line, "WEBVTT") {
		return true
	}
	for _, kw := range []string{"NOTE", "STYLE", "REGION"} {
		if line == kw || strings.HasPrefix(line, kw+" ") {
			return true
		}
	}
	return false
}

// parseTimestamp accepts [h:]mm:ss.mmm or [h:]mm:ss,mmm, and the ASS form
// h:mm:ss.cc.
func parseTimestamp(ts string) (time.Duration, error) {
	ts = strings.Replace(ts, ",", ".", 1)
	clock, frac, _ := strings.Cut(ts, ".")

	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	var total time.Duration
	units := []time.Duration{time.Second, time.Minute, time.Hour}
	for i := range parts {
		v, err := strconv.Atoi(parts[len(parts)-1-i])
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		total += time.Duration(v) * units[i]
	}

	if frac != "" {
		v, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		scale := time.Second
		for range frac {
			scale /= 10
		}
		total += time.Duration(v) * scale
	}
	return total, nil
}

// parseASS reads Dialogue lines of the [Events] section, using its Format
// line to locate the Start, End and Text columns.
func parseASS(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)

	var (
		entries  []Entry
		inEvents bool
		columns  []string
		lineNum  int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		}
		if !inEvents {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "Format:"); ok {
			columns = strings.Split(rest, ",")
			for i := range columns {
				columns[i] = strings.ToLower(strings.TrimSpace(columns[i]))
			}
			continue
		}

		rest, ok := strings.CutPrefix(line, "Dialogue:")
		if !ok {
			continue
		}
		if columns == nil {
			return nil, fmt.Errorf("Dialogue before Format line at line %d", lineNum)
		}

		fields := strings.SplitN(strings.TrimSpace(rest), ",", len(columns))
		if len(fields) < len(columns) {
			return nil, fmt.Errorf("expected %d fields at line %d, got %d",
				len(columns), lineNum, len(fields))
		}

		entry := Entry{Index: len(entries) + 1}
		for i, col := range columns {
			var err error
			switch col {
			case "start":
				entry.StartTime, err = parseTimestamp(strings.TrimSpace(fields[i]))
			case "end":
				entry.EndTime, err = parseTimestamp(strings.TrimSpace(fields[i]))
			case "text":
				entry.Text = cleanASSText(fields[i])
			}
			if err != nil {
				return nil, fmt.Errorf("invalid %s at line %d: %w", col, lineNum, err)
			}
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if columns == nil {
		return nil, fmt.Errorf("ASS file missing Format line in [Events] section")
	}
	return entries, nil
}

var assTagRegex = regexp.MustCompile(`\{[^}]*\}`)

func cleanASSText(text string) string {
	text = assTagRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, `\N`, "\n")
	text = strings.ReplaceAll(text, `\n`, "\n")
	return strings.TrimSpace(text)
}
