package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// interface for writing subtitles
type Writer interface {
	Write(w io.Writer, sub *Subtitle) error
}

// SubRip format
type SRTWriter struct{}

// WebVTT format
type VTTWriter struct{}

// Advanced SubStation Alpha format
type ASSWriter struct {
	Title    string
	FontName string
	FontSize int
}

func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatSRT:
		return &SRTWriter{}, nil
	case FormatVTT:
		return &VTTWriter{}, nil
	case FormatASS:
		return &ASSWriter{
			Title:    "Vibhaj Segments",
			FontName: "Arial",
			FontSize: 20,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteFile writes sub to path in the format implied by its extension.
func WriteFile(sub *Subtitle, path string) error {
	format, ok := FormatFromExtension(path)
	if !ok {
		return fmt.Errorf("unsupported subtitle format: %s", filepath.Ext(path))
	}
	writer, err := NewWriter(format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writer.Write(f, sub); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (w *SRTWriter) Write(out io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(out)
	for i, entry := range sub.Entries {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTime(entry.StartTime, ','),
			formatTime(entry.EndTime, ','),
			entry.Text)
	}
	return bw.Flush()
}

func (w *VTTWriter) Write(out io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(out)
	bw.WriteString("WEBVTT\n\n")
	for i, entry := range sub.Entries {
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTime(entry.StartTime, '.'),
			formatTime(entry.EndTime, '.'),
			entry.Text)
	}
	return bw.Flush()
}

func (w *ASSWriter) Write(out io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(out)

	// script info section
	bw.WriteString("[Script Info]\n")
	fmt.Fprintf(bw, "Title: %s\n", w.Title)
	bw.WriteString("ScriptType: v4.00+\n\n")

	// v4+ styles section
	bw.WriteString("[V4+ Styles]\n")
	bw.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(bw, "Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1\n\n",
		w.FontName, w.FontSize)

	// events section
	bw.WriteString("[Events]\n")
	bw.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, entry := range sub.Entries {
		fmt.Fprintf(bw, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(entry.StartTime),
			formatASSTime(entry.EndTime),
			strings.ReplaceAll(entry.Text, "\n", `\N`))
	}
	return bw.Flush()
}

func formatTime(d time.Duration, sep byte) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, seconds, sep, millis)
}

func formatASSTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	centis := (int(d.Milliseconds()) % 1000) / 10

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centis)
}

// subtitle format based on file extension
func FormatFromExtension(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return FormatSRT, true
	case ".vtt":
		return FormatVTT, true
	case ".ass", ".ssa":
		return FormatASS, true
	default:
		return "", false
	}
}
