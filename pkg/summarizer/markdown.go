package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.t = t
	}
}

// WithVersion sets the tool version printed in the header.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	t       func(string) string
	version string
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		t: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder
	t := f.t

	fmt.Fprintf(&b, "# %s\n\n", t("Watermark Summary"))
	fmt.Fprintf(&b, "- %s: %s\n", t("Generated"), s.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if s.RunID != "" {
		fmt.Fprintf(&b, "- %s: `%s`\n", t("Run ID"), s.RunID)
	}
	if s.Input != "" {
		fmt.Fprintf(&b, "- %s: `%s`\n", t("Input"), s.Input)
	}
	if f.version != "" {
		fmt.Fprintf(&b, "- %s: %s\n", t("Version"), f.version)
	}
	b.WriteString("\n")

	// Watermark
	w := s.Watermark
	fmt.Fprintf(&b, "## %s\n\n", t("Watermark"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Setting"), t("Value"))
	row(&b, t("Text"), escapeCell(w.Text))
	row(&b, t("Pattern"), w.Pattern)
	row(&b, t("Text Scale"), fmt.Sprintf("%g", w.TextScale))
	row(&b, t("Space Scale"), fmt.Sprintf("%g", w.SpaceScale))
	row(&b, t("Color"), w.Color)
	row(&b, t("Opacity"), fmt.Sprintf("%d", w.Opacity))
	row(&b, t("Seed"), fmt.Sprintf("%d", w.Seed))
	if w.Font != "" {
		row(&b, t("Font"), escapeCell(w.Font))
	}
	b.WriteString("\n")

	// Settings
	st := s.Settings
	fmt.Fprintf(&b, "## %s\n\n", t("Execution"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Setting"), t("Value"))
	row(&b, t("GPU"), st.GPU)
	threads := t("auto")
	if st.Threads > 0 {
		threads = fmt.Sprintf("%d", st.Threads)
	}
	row(&b, t("Threads"), threads)
	row(&b, t("Concurrency"), fmt.Sprintf("%d", st.Concurrency))
	row(&b, t("Quality"), fmt.Sprintf("%d", st.Quality))
	row(&b, t("PDF Output"), yesNo(t, st.PDF))
	row(&b, t("Recursive"), yesNo(t, st.Recursive))
	b.WriteString("\n")

	// Results
	tot := s.Totals
	fmt.Fprintf(&b, "## %s\n\n", t("Results"))
	fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n|---|---|---|---|---|\n",
		t("Files"), t("Succeeded"), t("Failed"), t("Canceled"), t("Elapsed"))
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %s |\n\n",
		tot.Files, tot.Succeeded, tot.Failed, tot.Canceled, formatDuration(tot.Elapsed))
	fmt.Fprintf(&b, "%s: %s\n\n", t("Total Output"), formatBytes(tot.Bytes))

	if len(s.Files) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "| # | %s | %s | %s | %s | %s | %s | %s |\n|---|---|---|---|---|---|---|---|\n",
		t("Input"), t("Output"), t("Pages"), t("Backend"), t("Size"), t("Time"), t("Status"))
	for i, e := range s.Files {
		status := t("OK")
		if !e.OK() {
			status = fmt.Sprintf("%s (%s)", t("Failed"), escapeCell(e.Error))
			if e.Kind == "canceled" {
				status = t("Canceled")
			}
		}
		size, elapsed, pages, backend := "-", "-", "-", "-"
		if e.OK() {
			size = formatBytes(int64(e.Bytes))
			elapsed = formatDuration(e.Elapsed)
			pages = fmt.Sprintf("%d", e.Pages)
			backend = e.Backend
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s | %s |\n",
			i+1, escapeCell(e.Input), escapeCell(e.Output), pages, backend, size, elapsed, status)
	}

	return b.String()
}

var _ Formatter = (*MarkdownFormatter)(nil)

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", label, value)
}

func yesNo(t func(string) string, v bool) string {
	if v {
		return t("Yes")
	}
	return t("No")
}

// escapeCell keeps table cells on one line.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}
