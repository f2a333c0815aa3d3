package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"homesrv.dev/dbtimetable/model"
)

// Page used when no template is configured. Content is placed in the
// elements with IDs "updated", "timetables" and "disruptions".
const DefaultTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>Timetable</title>
</head>
<body>
<p id="updated"></p>
<div id="timetables"></div>
<div id="disruptions"></div>
</body>
</html>`

type Timetable struct {
	StationID   string
	StationName string
	Direction   model.Direction
	Items       []model.TimetableItem
}

type Page struct {
	UpdatedAt   time.Time
	Timetables  []Timetable
	Disruptions []model.Disruption
}

// Renders page into template. Elements missing from the template are
// skipped, along with their content.
func HTML(template []byte, page Page) ([]byte, error) {
	if len(template) == 0 {
		template = []byte(DefaultTemplate)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(template))
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}

	if !page.UpdatedAt.IsZero() {
		doc.Find("#updated").SetText(page.UpdatedAt.Format("02.01.2006 15:04:05"))
	}

	timetables := doc.Find("#timetables")
	for _, tt := range page.Timetables {
		timetables.AppendHtml(timetableHTML(tt))
	}

	disruptions := doc.Find("#disruptions")
	for _, d := range page.Disruptions {
		disruptions.AppendHtml(disruptionHTML(d))
	}

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}

	return []byte(out), nil
}

func timetableHTML(tt Timetable) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `<section class="timetable %s" data-station="%s">`, tt.Direction, esc(tt.StationID))
	fmt.Fprintf(&sb, `<h2>%s</h2><table>`, esc(tt.StationName))

	for _, item := range tt.Items {
		class := "item"
		if item.Status != "" {
			class += " " + strings.ToLower(item.Status)
		}
		fmt.Fprintf(&sb, `<tr class="%s" data-train-id="%s">`, class, esc(item.TrainID))

		scheduled := ""
		if !item.ScheduledTime.IsZero() {
			scheduled = item.ScheduledTime.Format("15:04")
		}
		cell(&sb, "time", item.Time.Format("15:04"), scheduled)
		cell(&sb, "train", item.Train, "")
		cell(&sb, "from-to", item.FromTo, item.ScheduledFromTo)
		cell(&sb, "platform", item.Platform, item.ScheduledPlatform)
		cell(&sb, "status", item.Status, "")
		cell(&sb, "message", item.Message, "")

		sb.WriteString(`</tr>`)
	}

	sb.WriteString(`</table></section>`)
	return sb.String()
}

func cell(sb *strings.Builder, class, value, scheduled string) {
	fmt.Fprintf(sb, `<td class="%s">%s`, class, esc(value))
	if scheduled != "" {
		fmt.Fprintf(sb, ` <span class="scheduled">%s</span>`, esc(scheduled))
	}
	sb.WriteString(`</td>`)
}

func disruptionHTML(d model.Disruption) string {
	lines := []string{}
	for _, l := range d.Lines {
		lines = append(lines, l.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<article class="disruption" data-id="%s">`, esc(d.ID))
	fmt.Fprintf(&sb, `<p class="lines">%s</p>`, esc(strings.Join(lines, ", ")))
	fmt.Fprintf(&sb, `<p class="cause">%s: %s - %s</p>`, esc(d.Cause.Label), esc(d.DurationBegin), esc(d.DurationEnd))
	fmt.Fprintf(&sb, `<h3>%s</h3>`, esc(d.Headline))
	if d.Text != "" {
		fmt.Fprintf(&sb, `<p class="text">%s</p>`, esc(d.Text))
	}
	sb.WriteString(`</article>`)
	return sb.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}
