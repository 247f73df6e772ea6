package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/higpup01-design/proofok/model"
)

// DecisionMessage builds the notification sent to the producer for one decision
func DecisionMessage(proof *model.Proof, resp model.Response, proofURL string) Message {
	ts := resp.Timestamp.UTC().Format(time.RFC3339)

	subject := fmt.Sprintf("[Proof] %s - %s", oneLine(proof.OriginalName), strings.ToUpper(resp.Decision))

	text := fmt.Sprintf("Proof decision received.\n\n"+
		"File: %s\nLink: %s\nDecision: %s\nName: %s\nEmail: %s\nComment:\n%s\n\n"+
		"Time (UTC): %s\nIP: %s\n",
		proof.OriginalName, proofURL, resp.Decision, resp.ViewerName, resp.ViewerEmail,
		resp.Comment, ts, resp.IP)

	esc := html.EscapeString
	comment := strings.ReplaceAll(esc(resp.Comment), "\n", "<br>")
	body := fmt.Sprintf(`<h2>Proof decision received</h2>
<p><b>File:</b> %s</p>
<p><b>Link:</b> <a href="%s">%s</a></p>
<p><b>Decision:</b> %s</p>
<p><b>Name:</b> %s &lt;%s&gt;</p>
<p><b>Comment:</b><br>%s</p>
<p><small>Time (UTC): %s | IP: %s</small></p>`,
		esc(proof.OriginalName), esc(proofURL), esc(proofURL), esc(resp.Decision),
		esc(resp.ViewerName), esc(resp.ViewerEmail), comment, ts, esc(resp.IP))

	return Message{Subject: subject, HTML: body, Text: text}
}

// oneLine keeps header values on a single line
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}
