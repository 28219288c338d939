package source

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"

	"github.com/ppiankov/applytrail/internal/model"
)

// ParseMessage reduces a full-format Gmail message to an Item
func ParseMessage(msg *gmail.Message) (model.Item, error) {
	if msg == nil || msg.Id == "" {
		return model.Item{}, fmt.Errorf("message has no id")
	}

	item := model.Item{
		ID:      msg.Id,
		Snippet: html.UnescapeString(msg.Snippet),
	}

	var dateHeader string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				item.Sender = h.Value
			case "subject":
				item.Subject = h.Value
			case "date":
				dateHeader = h.Value
			}
		}
	}

	switch {
	case msg.InternalDate > 0:
		item.ReceivedAt = time.UnixMilli(msg.InternalDate)
	case dateHeader != "":
		if t, err := mail.ParseDate(dateHeader); err == nil {
			item.ReceivedAt = t
		}
	}

	plain, markup := findBodies(msg.Payload)
	switch {
	case strings.TrimSpace(plain) != "":
		item.Body = normalizeText(plain)
	case strings.TrimSpace(markup) != "":
		text, err := htmlToText(markup)
		if err != nil {
			return item, fmt.Errorf("parse html body: %w", err)
		}
		item.Body = text
	}

	return item, nil
}

// findBodies walks the MIME tree and returns the first text/plain and the
// first text/html body
func findBodies(part *gmail.MessagePart) (plain, markup string) {
	if part == nil {
		return "", ""
	}

	mimeType := strings.ToLower(part.MimeType)
	if part.Body != nil && part.Body.Data != "" {
		switch {
		case strings.HasPrefix(mimeType, "text/plain"):
			plain = decodeBody(part.Body.Data)
		case strings.HasPrefix(mimeType, "text/html"):
			markup = decodeBody(part.Body.Data)
		}
	}

	for _, child := range part.Parts {
		p, m := findBodies(child)
		if plain == "" {
			plain = p
		}
		if markup == "" {
			markup = m
		}
		if plain != "" && markup != "" {
			break
		}
	}
	return plain, markup
}

// decodeBody decodes Gmail's base64url body data, padded or not
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

// htmlToText strips markup, scripts and styles, keeping one line per block
func htmlToText(markup string) (string, error) {
	node, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	doc := goquery.NewDocumentFromNode(node)
	doc.Find("script, style, head, noscript").Remove()
	doc.Find("br, p, div, tr, li, h1, h2, h3, h4, h5, h6, table").AfterHtml("\n")

	return normalizeText(doc.Text()), nil
}

// normalizeText collapses runs of whitespace inside lines and drops blank lines
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
