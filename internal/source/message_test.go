package source

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseMessage_PrefersPlainText(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		InternalDate: 1700000000000,
		Snippet:      "Thanks for applying &amp; good luck",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Acme Careers <no-reply@greenhouse.io>"},
				{Name: "subject", Value: "Thank you for applying"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>HTML version</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Plain   version\r\n\r\nsecond line")}},
			},
		},
	}

	item, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	if item.Sender != "Acme Careers <no-reply@greenhouse.io>" {
		t.Errorf("Unexpected sender %q", item.Sender)
	}
	if item.Subject != "Thank you for applying" {
		t.Errorf("Unexpected subject %q", item.Subject)
	}
	if item.Body != "Plain version\nsecond line" {
		t.Errorf("Unexpected body %q", item.Body)
	}
	if item.Snippet != "Thanks for applying & good luck" {
		t.Errorf("Expected unescaped snippet, got %q", item.Snippet)
	}
	if !item.ReceivedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Unexpected received time %v", item.ReceivedAt)
	}
}

func TestParseMessage_HTMLFallback(t *testing.T) {
	markup := `<html><head><title>x</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><p>Thank you for applying to <b>Acme</b>.</p><div>Position: Data Engineer</div></body></html>`

	msg := &gmail.Message{
		Id: "m2",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Date", Value: "Mon, 02 Jan 2006 15:04:05 -0700"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html; charset=UTF-8", Body: &gmail.MessagePartBody{Data: strings.TrimRight(b64(markup), "=")}},
					},
				},
			},
		},
	}

	item, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	if strings.Contains(item.Body, "alert") || strings.Contains(item.Body, "color") {
		t.Errorf("Expected script and style removed, got %q", item.Body)
	}
	if !strings.Contains(item.Body, "Thank you for applying to Acme.") {
		t.Errorf("Expected paragraph text, got %q", item.Body)
	}
	if !strings.Contains(item.Body, "Position: Data Engineer") {
		t.Errorf("Expected div text, got %q", item.Body)
	}
	if item.ReceivedAt.IsZero() {
		t.Error("Expected received time from Date header")
	}
}

func TestParseMessage_NoID(t *testing.T) {
	if _, err := ParseMessage(&gmail.Message{}); err == nil {
		t.Fatal("Expected error for message without id")
	}
}

func TestQuery(t *testing.T) {
	floor := time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local)
	if got := Query(floor); got != "in:inbox after:2024/03/05" {
		t.Errorf("Unexpected query %q", got)
	}
}
