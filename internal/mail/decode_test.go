package mail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
)

func buildMIMEEmail(sender, subject string, attachments []Attachment) []byte {
	var b strings.Builder
	boundary := "testboundary42"

	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	fmt.Fprintf(&b, "\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "receipt attached\r\n")

	for _, att := range attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", att.ContentType)
		fmt.Fprintf(&b, "Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename)
		fmt.Fprintf(&b, "%s\r\n", base64.StdEncoding.EncodeToString(att.Data))
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func TestDecodeExtractsAttachments(t *testing.T) {
	raw := buildMIMEEmail("Alice <alice@example.com>", "Receipt", []Attachment{
		{Filename: "receipt.jpg", ContentType: JPEG, Data: []byte("jpeg-bytes")},
		{Filename: "statement.pdf", ContentType: PDF, Data: []byte("%PDF-1.4 fake")},
	})

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if msg.Sender != "alice@example.com" {
		t.Errorf("Sender = %q, want alice@example.com", msg.Sender)
	}
	if msg.Subject != "Receipt" {
		t.Errorf("Subject = %q, want Receipt", msg.Subject)
	}
	if !strings.Contains(msg.Body, "receipt attached") {
		t.Errorf("Body = %q, want text part content", msg.Body)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(msg.Attachments))
	}
	if msg.Attachments[0].Filename != "receipt.jpg" || msg.Attachments[0].ContentType != JPEG {
		t.Errorf("first attachment = %+v", msg.Attachments[0])
	}
	if string(msg.Attachments[0].Data) != "jpeg-bytes" {
		t.Errorf("attachment data = %q, want jpeg-bytes", msg.Attachments[0].Data)
	}
	if string(msg.Attachments[1].Data) != "%PDF-1.4 fake" {
		t.Errorf("pdf data = %q", msg.Attachments[1].Data)
	}
}

func TestDecodeSkipsUnsupportedTypes(t *testing.T) {
	raw := buildMIMEEmail("bob@example.com", "Files", []Attachment{
		{Filename: "notes.txt", ContentType: ContentType("application/zip"), Data: []byte("zip")},
		{Filename: "scan.png", ContentType: PNG, Data: []byte("png-bytes")},
	})

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(msg.Attachments))
	}
	if msg.Attachments[0].ContentType != PNG {
		t.Errorf("kept attachment type = %s, want image/png", msg.Attachments[0].ContentType)
	}
}

func TestDecodeEncodedSubject(t *testing.T) {
	raw := buildMIMEEmail("carol@example.com", "=?UTF-8?B?UmVjZWlwdCDwn4ST?=", nil)

	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !strings.HasPrefix(msg.Subject, "Receipt") {
		t.Errorf("Subject = %q, want decoded UTF-8 word", msg.Subject)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not an email at all")); err == nil {
		t.Error("expected error for malformed message")
	}
}

func TestContentTypeSupported(t *testing.T) {
	tests := []struct {
		ct   ContentType
		want bool
	}{
		{JPEG, true},
		{PNG, true},
		{GIF, true},
		{WebP, true},
		{PDF, true},
		{"text/plain", false},
		{"application/zip", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			if got := tt.ct.Supported(); got != tt.want {
				t.Errorf("Supported(%q) = %v, want %v", tt.ct, got, tt.want)
			}
		})
	}
}

func TestContentTypeExt(t *testing.T) {
	tests := []struct {
		ct   ContentType
		want string
	}{
		{JPEG, ".jpg"},
		{PNG, ".png"},
		{GIF, ".gif"},
		{WebP, ".webp"},
		{PDF, ".pdf"},
		{"application/zip", ".bin"},
	}
	for _, tt := range tests {
		if got := tt.ct.Ext(); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.ct, got, tt.want)
		}
	}
}
