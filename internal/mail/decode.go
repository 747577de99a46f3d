package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"strings"
)

// Decode parses a raw RFC 5322 message into structured data. Only
// attachments with a supported content type are kept; everything else is
// silently dropped, so a message whose attachments are all unsupported
// decodes with an empty attachment list.
func Decode(raw []byte) (*ParsedMessage, error) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mail: reading message: %w", err)
	}

	parsed := &ParsedMessage{
		Sender:  extractAddress(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		data, _ := io.ReadAll(msg.Body)
		parsed.Body = string(data)
		return parsed, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		data, _ := io.ReadAll(msg.Body)
		parsed.Body = string(data)
		return parsed, nil
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("mail: multipart message without boundary")
		}
		if err := walkMultipart(msg.Body, boundary, parsed); err != nil {
			return nil, err
		}
	case ContentType(mediaType).Supported():
		// Bare attachment body with no multipart wrapper.
		ct := ContentType(mediaType)
		data, err := io.ReadAll(decodeTransfer(msg.Body, msg.Header.Get("Content-Transfer-Encoding")))
		if err != nil {
			return nil, fmt.Errorf("mail: reading body: %w", err)
		}
		parsed.Attachments = append(parsed.Attachments, Attachment{
			Filename:    "receipt" + ct.Ext(),
			ContentType: ct,
			Data:        data,
		})
	default:
		data, _ := io.ReadAll(msg.Body)
		parsed.Body = string(data)
	}

	return parsed, nil
}

// walkMultipart reads every part, recursing into nested multiparts
// (multipart/alternative inside multipart/mixed is the common layout).
func walkMultipart(r io.Reader, boundary string, parsed *ParsedMessage) error {
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("mail: reading part: %w", err)
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if nested := params["boundary"]; nested != "" {
				if err := walkMultipart(part, nested, parsed); err != nil {
					return err
				}
			}
			continue
		}

		if strings.HasPrefix(mediaType, "text/plain") && part.FileName() == "" {
			data, _ := io.ReadAll(part)
			if parsed.Body == "" {
				parsed.Body = string(data)
			}
			continue
		}

		ct := ContentType(mediaType)
		if !ct.Supported() {
			continue
		}

		data, err := io.ReadAll(decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding")))
		if err != nil {
			return fmt.Errorf("mail: reading attachment: %w", err)
		}

		name := decodeHeader(part.FileName())
		if name == "" {
			name = "receipt" + ct.Ext()
		}

		parsed.Attachments = append(parsed.Attachments, Attachment{
			Filename:    name,
			ContentType: ct,
			Data:        data,
		})
	}
	return nil
}

// decodeTransfer undoes the Content-Transfer-Encoding. The multipart
// reader already handles quoted-printable; base64 is on us.
func decodeTransfer(r io.Reader, encoding string) io.Reader {
	if strings.EqualFold(strings.TrimSpace(encoding), "base64") {
		return base64.NewDecoder(base64.StdEncoding, r)
	}
	return r
}

// decodeHeader decodes RFC 2047 encoded words (=?UTF-8?B?...?=).
func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// extractAddress reduces a From header like "Alice <alice@example.com>"
// to the bare address.
func extractAddress(s string) string {
	addr, err := netmail.ParseAddress(s)
	if err == nil {
		return addr.Address
	}
	if start := strings.Index(s, "<"); start != -1 {
		if end := strings.Index(s, ">"); end != -1 && end > start {
			return strings.TrimSpace(s[start+1 : end])
		}
	}
	return strings.TrimSpace(s)
}
