package mail

// ContentType identifies an attachment payload. The set is closed: only
// these five types are accepted for intake, and all of them can be
// converted to an archival PDF.
type ContentType string

const (
	JPEG ContentType = "image/jpeg"
	PNG  ContentType = "image/png"
	GIF  ContentType = "image/gif"
	WebP ContentType = "image/webp"
	PDF  ContentType = "application/pdf"
)

// Supported reports whether the content type is one of the recognized
// receipt formats.
func (c ContentType) Supported() bool {
	switch c {
	case JPEG, PNG, GIF, WebP, PDF:
		return true
	}
	return false
}

// Image reports whether the content type is a raster image that needs an
// intermediate PDF wrap before archival conversion.
func (c ContentType) Image() bool {
	return c.Supported() && c != PDF
}

// Archivable reports whether the attachment can be turned into a PDF/A
// artifact. Every supported type is archivable today; the capability is
// separate so a future type can be accepted but not archived.
func (c ContentType) Archivable() bool {
	return c.Supported()
}

// Ext returns the conventional file extension for the content type,
// including the leading dot.
func (c ContentType) Ext() string {
	switch c {
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	case GIF:
		return ".gif"
	case WebP:
		return ".webp"
	case PDF:
		return ".pdf"
	}
	return ".bin"
}

// Attachment is one receipt file extracted from an inbound message.
// Immutable once parsed.
type Attachment struct {
	Filename    string
	ContentType ContentType
	Data        []byte
}

// ParsedMessage is the decoded form of one inbound email. Attachments
// contains only supported content types, in the order they appeared.
type ParsedMessage struct {
	Sender      string
	Subject     string
	Body        string
	Attachments []Attachment
}
