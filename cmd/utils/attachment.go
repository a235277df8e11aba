package utils

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxAttachmentSize = 25 << 20 // 25 MB
	AttachmentPath    = "uploads/attachments"
)

// SaveAttachment saves an uploaded post attachment and returns its URL path
// together with the inferred MIME category.
func SaveAttachment(file multipart.File, header *multipart.FileHeader) (string, string, error) {
	if header.Size > MaxAttachmentSize {
		return "", "", fmt.Errorf("file size exceeds maximum limit of %d MB", MaxAttachmentSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))

	if err := os.MkdirAll(AttachmentPath, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create upload directory: %v", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)
	filePath := filepath.Join(AttachmentPath, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", "", fmt.Errorf("failed to save file: %v", err)
	}

	return fmt.Sprintf("/attachments/%s", filename), MimeCategory(header.Filename), nil
}

// MimeCategory classifies a filename into a coarse category used when
// rendering attachments.
func MimeCategory(filename string) string {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "application/pdf"),
		strings.HasPrefix(mimeType, "application/msword"),
		strings.HasPrefix(mimeType, "application/vnd.openxmlformats"),
		strings.HasPrefix(mimeType, "text/"):
		return "document"
	default:
		return "other"
	}
}

func DeleteAttachment(attachmentURL string) error {
	filename := filepath.Base(attachmentURL)
	filePath := filepath.Join(AttachmentPath, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(filePath)
}
