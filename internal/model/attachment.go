package model

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// AttachmentFromFile describes a local file for upload. The message type is
// derived from the file's MIME type.
func AttachmentFromFile(path string) (*Attachment, MessageType, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory", path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	att := &Attachment{
		FileName: filepath.Base(path),
		MimeType: mimeType,
		Size:     info.Size(),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
	return att, TypeForMIME(mimeType), nil
}

// TypeForMIME maps a MIME type onto a message type.
func TypeForMIME(mimeType string) MessageType {
	major, _, _ := strings.Cut(mimeType, "/")
	switch major {
	case "image":
		return TypeImage
	case "video":
		return TypeVideo
	case "audio":
		return TypeAudio
	default:
		return TypeDocument
	}
}
