package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
)

// transcribePrompt is shared by the LLM-backed recognizers
const transcribePrompt = `Transcribe every line of text visible in this document image.

Rules:
- Output the text exactly as printed, one printed line per output line, top to bottom
- Keep numbers, currency symbols and dates exactly as they appear
- Separate table columns with at least two spaces
- Do not summarize, translate, or add commentary
- Do not use markdown code blocks
- If there is no readable text, return an empty response

Expected document language: %s`

// toPNG normalizes any supported image to PNG
func toPNG(data []byte, mediaType string) ([]byte, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if mt == "image/png" && !isHEICFormat(data) {
		return data, nil
	}

	var img image.Image
	var err error
	if isHEICFormat(data) || isHEICMimeType(mt) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported image format %q. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF: %w", mediaType, err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// stripFences removes a markdown code fence some models wrap around their answer
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
