// Package audio validates uploaded audio and converts it to the canonical
// format the transcription provider expects. Gates run cheapest-first: size
// before format detection, format detection before duration probing, duration
// probing before the transcode itself, so bad input is rejected with minimal
// wasted work.
package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// Format identifies a supported source audio container/codec.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
)

// CanonicalMimeType is the MIME type of transcoded output: all inputs are
// normalized to 16 kHz mono MP3 before transcription.
const CanonicalMimeType = "audio/mpeg"

// Ext returns the filename extension used for temp files of this format.
func (f Format) Ext() string {
	return "." + string(f)
}

// FileMeta describes an uploaded file for validation, before its payload is
// touched.
type FileMeta struct {
	Name      string
	MimeType  string
	SizeBytes int64
}

var mimeFormats = map[string]Format{
	"audio/mpeg":  FormatMP3,
	"audio/mp3":   FormatMP3,
	"audio/mp4":   FormatM4A,
	"audio/m4a":   FormatM4A,
	"audio/x-m4a": FormatM4A,
	"audio/wav":   FormatWAV,
	"audio/x-wav": FormatWAV,
	"audio/wave":  FormatWAV,
	"audio/webm":  FormatWebM,
	"video/webm":  FormatWebM,
	"audio/ogg":   FormatOGG,
	"audio/opus":  FormatOGG,
	"audio/flac":  FormatFLAC,
	"audio/x-flac": FormatFLAC,
}

var extFormats = map[string]Format{
	".mp3":  FormatMP3,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".wav":  FormatWAV,
	".webm": FormatWebM,
	".ogg":  FormatOGG,
	".opus": FormatOGG,
	".flac": FormatFLAC,
}

var canonicalMimes = map[Format]string{
	FormatMP3:  "audio/mpeg",
	FormatM4A:  "audio/mp4",
	FormatWAV:  "audio/wav",
	FormatWebM: "audio/webm",
	FormatOGG:  "audio/ogg",
	FormatFLAC: "audio/flac",
}

// genericMime reports whether a declared MIME type carries no format signal,
// in which case classification falls back to the filename extension.
func genericMime(mimeType string) bool {
	switch mimeType {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	}
	return false
}

// Validate classifies a file by declared MIME type, falling back to the
// filename extension when the MIME type is generic, and enforces the size
// gates. It is idempotent: the same metadata always yields the same
// (format, mimeType) pair or the same rejection.
func (p *Preparer) Validate(meta FileMeta) (Format, string, error) {
	if meta.SizeBytes <= 0 {
		return "", "", errs.Newf(errs.KindEmptyFile, "%q is empty.", meta.Name)
	}
	if meta.SizeBytes > p.maxFileSizeBytes {
		return "", "", errs.Newf(errs.KindFileTooLarge, "%q is larger than %d MB.",
			meta.Name, p.maxFileSizeBytes>>20)
	}

	mimeType := strings.ToLower(strings.TrimSpace(meta.MimeType))
	if format, ok := mimeFormats[mimeType]; ok {
		return format, canonicalMimes[format], nil
	}
	if genericMime(mimeType) {
		ext := strings.ToLower(filepath.Ext(meta.Name))
		if format, ok := extFormats[ext]; ok {
			return format, canonicalMimes[format], nil
		}
	}

	return "", "", errs.Newf(errs.KindInvalidFormat,
		"%q is not a supported audio format. Supported: %s.", meta.Name, supportedList())
}

func supportedList() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s",
		FormatMP3, FormatM4A, FormatWAV, FormatWebM, FormatOGG, FormatFLAC)
}
