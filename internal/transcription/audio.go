package transcription

import (
	"github.com/gabriel-vasile/mimetype"
)

// Audio is an uploaded clip with the container detected from its bytes.
type Audio struct {
	Data     []byte
	Filename string
	MIME     string
}

// supported lists the containers the Whisper-style endpoints accept.
var supported = map[string]bool{
	".flac": true,
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".ogg":  true,
	".oga":  true,
	".wav":  true,
	".webm": true,
}

// DetectAudio sniffs the container of data. Browser MediaRecorder output that
// cannot be identified is sent as webm.
func DetectAudio(data []byte) Audio {
	mt := mimetype.Detect(data)
	ext := mt.Extension()
	mime := mt.String()
	if !supported[ext] {
		ext = ".webm"
		mime = "audio/webm"
	}
	return Audio{Data: data, Filename: "audio" + ext, MIME: mime}
}
