package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"

	"github.com/drishti/backend/gemini"
)

// PCM layout returned by the speech model unless its mime type says otherwise
const (
	defaultSampleRate = 24000
	pcmChannels       = 1
	pcmBitsPerSample  = 16
)

var ErrNoAudio = errors.New("no audio returned from speech model")

// Speak converts text to speech and returns a data:audio/wav;base64 URI
func (a *Assistant) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyQuery
	}

	resp, err := a.client.GenerateContent(ctx, a.tts, &gemini.Request{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{gemini.TextPart(text)}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &gemini.SpeechConfig{
				VoiceConfig: gemini.VoiceConfig{
					PrebuiltVoiceConfig: gemini.PrebuiltVoiceConfig{VoiceName: a.voice},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	mimeType, pcm, err := resp.InlineData()
	if err != nil || len(pcm) == 0 {
		return "", ErrNoAudio
	}

	wav := EncodeWAV(pcm, sampleRate(mimeType), pcmChannels, pcmBitsPerSample)
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav), nil
}

// sampleRate reads the rate parameter of a mime type such as
// audio/L16;codec=pcm;rate=24000
func sampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return defaultSampleRate
}

// EncodeWAV wraps little-endian PCM samples in a RIFF/WAVE header
func EncodeWAV(pcm []byte, rate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := rate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
