package agent

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"difyrelay/internal/audio"
	"difyrelay/internal/bus"
	"difyrelay/internal/domain"
	"difyrelay/internal/media"
	"difyrelay/internal/reply"
)

// deliverAnswer sends the backend answer as an image, a file, or text. A
// plain-text answer is spoken instead when voice is set.
func (d *Dispatcher) deliverAnswer(ctx context.Context, p *pass, answer string, voice bool) {
	r := reply.Parse(answer)
	p.log.Debug("answer parsed", "kind", r.Kind, "url", r.URL)

	switch r.Kind {
	case reply.KindImage:
		d.sendImageReply(ctx, p, r)
	case reply.KindFile:
		d.sendFileReply(ctx, p, r.URL)
	default:
		if voice {
			d.sendVoiceReply(ctx, p, answer)
			return
		}
		d.sendText(ctx, p, answer)
	}
}

// sendImageReply sends the referenced image followed by its caption.
func (d *Dispatcher) sendImageReply(ctx context.Context, p *pass, r reply.Reply) {
	data, err := d.fetcher.Fetch(ctx, r.URL)
	if err != nil {
		p.outcome = "image_failed"
		p.log.Error("image fetch failed", "url", r.URL, "error", err)
		d.sendText(ctx, p, d.messages.ImageSend)
		return
	}

	mimeType := reply.ImageMIME(r.URL)
	if reply.Extension(r.URL) == "" {
		if sniffed := media.NormalizeMIME(mimetype.Detect(data).String()); strings.HasPrefix(sniffed, "image/") {
			mimeType = sniffed
		}
	}

	payload := &domain.MediaPayload{Data: data, MIMEType: mimeType, Filename: fileName(r.URL, "image")}
	if err := d.sendMedia(ctx, p, payload, false); err != nil {
		p.outcome = "image_failed"
		d.sendText(ctx, p, d.messages.ImageSend)
		return
	}
	d.sendText(ctx, p, r.Caption)
}

// sendFileReply delivers a linked audio file as a voice note. Links to other
// file types and every failure on this path are only logged.
func (d *Dispatcher) sendFileReply(ctx context.Context, p *pass, rawURL string) {
	ext := reply.Extension(rawURL)
	from, ok := audio.FormatFromExtension(ext)
	if !ok {
		p.outcome = "file_skipped"
		p.log.Info("file reply skipped", "url", rawURL, "ext", ext)
		return
	}

	data, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		p.outcome = "file_failed"
		p.log.Warn("file fetch failed", "url", rawURL, "error", err)
		return
	}

	note, err := audio.ToVoiceNote(ctx, d.transcoder, data, from)
	d.emitTranscode(p, err)
	if err != nil {
		p.outcome = "file_failed"
		p.log.Warn("file transcode failed", "url", rawURL, "format", from, "error", err)
		return
	}

	payload := &domain.MediaPayload{Data: note, MIMEType: audio.VoiceNoteMIME, Filename: "reply.ogg"}
	if err := d.sendMedia(ctx, p, payload, true); err != nil {
		p.outcome = "file_failed"
	}
}

// sendVoiceReply speaks text: each block is synthesized, fetched and
// transcoded before the next is requested, then all are joined into one
// voice note. Any failing block aborts the reply.
func (d *Dispatcher) sendVoiceReply(ctx context.Context, p *pass, text string) {
	blocks := media.SplitTextIntoBlocks(text, d.maxBlock)
	p.log.Info("speaking answer", "blocks", len(blocks))

	segments := make([][]byte, 0, len(blocks))
	for i, block := range blocks {
		seg, err := d.synthesizeBlock(ctx, block)
		d.events.Emit(bus.Event{Type: bus.EventSpeechSegment, Channel: p.msg.Channel, Category: p.category, Err: err})
		if err != nil {
			p.outcome = "speech_failed"
			p.log.Error("speech synthesis failed", "block", i+1, "of", len(blocks), "error", err)
			if errors.Is(err, domain.ErrNoAudioURL) {
				d.sendText(ctx, p, d.messages.AudioGeneration)
			} else {
				d.sendText(ctx, p, d.messages.SpeechFailed)
			}
			return
		}
		segments = append(segments, seg)
	}

	joined, err := d.transcoder.Concatenate(ctx, segments)
	if err != nil {
		p.outcome = "speech_failed"
		p.log.Error("voice note concatenation failed", "segments", len(segments), "error", err)
		d.sendText(ctx, p, d.messages.AudioSend)
		return
	}

	payload := &domain.MediaPayload{Data: joined, MIMEType: audio.VoiceNoteMIME, Filename: "reply.ogg"}
	if err := d.sendMedia(ctx, p, payload, true); err != nil {
		p.outcome = "speech_failed"
		d.sendText(ctx, p, d.messages.AudioSend)
	}
}

func (d *Dispatcher) synthesizeBlock(ctx context.Context, block string) ([]byte, error) {
	audioURL, err := d.speech.Synthesize(ctx, block)
	if err != nil {
		return nil, err
	}
	data, err := d.fetcher.Fetch(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	from, ok := audio.FormatFromExtension(reply.Extension(audioURL))
	if !ok {
		from = audio.FormatWAV
	}
	return audio.ToVoiceNote(ctx, d.transcoder, data, from)
}

// fileName is the last path element of rawURL, or fallback.
func fileName(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
		return base
	}
	return fallback
}
