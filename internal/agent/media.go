package agent

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"difyrelay/internal/audio"
	"difyrelay/internal/bus"
	"difyrelay/internal/domain"
	"difyrelay/internal/media"
	"difyrelay/internal/reply"
)

const transferLocalFile = "local_file"

func (d *Dispatcher) handleMedia(ctx context.Context, p *pass) {
	payload, err := d.bus.DownloadMedia(ctx, p.msg)
	if err != nil {
		p.outcome = "download_failed"
		p.log.Error("media download failed", "type", p.msg.Type, "error", err)
		d.sendText(ctx, p, d.messages.Generic)
		return
	}

	payload.MIMEType = resolveMIME(payload, p.msg.MediaMIME)
	category, ok := d.formats.CategoryOf(payload.MIMEType)
	if !ok {
		p.outcome = "unsupported_format"
		p.log.Info("unsupported media dropped", "mime", payload.MIMEType, "type", p.msg.Type)
		d.events.Emit(bus.Event{Type: bus.EventMessageIgnored, Channel: p.msg.Channel, Outcome: "unsupported_format"})
		return
	}

	p.category = string(category)
	p.log.Info("media message", "category", category, "mime", payload.MIMEType, "bytes", len(payload.Data))

	switch category {
	case media.CategoryImage:
		d.handleImage(ctx, p, payload)
	case media.CategoryAudio:
		d.handleAudio(ctx, p, payload)
	case media.CategoryVideo, media.CategoryDocument:
		d.handleAttachment(ctx, p, category, payload)
	}
}

// resolveMIME prefers the downloaded payload's type, then the type declared
// on the message, then content sniffing.
func resolveMIME(payload *domain.MediaPayload, declared string) string {
	mt := media.NormalizeMIME(payload.MIMEType)
	if mt == "" || mt == "application/octet-stream" {
		if d := media.NormalizeMIME(declared); d != "" {
			mt = d
		}
	}
	if mt == "" || mt == "application/octet-stream" {
		mt = media.NormalizeMIME(mimetype.Detect(payload.Data).String())
	}
	return mt
}

func (d *Dispatcher) queryFor(body string, category media.Category) string {
	if IsMeaningfulQuery(body) {
		return body
	}
	return d.prompts.forCategory(category)
}

// uploadAndChat uploads payload and asks the backend about it.
func (d *Dispatcher) uploadAndChat(ctx context.Context, p *pass, category media.Category, payload *domain.MediaPayload) (*domain.ChatResponse, error) {
	if payload.Filename == "" {
		payload.Filename = uploadName(category, payload.MIMEType)
	}
	id, err := d.backend.UploadFile(ctx, p.msg.SenderID, *payload)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", category, err)
	}
	return d.chat(ctx, p, domain.ChatRequest{
		Query: d.queryFor(p.msg.Body, category),
		User:  p.msg.SenderID,
		Files: []domain.FileRef{{
			Type:           string(category),
			TransferMethod: transferLocalFile,
			UploadFileID:   id,
		}},
	})
}

// uploadName invents a file name whose extension matches mimeType.
func uploadName(category media.Category, mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil {
		return string(category) + m.Extension()
	}
	return string(category)
}

func (d *Dispatcher) handleImage(ctx context.Context, p *pass, payload *domain.MediaPayload) {
	resp, err := d.uploadAndChat(ctx, p, media.CategoryImage, payload)
	if err != nil {
		d.fail(ctx, p, err)
		return
	}
	d.deliverAnswer(ctx, p, resp.Answer, false)
}

// handleAttachment covers video and document: the answer always goes back
// as plain text.
func (d *Dispatcher) handleAttachment(ctx context.Context, p *pass, category media.Category, payload *domain.MediaPayload) {
	resp, err := d.uploadAndChat(ctx, p, category, payload)
	if err != nil {
		d.fail(ctx, p, err)
		return
	}
	d.sendText(ctx, p, resp.Answer)
}

// handleAudio transcribes the recording and answers the transcript. Unless
// the answer links a file, the reply is always spoken.
func (d *Dispatcher) handleAudio(ctx context.Context, p *pass, payload *domain.MediaPayload) {
	from, ok := audio.FormatFromMIME(payload.MIMEType)
	if !ok {
		from = audio.FormatOGG
	}

	wav := payload.Data
	if from != audio.FormatWAV {
		var err error
		wav, err = d.transcoder.Transcode(ctx, payload.Data, from, audio.FormatWAV, audio.CodecDefault)
		d.emitTranscode(p, err)
		if err != nil {
			d.fail(ctx, p, fmt.Errorf("transcode inbound audio: %w", err))
			return
		}
	}

	transcript, err := d.backend.AudioToText(ctx, p.msg.SenderID, domain.MediaPayload{
		Data:     wav,
		MIMEType: "audio/wav",
		Filename: "audio.wav",
	})
	if err != nil {
		d.fail(ctx, p, fmt.Errorf("audio to text: %w", err))
		return
	}
	p.log.Info("audio transcribed", "text_len", len(transcript))

	resp, err := d.chat(ctx, p, domain.ChatRequest{Query: transcript, User: p.msg.SenderID})
	if err != nil {
		d.fail(ctx, p, err)
		return
	}

	if url, ok := reply.FileURL(resp.Answer); ok {
		d.sendFileReply(ctx, p, url)
		return
	}
	d.sendVoiceReply(ctx, p, resp.Answer)
}

func (d *Dispatcher) emitTranscode(p *pass, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.events.Emit(bus.Event{Type: bus.EventTranscode, Channel: p.msg.Channel, Category: p.category, Outcome: outcome, Err: err})
}
