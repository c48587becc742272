package main

import (
	"difyrelay/internal/agent"
	"difyrelay/internal/config"
	"difyrelay/internal/media"
)

// dispatcherMessages overlays the configured texts on the built-in ones.
func dispatcherMessages(mc config.MessagesConfig) agent.Messages {
	m := agent.DefaultMessages()
	override(&m.Unsupported, mc.Unsupported)
	override(&m.Generic, mc.Generic)
	override(&m.ImageSend, mc.ImageSend)
	override(&m.AudioGeneration, mc.AudioGeneration)
	override(&m.SpeechFailed, mc.SpeechFailed)
	override(&m.AudioSend, mc.AudioSend)

	for cat, fc := range mc.Failures {
		ft := m.Failures[cat]
		override(&ft.ContentPolicy, fc.ContentPolicy)
		override(&ft.EmptyQuery, fc.EmptyQuery)
		override(&ft.Generic, fc.Generic)
		if fc.SuppressGeneric != nil {
			ft.SuppressGeneric = *fc.SuppressGeneric
		}
		m.Failures[cat] = ft
	}
	return m
}

func dispatcherPrompts(pc config.PromptsConfig) agent.Prompts {
	p := agent.DefaultPrompts()
	override(&p.Image, pc.Image)
	override(&p.Video, pc.Video)
	override(&p.Document, pc.Document)
	return p
}

// formatOverrides replaces the allow-list of every configured category and
// keeps the built-in list for the rest.
func formatOverrides(formats map[string][]string) map[media.Category][]string {
	out := media.DefaultFormats()
	for cat, mimes := range formats {
		out[media.Category(cat)] = mimes
	}
	return out
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
