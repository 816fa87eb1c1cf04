/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package turn

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/loqalabs/loqa-orbit/internal/stt"
	"go.uber.org/zap"
)

// Response is a served reply. AudioURL is empty when no speech was produced.
type Response struct {
	Text      string            `json:"text"`
	AudioURL  string            `json:"audio_url,omitempty"`
	Resources []events.Resource `json:"resources"`
}

// PipelineConfig wires a Pipeline. Synthesizer and Sinks are optional.
type PipelineConfig struct {
	Stages      Stages
	Synthesizer SpeechSynthesizer
	AudioMount  string
	Sinks       []Sink
}

// Pipeline answers one request at a time per call and is safe for
// concurrent use when its stages are.
type Pipeline struct {
	id          string
	stages      Stages
	synthesizer SpeechSynthesizer
	audioMount  string
	sinks       []Sink
}

// NewPipeline creates a served-mode pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	mount := cfg.AudioMount
	if mount == "" {
		mount = "/audio"
	}
	return &Pipeline{
		id:          uuid.NewString(),
		stages:      cfg.Stages,
		synthesizer: cfg.Synthesizer,
		audioMount:  mount,
		sinks:       cfg.Sinks,
	}
}

// Respond runs transcription, retrieval, generation, and synthesis for in.
// Degraded stages still yield a reply; err is set only when the turn hit an
// unexpected failure.
func (p *Pipeline) Respond(ctx context.Context, in stt.Input) (resp Response, err error) {
	event := events.NewTurnEvent(p.id, events.ModeAPI)
	turnID := event.UUID

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn %s panicked: %v", turnID, r)
			logging.LogError(err, "Turn recovered", zap.String("turn_id", turnID))
			event.SetError(err)
			resp = Response{}
		}
		recordEvent(p.sinks, event)
	}()

	event.SetInput(stt.Kind(in), inputDuration(in))
	logging.LogTurnStage(turnID, Transcribing.String(), zap.String("input_kind", stt.Kind(in)))

	result := p.stages.Transcriber.Transcribe(ctx, in)
	if !result.OK {
		text := AudioNotUnderstood
		if result.ProcessingFailed() {
			text = AudioProcessingFailed
		}
		event.SetError(errNotUnderstood)
		event.SetResponse(text, "", nil)
		return Response{Text: text, Resources: []events.Resource{}}, nil
	}
	query := result.Text
	event.SetTranscription(query, result.Strategy)

	logging.LogTurnStage(turnID, Retrieving.String())
	contextText := p.stages.Retriever.ContextText(ctx, query)
	event.SetContext(contextText)

	logging.LogTurnStage(turnID, Generating.String())
	reply := p.stages.Generator.Generate(ctx, query, contextText)
	if reply.Degraded {
		event.SetError(errDegradedReply)
	}

	logging.LogTurnStage(turnID, Synthesizing.String())
	var audioURL string
	if p.synthesizer != nil {
		if artifact, ok := p.synthesizer.Synthesize(ctx, reply.Text); ok {
			audioURL = artifact.URL(p.audioMount)
		}
	}

	resources := []events.Resource{{ID: "1", Title: RelatedTitle, Content: contextText}}
	if _, spoken := in.(stt.RawAudio); spoken {
		resources = []events.Resource{
			{ID: "1", Title: HeardTitle, Content: query},
			{ID: "2", Title: RelatedTitle, Content: contextText},
		}
	}

	event.SetResponse(reply.Text, audioURL, resources)
	return Response{Text: reply.Text, AudioURL: audioURL, Resources: resources}, nil
}
