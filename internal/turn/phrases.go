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

import "strings"

// Fixed utterances of the interactive agent
const (
	Greeting          = "Hello there! I'm Orbit, your super friendly local assistant! How can I make your day awesome?"
	NotCaughtReply    = "I didn't catch that. Could you please say it again?"
	NotUnderstood     = "Sorry, I had trouble understanding what you said. Please try again."
	TroubleThinking   = "I'm having a little trouble thinking right now. Please try again in a moment."
	SnagReply         = "Whoops! I hit a little snag. Let's try that again, or you can say quit to exit."
	Farewell          = "Goodbye! Have a great day."
	InterruptFarewell = "Okay, exiting now! Have a fantastic day!"
)

// Fixed replies of the served API when uploaded audio yields no text
const (
	AudioProcessingFailed = "I had trouble processing your audio. Could you please try again with a clearer voice?"
	AudioNotUnderstood    = "I couldn't understand the audio. Could you please try again?"
)

// Resource titles attached to served replies
const (
	HeardTitle   = "I heard you say"
	RelatedTitle = "Related Information"
)

var exitPhrases = map[string]struct{}{
	"quit":              {},
	"exit":              {},
	"goodbye":           {},
	"stop":              {},
	"thank you goodbye": {},
}

// IsExitPhrase reports whether text, ignoring case and surrounding space,
// asks to end the conversation
func IsExitPhrase(text string) bool {
	_, ok := exitPhrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
