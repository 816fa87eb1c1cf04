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

package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseDataURL decodes a base64 audio payload that may carry a
// data:audio/<container> prefix. The container defaults to webm.
func ParseDataURL(payload string) ([]byte, string, error) {
	container := ContainerWebM
	switch {
	case strings.Contains(payload, "data:audio/webm"):
		container = ContainerWebM
	case strings.Contains(payload, "data:audio/mp4"):
		container = ContainerMP4
	case strings.Contains(payload, "data:audio/ogg"):
		container = ContainerOgg
	case strings.Contains(payload, "data:audio/wav"):
		container = ContainerWAV
	}

	encoded := payload
	if i := strings.Index(payload, ","); i >= 0 {
		encoded = payload[i+1:]
	}
	encoded = strings.TrimSpace(encoded)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 audio: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("invalid base64 audio: empty payload")
	}
	return data, container, nil
}
